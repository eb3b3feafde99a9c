package matching

import (
	"math/rand"
	"regexp"
	"regexp/syntax"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type compiledRegex struct {
	re  *regexp.Regexp
	err error
}

var regexCache sync.Map

// compileRegex compiles and caches a pattern. Compile failures are cached too
// and reported as ErrInvalidRegex.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		c := cached.(compiledRegex)
		return c.re, c.err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		err = errInvalidRegex(pattern, err)
	}
	regexCache.Store(pattern, compiledRegex{re: re, err: err})
	return re, err
}

// CheckRegex reports whether example matches regex. A malformed regex never matches.
func CheckRegex(regex, example string) bool {
	re, err := compileRegex(regex)
	if err != nil {
		return false
	}
	return re.MatchString(example)
}

const maxGenerateAttempts = 20

// GenerateRegexValue produces a random string matching regex.
func GenerateRegexValue(regex string) (string, error) {
	re, err := compileRegex(regex)
	if err != nil {
		return "", err
	}
	parsed, err := syntax.Parse(regex, syntax.Perl)
	if err != nil {
		return "", errInvalidRegex(regex, err)
	}
	parsed = parsed.Simplify()

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		var b strings.Builder
		generate(&b, parsed)
		if re.MatchString(b.String()) {
			return b.String(), nil
		}
	}
	return "", errors.Errorf("unable to generate a value matching %q", regex)
}

func generate(b *strings.Builder, re *syntax.Regexp) {
	switch re.Op {
	case syntax.OpLiteral:
		b.WriteString(string(re.Rune))
	case syntax.OpCharClass:
		b.WriteRune(pickRune(re.Rune))
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteRune(rune('a' + rand.Intn(26)))
	case syntax.OpCapture:
		generate(b, re.Sub[0])
	case syntax.OpStar:
		repeat(b, re.Sub[0], 0, 3)
	case syntax.OpPlus:
		repeat(b, re.Sub[0], 1, 4)
	case syntax.OpQuest:
		repeat(b, re.Sub[0], 0, 1)
	case syntax.OpRepeat:
		max := re.Max
		if max < 0 {
			max = re.Min + 3
		}
		repeat(b, re.Sub[0], re.Min, max)
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			generate(b, sub)
		}
	case syntax.OpAlternate:
		generate(b, re.Sub[rand.Intn(len(re.Sub))])
	}
}

func repeat(b *strings.Builder, re *syntax.Regexp, min, max int) {
	n := min
	if max > min {
		n += rand.Intn(max - min + 1)
	}
	for i := 0; i < n; i++ {
		generate(b, re)
	}
}

// pickRune chooses a rune from a class given as lo/hi pairs, preferring printable ASCII.
func pickRune(ranges []rune) rune {
	if len(ranges) == 0 {
		return 'a'
	}
	var printable [][2]rune
	for i := 0; i+1 < len(ranges); i += 2 {
		lo, hi := ranges[i], ranges[i+1]
		if lo < '!' {
			lo = '!'
		}
		if hi > '~' {
			hi = '~'
		}
		if lo <= hi {
			printable = append(printable, [2]rune{lo, hi})
		}
	}
	if len(printable) == 0 {
		return ranges[0]
	}
	r := printable[rand.Intn(len(printable))]
	return r[0] + rune(rand.Intn(int(r[1]-r[0])+1))
}
