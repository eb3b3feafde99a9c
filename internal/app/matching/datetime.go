package matching

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Java date pattern letters and the Go layout they translate to, keyed by run length.
var javaLayouts = map[byte]map[int]string{
	'y': {1: "2006", 2: "06", 4: "2006"},
	'M': {1: "1", 2: "01", 3: "Jan", 4: "January"},
	'd': {1: "2", 2: "02"},
	'H': {1: "15", 2: "15"},
	'h': {1: "3", 2: "03"},
	'm': {1: "4", 2: "04"},
	's': {1: "5", 2: "05"},
	'S': {1: "0", 2: "00", 3: "000", 6: "000000", 9: "000000000"},
	'a': {1: "PM"},
	'E': {1: "Mon", 2: "Mon", 3: "Mon", 4: "Monday"},
	'X': {1: "Z07", 2: "Z0700", 3: "Z07:00"},
	'x': {1: "-07", 2: "-0700", 3: "-07:00"},
	'Z': {1: "-0700", 2: "-0700", 3: "-0700"},
	'z': {1: "MST", 2: "MST", 3: "MST", 4: "MST"},
}

// JavaToGoLayout translates a Java DateTimeFormatter style pattern, as used in
// pact date/time/timestamp rules, into a Go time layout.
func JavaToGoLayout(pattern string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]

		if c == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				return "", errors.Errorf("unterminated quote in %q", pattern)
			}
			if end == 0 {
				b.WriteByte('\'')
			} else {
				b.WriteString(pattern[i+1 : i+1+end])
			}
			i += end + 2
			continue
		}

		if !isPatternLetter(c) {
			b.WriteByte(c)
			i++
			continue
		}

		n := 1
		for i+n < len(pattern) && pattern[i+n] == c {
			n++
		}
		layouts, ok := javaLayouts[c]
		if !ok {
			return "", errors.Errorf("unsupported pattern letter %q in %q", c, pattern)
		}
		layout, ok := layouts[n]
		if !ok {
			layout, ok = layouts[1]
			if c == 'y' && n > 2 {
				layout, ok = layouts[4]
			}
		}
		if !ok {
			return "", errors.Errorf("unsupported pattern %q in %q", strings.Repeat(string(c), n), pattern)
		}
		b.WriteString(layout)
		i += n
	}
	return b.String(), nil
}

func isPatternLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// GenerateDatetime formats the current time with a Java style pattern.
func GenerateDatetime(pattern string) (string, error) {
	return formatDatetime(pattern, time.Now())
}

func formatDatetime(pattern string, t time.Time) (string, error) {
	layout, err := JavaToGoLayout(pattern)
	if err != nil {
		return "", err
	}
	return t.Format(layout), nil
}
