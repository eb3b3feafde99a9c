package model

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TokenKind identifies one step of a document path such as $.items[*].name.
type TokenKind int

const (
	TokenRoot TokenKind = iota
	TokenField
	TokenIndex
	TokenStarField
	TokenStarIndex
)

type PathToken struct {
	Kind  TokenKind
	Name  string
	Index int
}

var identifier = regexp.MustCompile(`^[a-zA-Z0-9_\-:#@]+$`)

// RootPath is the path of a whole document.
const RootPath = "$"

// FieldPath appends an object key to a path, quoting it when required.
func FieldPath(parent, name string) string {
	if identifier.MatchString(name) {
		return parent + "." + name
	}
	return parent + "['" + strings.ReplaceAll(name, "'", "\\'") + "']"
}

// IndexPath appends an array index to a path.
func IndexPath(parent string, index int) string {
	return parent + "[" + strconv.Itoa(index) + "]"
}

// StarPath appends an any-element selector to a path.
func StarPath(parent string) string {
	return parent + "[*]"
}

// ParsePath parses a path expression into tokens. Both the $.a.b form and the
// bracketed $['a']['b'] form are accepted; a missing leading $ is tolerated.
func ParsePath(path string) ([]PathToken, error) {
	tokens := []PathToken{{Kind: TokenRoot}}

	rest := strings.TrimSpace(path)
	switch {
	case rest == "" || rest == "$":
		return tokens, nil
	case strings.HasPrefix(rest, "$"):
		rest = rest[1:]
	default:
		rest = "." + rest
	}

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			name := rest[:end]
			if name == "" {
				return nil, errors.Errorf("invalid path %q: empty field name", path)
			}
			if name == "*" {
				tokens = append(tokens, PathToken{Kind: TokenStarField})
			} else {
				tokens = append(tokens, PathToken{Kind: TokenField, Name: name})
			}
			rest = rest[end:]
		case '[':
			end := closingBracket(rest)
			if end < 0 {
				return nil, errors.Errorf("invalid path %q: unterminated '['", path)
			}
			inner := strings.TrimSpace(rest[1:end])
			rest = rest[end+1:]

			switch {
			case inner == "*":
				tokens = append(tokens, PathToken{Kind: TokenStarIndex})
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				name := strings.ReplaceAll(inner[1:len(inner)-1], "\\"+string(inner[0]), string(inner[0]))
				tokens = append(tokens, PathToken{Kind: TokenField, Name: name})
			default:
				index, err := strconv.Atoi(inner)
				if err != nil {
					return nil, errors.Errorf("invalid path %q: bad index %q", path, inner)
				}
				tokens = append(tokens, PathToken{Kind: TokenIndex, Index: index})
			}
		default:
			return nil, errors.Errorf("invalid path %q: unexpected %q", path, rest[0])
		}
	}

	return tokens, nil
}

func closingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '\'' || c == '"'):
			quote = c
		case quote == 0 && c == ']':
			return i
		}
	}
	return -1
}
