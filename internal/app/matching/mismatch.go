package matching

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidRegex = errors.New("invalid regex")

// Kind classifies where a mismatch was found.
type Kind int

const (
	KindMethod Kind = iota
	KindPath
	KindStatus
	KindHeaderMissing
	KindHeaderValue
	KindQueryMissing
	KindQueryValue
	KindBodyType
	KindBody
	KindMetadata
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindPath:
		return "path"
	case KindStatus:
		return "status"
	case KindHeaderMissing:
		return "header-missing"
	case KindHeaderValue:
		return "header-value"
	case KindQueryMissing:
		return "query-missing"
	case KindQueryValue:
		return "query-value"
	case KindBodyType:
		return "body-type"
	case KindBody:
		return "body-value"
	case KindMetadata:
		return "metadata"
	}
	return "unknown"
}

// WireType is the mismatch type used in mismatch JSON documents.
func (k Kind) WireType() string {
	switch k {
	case KindMethod:
		return "MethodMismatch"
	case KindPath:
		return "PathMismatch"
	case KindStatus:
		return "StatusMismatch"
	case KindHeaderMissing, KindHeaderValue:
		return "HeaderMismatch"
	case KindQueryMissing, KindQueryValue:
		return "QueryMismatch"
	case KindBodyType:
		return "BodyTypeMismatch"
	case KindBody:
		return "BodyMismatch"
	case KindMetadata:
		return "MetadataMismatch"
	}
	return "Mismatch"
}

// Mismatch describes one way an actual value failed to satisfy an expectation.
// Path is the body path, header name or query parameter the mismatch is about.
type Mismatch struct {
	Kind        Kind
	Path        string
	Expected    string
	Actual      string
	Description string
	// Err is set when the mismatch comes from a rule that could not be evaluated,
	// such as a malformed regex.
	Err error
}

func (m Mismatch) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"type":     m.Kind.WireType(),
		"expected": m.Expected,
		"actual":   m.Actual,
		"mismatch": m.Description,
	}
	switch m.Kind {
	case KindHeaderMissing, KindHeaderValue, KindMetadata:
		out["key"] = m.Path
	case KindQueryMissing, KindQueryValue:
		out["parameter"] = m.Path
	case KindBody, KindBodyType:
		out["path"] = m.Path
	}
	return json.Marshal(out)
}

func (m Mismatch) String() string {
	if m.Path == "" {
		return m.Kind.String() + ": " + m.Description
	}
	return m.Kind.String() + " " + m.Path + ": " + m.Description
}

// Mismatches is the outcome of matching; empty means a full match.
type Mismatches []Mismatch

func (m Mismatches) Matched() bool {
	return len(m) == 0
}

// RouteMismatch reports whether the method or path did not match.
func (m Mismatches) RouteMismatch() bool {
	for _, mismatch := range m {
		if mismatch.Kind == KindMethod || mismatch.Kind == KindPath {
			return true
		}
	}
	return false
}

func (m Mismatches) String() string {
	lines := make([]string, len(m))
	for i, mismatch := range m {
		lines[i] = mismatch.String()
	}
	return strings.Join(lines, "\n")
}

// retag moves body-style mismatches produced by the value matcher to kind.
func retag(mismatches Mismatches, kind Kind, path string) Mismatches {
	for i := range mismatches {
		mismatches[i].Kind = kind
		if path != "" {
			mismatches[i].Path = path
		}
	}
	return mismatches
}
