package matching

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
)

// Request is an incoming HTTP request reduced to the parts that take part in matching.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// NewRequest reads the matching view of r. The body must already be read into body.
func NewRequest(r *http.Request, body []byte) *Request {
	return &Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: r.Header,
		Body:    body,
	}
}

// MatchRequest compares an actual request with an expected one and returns every mismatch.
func MatchRequest(expected model.Request, actual *Request) Mismatches {
	var mismatches Mismatches
	mismatches = append(mismatches, MatchMethod(expected.Method, actual.Method)...)
	mismatches = append(mismatches, MatchPath(expected.Path, actual.Path, expected.MatchingRules.Lookup(model.CategoryPath))...)
	mismatches = append(mismatches, MatchQuery(expected.Query, actual.Query, expected.MatchingRules.Lookup(model.CategoryQuery))...)
	mismatches = append(mismatches, MatchHeaders(expected.Headers, actual.Headers, expected.MatchingRules.Lookup(model.CategoryHeader))...)
	mismatches = append(mismatches, MatchBody(expected.Body, actual.Body, actual.Headers.Get("Content-Type"), expected.MatchingRules.Lookup(model.CategoryBody))...)
	return mismatches
}

func MatchMethod(expected, actual string) Mismatches {
	if strings.EqualFold(expected, actual) {
		return nil
	}
	return Mismatches{{
		Kind:        KindMethod,
		Expected:    strings.ToUpper(expected),
		Actual:      strings.ToUpper(actual),
		Description: fmt.Sprintf("Expected method '%s' but received '%s'", strings.ToUpper(expected), strings.ToUpper(actual)),
	}}
}

func MatchPath(expected, actual string, rules model.RuleCategory) Mismatches {
	if list := rules[model.RootPath]; list != nil && len(list.Matchers) > 0 {
		return scalarMismatches(KindPath, "", expected, actual, list)
	}
	if expected == actual {
		return nil
	}
	return Mismatches{{
		Kind:        KindPath,
		Expected:    expected,
		Actual:      actual,
		Description: fmt.Sprintf("Expected path '%s' but received '%s'", expected, actual),
	}}
}

// MatchStatus compares response status codes, honouring statusCode rules.
func MatchStatus(expected, actual int, rules model.RuleCategory) Mismatches {
	if list := rules[model.RootPath]; list != nil {
		for _, rule := range list.Matchers {
			if rule.Match == model.MatchStatusCode {
				if statusInClass(rule.Value, actual) {
					return nil
				}
				return Mismatches{{
					Kind:        KindStatus,
					Expected:    render(rule.Value),
					Actual:      strconv.Itoa(actual),
					Description: fmt.Sprintf("Expected status %d to be %s", actual, render(rule.Value)),
				}}
			}
		}
		return scalarMismatches(KindStatus, "", strconv.Itoa(expected), strconv.Itoa(actual), list)
	}
	if expected == actual {
		return nil
	}
	return Mismatches{{
		Kind:        KindStatus,
		Expected:    strconv.Itoa(expected),
		Actual:      strconv.Itoa(actual),
		Description: fmt.Sprintf("Expected status %d but received %d", expected, actual),
	}}
}

func statusInClass(class interface{}, status int) bool {
	switch c := class.(type) {
	case string:
		switch c {
		case "info", "information":
			return status >= 100 && status < 200
		case "success":
			return status >= 200 && status < 300
		case "redirect":
			return status >= 300 && status < 400
		case "clientError":
			return status >= 400 && status < 500
		case "serverError":
			return status >= 500 && status < 600
		case "nonError":
			return status < 400
		case "error":
			return status >= 400
		}
	case []interface{}:
		for _, code := range c {
			if n, ok := asFloat(code); ok && int(n) == status {
				return true
			}
		}
	}
	return false
}

// MatchQuery checks that every expected parameter value is present at its
// index. Parameters that were not declared are ignored.
func MatchQuery(expected model.MultiValues, actual url.Values, rules model.RuleCategory) Mismatches {
	var mismatches Mismatches
	for _, name := range expected.Names() {
		want := expected[name]
		got, ok := actual[name]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        KindQueryMissing,
				Path:        name,
				Expected:    strings.Join(want, ","),
				Description: fmt.Sprintf("Expected query parameter '%s' but was missing", name),
			})
			continue
		}
		mismatches = append(mismatches, matchIndexed(KindQueryValue, name, "query parameter", want, got, rules[name], valuesEqualString)...)
	}
	return mismatches
}

// MatchHeaders checks that every expected header value is present at its
// index. Header names compare case-insensitively and undeclared headers are ignored.
func MatchHeaders(expected model.MultiValues, actual http.Header, rules model.RuleCategory) Mismatches {
	var mismatches Mismatches
	for _, name := range expected.Names() {
		want := expected[name]
		got := actual.Values(name)
		if len(got) == 0 {
			mismatches = append(mismatches, Mismatch{
				Kind:        KindHeaderMissing,
				Path:        name,
				Expected:    strings.Join(want, ", "),
				Description: fmt.Sprintf("Expected a header '%s' but was missing", name),
			})
			continue
		}

		list := headerRules(rules, name)
		compare := valuesEqualString
		if strings.EqualFold(name, "Content-Type") {
			compare = contentTypesEqual
		}
		if list == nil {
			want, got = splitHeaderValues(want), splitHeaderValues(got)
		} else if len(got) == 1 && len(want) > 1 {
			got = splitHeaderValues(got)
		}
		mismatches = append(mismatches, matchIndexed(KindHeaderValue, name, "header", want, got, list, compare)...)
	}
	return mismatches
}

func headerRules(rules model.RuleCategory, name string) *model.RuleList {
	for key, list := range rules {
		if strings.EqualFold(key, name) {
			return list
		}
	}
	return nil
}

func matchIndexed(kind Kind, name, what string, want, got []string, list *model.RuleList, equal func(string, string) bool) Mismatches {
	var mismatches Mismatches
	for i, expected := range want {
		if i >= len(got) {
			mismatches = append(mismatches, Mismatch{
				Kind:        kind,
				Path:        name,
				Expected:    expected,
				Description: fmt.Sprintf("Expected %s '%s' to have a value '%s' at index %d but it only had %d value(s)", what, name, expected, i, len(got)),
			})
			continue
		}
		if list != nil && len(list.Matchers) > 0 {
			mismatches = append(mismatches, scalarMismatches(kind, name, expected, got[i], list)...)
			continue
		}
		if !equal(expected, got[i]) {
			mismatches = append(mismatches, Mismatch{
				Kind:        kind,
				Path:        name,
				Expected:    expected,
				Actual:      got[i],
				Description: fmt.Sprintf("Expected %s '%s' to have value '%s' but received '%s'", what, name, expected, got[i]),
			})
		}
	}
	return mismatches
}

// scalarMismatches applies rules to a text value such as a header, parameter or path.
func scalarMismatches(kind Kind, name, expected, actual string, list *model.RuleList) Mismatches {
	var mismatches Mismatches
	for _, failure := range applyRules(list, expected, actual) {
		mismatches = append(mismatches, Mismatch{
			Kind:        kind,
			Path:        name,
			Expected:    expected,
			Actual:      actual,
			Description: failure.description,
			Err:         failure.err,
		})
	}
	return mismatches
}

func splitHeaderValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

func valuesEqualString(expected, actual string) bool {
	return expected == actual
}

// contentTypesEqual compares media types exactly and requires every expected
// parameter; extra actual parameters such as charset are allowed.
func contentTypesEqual(expected, actual string) bool {
	wantType, wantParams, err := parseMediaType(expected)
	if err != nil {
		return strings.TrimSpace(expected) == strings.TrimSpace(actual)
	}
	gotType, gotParams, err := parseMediaType(actual)
	if err != nil || wantType != gotType {
		return false
	}
	for k, v := range wantParams {
		if !strings.EqualFold(gotParams[k], v) {
			return false
		}
	}
	return true
}
