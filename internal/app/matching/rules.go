package matching

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// ruleFailure is the outcome of a single rule that did not hold.
type ruleFailure struct {
	description string
	err         error
}

// applyRules evaluates a rule list against a value. With OR combination any
// passing rule is enough; otherwise every rule must pass.
func applyRules(list *model.RuleList, expected, actual interface{}) []ruleFailure {
	var failures []ruleFailure
	for _, rule := range list.Matchers {
		failure := applyRule(rule, expected, actual)
		if failure == nil {
			if list.IsOr() {
				return nil
			}
			continue
		}
		failures = append(failures, *failure)
	}
	return failures
}

func applyRule(rule model.MatchingRule, expected, actual interface{}) *ruleFailure {
	fail := func(format string, args ...interface{}) *ruleFailure {
		return &ruleFailure{description: fmt.Sprintf(format, args...)}
	}

	switch rule.Match {
	case model.MatchEquality:
		want := expected
		if rule.Value != nil {
			want = rule.Value
		}
		if !valuesEqual(want, actual) {
			return fail("Expected %s to be equal to %s", describe(actual), describe(want))
		}
	case model.MatchRegex:
		re, err := compileRegex(rule.Regex)
		if err != nil {
			return &ruleFailure{description: fmt.Sprintf("Invalid regex %q: %v", rule.Regex, err), err: err}
		}
		s, ok := scalarString(actual)
		if !ok || !re.MatchString(s) {
			return fail("Expected %s to match '%s'", describe(actual), rule.Regex)
		}
	case model.MatchType:
		if !sameType(expected, actual) {
			return fail("Expected %s (%s) to be the same type as %s (%s)", describe(actual), typeName(actual), describe(expected), typeName(expected))
		}
		return checkLength(rule, actual)
	case model.MatchInclude:
		want, _ := scalarString(rule.Value)
		if rule.Value == nil {
			want, _ = scalarString(expected)
		}
		s, ok := scalarString(actual)
		if !ok || !strings.Contains(s, want) {
			return fail("Expected %s to include '%s'", describe(actual), want)
		}
	case model.MatchInteger:
		if !isInteger(actual) {
			return fail("Expected %s to be an integer", describe(actual))
		}
	case model.MatchDecimal:
		if !isDecimal(actual) {
			return fail("Expected %s to be a decimal number", describe(actual))
		}
	case model.MatchNumber:
		if _, ok := asFloat(actual); !ok {
			return fail("Expected %s to be a number", describe(actual))
		}
	case model.MatchBoolean:
		switch v := actual.(type) {
		case bool:
		case string:
			if v != "true" && v != "false" {
				return fail("Expected %s to be a boolean", describe(actual))
			}
		default:
			return fail("Expected %s to be a boolean", describe(actual))
		}
	case model.MatchNull:
		if actual != nil {
			return fail("Expected %s to be null", describe(actual))
		}
	case model.MatchDate, model.MatchTime, model.MatchTimestamp:
		return checkDatetime(rule, actual)
	case model.MatchNotEmpty:
		if isEmpty(actual) {
			return fail("Expected %s to not be empty", describe(actual))
		}
		return checkLength(rule, actual)
	case model.MatchSemver:
		s, _ := scalarString(actual)
		if _, err := version.NewSemver(s); err != nil {
			return fail("Expected %s to be a semantic version", describe(actual))
		}
	case model.MatchValues:
		if _, ok := actual.(map[string]interface{}); !ok {
			if _, isList := actual.([]interface{}); !isList {
				return fail("Expected %s to be a map or list", describe(actual))
			}
		}
	case model.MatchEachKey:
		m, ok := actual.(map[string]interface{})
		if !ok {
			return fail("Expected %s to be a map", describe(actual))
		}
		for key := range m {
			for _, nested := range rule.Rules {
				if failure := applyRule(nested, key, key); failure != nil {
					return &ruleFailure{description: fmt.Sprintf("Key '%s': %s", key, failure.description), err: failure.err}
				}
			}
		}
	case model.MatchEachValue:
		for key, value := range children(actual) {
			for _, nested := range rule.Rules {
				if failure := applyRule(nested, firstChild(expected), value); failure != nil {
					return &ruleFailure{description: fmt.Sprintf("Value at %s: %s", key, failure.description), err: failure.err}
				}
			}
		}
	case model.MatchContentType, model.MatchArrayContains, model.MatchStatusCode:
		// evaluated by the body, list and status matchers
	default:
		return fail("Unsupported matching rule '%s'", rule.Match)
	}
	return nil
}

func checkLength(rule model.MatchingRule, actual interface{}) *ruleFailure {
	var n int
	switch v := actual.(type) {
	case []interface{}:
		n = len(v)
	case map[string]interface{}:
		n = len(v)
	default:
		return nil
	}
	if rule.Min != nil && n < *rule.Min {
		return &ruleFailure{description: fmt.Sprintf("Expected %s to have at least %d item(s)", describe(actual), *rule.Min)}
	}
	if rule.Max != nil && n > *rule.Max {
		return &ruleFailure{description: fmt.Sprintf("Expected %s to have at most %d item(s)", describe(actual), *rule.Max)}
	}
	return nil
}

func checkDatetime(rule model.MatchingRule, actual interface{}) *ruleFailure {
	format := rule.Format
	if format == "" {
		switch rule.Match {
		case model.MatchDate:
			format = "yyyy-MM-dd"
		case model.MatchTime:
			format = "HH:mm:ss"
		default:
			format = "yyyy-MM-dd'T'HH:mm:ssXXX"
		}
	}
	layout, err := JavaToGoLayout(format)
	if err != nil {
		return &ruleFailure{description: fmt.Sprintf("Invalid %s format '%s': %v", rule.Match, format, err), err: err}
	}
	s, ok := actual.(string)
	if !ok {
		return &ruleFailure{description: fmt.Sprintf("Expected %s to be a %s string", describe(actual), rule.Match)}
	}
	if _, err := time.Parse(layout, s); err != nil {
		return &ruleFailure{description: fmt.Sprintf("Expected '%s' to match a %s of '%s'", s, rule.Match, format)}
	}
	return nil
}

func children(v interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	switch c := v.(type) {
	case map[string]interface{}:
		for k, child := range c {
			out[k] = child
		}
	case []interface{}:
		for i, child := range c {
			out[strconv.Itoa(i)] = child
		}
	}
	return out
}

func firstChild(v interface{}) interface{} {
	switch c := v.(type) {
	case []interface{}:
		if len(c) > 0 {
			return c[0]
		}
	case map[string]interface{}:
		for _, child := range c {
			return child
		}
	}
	return nil
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "Null"
	case bool:
		return "Boolean"
	case json.Number, float64, int:
		return "Number"
	case string:
		return "String"
	case []interface{}:
		return "Array"
	case map[string]interface{}:
		return "Object"
	}
	return reflect.TypeOf(v).String()
}

func sameType(expected, actual interface{}) bool {
	return typeName(expected) == typeName(actual)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func isInteger(v interface{}) bool {
	switch n := v.(type) {
	case json.Number:
		_, err := strconv.ParseInt(n.String(), 10, 64)
		return err == nil
	case int:
		return true
	case float64:
		return n == float64(int64(n))
	case string:
		_, err := strconv.ParseInt(n, 10, 64)
		return err == nil
	}
	return false
}

func isDecimal(v interface{}) bool {
	switch n := v.(type) {
	case json.Number:
		return strings.ContainsAny(n.String(), ".eE")
	case float64:
		return true
	case string:
		_, err := strconv.ParseFloat(n, 64)
		return err == nil && strings.Contains(n, ".")
	}
	return false
}

func isEmpty(v interface{}) bool {
	switch c := v.(type) {
	case nil:
		return true
	case string:
		return c == ""
	case []interface{}:
		return len(c) == 0
	case map[string]interface{}:
		return len(c) == 0
	}
	return false
}

// scalarString renders strings, numbers and booleans as text for rules that work on text.
func scalarString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case bool:
		return strconv.FormatBool(s), true
	case nil:
		return "", false
	}
	return "", false
}

func valuesEqual(expected, actual interface{}) bool {
	if e, ok := asNumber(expected); ok {
		a, ok := asNumber(actual)
		return ok && e == a
	}
	return reflect.DeepEqual(normalise(expected), normalise(actual))
}

func asNumber(v interface{}) (float64, bool) {
	switch v.(type) {
	case json.Number, float64, int:
		return asFloat(v)
	}
	return 0, false
}

// normalise converts json.Number values so that equal documents compare equal
// regardless of how they were decoded.
func normalise(v interface{}) interface{} {
	switch c := v.(type) {
	case json.Number:
		f, err := c.Float64()
		if err != nil {
			return c.String()
		}
		return f
	case int:
		return float64(c)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(c))
		for k, child := range c {
			out[k] = normalise(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(c))
		for i, child := range c {
			out[i] = normalise(child)
		}
		return out
	}
	return v
}

func describe(v interface{}) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// render is the text form of a value used in mismatch records.
func render(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// errInvalidRegex wraps a regex compile failure.
func errInvalidRegex(pattern string, err error) error {
	return errors.Wrapf(ErrInvalidRegex, "%q: %v", pattern, err)
}
