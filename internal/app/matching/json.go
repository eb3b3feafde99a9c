package matching

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
)

// valueMatcher compares decoded documents. Keys missing from the expectation
// are ignored; declared keys must be present and match.
type valueMatcher struct {
	rules model.RuleCategory
}

func decodeJSON(data []byte) (interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var v interface{}
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// MatchJSON compares two JSON documents under the given body rules.
func MatchJSON(expected, actual []byte, rules model.RuleCategory) Mismatches {
	e, err := decodeJSON(expected)
	if err != nil {
		return Mismatches{{Kind: KindBody, Path: model.RootPath, Expected: string(expected), Actual: string(actual),
			Description: fmt.Sprintf("Failed to parse the expected body: %v", err)}}
	}
	a, err := decodeJSON(actual)
	if err != nil {
		return Mismatches{{Kind: KindBody, Path: model.RootPath, Expected: string(expected), Actual: string(actual),
			Description: fmt.Sprintf("Failed to parse the actual body: %v", err)}}
	}
	return valueMatcher{rules: rules}.compare(rootPath, e, a)
}

func (m valueMatcher) compare(path []model.PathToken, expected, actual interface{}) Mismatches {
	list := selectRules(m.rules, path)
	if list == nil {
		return m.compareExact(path, expected, actual)
	}

	var mismatches Mismatches
	for _, failure := range applyRules(list, expected, actual) {
		mismatches = append(mismatches, m.mismatch(path, expected, actual, failure.description, failure.err))
	}
	if len(mismatches) > 0 {
		return mismatches
	}

	switch e := expected.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok {
			return mismatches
		}
		if hasRule(list, model.MatchValues) {
			return m.compareValues(path, e, a)
		}
		return m.compareMap(path, e, a)
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok {
			return mismatches
		}
		if rule, ok := findRule(list, model.MatchArrayContains); ok {
			return m.compareArrayContains(path, rule, e, a)
		}
		return m.compareEach(path, e, a)
	}
	return mismatches
}

func (m valueMatcher) compareExact(path []model.PathToken, expected, actual interface{}) Mismatches {
	switch e := expected.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok {
			return Mismatches{m.mismatch(path, expected, actual,
				fmt.Sprintf("Type mismatch: Expected %s %s but received %s %s", typeName(expected), describe(expected), typeName(actual), describe(actual)), nil)}
		}
		return m.compareMap(path, e, a)
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok {
			return Mismatches{m.mismatch(path, expected, actual,
				fmt.Sprintf("Type mismatch: Expected %s %s but received %s %s", typeName(expected), describe(expected), typeName(actual), describe(actual)), nil)}
		}
		var mismatches Mismatches
		if len(e) != len(a) {
			mismatches = append(mismatches, m.mismatch(path, expected, actual,
				fmt.Sprintf("Expected a List with %d elements but received %d elements", len(e), len(a)), nil))
		}
		for i := range e {
			if i >= len(a) {
				break
			}
			mismatches = append(mismatches, m.compare(childPath(path, model.PathToken{Kind: model.TokenIndex, Index: i}), e[i], a[i])...)
		}
		return mismatches
	}

	if !valuesEqual(expected, actual) {
		return Mismatches{m.mismatch(path, expected, actual,
			fmt.Sprintf("Expected %s (%s) but received %s (%s)", describe(expected), typeName(expected), describe(actual), typeName(actual)), nil)}
	}
	return nil
}

func (m valueMatcher) compareMap(path []model.PathToken, expected, actual map[string]interface{}) Mismatches {
	var mismatches Mismatches
	for _, key := range sortedKeys(expected) {
		child := childPath(path, model.PathToken{Kind: model.TokenField, Name: key})
		value, ok := actual[key]
		if !ok {
			mismatches = append(mismatches, m.mismatch(child, expected[key], nil,
				fmt.Sprintf("Actual map is missing key '%s'", key), nil))
			continue
		}
		mismatches = append(mismatches, m.compare(child, expected[key], value)...)
	}
	return mismatches
}

// compareValues checks every actual entry against the expected example, ignoring keys.
func (m valueMatcher) compareValues(path []model.PathToken, expected, actual map[string]interface{}) Mismatches {
	example := firstChild(expected)
	if example == nil {
		return nil
	}
	var mismatches Mismatches
	for _, key := range sortedKeys(actual) {
		child := childPath(path, model.PathToken{Kind: model.TokenField, Name: key})
		want, ok := expected[key]
		if !ok {
			want = example
		}
		mismatches = append(mismatches, m.compare(child, want, actual[key])...)
	}
	return mismatches
}

// compareEach checks every actual element against the expected element at the
// same position, falling back to the first expected element.
func (m valueMatcher) compareEach(path []model.PathToken, expected, actual []interface{}) Mismatches {
	if len(expected) == 0 {
		return nil
	}
	var mismatches Mismatches
	for i, value := range actual {
		want := expected[0]
		if i < len(expected) {
			want = expected[i]
		}
		mismatches = append(mismatches, m.compare(childPath(path, model.PathToken{Kind: model.TokenIndex, Index: i}), want, value)...)
	}
	return mismatches
}

func (m valueMatcher) compareArrayContains(path []model.PathToken, rule model.MatchingRule, expected, actual []interface{}) Mismatches {
	var mismatches Mismatches
	for _, variant := range rule.Variants {
		if variant.Index < 0 || variant.Index >= len(expected) {
			continue
		}
		want := expected[variant.Index]
		variantMatcher := valueMatcher{rules: variant.Rules}
		found := false
		for _, value := range actual {
			if len(variantMatcher.compare(rootPath, want, value)) == 0 {
				found = true
				break
			}
		}
		if !found {
			mismatches = append(mismatches, m.mismatch(path, want, actual,
				fmt.Sprintf("Variant at index %d (%s) was not found in the actual list", variant.Index, describe(want)), nil))
		}
	}
	return mismatches
}

func (m valueMatcher) mismatch(path []model.PathToken, expected, actual interface{}, description string, err error) Mismatch {
	return Mismatch{
		Kind:        KindBody,
		Path:        formatPath(path),
		Expected:    render(expected),
		Actual:      render(actual),
		Description: description,
		Err:         err,
	}
}

func hasRule(list *model.RuleList, match string) bool {
	_, ok := findRule(list, match)
	return ok
}

func findRule(list *model.RuleList, match string) (model.MatchingRule, bool) {
	for _, rule := range list.Matchers {
		if rule.Match == match {
			return rule, true
		}
	}
	return model.MatchingRule{}, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
