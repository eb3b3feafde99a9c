package model

import (
	"encoding/json"
	"strings"
)

const (
	matcherTypeKey = "pact:matcher:type"
	jsonClassKey   = "json_class"
)

// ExtractMatchers walks a decoded JSON value that may contain embedded matcher
// definitions and returns the plain example value. Rules found along the way are
// added to rules, keyed by their path below root.
//
// Two encodings are understood: the integration format
// ({"pact:matcher:type": "regex", "regex": "\\d+", "value": "1"}) and the ruby
// mock service format ({"json_class": "Pact::Term", ...}).
func ExtractMatchers(value interface{}, root string, rules RuleCategory) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if _, ok := v[matcherTypeKey]; ok {
			return extractIntegrationMatcher(v, root, rules)
		}
		if class, ok := v[jsonClassKey].(string); ok {
			if example, handled := extractRubyMatcher(class, v, root, rules); handled {
				return example
			}
		}
		out := make(map[string]interface{}, len(v))
		for key, child := range v {
			out[key] = ExtractMatchers(child, FieldPath(root, key), rules)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = ExtractMatchers(child, IndexPath(root, i), rules)
		}
		return out
	}
	return value
}

// ExtractStringMatcher parses a header, query or path value that may itself be an
// integration JSON matcher. Plain strings are returned unchanged.
func ExtractStringMatcher(value string) (string, []MatchingRule) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return value, nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return value, nil
	}
	_, integration := decoded[matcherTypeKey]
	_, ruby := decoded[jsonClassKey]
	if !integration && !ruby {
		return value, nil
	}

	rules := RuleCategory{}
	example := ExtractMatchers(decoded, RootPath, rules)
	list, ok := rules[RootPath]
	if !ok {
		return stringify(example), nil
	}
	return stringify(example), list.Matchers
}

func extractIntegrationMatcher(v map[string]interface{}, path string, rules RuleCategory) interface{} {
	matcherType, _ := v[matcherTypeKey].(string)
	example := v["value"]

	rule := MatchingRule{Match: matcherType}
	switch matcherType {
	case MatchRegex:
		rule.Regex, _ = v["regex"].(string)
	case MatchDate, MatchTime, MatchTimestamp, "datetime":
		if matcherType == "datetime" {
			rule.Match = MatchTimestamp
		}
		rule.Format, _ = v["format"].(string)
	case MatchInclude, MatchEquality:
		rule.Value = example
	case MatchContentType:
		rule.Value = example
	case MatchSemver, MatchNotEmpty, MatchValues, MatchBoolean, MatchNull, MatchInteger, MatchDecimal, MatchNumber, MatchType:
	case MatchStatusCode:
		rule.Value = v["status"]
	case MatchEachKey, MatchEachValue:
		rule.Rules = decodeRules(v["rules"])
	case MatchArrayContains:
		variants, _ := v["variants"].([]interface{})
		examples := make([]interface{}, 0, len(variants))
		for i, variant := range variants {
			variantRules := RuleCategory{}
			examples = append(examples, ExtractMatchers(variant, RootPath, variantRules))
			rule.Variants = append(rule.Variants, ArrayContainsVariant{Index: i, Rules: variantRules})
		}
		rules.Add(path, rule)
		return examples
	case "minType", "maxType", "minmax", "eachLike":
		rule.Match = MatchType
	case "":
		rule.Match = MatchType
	}

	if min, ok := asInt(v["min"]); ok {
		rule.Min = &min
	}
	if max, ok := asInt(v["max"]); ok {
		rule.Max = &max
	}
	rules.Add(path, rule)

	if items, ok := example.([]interface{}); ok && rule.Match == MatchType {
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = ExtractMatchers(item, StarPath(path), rules)
		}
		if rule.Min != nil {
			out = padArray(out, *rule.Min)
		}
		return out
	}
	return ExtractMatchers(example, path, rules)
}

func extractRubyMatcher(class string, v map[string]interface{}, path string, rules RuleCategory) (interface{}, bool) {
	switch class {
	case "Pact::Term":
		data, _ := v["data"].(map[string]interface{})
		matcher, _ := data["matcher"].(map[string]interface{})
		regex, _ := matcher["s"].(string)
		rules.Add(path, MatchingRule{Match: MatchRegex, Regex: regex})
		return data["generate"], true
	case "Pact::SomethingLike":
		rules.Add(path, MatchingRule{Match: MatchType})
		return ExtractMatchers(v["contents"], path, rules), true
	case "Pact::ArrayLike":
		min := 1
		if n, ok := asInt(v["min"]); ok {
			min = n
		}
		rules.Add(path, MatchingRule{Match: MatchType, Min: &min})
		item := ExtractMatchers(v["contents"], StarPath(path), rules)
		return padArray([]interface{}{item}, min), true
	}
	return nil, false
}

func decodeRules(raw interface{}) []MatchingRule {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var decoded []MatchingRule
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	return decoded
}

// MaxExampleItems caps the example arrays generated for a minimum length.
// The rule keeps the declared minimum.
const MaxExampleItems = 1000

func padArray(items []interface{}, min int) []interface{} {
	if len(items) == 0 {
		return items
	}
	if min > MaxExampleItems {
		min = MaxExampleItems
	}
	for len(items) < min {
		items = append(items, items[0])
	}
	return items
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	data, _ := json.Marshal(v)
	return string(data)
}
