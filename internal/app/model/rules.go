package model

import (
	"encoding/json"
	"sort"
)

// Matching rule categories.
const (
	CategoryPath     = "path"
	CategoryMethod   = "method"
	CategoryQuery    = "query"
	CategoryHeader   = "header"
	CategoryBody     = "body"
	CategoryStatus   = "status"
	CategoryMetadata = "metadata"
)

// Matching rule types.
const (
	MatchEquality      = "equality"
	MatchRegex         = "regex"
	MatchType          = "type"
	MatchInclude       = "include"
	MatchInteger       = "integer"
	MatchDecimal       = "decimal"
	MatchNumber        = "number"
	MatchBoolean       = "boolean"
	MatchNull          = "null"
	MatchDate          = "date"
	MatchTime          = "time"
	MatchTimestamp     = "timestamp"
	MatchContentType   = "contentType"
	MatchValues        = "values"
	MatchNotEmpty      = "notEmpty"
	MatchSemver        = "semver"
	MatchEachKey       = "eachKey"
	MatchEachValue     = "eachValue"
	MatchArrayContains = "arrayContains"
	MatchStatusCode    = "statusCode"
)

const (
	CombineAnd = "AND"
	CombineOr  = "OR"
)

// MatchingRule relaxes exact-equality comparison for the value at one path.
type MatchingRule struct {
	Match    string
	Regex    string
	Min      *int
	Max      *int
	Value    interface{}
	Format   string
	Variants []ArrayContainsVariant
	Rules    []MatchingRule
}

type ArrayContainsVariant struct {
	Index int          `json:"index"`
	Rules RuleCategory `json:"rules"`
}

// IsTypeMatcher reports whether the rule cascades to the children of the value it is defined on.
func (r MatchingRule) IsTypeMatcher() bool {
	return r.Match == MatchType || r.Match == MatchValues
}

func (r MatchingRule) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"match": r.Match}
	if r.Regex != "" {
		out["regex"] = r.Regex
	}
	if r.Min != nil {
		out["min"] = *r.Min
	}
	if r.Max != nil {
		out["max"] = *r.Max
	}
	if r.Value != nil {
		out["value"] = r.Value
	}
	if r.Format != "" {
		out["format"] = r.Format
	}
	if len(r.Variants) > 0 {
		out["variants"] = r.Variants
	}
	if len(r.Rules) > 0 {
		out["rules"] = r.Rules
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both the V3/V4 form ({"match": "regex", "regex": ...}) and the
// V2 form where the rule type is implied by its attributes ({"regex": ...}, {"min": 1}).
func (r *MatchingRule) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = MatchingRule{}
	if v, ok := raw["match"]; ok {
		if err := json.Unmarshal(v, &r.Match); err != nil {
			return err
		}
	}
	if v, ok := raw["regex"]; ok {
		if err := json.Unmarshal(v, &r.Regex); err != nil {
			return err
		}
	}
	for key, target := range map[string]**int{"min": &r.Min, "max": &r.Max} {
		if v, ok := raw[key]; ok {
			var n int
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			*target = &n
		}
	}
	if v, ok := raw["value"]; ok {
		if err := json.Unmarshal(v, &r.Value); err != nil {
			return err
		}
	}
	for _, key := range []string{"format", "date", "time", "timestamp"} {
		if v, ok := raw[key]; ok && r.Format == "" {
			_ = json.Unmarshal(v, &r.Format)
		}
	}
	if v, ok := raw["variants"]; ok {
		if err := json.Unmarshal(v, &r.Variants); err != nil {
			return err
		}
	}
	if v, ok := raw["rules"]; ok {
		if err := json.Unmarshal(v, &r.Rules); err != nil {
			return err
		}
	}

	if r.Match == "" {
		switch {
		case r.Regex != "":
			r.Match = MatchRegex
		default:
			r.Match = MatchType
		}
	}
	return nil
}

// RuleList is the set of rules defined for a single path.
type RuleList struct {
	Matchers []MatchingRule `json:"matchers"`
	Combine  string         `json:"combine,omitempty"`
}

func (l *RuleList) IsOr() bool {
	return l != nil && l.Combine == CombineOr
}

// HasTypeMatcher reports whether any rule in the list cascades to child values.
func (l *RuleList) HasTypeMatcher() bool {
	if l == nil {
		return false
	}
	for _, rule := range l.Matchers {
		if rule.IsTypeMatcher() {
			return true
		}
	}
	return false
}

// RuleCategory maps a path (or a header/query name) to its rules.
type RuleCategory map[string]*RuleList

// Add appends a rule, replacing an identical rule type at the same path.
func (c RuleCategory) Add(path string, rule MatchingRule) {
	list, ok := c[path]
	if !ok {
		list = &RuleList{}
		c[path] = list
	}
	for i, existing := range list.Matchers {
		if existing.Match == rule.Match {
			list.Matchers[i] = rule
			return
		}
	}
	list.Matchers = append(list.Matchers, rule)
}

func (c RuleCategory) Paths() []string {
	paths := make([]string, 0, len(c))
	for p := range c {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (c RuleCategory) Clone() RuleCategory {
	if c == nil {
		return nil
	}
	out := make(RuleCategory, len(c))
	for path, list := range c {
		copied := &RuleList{Combine: list.Combine, Matchers: append([]MatchingRule(nil), list.Matchers...)}
		out[path] = copied
	}
	return out
}

// MatchingRules groups rule categories (body, header, query, path...).
type MatchingRules map[string]RuleCategory

// Category returns the named category, creating it if needed.
func (m MatchingRules) Category(name string) RuleCategory {
	category, ok := m[name]
	if !ok {
		category = RuleCategory{}
		m[name] = category
	}
	return category
}

// Lookup returns a category without creating it.
func (m MatchingRules) Lookup(name string) RuleCategory {
	if m == nil {
		return nil
	}
	return m[name]
}

func (m MatchingRules) IsEmpty() bool {
	for _, category := range m {
		if len(category) > 0 {
			return false
		}
	}
	return true
}

func (m MatchingRules) Clone() MatchingRules {
	out := MatchingRules{}
	for name, category := range m {
		out[name] = category.Clone()
	}
	return out
}
