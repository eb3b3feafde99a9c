package matching

import (
	"testing"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int {
	return &n
}

func rules(pairs ...interface{}) model.RuleCategory {
	category := model.RuleCategory{}
	for i := 0; i+1 < len(pairs); i += 2 {
		category.Add(pairs[i].(string), pairs[i+1].(model.MatchingRule))
	}
	return category
}

func TestMatchJSON(t *testing.T) {
	tests := []struct {
		name      string
		expected  string
		actual    string
		rules     model.RuleCategory
		wantPaths []string
	}{
		{
			name:     "identical documents",
			expected: `{"name":"bob","age":30}`,
			actual:   `{"age":30,"name":"bob"}`,
		},
		{
			name:     "extra keys are ignored",
			expected: `{"name":"bob"}`,
			actual:   `{"name":"bob","age":30,"address":{"city":"London"}}`,
		},
		{
			name:      "missing key",
			expected:  `{"name":"bob","age":30}`,
			actual:    `{"name":"bob"}`,
			wantPaths: []string{"$.age"},
		},
		{
			name:      "different value",
			expected:  `{"user":{"name":"bob"}}`,
			actual:    `{"user":{"name":"alice"}}`,
			wantPaths: []string{"$.user.name"},
		},
		{
			name:     "numbers compare by value",
			expected: `{"amount":10}`,
			actual:   `{"amount":10.0}`,
		},
		{
			name:      "arrays without rules compare positionally with equal length",
			expected:  `{"ids":[1,2]}`,
			actual:    `{"ids":[1,2,3]}`,
			wantPaths: []string{"$.ids"},
		},
		{
			name:      "array element mismatch",
			expected:  `[{"id":1},{"id":2}]`,
			actual:    `[{"id":1},{"id":3}]`,
			wantPaths: []string{"$[1].id"},
		},
		{
			name:     "regex rule",
			expected: `{"id":"abc"}`,
			actual:   `{"id":"xyz"}`,
			rules:    rules("$.id", model.MatchingRule{Match: model.MatchRegex, Regex: "^[a-z]{3}$"}),
		},
		{
			name:      "regex rule failing",
			expected:  `{"id":"abc"}`,
			actual:    `{"id":"ABCD"}`,
			rules:     rules("$.id", model.MatchingRule{Match: model.MatchRegex, Regex: "^[a-z]{3}$"}),
			wantPaths: []string{"$.id"},
		},
		{
			name:     "type rule cascades to children",
			expected: `{"user":{"name":"bob","age":30}}`,
			actual:   `{"user":{"name":"alice","age":41}}`,
			rules:    rules("$.user", model.MatchingRule{Match: model.MatchType}),
		},
		{
			name:      "type rule still requires declared keys",
			expected:  `{"user":{"name":"bob","age":30}}`,
			actual:    `{"user":{"name":"alice"}}`,
			rules:     rules("$.user", model.MatchingRule{Match: model.MatchType}),
			wantPaths: []string{"$.user.age"},
		},
		{
			name:      "type rule with wrong type",
			expected:  `{"age":30}`,
			actual:    `{"age":"30"}`,
			rules:     rules("$.age", model.MatchingRule{Match: model.MatchType}),
			wantPaths: []string{"$.age"},
		},
		{
			name:     "each like with min",
			expected: `{"items":[{"id":1}]}`,
			actual:   `{"items":[{"id":5},{"id":6},{"id":7}]}`,
			rules:    rules("$.items", model.MatchingRule{Match: model.MatchType, Min: intPtr(1)}),
		},
		{
			name:      "each like below min",
			expected:  `{"items":[{"id":1}]}`,
			actual:    `{"items":[]}`,
			rules:     rules("$.items", model.MatchingRule{Match: model.MatchType, Min: intPtr(1)}),
			wantPaths: []string{"$.items"},
		},
		{
			name:     "element rule applied to every element",
			expected: `{"items":["a"]}`,
			actual:   `{"items":["b","c"]}`,
			rules: rules(
				"$.items", model.MatchingRule{Match: model.MatchType, Min: intPtr(1)},
				"$.items[*]", model.MatchingRule{Match: model.MatchRegex, Regex: "^[a-z]$"},
			),
		},
		{
			name:     "element rule failing on one element",
			expected: `{"items":["a"]}`,
			actual:   `{"items":["b","CC"]}`,
			rules: rules(
				"$.items", model.MatchingRule{Match: model.MatchType, Min: intPtr(1)},
				"$.items[*]", model.MatchingRule{Match: model.MatchRegex, Regex: "^[a-z]$"},
			),
			wantPaths: []string{"$.items[1]"},
		},
		{
			name:     "integer and decimal",
			expected: `{"count":1,"price":1.5}`,
			actual:   `{"count":42,"price":99.99}`,
			rules: rules(
				"$.count", model.MatchingRule{Match: model.MatchInteger},
				"$.price", model.MatchingRule{Match: model.MatchDecimal},
			),
		},
		{
			name:      "integer failing on decimal",
			expected:  `{"count":1}`,
			actual:    `{"count":1.5}`,
			rules:     rules("$.count", model.MatchingRule{Match: model.MatchInteger}),
			wantPaths: []string{"$.count"},
		},
		{
			name:     "timestamp format",
			expected: `{"at":"2020-01-01T00:00:00Z"}`,
			actual:   `{"at":"2023-06-15T10:20:30+01:00"}`,
			rules:    rules("$.at", model.MatchingRule{Match: model.MatchTimestamp, Format: "yyyy-MM-dd'T'HH:mm:ssXXX"}),
		},
		{
			name:     "OR combination",
			expected: `{"v":"1"}`,
			actual:   `{"v":"x"}`,
			rules: model.RuleCategory{"$.v": {Combine: model.CombineOr, Matchers: []model.MatchingRule{
				{Match: model.MatchRegex, Regex: "^\\d$"},
				{Match: model.MatchRegex, Regex: "^[a-z]$"},
			}}},
		},
		{
			name:     "values rule ignores keys",
			expected: `{"ids":{"a":{"n":1}}}`,
			actual:   `{"ids":{"x":{"n":2},"y":{"n":3}}}`,
			rules:    rules("$.ids", model.MatchingRule{Match: model.MatchValues}),
		},
		{
			name:     "array contains",
			expected: `{"events":[{"type":"created"}]}`,
			actual:   `{"events":[{"type":"updated"},{"type":"created","id":1}]}`,
			rules: rules("$.events", model.MatchingRule{Match: model.MatchArrayContains, Variants: []model.ArrayContainsVariant{
				{Index: 0, Rules: model.RuleCategory{}},
			}}),
		},
		{
			name:     "array contains missing variant",
			expected: `{"events":[{"type":"deleted"}]}`,
			actual:   `{"events":[{"type":"updated"}]}`,
			rules: rules("$.events", model.MatchingRule{Match: model.MatchArrayContains, Variants: []model.ArrayContainsVariant{
				{Index: 0, Rules: model.RuleCategory{}},
			}}),
			wantPaths: []string{"$.events"},
		},
		{
			name:     "quoted keys",
			expected: `{"a b":{"c":1}}`,
			actual:   `{"a b":{"c":2}}`,
			rules:    rules("$['a b'].c", model.MatchingRule{Match: model.MatchInteger}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mismatches := MatchJSON([]byte(tt.expected), []byte(tt.actual), tt.rules)

			paths := make([]string, 0, len(mismatches))
			for _, m := range mismatches {
				assert.Equal(t, KindBody, m.Kind)
				paths = append(paths, m.Path)
			}
			if len(tt.wantPaths) == 0 {
				assert.Empty(t, mismatches, mismatches.String())
				return
			}
			assert.Equal(t, tt.wantPaths, paths, mismatches.String())
		})
	}
}

func TestMatchJSONInvalidRegexIsReported(t *testing.T) {
	mismatches := MatchJSON([]byte(`{"id":"a"}`), []byte(`{"id":"a"}`),
		rules("$.id", model.MatchingRule{Match: model.MatchRegex, Regex: "(unclosed"}))

	require.Len(t, mismatches, 1)
	assert.ErrorIs(t, mismatches[0].Err, ErrInvalidRegex)
	assert.Contains(t, mismatches[0].Description, "Invalid regex")
}

func TestMatchJSONUnparsableActual(t *testing.T) {
	mismatches := MatchJSON([]byte(`{"id":"a"}`), []byte(`{"id":`), nil)

	require.Len(t, mismatches, 1)
	assert.Equal(t, "$", mismatches[0].Path)
}

func TestSelectRulesPrefersMostSpecificPath(t *testing.T) {
	category := rules(
		"$.items[*].id", model.MatchingRule{Match: model.MatchRegex, Regex: "a"},
		"$.items[1].id", model.MatchingRule{Match: model.MatchRegex, Regex: "b"},
	)
	path, err := model.ParsePath("$.items[1].id")
	require.NoError(t, err)

	list := selectRules(category, path)

	require.NotNil(t, list)
	assert.Equal(t, "b", list.Matchers[0].Regex)
}
