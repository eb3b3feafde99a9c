package matching

import (
	"strconv"
	"strings"
	"sync"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	log "github.com/sirupsen/logrus"
)

var parsedPaths sync.Map

func parseRulePath(path string) ([]model.PathToken, bool) {
	if cached, ok := parsedPaths.Load(path); ok {
		tokens, _ := cached.([]model.PathToken)
		return tokens, tokens != nil
	}
	tokens, err := model.ParsePath(path)
	if err != nil {
		log.WithField("path", path).WithError(err).Warn("ignoring matching rule with an invalid path")
		parsedPaths.Store(path, []model.PathToken(nil))
		return nil, false
	}
	parsedPaths.Store(path, tokens)
	return tokens, true
}

// pathWeight scores how well a rule path selects a value path. Zero means it
// does not apply; otherwise exact steps count 2 and wildcards 1, multiplied.
func pathWeight(rule, value []model.PathToken) int {
	if len(rule) > len(value) {
		return 0
	}
	weight := 1
	for i, token := range rule {
		actual := value[i]
		switch token.Kind {
		case model.TokenRoot:
			if actual.Kind != model.TokenRoot {
				return 0
			}
			weight *= 2
		case model.TokenField:
			if actual.Kind != model.TokenField || actual.Name != token.Name {
				return 0
			}
			weight *= 2
		case model.TokenIndex:
			if actual.Kind != model.TokenIndex || actual.Index != token.Index {
				return 0
			}
			weight *= 2
		case model.TokenStarIndex:
			if actual.Kind != model.TokenIndex {
				return 0
			}
		case model.TokenStarField:
			if actual.Kind != model.TokenField && actual.Kind != model.TokenIndex {
				return 0
			}
		}
	}
	return weight
}

// selectRules returns the rules that govern the value at path. Rules defined
// for exactly this path win; otherwise type rules of the nearest ancestor are
// inherited without their length constraints.
func selectRules(rules model.RuleCategory, path []model.PathToken) *model.RuleList {
	var direct, inherited *model.RuleList
	bestDirect, bestInherited, inheritedDepth := 0, 0, 0

	for rulePath, list := range rules {
		tokens, ok := parseRulePath(rulePath)
		if !ok {
			continue
		}
		weight := pathWeight(tokens, path)
		if weight == 0 {
			continue
		}
		if len(tokens) == len(path) {
			if weight > bestDirect {
				direct, bestDirect = list, weight
			}
			continue
		}
		if !list.HasTypeMatcher() {
			continue
		}
		if len(tokens) > inheritedDepth || (len(tokens) == inheritedDepth && weight > bestInherited) {
			inherited, bestInherited, inheritedDepth = list, weight, len(tokens)
		}
	}

	if direct != nil {
		return direct
	}
	if inherited == nil {
		return nil
	}
	return &model.RuleList{Matchers: []model.MatchingRule{{Match: model.MatchType}}}
}

func childPath(path []model.PathToken, token model.PathToken) []model.PathToken {
	out := make([]model.PathToken, len(path), len(path)+1)
	copy(out, path)
	return append(out, token)
}

func formatPath(path []model.PathToken) string {
	var b strings.Builder
	for _, token := range path {
		switch token.Kind {
		case model.TokenRoot:
			b.WriteString(model.RootPath)
		case model.TokenField:
			b.WriteString(model.FieldPath("", token.Name))
		case model.TokenIndex:
			b.WriteString("[" + strconv.Itoa(token.Index) + "]")
		case model.TokenStarIndex:
			b.WriteString("[*]")
		case model.TokenStarField:
			b.WriteString(".*")
		}
	}
	return b.String()
}

var rootPath = []model.PathToken{{Kind: model.TokenRoot}}
