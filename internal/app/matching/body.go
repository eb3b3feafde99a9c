package matching

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/pmezard/go-difflib/difflib"
)

func parseMediaType(contentType string) (string, map[string]string, error) {
	return mime.ParseMediaType(contentType)
}

// MatchBody compares an actual body with the expected one, dispatching on the
// expected content type. Undeclared bodies always match.
func MatchBody(expected model.Body, actual []byte, actualContentType string, rules model.RuleCategory) Mismatches {
	if !expected.Present {
		return nil
	}
	if len(expected.Content) == 0 && len(actual) == 0 {
		return nil
	}

	expectedType := expected.MediaType()
	actualType := model.MediaType(actualContentType)
	if actualContentType == "" {
		actualType = model.MediaType(model.DetectContentType(actual))
	}

	if list := rules[model.RootPath]; list != nil {
		if rule, ok := findRule(list, model.MatchContentType); ok {
			return matchContentTypeRule(rule, actual, actualContentType)
		}
	}

	if len(actual) == 0 {
		return Mismatches{{
			Kind:        KindBody,
			Path:        model.RootPath,
			Expected:    string(expected.Content),
			Description: "Expected a body but none was received",
		}}
	}

	if expectedType != actualType && !(model.IsJSONMediaType(expectedType) && model.IsJSONMediaType(actualType)) {
		return Mismatches{{
			Kind:        KindBodyType,
			Path:        model.RootPath,
			Expected:    expectedType,
			Actual:      actualType,
			Description: fmt.Sprintf("Expected a body of '%s' but the actual content type was '%s'", expectedType, actualType),
		}}
	}

	switch {
	case model.IsJSONMediaType(expectedType):
		return MatchJSON(expected.Content, actual, rules)
	case expectedType == model.ContentTypeForm:
		return matchForm(expected.Content, actual, rules)
	case expectedType == model.ContentTypeMultipart:
		return matchMultipart(expected, actual, actualContentType, rules)
	case model.IsTextMediaType(expectedType):
		return matchText(string(expected.Content), string(actual), rules)
	}

	if !bytes.Equal(expected.Content, actual) {
		return Mismatches{{
			Kind:        KindBody,
			Path:        model.RootPath,
			Expected:    fmt.Sprintf("%d byte(s)", len(expected.Content)),
			Actual:      fmt.Sprintf("%d byte(s)", len(actual)),
			Description: "Actual body does not match the expected binary body",
		}}
	}
	return nil
}

func matchContentTypeRule(rule model.MatchingRule, actual []byte, actualContentType string) Mismatches {
	want, _ := rule.Value.(string)
	got := model.MediaType(actualContentType)
	if got == "" || got == model.ContentTypeBinary {
		got = model.MediaType(model.DetectContentType(actual))
	}
	if model.MediaType(want) == got {
		return nil
	}
	return Mismatches{{
		Kind:        KindBodyType,
		Path:        model.RootPath,
		Expected:    want,
		Actual:      got,
		Description: fmt.Sprintf("Expected binary contents to have content type '%s' but detected '%s'", want, got),
	}}
}

func matchText(expected, actual string, rules model.RuleCategory) Mismatches {
	if list := rules[model.RootPath]; list != nil && len(list.Matchers) > 0 {
		return scalarMismatches(KindBody, model.RootPath, expected, actual, list)
	}
	if expected == actual {
		return nil
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  1,
	})
	return Mismatches{{
		Kind:        KindBody,
		Path:        model.RootPath,
		Expected:    expected,
		Actual:      actual,
		Description: "Expected body to be equal to the expected text:\n" + diff,
	}}
}

func matchForm(expected, actual []byte, rules model.RuleCategory) Mismatches {
	want, err := url.ParseQuery(string(expected))
	if err != nil {
		return matchText(string(expected), string(actual), rules)
	}
	got, err := url.ParseQuery(string(actual))
	if err != nil {
		return Mismatches{{
			Kind:        KindBody,
			Path:        model.RootPath,
			Expected:    string(expected),
			Actual:      string(actual),
			Description: fmt.Sprintf("Failed to parse the actual form body: %v", err),
		}}
	}

	formRules := model.RuleCategory{}
	for path, list := range rules {
		tokens, ok := parseRulePath(path)
		if ok && len(tokens) == 2 && tokens[1].Kind == model.TokenField {
			formRules[tokens[1].Name] = list
		}
	}

	var mismatches Mismatches
	for _, name := range model.MultiValues(want).Names() {
		path := model.FieldPath(model.RootPath, name)
		values, ok := got[name]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        KindBody,
				Path:        path,
				Expected:    strings.Join(want[name], ","),
				Description: fmt.Sprintf("Expected form post parameter '%s' but was missing", name),
			})
			continue
		}
		mismatches = append(mismatches, retag(matchIndexed(KindBody, name, "form post parameter", want[name], values, formRules[name], valuesEqualString), KindBody, path)...)
	}
	return mismatches
}

type formPart struct {
	contentType string
	content     []byte
}

func matchMultipart(expected model.Body, actual []byte, actualContentType string, rules model.RuleCategory) Mismatches {
	want, err := readParts(expected.ContentType, expected.Content)
	if err != nil {
		return matchText(string(expected.Content), string(actual), rules)
	}
	got, err := readParts(actualContentType, actual)
	if err != nil {
		return Mismatches{{
			Kind:        KindBody,
			Path:        model.RootPath,
			Description: fmt.Sprintf("Failed to parse the actual multipart body: %v", err),
		}}
	}

	var mismatches Mismatches
	for name, part := range want {
		path := model.FieldPath(model.RootPath, name)
		actualPart, ok := got[name]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        KindBody,
				Path:        path,
				Description: fmt.Sprintf("Expected a multipart part '%s' but was missing", name),
			})
			continue
		}
		if list := rules[path]; list != nil {
			if rule, ok := findRule(list, model.MatchContentType); ok {
				mismatches = append(mismatches, retag(matchContentTypeRule(rule, actualPart.content, actualPart.contentType), KindBody, path)...)
				continue
			}
		}
		if !bytes.Equal(part.content, actualPart.content) {
			mismatches = append(mismatches, Mismatch{
				Kind:        KindBody,
				Path:        path,
				Expected:    string(part.content),
				Actual:      string(actualPart.content),
				Description: fmt.Sprintf("Multipart part '%s' does not match the expected contents", name),
			})
		}
	}
	return mismatches
}

func readParts(contentType string, body []byte) (map[string]formPart, error) {
	_, params, err := parseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	parts := map[string]formPart{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		parts[part.FormName()] = formPart{contentType: part.Header.Get("Content-Type"), content: content}
	}
}
