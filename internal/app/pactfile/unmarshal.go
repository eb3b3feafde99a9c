package pactfile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var ErrParse = errors.New("unable to parse pact")

var specificationPaths = []string{
	"metadata.pactSpecification.version",
	"metadata.pact-specification.version",
	"metadata.pactSpecificationVersion",
}

// SpecificationOf reads the specification version declared in a pact document.
func SpecificationOf(data []byte) model.Specification {
	for _, path := range specificationPaths {
		if v := gjson.GetBytes(data, path); v.Exists() {
			if spec := model.ParseSpecification(v.String()); spec.Valid() {
				return spec
			}
		}
	}
	return model.SpecificationUnknown
}

// IsMessagePact reports whether the document describes asynchronous messages.
func IsMessagePact(data []byte) bool {
	if gjson.GetBytes(data, "messages").IsArray() {
		return true
	}
	first := gjson.GetBytes(data, "interactions.0.type").String()
	return first == TypeAsynchronousMessage
}

// Unmarshal parses a pact document of any specification version.
func Unmarshal(data []byte) (*model.Pact, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Wrap(ErrParse, "invalid JSON")
	}
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}

	spec := SpecificationOf(data)
	pact := model.NewPact(doc.Consumer.Name, doc.Provider.Name)
	pact.Specification = spec.OrDefault()
	pact.Metadata = readMetadata(data)

	for n, raw := range doc.Interactions {
		var ri rawInteraction
		if err := json.Unmarshal(raw, &ri); err != nil {
			return nil, errors.Wrapf(ErrParse, "interaction %d: %v", n, err)
		}
		if ri.Type != "" && ri.Type != TypeSynchronousHTTP {
			log.WithField("type", ri.Type).Debug("skipping non HTTP interaction")
			continue
		}
		interaction, err := decodeInteraction(ri)
		if err != nil {
			return nil, errors.Wrapf(ErrParse, "interaction %q: %v", ri.Description, err)
		}
		pact.Interactions = append(pact.Interactions, interaction)
	}
	return pact, nil
}

// UnmarshalMessages parses a message pact document.
func UnmarshalMessages(data []byte) (*model.MessagePact, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Wrap(ErrParse, "invalid JSON")
	}
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}

	pact := model.NewMessagePact(doc.Consumer.Name, doc.Provider.Name)
	if spec := SpecificationOf(data); spec.Valid() {
		pact.Specification = spec
	}
	pact.Metadata = readMetadata(data)

	raws := doc.Messages
	if raws == nil {
		raws = doc.Interactions
	}
	for n, raw := range raws {
		var ri rawInteraction
		if err := json.Unmarshal(raw, &ri); err != nil {
			return nil, errors.Wrapf(ErrParse, "message %d: %v", n, err)
		}
		if ri.Type != "" && ri.Type != TypeAsynchronousMessage {
			continue
		}
		message, err := decodeMessage(ri, pact.Specification)
		if err != nil {
			return nil, errors.Wrapf(ErrParse, "message %q: %v", ri.Description, err)
		}
		pact.Messages = append(pact.Messages, message)
	}
	return pact, nil
}

func readMetadata(data []byte) map[string]map[string]string {
	out := map[string]map[string]string{}
	gjson.GetBytes(data, "metadata").ForEach(func(namespace, values gjson.Result) bool {
		if !values.IsObject() || namespace.String() == metadataSpecification {
			return true
		}
		entries := map[string]string{}
		values.ForEach(func(name, value gjson.Result) bool {
			if value.Type == gjson.String {
				entries[name.String()] = value.String()
			}
			return true
		})
		if len(entries) > 0 {
			out[namespace.String()] = entries
		}
		return true
	})
	return out
}

func decodeInteraction(ri rawInteraction) (*model.Interaction, error) {
	interaction := model.NewInteraction(ri.Description)
	interaction.Key = ri.Key
	interaction.Pending = ri.Pending
	interaction.ProviderStates = decodeProviderStates(ri)

	if ri.Request != nil {
		req := ri.Request
		if req.Method != "" {
			interaction.Request.Method = strings.ToUpper(req.Method)
		}
		if req.Path != "" {
			interaction.Request.Path = req.Path
		}
		query, err := decodeQuery(req.Query)
		if err != nil {
			return nil, err
		}
		interaction.Request.Query = query
		if interaction.Request.Headers, err = decodeHeaders(req.Headers); err != nil {
			return nil, err
		}
		if interaction.Request.Body, err = decodeBody(req.Body, interaction.Request.Headers); err != nil {
			return nil, err
		}
		if interaction.Request.MatchingRules, err = decodeRules(req.MatchingRules); err != nil {
			return nil, err
		}
	}

	if ri.Response != nil {
		res := ri.Response
		if res.Status != 0 {
			interaction.Response.Status = res.Status
		}
		var err error
		if interaction.Response.Headers, err = decodeHeaders(res.Headers); err != nil {
			return nil, err
		}
		if interaction.Response.Body, err = decodeBody(res.Body, interaction.Response.Headers); err != nil {
			return nil, err
		}
		if interaction.Response.MatchingRules, err = decodeRules(res.MatchingRules); err != nil {
			return nil, err
		}
	}
	return interaction, nil
}

func decodeMessage(ri rawInteraction, spec model.Specification) (*model.Message, error) {
	message := &model.Message{
		Description:    ri.Description,
		ProviderStates: decodeProviderStates(ri),
		Metadata:       ri.Metadata,
		Key:            ri.Key,
	}
	rules, err := decodeRules(ri.MatchingRules)
	if err != nil {
		return nil, err
	}
	message.MatchingRules = rules

	contentType := ""
	for _, key := range []string{"contentType", "content-type", "Content-Type"} {
		if v, ok := ri.Metadata[key].(string); ok {
			contentType = v
			break
		}
	}
	headers := model.MultiValues{}
	if contentType != "" {
		headers.Set("Content-Type", 0, contentType)
	}
	if message.Contents, err = decodeBody(ri.Contents, headers); err != nil {
		return nil, err
	}
	return message, nil
}

func decodeProviderStates(ri rawInteraction) model.ProviderStates {
	var states model.ProviderStates
	for _, state := range ri.ProviderStates {
		states = append(states, model.ProviderState{Name: state.Name, Params: state.Params})
	}
	if len(states) == 0 && ri.ProviderState != "" {
		states = model.ProviderStates{{Name: ri.ProviderState}}
	}
	return states
}

func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeQuery accepts the V2 query string form and the V3 map form, whose
// values may be single strings or lists.
func decodeQuery(raw json.RawMessage) (model.MultiValues, error) {
	if absent(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		values, err := url.ParseQuery(s)
		if err != nil {
			return nil, errors.Wrap(err, "invalid query string")
		}
		return model.MultiValues(values), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "invalid query")
	}
	out := model.MultiValues{}
	for name, value := range fields {
		values, err := stringOrList(value)
		if err != nil {
			return nil, errors.Wrapf(err, "query parameter %s", name)
		}
		out[name] = values
	}
	return out, nil
}

func decodeHeaders(raw map[string]json.RawMessage) (model.MultiValues, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := model.MultiValues{}
	for name, value := range raw {
		values, err := stringOrList(value)
		if err != nil {
			return nil, errors.Wrapf(err, "header %s", name)
		}
		out[name] = values
	}
	return out, nil
}

func stringOrList(raw json.RawMessage) ([]string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// decodeBody reads a V1-V3 body value or a V4 body object.
func decodeBody(raw json.RawMessage, headers model.MultiValues) (model.Body, error) {
	if absent(raw) {
		return model.Body{}, nil
	}
	contentType := ""
	if values, ok := headers.GetFold("Content-Type"); ok && len(values) > 0 {
		contentType = values[0]
	}

	if body, ok, err := decodeBodyV4(raw, contentType); ok || err != nil {
		return body, err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if contentType == "" {
			contentType = model.DetectContentType([]byte(s))
		}
		mediaType := model.MediaType(contentType)
		if !model.IsTextMediaType(mediaType) {
			if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
				return model.NewBody(contentType, decoded), nil
			}
		}
		return model.NewBody(contentType, []byte(s)), nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return model.Body{}, errors.Wrap(err, "invalid body")
	}
	if contentType == "" {
		contentType = model.ContentTypeJSON
	}
	return model.NewBody(contentType, compact.Bytes()), nil
}

func decodeBodyV4(raw json.RawMessage, contentType string) (model.Body, bool, error) {
	result := gjson.ParseBytes(raw)
	if !result.IsObject() || !result.Get("content").Exists() || len(result.Map()) > 3 {
		return model.Body{}, false, nil
	}
	if !result.Get("contentType").Exists() && !result.Get("encoded").Exists() {
		return model.Body{}, false, nil
	}
	for key := range result.Map() {
		if key != "content" && key != "contentType" && key != "encoded" {
			return model.Body{}, false, nil
		}
	}

	if ct := result.Get("contentType").String(); ct != "" {
		contentType = ct
	}
	content := result.Get("content")
	encoded := result.Get("encoded")

	switch {
	case encoded.Type == gjson.String && strings.EqualFold(encoded.String(), "base64"):
		decoded, err := base64.StdEncoding.DecodeString(content.String())
		if err != nil {
			return model.Body{}, true, errors.Wrap(err, "invalid base64 body")
		}
		return model.NewBody(contentType, decoded), true, nil
	case content.Type == gjson.String && !(encoded.Type == gjson.String && strings.EqualFold(encoded.String(), "json")):
		if contentType == "" {
			contentType = model.DetectContentType([]byte(content.String()))
		}
		return model.NewBody(contentType, []byte(content.String())), true, nil
	case content.Type == gjson.String:
		return model.NewBody(orJSON(contentType), []byte(content.String())), true, nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(content.Raw)); err != nil {
		return model.Body{}, true, errors.Wrap(err, "invalid body")
	}
	return model.NewBody(orJSON(contentType), compact.Bytes()), true, nil
}

func orJSON(contentType string) string {
	if contentType == "" {
		return model.ContentTypeJSON
	}
	return contentType
}

// decodeRules reads the V2 flat form keyed by JSON path or the V3 form grouped
// by category, normalising both to categories.
func decodeRules(raw json.RawMessage) (model.MatchingRules, error) {
	rules := model.MatchingRules{}
	if absent(raw) {
		return rules, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "invalid matching rules")
	}

	for key, value := range fields {
		if strings.HasPrefix(key, "$") {
			if err := decodeRuleV2(rules, key, value); err != nil {
				return nil, err
			}
			continue
		}

		category := key
		if category == "headers" {
			category = model.CategoryHeader
		}
		if isRuleList(value) {
			list, err := decodeRuleList(value)
			if err != nil {
				return nil, errors.Wrapf(err, "matching rules for %s", key)
			}
			rules.Category(category)[model.RootPath] = list
			continue
		}

		var paths map[string]json.RawMessage
		if err := json.Unmarshal(value, &paths); err != nil {
			return nil, errors.Wrapf(err, "matching rules for %s", key)
		}
		target := rules.Category(category)
		for path, list := range paths {
			decoded, err := decodeRuleList(list)
			if err != nil {
				return nil, errors.Wrapf(err, "matching rules for %s %s", key, path)
			}
			target[path] = decoded
		}
	}
	return rules, nil
}

func isRuleList(raw json.RawMessage) bool {
	return gjson.GetBytes(raw, "matchers").IsArray()
}

// decodeRuleList accepts {"matchers": [...], "combine": ...} and a bare rule.
func decodeRuleList(raw json.RawMessage) (*model.RuleList, error) {
	if isRuleList(raw) {
		var list model.RuleList
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return &list, nil
	}
	var rule model.MatchingRule
	if err := json.Unmarshal(raw, &rule); err != nil {
		return nil, err
	}
	return &model.RuleList{Matchers: []model.MatchingRule{rule}}, nil
}

func decodeRuleV2(rules model.MatchingRules, key string, raw json.RawMessage) error {
	list, err := decodeRuleList(raw)
	if err != nil {
		return errors.Wrapf(err, "matching rule %s", key)
	}
	switch {
	case key == "$.path":
		rules.Category(model.CategoryPath)[model.RootPath] = list
	case key == "$.body" || strings.HasPrefix(key, "$.body.") || strings.HasPrefix(key, "$.body["):
		rules.Category(model.CategoryBody)[model.RootPath+strings.TrimPrefix(key, "$.body")] = list
	case strings.HasPrefix(key, "$.headers."), strings.HasPrefix(key, "$.header."):
		name := key[strings.Index(key[2:], ".")+3:]
		rules.Category(model.CategoryHeader)[unquoteKey(name)] = list
	case strings.HasPrefix(key, "$.query."):
		rules.Category(model.CategoryQuery)[unquoteKey(strings.TrimPrefix(key, "$.query."))] = list
	default:
		log.WithField("path", key).Warn("ignoring matching rule with unknown path")
	}
	return nil
}

// unquoteKey strips the ['name'] form used for names that are not identifiers.
func unquoteKey(name string) string {
	if strings.HasPrefix(name, "['") && strings.HasSuffix(name, "']") {
		return name[2 : len(name)-2]
	}
	return name
}
