package pactfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// Version is written to the metadata of every pact file.
const Version = "0.1.0"

const (
	metadataSpecification = "pactSpecification"
	metadataGenerator     = "pactMockServer"
)

// FileName is the name of the pact file for a consumer/provider pair.
func FileName(consumer, provider string) string {
	return consumer + "-" + provider + ".json"
}

// Marshal renders pact in the schema of its specification version.
func Marshal(pact *model.Pact) ([]byte, error) {
	spec := pact.Specification.OrDefault()
	doc := httpDocument{
		Consumer:     party{Name: pact.Consumer},
		Provider:     party{Name: pact.Provider},
		Interactions: make([]interface{}, 0, len(pact.Interactions)),
	}
	for _, interaction := range pact.Interactions {
		doc.Interactions = append(doc.Interactions, encodeInteraction(interaction, spec))
	}
	return finish(doc, pact.Metadata, spec)
}

// MarshalMessages renders a message pact. Only V4 nests messages under
// "interactions"; older versions use "messages".
func MarshalMessages(pact *model.MessagePact) ([]byte, error) {
	spec := pact.Specification
	if spec != model.SpecificationV4 {
		spec = model.SpecificationV3
	}
	messages := make([]interface{}, 0, len(pact.Messages))
	for _, message := range pact.Messages {
		messages = append(messages, encodeMessage(message, spec))
	}

	consumer, provider := party{Name: pact.Consumer}, party{Name: pact.Provider}
	if spec == model.SpecificationV4 {
		return finish(httpDocument{Consumer: consumer, Provider: provider, Interactions: messages}, pact.Metadata, spec)
	}
	return finish(messageDocument{Consumer: consumer, Provider: provider, Messages: messages}, pact.Metadata, spec)
}

func finish(doc interface{}, metadata map[string]map[string]string, spec model.Specification) ([]byte, error) {
	data, err := encode(doc)
	if err != nil {
		return nil, err
	}
	if data, err = stampMetadata(data, metadata, spec); err != nil {
		return nil, err
	}
	return indent(data)
}

func indent(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, errors.Wrap(err, "unable to format pact")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, errors.Wrap(err, "unable to encode pact")
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

func stampMetadata(data []byte, metadata map[string]map[string]string, spec model.Specification) ([]byte, error) {
	var err error
	namespaces := make([]string, 0, len(metadata))
	for namespace := range metadata {
		namespaces = append(namespaces, namespace)
	}
	sort.Strings(namespaces)
	for _, namespace := range namespaces {
		if namespace == metadataSpecification {
			continue
		}
		names := make([]string, 0, len(metadata[namespace]))
		for name := range metadata[namespace] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			data, err = sjson.SetBytes(data, "metadata."+escapeKey(namespace)+"."+escapeKey(name), metadata[namespace][name])
			if err != nil {
				return nil, errors.Wrapf(err, "unable to set metadata %s.%s", namespace, name)
			}
		}
	}
	if _, ok := metadata[metadataGenerator]; !ok {
		if data, err = sjson.SetBytes(data, "metadata."+metadataGenerator+".version", Version); err != nil {
			return nil, errors.Wrap(err, "unable to set metadata")
		}
	}
	data, err = sjson.SetBytes(data, "metadata."+metadataSpecification+".version", spec.Version())
	return data, errors.Wrap(err, "unable to set specification version")
}

func escapeKey(key string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return replacer.Replace(key)
}

func encodeInteraction(i *model.Interaction, spec model.Specification) interactionJSON {
	out := interactionJSON{
		Description: i.Description,
		Request: &requestJSON{
			Method:        i.Request.Method,
			Path:          i.Request.Path,
			Query:         encodeQuery(i.Request.Query, spec),
			Headers:       encodeHeaders(i.Request.Headers, spec),
			Body:          encodeBody(i.Request.Body, spec),
			MatchingRules: encodeRules(i.Request.MatchingRules, spec),
		},
		Response: &responseJSON{
			Status:        i.Response.Status,
			Headers:       encodeHeaders(i.Response.Headers, spec),
			Body:          encodeBody(i.Response.Body, spec),
			MatchingRules: encodeRules(i.Response.MatchingRules, spec),
		},
	}
	if spec < model.SpecificationV3 {
		if len(i.ProviderStates) > 0 {
			out.ProviderState = i.ProviderStates[0].Name
		}
	} else {
		out.ProviderStates = encodeProviderStates(i.ProviderStates)
	}
	if spec == model.SpecificationV4 {
		out.Type = TypeSynchronousHTTP
		out.Key = i.Key
		if out.Key == "" {
			out.Key = interactionKey(i.Description, i.ProviderStates)
		}
		out.Pending = i.Pending
	}
	return out
}

func encodeMessage(m *model.Message, spec model.Specification) messageJSON {
	out := messageJSON{
		Description:    m.Description,
		ProviderStates: encodeProviderStates(m.ProviderStates),
		Metadata:       map[string]interface{}{},
		MatchingRules:  encodeRules(m.MatchingRules, spec),
	}
	for k, v := range m.Metadata {
		out.Metadata[k] = v
	}
	if m.Contents.Present && m.Contents.ContentType != "" {
		if _, ok := out.Metadata["contentType"]; !ok {
			out.Metadata["contentType"] = m.Contents.ContentType
		}
	}
	if spec == model.SpecificationV4 {
		out.Type = TypeAsynchronousMessage
		out.Key = m.Key
		if out.Key == "" {
			out.Key = interactionKey(m.Description, m.ProviderStates)
		}
		out.Contents = encodeBody(m.Contents, spec)
	} else {
		out.Contents = m.ContentsValue()
	}
	if out.Contents == nil {
		out.Contents = ""
	}
	return out
}

func encodeProviderStates(states model.ProviderStates) []providerStateJSON {
	if len(states) == 0 {
		return nil
	}
	out := make([]providerStateJSON, len(states))
	for i, state := range states {
		out[i] = providerStateJSON{Name: state.Name, Params: state.Params}
	}
	return out
}

func interactionKey(description string, states model.ProviderStates) string {
	h := sha256.New()
	h.Write([]byte(description))
	for _, state := range states {
		h.Write([]byte{0})
		h.Write([]byte(state.Name))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func encodeQuery(query model.MultiValues, spec model.Specification) interface{} {
	if len(query) == 0 {
		return nil
	}
	if spec < model.SpecificationV3 {
		return url.Values(query).Encode()
	}
	return map[string][]string(query)
}

func encodeHeaders(headers model.MultiValues, spec model.Specification) interface{} {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(headers))
	for name, values := range headers {
		if spec == model.SpecificationV4 && len(values) > 1 {
			out[name] = values
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func encodeBody(body model.Body, spec model.Specification) interface{} {
	if !body.Present {
		return nil
	}
	if spec == model.SpecificationV4 {
		return encodeBodyV4(body)
	}
	if body.IsJSON() {
		if value, ok := decodeJSON(body.Content); ok {
			return value
		}
	}
	if body.IsText() {
		return string(body.Content)
	}
	return base64.StdEncoding.EncodeToString(body.Content)
}

func encodeBodyV4(body model.Body) bodyV4JSON {
	contentType := body.ContentType
	if contentType == "" {
		contentType = model.DetectContentType(body.Content)
	}
	out := bodyV4JSON{ContentType: contentType, Encoded: false}
	switch {
	case body.IsJSON():
		if value, ok := decodeJSON(body.Content); ok {
			out.Content = value
			return out
		}
		out.Content = string(body.Content)
	case body.IsText():
		out.Content = string(body.Content)
	default:
		out.Content = base64.StdEncoding.EncodeToString(body.Content)
		out.Encoded = "base64"
	}
	return out
}

func decodeJSON(content []byte) (interface{}, bool) {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()
	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return nil, false
	}
	return value, true
}

// encodeRules renders matching rules. V1 has none, V2 keys every rule by a
// single JSON path and V3 onwards groups them by category.
func encodeRules(rules model.MatchingRules, spec model.Specification) interface{} {
	if rules.IsEmpty() || spec < model.SpecificationV2 {
		return nil
	}
	if spec == model.SpecificationV2 {
		return encodeRulesV2(rules)
	}

	out := map[string]interface{}{}
	for name, category := range rules {
		if len(category) == 0 {
			continue
		}
		if name == model.CategoryPath {
			if list, ok := category[model.RootPath]; ok {
				out[name] = withCombine(list)
			}
			continue
		}
		lists := make(map[string]*model.RuleList, len(category))
		for path, list := range category {
			lists[path] = withCombine(list)
		}
		out[name] = lists
	}
	return out
}

func withCombine(list *model.RuleList) *model.RuleList {
	out := &model.RuleList{Matchers: list.Matchers, Combine: list.Combine}
	if out.Combine == "" {
		out.Combine = model.CombineAnd
	}
	return out
}

func encodeRulesV2(rules model.MatchingRules) map[string]interface{} {
	out := map[string]interface{}{}
	for name, category := range rules {
		for path, list := range category {
			if len(list.Matchers) == 0 {
				continue
			}
			key := ""
			switch name {
			case model.CategoryBody:
				key = "$.body" + strings.TrimPrefix(path, model.RootPath)
			case model.CategoryHeader:
				key = "$.headers." + path
			case model.CategoryQuery:
				key = "$.query." + path
			case model.CategoryPath:
				key = "$.path"
			default:
				continue
			}
			if len(list.Matchers) > 1 {
				log.WithFields(log.Fields{"path": key, "dropped": len(list.Matchers) - 1}).
					Debug("V2 pacts keep one matcher per path")
			}
			out[key] = list.Matchers[0]
		}
	}
	return out
}
