package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var (
	ErrBound         = errors.New("pact is bound to a running mock server and can not be modified")
	ErrInvalidStatus = errors.New("invalid response status")
	ErrInvalidIndex  = errors.New("invalid value index")
)

const headerContentType = "Content-Type"

// MaxValueIndex is the largest index accepted for a header or query value.
const MaxValueIndex = 255

func checkIndex(name string, index int) error {
	if index < 0 || index > MaxValueIndex {
		return errors.Wrapf(ErrInvalidIndex, "%s[%d]", name, index)
	}
	return nil
}

// Part selects the request or the response side of an interaction.
type Part int

const (
	PartRequest Part = iota
	PartResponse
)

func (p Part) String() string {
	if p == PartResponse {
		return "response"
	}
	return "request"
}

type ProviderState struct {
	Name   string
	Params map[string]interface{}
}

type ProviderStates []ProviderState

// Given adds a provider state unless one with the same name already exists.
func (s ProviderStates) Given(name string) ProviderStates {
	for _, state := range s {
		if state.Name == name {
			return s
		}
	}
	return append(s, ProviderState{Name: name})
}

// GivenWithParam sets a parameter on the named provider state, adding the state
// if needed. Values that parse as JSON are stored decoded.
func (s ProviderStates) GivenWithParam(name, param, value string) ProviderStates {
	var decoded interface{}
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		decoded = value
	}

	for i := range s {
		if s[i].Name == name {
			if s[i].Params == nil {
				s[i].Params = map[string]interface{}{}
			}
			s[i].Params[param] = decoded
			return s
		}
	}
	return append(s, ProviderState{Name: name, Params: map[string]interface{}{param: decoded}})
}

func (s ProviderStates) Clone() ProviderStates {
	if s == nil {
		return nil
	}
	out := make(ProviderStates, len(s))
	for i, state := range s {
		out[i] = ProviderState{Name: state.Name}
		if state.Params != nil {
			out[i].Params = make(map[string]interface{}, len(state.Params))
			for k, v := range state.Params {
				out[i].Params[k] = v
			}
		}
	}
	return out
}

type Request struct {
	Method        string
	Path          string
	Query         MultiValues
	Headers       MultiValues
	Body          Body
	MatchingRules MatchingRules
}

type Response struct {
	Status        int
	Headers       MultiValues
	Body          Body
	MatchingRules MatchingRules
}

// Interaction is one expected request together with the response to serve for it.
type Interaction struct {
	Description    string
	ProviderStates ProviderStates
	Request        Request
	Response       Response
	Key            string
	Pending        bool
}

func NewInteraction(description string) *Interaction {
	return &Interaction{
		Description: description,
		Request: Request{
			Method:        "GET",
			Path:          "/",
			MatchingRules: MatchingRules{},
		},
		Response: Response{
			Status:        200,
			MatchingRules: MatchingRules{},
		},
	}
}

func (i *Interaction) UponReceiving(description string) {
	i.Description = description
}

func (i *Interaction) Given(name string) {
	i.ProviderStates = i.ProviderStates.Given(name)
}

func (i *Interaction) GivenWithParam(name, param, value string) {
	i.ProviderStates = i.ProviderStates.GivenWithParam(name, param, value)
}

// WithRequest sets the method and path. The path may be an integration JSON matcher.
func (i *Interaction) WithRequest(method, path string) {
	if method != "" {
		i.Request.Method = method
	}
	example, rules := ExtractStringMatcher(path)
	i.Request.Path = example
	category := i.rules(PartRequest).Category(CategoryPath)
	delete(category, RootPath)
	for _, rule := range rules {
		category.Add(RootPath, rule)
	}
}

// WithQueryParameter sets the value at index for the query parameter name.
// Rules are kept per name, so they are replaced by those of the new value.
func (i *Interaction) WithQueryParameter(name string, index int, value string) error {
	if err := checkIndex(name, index); err != nil {
		return err
	}
	if i.Request.Query == nil {
		i.Request.Query = MultiValues{}
	}
	example, rules := ExtractStringMatcher(value)
	i.Request.Query.Set(name, index, example)
	category := i.rules(PartRequest).Category(CategoryQuery)
	delete(category, name)
	for _, rule := range rules {
		category.Add(name, rule)
	}
	return nil
}

// WithHeader sets the value at index for the header name on the given part.
// As for query parameters the rules of the name are replaced.
func (i *Interaction) WithHeader(part Part, name string, index int, value string) error {
	if err := checkIndex(name, index); err != nil {
		return err
	}
	headers, rules := i.headers(part), i.rules(part)
	if *headers == nil {
		*headers = MultiValues{}
	}
	example, extracted := ExtractStringMatcher(value)
	headers.SetFold(name, index, example)
	key, _ := headers.Key(name)
	category := rules.Category(CategoryHeader)
	delete(category, key)
	for _, rule := range extracted {
		category.Add(key, rule)
	}
	return nil
}

// WithBody sets the body of the given part. A Content-Type header is added when
// none was set; an existing header takes precedence over contentType.
func (i *Interaction) WithBody(part Part, contentType string, body string) {
	contentType = i.ensureContentType(part, contentType, []byte(body))

	content := []byte(body)
	delete(i.rules(part), CategoryBody)
	if IsJSONMediaType(MediaType(contentType)) {
		content = extractBodyMatchers(content, i.rules(part).Category(CategoryBody))
	}
	*i.body(part) = NewBody(contentType, content)
}

// WithBinaryFile sets a binary body. Only the content type is checked when matching.
func (i *Interaction) WithBinaryFile(part Part, contentType string, body []byte) {
	contentType = i.ensureContentType(part, contentType, body)
	*i.body(part) = NewBody(contentType, append([]byte(nil), body...))
	delete(i.rules(part), CategoryBody)
	i.rules(part).Category(CategoryBody).Add(RootPath, MatchingRule{Match: MatchContentType, Value: contentType})
}

// WithMultipartFile reads file and sets a multipart/form-data body holding it
// as the part named partName.
func (i *Interaction) WithMultipartFile(part Part, contentType, file, partName string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "unable to read file %q", file)
	}

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, partName, filepath.Base(file)))
	header.Set(headerContentType, contentType)
	partWriter, err := writer.CreatePart(header)
	if err != nil {
		return errors.Wrap(err, "unable to create multipart body")
	}
	if _, err := partWriter.Write(content); err != nil {
		return errors.Wrap(err, "unable to write multipart body")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "unable to write multipart body")
	}

	multipartType := writer.FormDataContentType()
	headers, rules := i.headers(part), i.rules(part)
	if *headers == nil {
		*headers = MultiValues{}
	}
	headers.SetFold(headerContentType, 0, multipartType)
	key, _ := headers.Key(headerContentType)
	delete(rules.Category(CategoryHeader), key)
	delete(rules, CategoryBody)
	rules.Category(CategoryHeader).Add(key, MatchingRule{
		Match: MatchRegex,
		Regex: `multipart/form-data;(\s*charset=[^;]*;)?\s*boundary=.*`,
	})
	rules.Category(CategoryBody).Add(FieldPath(RootPath, partName), MatchingRule{Match: MatchContentType, Value: contentType})
	*i.body(part) = NewBody(multipartType, buf.Bytes())
	return nil
}

// ResponseStatus sets the status code served for the interaction.
func (i *Interaction) ResponseStatus(status int) error {
	if status < 100 || status > 599 {
		return errors.Wrapf(ErrInvalidStatus, "%d", status)
	}
	i.Response.Status = status
	return nil
}

func (i *Interaction) Clone() *Interaction {
	out := *i
	out.ProviderStates = i.ProviderStates.Clone()
	out.Request.Query = i.Request.Query.Clone()
	out.Request.Headers = i.Request.Headers.Clone()
	out.Request.Body = i.Request.Body.Clone()
	out.Request.MatchingRules = i.Request.MatchingRules.Clone()
	out.Response.Headers = i.Response.Headers.Clone()
	out.Response.Body = i.Response.Body.Clone()
	out.Response.MatchingRules = i.Response.MatchingRules.Clone()
	return &out
}

func (i *Interaction) ensureContentType(part Part, contentType string, body []byte) string {
	headers := i.headers(part)
	if *headers == nil {
		*headers = MultiValues{}
	}
	if values, ok := headers.GetFold(headerContentType); ok && len(values) > 0 && values[0] != "" {
		return values[0]
	}
	if contentType == "" {
		contentType = DetectContentType(body)
	}
	headers.SetFold(headerContentType, 0, contentType)
	return contentType
}

func (i *Interaction) headers(part Part) *MultiValues {
	if part == PartResponse {
		return &i.Response.Headers
	}
	return &i.Request.Headers
}

func (i *Interaction) body(part Part) *Body {
	if part == PartResponse {
		return &i.Response.Body
	}
	return &i.Request.Body
}

func (i *Interaction) rules(part Part) MatchingRules {
	if part == PartResponse {
		if i.Response.MatchingRules == nil {
			i.Response.MatchingRules = MatchingRules{}
		}
		return i.Response.MatchingRules
	}
	if i.Request.MatchingRules == nil {
		i.Request.MatchingRules = MatchingRules{}
	}
	return i.Request.MatchingRules
}

// extractBodyMatchers strips embedded matchers from a JSON body. Bodies without
// matchers, or that do not parse, are kept byte for byte.
func extractBodyMatchers(content []byte, rules RuleCategory) []byte {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()
	var decoded interface{}
	if err := decoder.Decode(&decoded); err != nil {
		return content
	}

	extracted := RuleCategory{}
	example := ExtractMatchers(decoded, RootPath, extracted)
	if len(extracted) == 0 {
		return content
	}
	for path, list := range extracted {
		for _, rule := range list.Matchers {
			rules.Add(path, rule)
		}
	}
	out, err := json.Marshal(example)
	if err != nil {
		return content
	}
	return out
}
