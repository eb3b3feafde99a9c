package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

var ErrMessageNotFound = errors.New("message not found")

// MessagePact is a contract for asynchronous messages.
type MessagePact struct {
	Consumer      string
	Provider      string
	Specification Specification
	Messages      []*Message
	Metadata      map[string]map[string]string
}

func NewMessagePact(consumer, provider string) *MessagePact {
	return &MessagePact{
		Consumer:      consumer,
		Provider:      provider,
		Specification: SpecificationV3,
		Metadata:      map[string]map[string]string{},
	}
}

// NewMessage appends a message and returns its index.
func (p *MessagePact) NewMessage(description string) int {
	p.Messages = append(p.Messages, &Message{
		Description:   description,
		MatchingRules: MatchingRules{},
	})
	return len(p.Messages) - 1
}

func (p *MessagePact) UpdateMessage(index int, fn func(*Message) error) error {
	if index < 0 || index >= len(p.Messages) {
		return errors.Wrapf(ErrMessageNotFound, "index %d", index)
	}
	return fn(p.Messages[index])
}

func (p *MessagePact) WithMetadata(namespace, name, value string) {
	if p.Metadata == nil {
		p.Metadata = map[string]map[string]string{}
	}
	if p.Metadata[namespace] == nil {
		p.Metadata[namespace] = map[string]string{}
	}
	p.Metadata[namespace][name] = value
}

func (p *MessagePact) WithSpecification(spec Specification) error {
	if !spec.Valid() {
		return errors.Errorf("invalid specification version %d", spec)
	}
	p.Specification = spec
	return nil
}

func (p *MessagePact) Clone() *MessagePact {
	out := &MessagePact{
		Consumer:      p.Consumer,
		Provider:      p.Provider,
		Specification: p.Specification,
		Messages:      make([]*Message, len(p.Messages)),
		Metadata:      cloneMetadata(p.Metadata),
	}
	for i, message := range p.Messages {
		out.Messages[i] = message.Clone()
	}
	return out
}

type Message struct {
	Description    string
	ProviderStates ProviderStates
	Contents       Body
	Metadata       map[string]interface{}
	MatchingRules  MatchingRules
	Key            string
}

func (m *Message) ExpectsToReceive(description string) {
	m.Description = description
}

func (m *Message) Given(name string) {
	m.ProviderStates = m.ProviderStates.Given(name)
}

func (m *Message) GivenWithParam(name, param, value string) {
	m.ProviderStates = m.ProviderStates.GivenWithParam(name, param, value)
}

// WithContents sets the message payload. JSON payloads may carry embedded matchers.
func (m *Message) WithContents(contentType string, contents []byte) {
	if contentType == "" {
		contentType = DetectContentType(contents)
	}
	if m.MatchingRules == nil {
		m.MatchingRules = MatchingRules{}
	}
	delete(m.MatchingRules, CategoryBody)
	if IsJSONMediaType(MediaType(contentType)) {
		contents = extractBodyMatchers(contents, m.MatchingRules.Category(CategoryBody))
	}
	m.Contents = NewBody(contentType, append([]byte(nil), contents...))
}

// WithMetadata sets a metadata entry. The value may be an integration JSON matcher.
func (m *Message) WithMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = map[string]interface{}{}
	}
	if m.MatchingRules == nil {
		m.MatchingRules = MatchingRules{}
	}
	example, rules := ExtractStringMatcher(value)
	m.Metadata[key] = example
	category := m.MatchingRules.Category(CategoryMetadata)
	delete(category, key)
	for _, rule := range rules {
		category.Add(key, rule)
	}
}

// ContentsValue returns the contents in the form used inside JSON documents:
// decoded JSON, plain text, or base64 for binary payloads.
func (m *Message) ContentsValue() interface{} {
	if !m.Contents.Present {
		return nil
	}
	if m.Contents.IsJSON() {
		decoder := json.NewDecoder(bytes.NewReader(m.Contents.Content))
		decoder.UseNumber()
		var decoded interface{}
		if err := decoder.Decode(&decoded); err == nil {
			return decoded
		}
	}
	if m.Contents.IsText() {
		return string(m.Contents.Content)
	}
	return base64.StdEncoding.EncodeToString(m.Contents.Content)
}

// Reify returns the literal example of the message with all matching rules
// discarded. JSON messages are rendered as a whole message document; any other
// content is returned as is (base64 for binary content).
func (m *Message) Reify() (string, error) {
	if !m.Contents.IsJSON() {
		value := m.ContentsValue()
		if s, ok := value.(string); ok {
			return s, nil
		}
		return "", nil
	}

	states := make([]map[string]interface{}, 0, len(m.ProviderStates))
	for _, state := range m.ProviderStates {
		entry := map[string]interface{}{"name": state.Name}
		if len(state.Params) > 0 {
			entry["params"] = state.Params
		}
		states = append(states, entry)
	}
	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	out, err := json.Marshal(map[string]interface{}{
		"description":    m.Description,
		"providerStates": states,
		"contents":       m.ContentsValue(),
		"metadata":       metadata,
	})
	if err != nil {
		return "", errors.Wrap(err, "unable to reify message")
	}
	return string(out), nil
}

func (m *Message) Clone() *Message {
	out := *m
	out.ProviderStates = m.ProviderStates.Clone()
	out.Contents = m.Contents.Clone()
	out.MatchingRules = m.MatchingRules.Clone()
	if m.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
