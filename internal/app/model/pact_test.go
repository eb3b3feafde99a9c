package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundPactRejectsMutation(t *testing.T) {
	p := NewPact("consumer", "provider")
	index, err := p.NewInteraction("a request")
	require.NoError(t, err)

	require.True(t, p.Bind())
	require.False(t, p.Bind())

	_, err = p.NewInteraction("another request")
	assert.ErrorIs(t, err, ErrBound)
	err = p.UpdateInteraction(index, func(i *Interaction) error {
		i.WithRequest("POST", "/")
		return nil
	})
	assert.ErrorIs(t, err, ErrBound)
	assert.ErrorIs(t, p.WithMetadata("ns", "k", "v"), ErrBound)
	assert.ErrorIs(t, p.WithSpecification(SpecificationV2), ErrBound)
	assert.Equal(t, "GET", p.Interactions[index].Request.Method)

	p.Unbind()
	assert.NoError(t, p.WithSpecification(SpecificationV2))
}

func TestUpdateInteractionUnknownIndex(t *testing.T) {
	p := NewPact("consumer", "provider")

	err := p.UpdateInteraction(3, func(*Interaction) error { return nil })

	assert.ErrorIs(t, err, ErrInteractionNotFound)
}

func TestValidate(t *testing.T) {
	p := NewPact("consumer", "provider")
	_, _ = p.NewInteraction("a")
	_, _ = p.NewInteraction("b")
	require.NoError(t, p.Validate())

	_, _ = p.NewInteraction("a")
	assert.ErrorIs(t, p.Validate(), ErrDuplicateDescription)

	p = NewPact("consumer", "provider")
	_, _ = p.NewInteraction("")
	assert.ErrorIs(t, p.Validate(), ErrEmptyDescription)
}

func TestCloneIsUnbound(t *testing.T) {
	p := NewPact("consumer", "provider")
	_, _ = p.NewInteraction("a")
	require.NoError(t, p.WithMetadata("ns", "k", "v"))
	p.Bind()

	clone := p.Clone()

	assert.False(t, clone.IsBound())
	assert.NotSame(t, p.Interactions[0], clone.Interactions[0])
	clone.Metadata["ns"]["k"] = "changed"
	assert.Equal(t, "v", p.Metadata["ns"]["k"])
}

func TestParseSpecification(t *testing.T) {
	tests := map[string]Specification{
		"1.0.0": SpecificationV1,
		"1.1.0": SpecificationV1_1,
		"2.0.0": SpecificationV2,
		"3.0.0": SpecificationV3,
		"4.0":   SpecificationV4,
		"5.0":   SpecificationUnknown,
		"nope":  SpecificationUnknown,
	}
	for version, want := range tests {
		assert.Equal(t, want, ParseSpecification(version), version)
	}
	assert.Equal(t, SpecificationV3, SpecificationUnknown.OrDefault())
}

func TestMessageReify(t *testing.T) {
	p := NewMessagePact("consumer", "provider")
	index := p.NewMessage("a user created event")
	require.NoError(t, p.UpdateMessage(index, func(m *Message) error {
		m.Given("a user")
		m.WithContents("application/json", []byte(`{"id":{"pact:matcher:type":"integer","value":7},"name":"bob"}`))
		m.WithMetadata("topic", `{"pact:matcher:type":"regex","regex":"users\\..*","value":"users.created"}`)
		return nil
	}))

	reified, err := p.Messages[index].Reify()
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"description": "a user created event",
		"providerStates": [{"name": "a user"}],
		"contents": {"id": 7, "name": "bob"},
		"metadata": {"topic": "users.created"}
	}`, reified)
	assert.Contains(t, p.Messages[index].MatchingRules[CategoryBody], "$.id")
	assert.Contains(t, p.Messages[index].MatchingRules[CategoryMetadata], "topic")
}

func TestMessageReifyNonJSON(t *testing.T) {
	m := &Message{}
	m.WithContents("text/plain", []byte("hello"))
	reified, err := m.Reify()
	require.NoError(t, err)
	assert.Equal(t, "hello", reified)

	m.WithContents("application/octet-stream", []byte{0, 1, 2})
	reified, err = m.Reify()
	require.NoError(t, err)
	assert.Equal(t, "AAEC", reified)
}

func TestMatchingRuleUnmarshalInfersV2Type(t *testing.T) {
	var rules map[string]MatchingRule
	require.NoError(t, json.Unmarshal([]byte(`{
		"$.body.id": {"regex": "\\d+"},
		"$.body.items": {"min": 1},
		"$.body.when": {"match": "timestamp", "timestamp": "yyyy-MM-dd"}
	}`), &rules))

	assert.Equal(t, MatchRegex, rules["$.body.id"].Match)
	assert.Equal(t, MatchType, rules["$.body.items"].Match)
	assert.Equal(t, 1, *rules["$.body.items"].Min)
	assert.Equal(t, "yyyy-MM-dd", rules["$.body.when"].Format)
}

func TestParsePath(t *testing.T) {
	tokens, err := ParsePath("$.items[*].name['a b'][2].*")
	require.NoError(t, err)

	assert.Equal(t, []PathToken{
		{Kind: TokenRoot},
		{Kind: TokenField, Name: "items"},
		{Kind: TokenStarIndex},
		{Kind: TokenField, Name: "name"},
		{Kind: TokenField, Name: "a b"},
		{Kind: TokenIndex, Index: 2},
		{Kind: TokenStarField},
	}, tokens)

	_, err = ParsePath("$.items[")
	assert.Error(t, err)
	assert.Equal(t, "$['a b'].c", FieldPath(FieldPath(RootPath, "a b"), "c"))
}
