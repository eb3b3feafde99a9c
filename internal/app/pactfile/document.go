package pactfile

import (
	"encoding/json"
)

// Interaction types of V4 pact files.
const (
	TypeSynchronousHTTP     = "Synchronous/HTTP"
	TypeAsynchronousMessage = "Asynchronous/Messages"
)

type party struct {
	Name string `json:"name"`
}

type httpDocument struct {
	Consumer     party         `json:"consumer"`
	Provider     party         `json:"provider"`
	Interactions []interface{} `json:"interactions"`
}

type messageDocument struct {
	Consumer party         `json:"consumer"`
	Provider party         `json:"provider"`
	Messages []interface{} `json:"messages"`
}

type providerStateJSON struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type interactionJSON struct {
	Type           string              `json:"type,omitempty"`
	Key            string              `json:"key,omitempty"`
	Description    string              `json:"description"`
	ProviderState  string              `json:"providerState,omitempty"`
	ProviderStates []providerStateJSON `json:"providerStates,omitempty"`
	Request        *requestJSON        `json:"request,omitempty"`
	Response       *responseJSON       `json:"response,omitempty"`
	Pending        bool                `json:"pending,omitempty"`
}

type requestJSON struct {
	Method        string      `json:"method"`
	Path          string      `json:"path"`
	Query         interface{} `json:"query,omitempty"`
	Headers       interface{} `json:"headers,omitempty"`
	Body          interface{} `json:"body,omitempty"`
	MatchingRules interface{} `json:"matchingRules,omitempty"`
}

type responseJSON struct {
	Status        int         `json:"status"`
	Headers       interface{} `json:"headers,omitempty"`
	Body          interface{} `json:"body,omitempty"`
	MatchingRules interface{} `json:"matchingRules,omitempty"`
}

type messageJSON struct {
	Type           string                 `json:"type,omitempty"`
	Key            string                 `json:"key,omitempty"`
	Description    string                 `json:"description"`
	ProviderStates []providerStateJSON    `json:"providerStates,omitempty"`
	Contents       interface{}            `json:"contents"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	MatchingRules  interface{}            `json:"matchingRules,omitempty"`
}

// V4 bodies carry their content type and encoding next to the content.
type bodyV4JSON struct {
	Content     interface{} `json:"content"`
	ContentType string      `json:"contentType,omitempty"`
	Encoded     interface{} `json:"encoded"`
}

// The raw forms below are used for reading, where fields vary by version.

type rawDocument struct {
	Consumer     party             `json:"consumer"`
	Provider     party             `json:"provider"`
	Interactions []json.RawMessage `json:"interactions"`
	Messages     []json.RawMessage `json:"messages"`
}

type rawInteraction struct {
	Type           string                 `json:"type"`
	Key            string                 `json:"key"`
	Description    string                 `json:"description"`
	ProviderState  string                 `json:"providerState"`
	ProviderStates []providerStateJSON    `json:"providerStates"`
	Request        *rawPart               `json:"request"`
	Response       *rawPart               `json:"response"`
	Contents       json.RawMessage        `json:"contents"`
	Metadata       map[string]interface{} `json:"metadata"`
	MatchingRules  json.RawMessage        `json:"matchingRules"`
	Pending        bool                   `json:"pending"`
}

type rawPart struct {
	Method        string                     `json:"method"`
	Path          string                     `json:"path"`
	Status        int                        `json:"status"`
	Query         json.RawMessage            `json:"query"`
	Headers       map[string]json.RawMessage `json:"headers"`
	Body          json.RawMessage            `json:"body"`
	MatchingRules json.RawMessage            `json:"matchingRules"`
}
