// Package pact is the handle based call surface of the pact mock server. Pacts,
// interactions and messages are addressed by integer handles, every function
// reports failure through a boolean or a documented status code, and the text
// of the last failure is available from GetErrorMessage.
package pact

import (
	"github.com/form3tech-oss/pact-mock-server/internal/app/handles"
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/form3tech-oss/pact-mock-server/internal/app/pactfile"
	"github.com/pkg/errors"
)

// PactHandle addresses a pact. Zero is never a valid handle.
type PactHandle uint32

// InteractionHandle addresses an interaction of a pact.
type InteractionHandle uint64

type Specification = model.Specification

const (
	SpecificationUnknown = model.SpecificationUnknown
	SpecificationV1      = model.SpecificationV1
	SpecificationV1_1    = model.SpecificationV1_1
	SpecificationV2      = model.SpecificationV2
	SpecificationV3      = model.SpecificationV3
	SpecificationV4      = model.SpecificationV4
)

// InteractionPart selects the request or the response of an interaction.
type InteractionPart = model.Part

const (
	PartRequest  = model.PartRequest
	PartResponse = model.PartResponse
)

var registry = handles.Default

func newInteractionHandle(ih handles.InteractionHandle) InteractionHandle {
	return InteractionHandle(uint64(ih.Pact)<<32 | uint64(ih.Index+1))
}

func (h InteractionHandle) decode() handles.InteractionHandle {
	return handles.InteractionHandle{
		Pact:  handles.Handle(h >> 32),
		Index: int(uint32(h)) - 1,
	}
}

// Version returns the version of the library, as written into pact metadata.
func Version() string {
	return pactfile.Version
}

// NewPact creates a pact between consumer and provider. It returns zero on failure.
func NewPact(consumer, provider string) PactHandle {
	return guard(PactHandle(0), func() PactHandle {
		h, err := registry.NewPact(consumer, provider)
		if !report(err) {
			return 0
		}
		return PactHandle(h)
	})
}

// NewInteraction adds an interaction to the pact. It returns zero when the
// handle is invalid or the pact is served by a mock server.
func NewInteraction(pact PactHandle, description string) InteractionHandle {
	return guard(InteractionHandle(0), func() InteractionHandle {
		ih, err := registry.NewInteraction(handles.Handle(pact), description)
		if !report(err) {
			return 0
		}
		return newInteractionHandle(ih)
	})
}

func WithSpecification(pact PactHandle, spec Specification) bool {
	return updatePact(pact, func(p *model.Pact) error {
		return p.WithSpecification(spec)
	})
}

// WithPactMetadata sets namespace.name in the pact metadata block.
func WithPactMetadata(pact PactHandle, namespace, name, value string) bool {
	return updatePact(pact, func(p *model.Pact) error {
		return p.WithMetadata(namespace, name, value)
	})
}

// PactHandleIsBound reports whether a mock server is serving the pact.
func PactHandleIsBound(pact PactHandle) bool {
	return guard(false, func() bool {
		bound, err := registry.IsBound(handles.Handle(pact))
		return report(err) && bound
	})
}

func UponReceiving(interaction InteractionHandle, description string) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		i.UponReceiving(description)
		return nil
	})
}

func Given(interaction InteractionHandle, state string) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		i.Given(state)
		return nil
	})
}

// GivenWithParam sets a parameter of a provider state. Values that parse as
// JSON are stored decoded.
func GivenWithParam(interaction InteractionHandle, state, name, value string) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		i.GivenWithParam(state, name, value)
		return nil
	})
}

// WithRequest sets the request method and path. The path may be an
// integration JSON matcher.
func WithRequest(interaction InteractionHandle, method, path string) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		i.WithRequest(method, path)
		return nil
	})
}

// WithQueryParameter sets the value at index of a query parameter, extending
// its values as needed. Indexes outside 0..255 are rejected.
func WithQueryParameter(interaction InteractionHandle, name string, index int, value string) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		return i.WithQueryParameter(name, index, value)
	})
}

func WithHeader(interaction InteractionHandle, part InteractionPart, name string, index int, value string) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		return i.WithHeader(part, name, index, value)
	})
}

func ResponseStatus(interaction InteractionHandle, status int) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		return i.ResponseStatus(status)
	})
}

// WithBody sets the body of a part. JSON bodies may embed matchers.
func WithBody(interaction InteractionHandle, part InteractionPart, contentType, body string) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		i.WithBody(part, contentType, body)
		return nil
	})
}

func WithBinaryFile(interaction InteractionHandle, part InteractionPart, contentType string, body []byte) bool {
	return updateInteraction(interaction, func(i *model.Interaction) error {
		i.WithBinaryFile(part, contentType, body)
		return nil
	})
}

// WithMultipartFile sets a multipart/form-data body holding file as the part
// named partName. Unlike the other builders it returns the failure itself.
func WithMultipartFile(interaction InteractionHandle, part InteractionPart, contentType, file, partName string) (err error) {
	ok := guard(false, func() bool {
		err = registry.WithInteraction(interaction.decode(), func(i *model.Interaction) error {
			return i.WithMultipartFile(part, contentType, file, partName)
		})
		return report(err)
	})
	if !ok && err == nil {
		err = errors.New(GetErrorMessage())
	}
	return err
}

// PactHandleIsValid reports whether the handle addresses a live pact.
func PactHandleIsValid(pact PactHandle) bool {
	_, err := registry.IsBound(handles.Handle(pact))
	return err == nil
}

// FreePactHandle releases a pact. It returns 0 on success and 1 when the
// handle is invalid.
func FreePactHandle(pact PactHandle) int {
	return guard(1, func() int {
		if !report(registry.FreePact(handles.Handle(pact))) {
			return 1
		}
		return 0
	})
}

func updatePact(pact PactHandle, fn func(*model.Pact) error) bool {
	return guard(false, func() bool {
		return report(registry.WithPact(handles.Handle(pact), fn))
	})
}

func updateInteraction(interaction InteractionHandle, fn func(*model.Interaction) error) bool {
	return guard(false, func() bool {
		return report(registry.WithInteraction(interaction.decode(), fn))
	})
}
