package model

import (
	"github.com/pkg/errors"
)

var (
	ErrInteractionNotFound  = errors.New("interaction not found")
	ErrDuplicateDescription = errors.New("duplicate interaction description")
	ErrEmptyDescription     = errors.New("interaction has no description")
)

// Pact is a consumer/provider contract: an ordered collection of interactions.
type Pact struct {
	Consumer      string
	Provider      string
	Specification Specification
	Interactions  []*Interaction
	Metadata      map[string]map[string]string

	bound bool
}

func NewPact(consumer, provider string) *Pact {
	return &Pact{
		Consumer:      consumer,
		Provider:      provider,
		Specification: DefaultSpecification,
		Metadata:      map[string]map[string]string{},
	}
}

// NewInteraction appends an interaction and returns its index.
func (p *Pact) NewInteraction(description string) (int, error) {
	if p.bound {
		return 0, ErrBound
	}
	p.Interactions = append(p.Interactions, NewInteraction(description))
	return len(p.Interactions) - 1, nil
}

// UpdateInteraction applies fn to the interaction at index.
func (p *Pact) UpdateInteraction(index int, fn func(*Interaction) error) error {
	if p.bound {
		return ErrBound
	}
	if index < 0 || index >= len(p.Interactions) {
		return errors.Wrapf(ErrInteractionNotFound, "index %d", index)
	}
	return fn(p.Interactions[index])
}

func (p *Pact) WithSpecification(spec Specification) error {
	if p.bound {
		return ErrBound
	}
	if !spec.Valid() {
		return errors.Errorf("invalid specification version %d", spec)
	}
	p.Specification = spec
	return nil
}

// WithMetadata sets a namespaced metadata value, for example ("pact-go", "version", "1.0").
func (p *Pact) WithMetadata(namespace, name, value string) error {
	if p.bound {
		return ErrBound
	}
	if p.Metadata == nil {
		p.Metadata = map[string]map[string]string{}
	}
	if p.Metadata[namespace] == nil {
		p.Metadata[namespace] = map[string]string{}
	}
	p.Metadata[namespace][name] = value
	return nil
}

// Bind marks the pact as served by a mock server. It returns false if it already was.
func (p *Pact) Bind() bool {
	if p.bound {
		return false
	}
	p.bound = true
	return true
}

func (p *Pact) Unbind() {
	p.bound = false
}

func (p *Pact) IsBound() bool {
	return p.bound
}

// Validate checks that interaction descriptions are set and unique.
func (p *Pact) Validate() error {
	seen := make(map[string]struct{}, len(p.Interactions))
	for i, interaction := range p.Interactions {
		if interaction.Description == "" {
			return errors.Wrapf(ErrEmptyDescription, "interaction %d", i)
		}
		if _, ok := seen[interaction.Description]; ok {
			return errors.Wrapf(ErrDuplicateDescription, "%q", interaction.Description)
		}
		seen[interaction.Description] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy that is not bound.
func (p *Pact) Clone() *Pact {
	out := &Pact{
		Consumer:      p.Consumer,
		Provider:      p.Provider,
		Specification: p.Specification,
		Interactions:  make([]*Interaction, len(p.Interactions)),
		Metadata:      cloneMetadata(p.Metadata),
	}
	for i, interaction := range p.Interactions {
		out.Interactions[i] = interaction.Clone()
	}
	return out
}

func cloneMetadata(metadata map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(metadata))
	for namespace, values := range metadata {
		out[namespace] = make(map[string]string, len(values))
		for k, v := range values {
			out[namespace][k] = v
		}
	}
	return out
}
