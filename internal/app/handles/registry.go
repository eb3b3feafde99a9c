package handles

import (
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/pkg/errors"
)

var ErrAlreadyBound = errors.New("pact is already bound to a mock server")

// InteractionHandle addresses an interaction by its pact and position.
type InteractionHandle struct {
	Pact  Handle
	Index int
}

// MessageHandle addresses a message by its message pact and position.
type MessageHandle struct {
	Pact  Handle
	Index int
}

// Registry owns every pact and message pact created through handles.
type Registry struct {
	pacts    Arena[*model.Pact]
	messages Arena[*model.MessagePact]
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Default is the process wide registry.
var Default = NewRegistry()

func (r *Registry) NewPact(consumer, provider string) (Handle, error) {
	return r.pacts.Allocate(model.NewPact(consumer, provider))
}

func (r *Registry) WithPact(h Handle, fn func(*model.Pact) error) error {
	return r.pacts.With(h, fn)
}

func (r *Registry) NewInteraction(h Handle, description string) (InteractionHandle, error) {
	var index int
	err := r.pacts.With(h, func(p *model.Pact) error {
		var err error
		index, err = p.NewInteraction(description)
		return err
	})
	if err != nil {
		return InteractionHandle{}, err
	}
	return InteractionHandle{Pact: h, Index: index}, nil
}

// WithInteraction runs fn against the interaction. It fails with model.ErrBound
// when the owning pact is served by a mock server.
func (r *Registry) WithInteraction(ih InteractionHandle, fn func(*model.Interaction) error) error {
	return r.pacts.With(ih.Pact, func(p *model.Pact) error {
		return p.UpdateInteraction(ih.Index, fn)
	})
}

// MarkBound atomically binds the pact and returns a snapshot of it to serve.
func (r *Registry) MarkBound(h Handle) (*model.Pact, error) {
	var snapshot *model.Pact
	err := r.pacts.With(h, func(p *model.Pact) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if !p.Bind() {
			return ErrAlreadyBound
		}
		snapshot = p.Clone()
		return nil
	})
	return snapshot, err
}

func (r *Registry) Unbind(h Handle) error {
	return r.pacts.With(h, func(p *model.Pact) error {
		p.Unbind()
		return nil
	})
}

func (r *Registry) IsBound(h Handle) (bool, error) {
	var bound bool
	err := r.pacts.With(h, func(p *model.Pact) error {
		bound = p.IsBound()
		return nil
	})
	return bound, err
}

// Snapshot returns a copy of the pact for serialisation.
func (r *Registry) Snapshot(h Handle) (*model.Pact, error) {
	var snapshot *model.Pact
	err := r.pacts.With(h, func(p *model.Pact) error {
		snapshot = p.Clone()
		return nil
	})
	return snapshot, err
}

func (r *Registry) FreePact(h Handle) error {
	_, err := r.pacts.Release(h)
	return err
}

func (r *Registry) NewMessagePact(consumer, provider string) (Handle, error) {
	return r.messages.Allocate(model.NewMessagePact(consumer, provider))
}

func (r *Registry) WithMessagePact(h Handle, fn func(*model.MessagePact) error) error {
	return r.messages.With(h, fn)
}

func (r *Registry) NewMessage(h Handle, description string) (MessageHandle, error) {
	var index int
	err := r.messages.With(h, func(p *model.MessagePact) error {
		index = p.NewMessage(description)
		return nil
	})
	if err != nil {
		return MessageHandle{}, err
	}
	return MessageHandle{Pact: h, Index: index}, nil
}

func (r *Registry) WithMessage(mh MessageHandle, fn func(*model.Message) error) error {
	return r.messages.With(mh.Pact, func(p *model.MessagePact) error {
		return p.UpdateMessage(mh.Index, fn)
	})
}

func (r *Registry) MessagePactSnapshot(h Handle) (*model.MessagePact, error) {
	var snapshot *model.MessagePact
	err := r.messages.With(h, func(p *model.MessagePact) error {
		snapshot = p.Clone()
		return nil
	})
	return snapshot, err
}

func (r *Registry) FreeMessagePact(h Handle) error {
	_, err := r.messages.Release(h)
	return err
}
