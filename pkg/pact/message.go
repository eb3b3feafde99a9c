package pact

import (
	"github.com/form3tech-oss/pact-mock-server/internal/app/handles"
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/form3tech-oss/pact-mock-server/internal/app/pactfile"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MessagePactHandle addresses a message pact. Zero is never a valid handle.
type MessagePactHandle uint32

// MessageHandle addresses a message of a message pact.
type MessageHandle uint64

// Status codes of WriteMessagePactFile.
const (
	MessageWriteOK       = 0
	MessageWriteFailed   = 1
	MessageWriteNotFound = 2
)

func newMessageHandle(mh handles.MessageHandle) MessageHandle {
	return MessageHandle(uint64(mh.Pact)<<32 | uint64(mh.Index+1))
}

func (h MessageHandle) decode() handles.MessageHandle {
	return handles.MessageHandle{
		Pact:  handles.Handle(h >> 32),
		Index: int(uint32(h)) - 1,
	}
}

func NewMessagePact(consumer, provider string) MessagePactHandle {
	return guard(MessagePactHandle(0), func() MessagePactHandle {
		h, err := registry.NewMessagePact(consumer, provider)
		if !report(err) {
			return 0
		}
		return MessagePactHandle(h)
	})
}

func NewMessage(pact MessagePactHandle, description string) MessageHandle {
	return guard(MessageHandle(0), func() MessageHandle {
		mh, err := registry.NewMessage(handles.Handle(pact), description)
		if !report(err) {
			return 0
		}
		return newMessageHandle(mh)
	})
}

// WithMessagePactMetadata sets namespace.name in the metadata block of a message pact.
func WithMessagePactMetadata(pact MessagePactHandle, namespace, name, value string) bool {
	return guard(false, func() bool {
		return report(registry.WithMessagePact(handles.Handle(pact), func(p *model.MessagePact) error {
			p.WithMetadata(namespace, name, value)
			return nil
		}))
	})
}

func WithMessageSpecification(pact MessagePactHandle, spec Specification) bool {
	return guard(false, func() bool {
		return report(registry.WithMessagePact(handles.Handle(pact), func(p *model.MessagePact) error {
			return p.WithSpecification(spec)
		}))
	})
}

func MessageExpectsToReceive(message MessageHandle, description string) bool {
	return updateMessage(message, func(m *model.Message) error {
		m.ExpectsToReceive(description)
		return nil
	})
}

func MessageGiven(message MessageHandle, state string) bool {
	return updateMessage(message, func(m *model.Message) error {
		m.Given(state)
		return nil
	})
}

func MessageGivenWithParam(message MessageHandle, state, name, value string) bool {
	return updateMessage(message, func(m *model.Message) error {
		m.GivenWithParam(state, name, value)
		return nil
	})
}

// MessageWithContents sets the payload. An empty content type is detected
// from the payload.
func MessageWithContents(message MessageHandle, contentType string, contents []byte) bool {
	return updateMessage(message, func(m *model.Message) error {
		m.WithContents(contentType, contents)
		return nil
	})
}

func MessageWithMetadata(message MessageHandle, key, value string) bool {
	return updateMessage(message, func(m *model.Message) error {
		m.WithMetadata(key, value)
		return nil
	})
}

// MessageReify returns the example payload of the message with its matching
// rules stripped. It returns an empty string on failure.
func MessageReify(message MessageHandle) string {
	return guard("", func() string {
		var reified string
		err := registry.WithMessage(message.decode(), func(m *model.Message) error {
			var err error
			reified, err = m.Reify()
			return err
		})
		if !report(err) {
			return ""
		}
		return reified
	})
}

// WriteMessagePactFile writes the message pact to dir, merging with an
// existing file unless overwrite is set. See the MessageWrite codes.
func WriteMessagePactFile(pact MessagePactHandle, dir string, overwrite bool) int {
	return guard(MessageWriteFailed, func() int {
		snapshot, err := registry.MessagePactSnapshot(handles.Handle(pact))
		if err != nil {
			setLastError(err)
			return MessageWriteNotFound
		}
		path, err := pactfile.WriteMessages(snapshot, dir, overwrite)
		if err != nil {
			setLastError(errors.Wrap(err, "write message pact"))
			return MessageWriteFailed
		}
		log.WithField("path", path).Debug("message pact file written")
		return MessageWriteOK
	})
}

// FreeMessagePactHandle releases a message pact. It returns 0 on success and
// 1 when the handle is invalid.
func FreeMessagePactHandle(pact MessagePactHandle) int {
	return guard(1, func() int {
		if !report(registry.FreeMessagePact(handles.Handle(pact))) {
			return 1
		}
		return 0
	})
}

func updateMessage(message MessageHandle, fn func(*model.Message) error) bool {
	return guard(false, func() bool {
		return report(registry.WithMessage(message.decode(), fn))
	})
}
