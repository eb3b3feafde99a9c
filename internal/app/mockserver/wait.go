package mockserver

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

var errNotMatched = errors.New("not all interactions matched yet")

// broadcast wakes every waiter each time a request is matched.
type broadcast struct {
	mu      sync.Mutex
	changed chan struct{}
}

func newBroadcast() *broadcast {
	return &broadcast{changed: make(chan struct{})}
}

func (b *broadcast) channel() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changed
}

func (b *broadcast) signal() {
	b.mu.Lock()
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

// WaitForMatched blocks until every interaction was matched, the server stops
// or ctx is done. Between checks it sleeps for delay unless a request wakes it.
func (s *Server) WaitForMatched(ctx context.Context, delay time.Duration) bool {
	err := retry.Do(
		func() error {
			changed := s.matchedSignal.channel()
			if s.Matched() {
				return nil
			}
			select {
			case <-changed:
			case <-s.done:
				return retry.Unrecoverable(errors.New("mock server stopped"))
			case <-ctx.Done():
			}
			if s.Matched() {
				return nil
			}
			return errNotMatched
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.WithField("attempt", n).Debug("waiting for interactions to be matched")
		}),
	)
	if err != nil {
		s.logger.WithError(err).Info("interactions were not matched in time")
		for _, i := range s.interactions {
			if !i.matched.Load() {
				s.logger.WithField("interaction", i.interaction.Description).Info("interaction has no matching request")
			}
		}
		return false
	}
	return true
}

// WaitForMatchedTimeout is WaitForMatched with a deadline.
func (s *Server) WaitForMatchedTimeout(timeout, delay time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.WaitForMatched(ctx, delay)
}
