package handles

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrInvalidHandle = errors.New("invalid handle")

// Handle addresses a value held in an Arena. The low 16 bits are the slot
// index plus one, the high 16 bits the slot generation, so a released
// handle never resolves to a value stored later in the same slot.
type Handle uint32

const (
	indexBits = 16
	indexMask = 1<<indexBits - 1
	maxSlots  = indexMask
)

func newHandle(index int, generation uint16) Handle {
	return Handle(uint32(generation)<<indexBits | uint32(index+1))
}

func (h Handle) index() int {
	return int(h&indexMask) - 1
}

func (h Handle) generation() uint16 {
	return uint16(h >> indexBits)
}

type slot[T any] struct {
	mu         sync.Mutex
	generation uint16
	live       bool
	value      T
}

// Arena is a growable table of values addressed by generation-checked handles.
// Each slot carries its own lock, so work on one value never waits for another.
type Arena[T any] struct {
	mu    sync.RWMutex
	slots []*slot[T]
	free  []int
}

// Allocate stores value and returns its handle.
func (a *Arena[T]) Allocate(value T) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var index int
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		if len(a.slots) >= maxSlots {
			return 0, errors.New("handle table is full")
		}
		a.slots = append(a.slots, &slot[T]{})
		index = len(a.slots) - 1
	}

	s := a.slots[index]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.live = true
	s.value = value
	return newHandle(index, s.generation), nil
}

// With runs fn with exclusive access to the value behind h.
func (a *Arena[T]) With(h Handle, fn func(T) error) error {
	s, err := a.lookup(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live || s.generation != h.generation() {
		return errors.Wrapf(ErrInvalidHandle, "%d", h)
	}
	return fn(s.value)
}

// Release frees the slot behind h. Later use of h fails with ErrInvalidHandle.
func (a *Arena[T]) Release(h Handle) (T, error) {
	var zero T
	s, err := a.lookup(h)
	if err != nil {
		return zero, err
	}

	s.mu.Lock()
	if !s.live || s.generation != h.generation() {
		s.mu.Unlock()
		return zero, errors.Wrapf(ErrInvalidHandle, "%d", h)
	}
	value := s.value
	s.value = zero
	s.live = false
	s.mu.Unlock()

	a.mu.Lock()
	a.free = append(a.free, h.index())
	a.mu.Unlock()
	return value, nil
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.slots) - len(a.free)
}

func (a *Arena[T]) lookup(h Handle) (*slot[T], error) {
	index := h.index()
	a.mu.RLock()
	defer a.mu.RUnlock()
	if index < 0 || index >= len(a.slots) {
		return nil, errors.Wrapf(ErrInvalidHandle, "%d", h)
	}
	return a.slots[index], nil
}
