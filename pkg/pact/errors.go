package pact

import (
	"runtime/debug"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var lastError atomic.Value

// GetErrorMessage returns the message of the most recent failure reported by
// any function of this package. It is empty when nothing has failed yet.
func GetErrorMessage() string {
	msg, _ := lastError.Load().(string)
	return msg
}

func setLastError(err error) {
	lastError.Store(err.Error())
	log.WithError(err).Debug("pact call failed")
}

// report records err as the last error and reports whether the call succeeded.
func report(err error) bool {
	if err != nil {
		setLastError(err)
		return false
	}
	return true
}

// guard runs fn, converting a panic into fault.
func guard[T any](fault T, fn func() T) (result T) {
	defer func() {
		if r := recover(); r != nil {
			setLastError(errors.Errorf("internal fault: %v", r))
			log.WithField("panic", r).Errorf("recovered from panic\n%s", debug.Stack())
			result = fault
		}
	}()
	return fn()
}
