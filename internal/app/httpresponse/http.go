package httpresponse

import (
	"fmt"

	"github.com/form3tech-oss/pact-mock-server/internal/app/logging"
	log "github.com/sirupsen/logrus"
)

// APIError is the body of every failed admin API call.
type APIError struct {
	ErrorMessage string `json:"error_message"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

func Error(error string) *APIError {
	return newError(log.NewEntry(log.StandardLogger()), error)
}

func Errorf(error string, a ...interface{}) *APIError {
	return Error(fmt.Sprintf(error, a...))
}

// MockServerErrorf is Errorf for calls addressing a running mock server. The
// log line carries the server's id and port.
func MockServerErrorf(id string, port int, error string, a ...interface{}) *APIError {
	logger := log.WithFields(log.Fields{logging.FieldMockServer: id, "port": port})
	return newError(logger, fmt.Sprintf(error, a...))
}

func newError(logger *log.Entry, error string) *APIError {
	logger.Error(error)
	return &APIError{
		ErrorMessage: error,
	}
}
