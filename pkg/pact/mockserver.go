package pact

import (
	"github.com/form3tech-oss/pact-mock-server/internal/app/handles"
	"github.com/form3tech-oss/pact-mock-server/internal/app/mockserver"
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/form3tech-oss/pact-mock-server/internal/app/pactfile"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Status codes of CreateMockServer and CreateMockServerForPact. A positive
// result is the port the mock server listens on.
const (
	MockServerInvalidInput   = -1
	MockServerInvalidPact    = -2
	MockServerStartFailed    = -3
	MockServerInternalFault  = -4
	MockServerInvalidAddress = -5
	MockServerTLSFailed      = -6
)

// Status codes of WritePactFile and PactHandleWriteFile.
const (
	WriteOK            = 0
	WriteInternalFault = 1
	WriteFailed        = 2
	WriteNotFound      = 3
)

// CreateMockServer parses pactJSON and serves it on address ("host:port",
// port 0 picks a free port). It returns the port or a MockServer status code.
func CreateMockServer(pactJSON, address string, tls bool) int {
	return guard(MockServerInternalFault, func() int {
		if pactJSON == "" {
			setLastError(errors.New("pact JSON is empty"))
			return MockServerInvalidInput
		}
		pact, err := pactfile.Unmarshal([]byte(pactJSON))
		if err != nil {
			setLastError(err)
			return MockServerInvalidPact
		}
		if err := pact.Validate(); err != nil {
			setLastError(err)
			return MockServerInvalidPact
		}
		return startMockServer(pact, address, tls, nil)
	})
}

// CreateMockServerForPact serves the pact behind the handle. The pact can not
// be modified until the mock server is cleaned up.
func CreateMockServerForPact(pact PactHandle, address string, tls bool) int {
	return guard(MockServerInternalFault, func() int {
		h := handles.Handle(pact)
		snapshot, err := registry.MarkBound(h)
		if err != nil {
			setLastError(err)
			return MockServerInvalidInput
		}
		port := startMockServer(snapshot, address, tls, func() {
			if err := registry.Unbind(h); err != nil {
				log.WithError(err).Debug("pact released before its mock server stopped")
			}
		})
		if port < 0 {
			_ = registry.Unbind(h)
		}
		return port
	})
}

func startMockServer(pact *model.Pact, address string, tls bool, onStop func()) int {
	server, err := mockserver.Start(pact, mockserver.Options{
		Address: address,
		TLS:     tls,
		OnStop:  onStop,
	})
	switch {
	case err == nil:
		return server.Port()
	case errors.Is(err, mockserver.ErrInvalidAddress):
		setLastError(err)
		return MockServerInvalidAddress
	case errors.Is(err, mockserver.ErrTLS):
		setLastError(err)
		return MockServerTLSFailed
	default:
		setLastError(err)
		return MockServerStartFailed
	}
}

// MockServerMatched reports whether every interaction of the mock server on
// port was matched. It is false when no mock server runs there.
func MockServerMatched(port int) bool {
	return guard(false, func() bool {
		server, ok := lookupServer(port)
		return ok && server.Matched()
	})
}

// MockServerMismatches returns the mismatches of the mock server on port as
// a JSON document, or an empty string when no mock server runs there.
func MockServerMismatches(port int) string {
	return guard("", func() string {
		server, ok := lookupServer(port)
		if !ok {
			return ""
		}
		data, err := server.MismatchesJSON()
		if !report(err) {
			return ""
		}
		return string(data)
	})
}

// MockServerLogs returns the logs captured for the mock server on port. A
// buffer sink must have been applied before the server started.
func MockServerLogs(port int) string {
	return guard("", func() string {
		server, ok := lookupServer(port)
		if !ok {
			return ""
		}
		logs, ok := server.Logs()
		if !ok {
			setLastError(errors.New("no buffer sink was applied before the mock server started"))
			return ""
		}
		return logs
	})
}

// CleanupMockServer stops the mock server on port. It returns false when no
// mock server runs there.
func CleanupMockServer(port int) bool {
	return guard(false, func() bool {
		if !mockserver.Cleanup(port) {
			setLastError(errors.Errorf("no mock server running on port %d", port))
			return false
		}
		return true
	})
}

// WritePactFile writes the pact served on port to dir, merging with an
// existing file unless overwrite is set. See the Write codes.
func WritePactFile(port int, dir string, overwrite bool) int {
	return guard(WriteInternalFault, func() int {
		server, ok := lookupServer(port)
		if !ok {
			return WriteNotFound
		}
		return writePact(server.Pact(), dir, overwrite)
	})
}

// PactHandleWriteFile writes the pact behind the handle without a mock server.
func PactHandleWriteFile(pact PactHandle, dir string, overwrite bool) int {
	return guard(WriteInternalFault, func() int {
		snapshot, err := registry.Snapshot(handles.Handle(pact))
		if err != nil {
			setLastError(err)
			return WriteNotFound
		}
		return writePact(snapshot, dir, overwrite)
	})
}

func writePact(pact *model.Pact, dir string, overwrite bool) int {
	path, err := pactfile.Write(pact, dir, overwrite)
	if err != nil {
		setLastError(err)
		return WriteFailed
	}
	log.WithField("path", path).Debug("pact file written")
	return WriteOK
}

// GetTLSCACertificate returns the PEM encoded CA certificate TLS mock servers
// present, or an empty string when it can not be created.
func GetTLSCACertificate() string {
	return guard("", func() string {
		pem, err := mockserver.CACertificate()
		if !report(err) {
			return ""
		}
		return pem
	})
}

func lookupServer(port int) (*mockserver.Server, bool) {
	server, ok := mockserver.Lookup(port)
	if !ok {
		setLastError(errors.Errorf("no mock server running on port %d", port))
	}
	return server, ok
}
