package mockserver

import (
	"sort"
	"sync"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrPortInUse = errors.New("a mock server is already running on this port")

var servers sync.Map

// Start creates a server for pact, binds it and registers it under its port.
func Start(pact *model.Pact, opts Options) (*Server, error) {
	server, err := New(pact, opts)
	if err != nil {
		return nil, err
	}
	port, err := server.Start()
	if err != nil {
		return nil, err
	}
	if _, loaded := servers.LoadOrStore(port, server); loaded {
		_ = server.Stop()
		return nil, errors.Wrapf(ErrPortInUse, "port %d", port)
	}
	return server, nil
}

// Lookup returns the live server registered under port.
func Lookup(port int) (*Server, bool) {
	server, ok := servers.Load(port)
	if !ok {
		return nil, false
	}
	return server.(*Server), true
}

// Cleanup stops the server registered under port and forgets it. It reports
// whether a server was found.
func Cleanup(port int) bool {
	server, loaded := servers.LoadAndDelete(port)
	if !loaded {
		return false
	}
	if err := server.(*Server).Stop(); err != nil {
		log.WithError(err).WithField("port", port).Warn("mock server did not stop cleanly")
	}
	return true
}

// All returns every live server ordered by port.
func All() []*Server {
	var out []*Server
	servers.Range(func(_, value interface{}) bool {
		out = append(out, value.(*Server))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Port() < out[j].Port() })
	return out
}

// ShutdownAll stops every registered server.
func ShutdownAll() {
	servers.Range(func(key, _ interface{}) bool {
		Cleanup(key.(int))
		return true
	})
}
