package mockserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/form3tech-oss/pact-mock-server/internal/app/logging"
	"github.com/form3tech-oss/pact-mock-server/internal/app/matching"
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidAddress = errors.New("invalid mock server address")
	ErrBind           = errors.New("unable to start mock server")
)

const defaultDrainTimeout = 5 * time.Second

// State is the lifecycle state of a Server: Created, then Listening, then Stopped.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	}
	return "stopped"
}

type Options struct {
	// Address to listen on as host:port. Port 0 picks a free port.
	Address string
	TLS     bool
	// DrainTimeout bounds how long Stop waits for in-flight requests.
	DrainTimeout time.Duration
	Logging      *logging.Context
	// OnStop runs once when the server stops.
	OnStop func()
}

type liveInteraction struct {
	interaction *model.Interaction
	matched     atomic.Bool
}

// Server serves the interactions of a pact and records how requests matched them.
type Server struct {
	ID string

	pact          *model.Pact
	interactions  []*liveInteraction
	address       string
	useTLS        bool
	drainTimeout  time.Duration
	logging       *logging.Context
	onStop        func()
	logsAvailable bool

	state         atomic.Int32
	port          int
	httpServer    *http.Server
	done          chan struct{}
	stopOnce      sync.Once
	matchedSignal *broadcast
	logger        *log.Entry

	mu         sync.Mutex
	mismatches []RequestMismatch
}

// New prepares a server for pact without binding it. The pact must not be
// modified afterwards.
func New(pact *model.Pact, opts Options) (*Server, error) {
	if err := validateAddress(opts.Address); err != nil {
		return nil, err
	}
	if err := pact.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		ID:            uuid.NewString(),
		pact:          pact,
		address:       opts.Address,
		useTLS:        opts.TLS,
		drainTimeout:  opts.DrainTimeout,
		logging:       opts.Logging,
		onStop:        opts.OnStop,
		done:          make(chan struct{}),
		matchedSignal: newBroadcast(),
	}
	if s.drainTimeout <= 0 {
		s.drainTimeout = defaultDrainTimeout
	}
	if s.logging == nil {
		s.logging = logging.Default
	}
	for _, interaction := range pact.Interactions {
		s.interactions = append(s.interactions, &liveInteraction{interaction: interaction})
	}
	s.logger = log.WithField(logging.FieldMockServer, s.ID)
	return s, nil
}

func validateAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return errors.Wrapf(ErrInvalidAddress, "%q: %v", address, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return errors.Wrapf(ErrInvalidAddress, "%q: bad port", address)
	}
	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		if _, err := net.LookupHost(host); err != nil {
			return errors.Wrapf(ErrInvalidAddress, "%q: %v", address, err)
		}
	}
	return nil
}

// Start binds the listener and begins serving. The returned port accepts
// connections as soon as Start returns.
func (s *Server) Start() (int, error) {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateListening)) {
		return 0, errors.Errorf("mock server is %s", s.State())
	}

	var tlsConfig *tls.Config
	if s.useTLS {
		id, err := tlsIdentity()
		if err != nil {
			s.state.Store(int32(StateStopped))
			return 0, err
		}
		tlsConfig = id.config.Clone()
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return 0, errors.Wrap(ErrBind, err.Error())
	}
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.logger = s.logger.WithField("port", s.port)
	s.logsAvailable = s.logging.BufferEnabled()

	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	s.httpServer = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("mock server stopped unexpectedly")
		}
	}()

	s.logger.WithFields(log.Fields{
		"consumer":     s.pact.Consumer,
		"provider":     s.pact.Provider,
		"interactions": len(s.interactions),
		"tls":          s.useTLS,
	}).Info("mock server started")
	return s.port, nil
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Any("/", s.handle)
	e.Any("/*", s.handle)
	return e
}

// Stop closes the listener, waits up to the drain timeout for in-flight
// requests and then closes remaining connections. It is safe to call twice.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		previous := State(s.state.Swap(int32(StateStopped)))
		close(s.done)
		if previous == StateListening && s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
			defer cancel()
			if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
				s.logger.WithError(shutdownErr).Warn("mock server did not drain in time, closing connections")
				err = s.httpServer.Close()
			}
		}
		if s.onStop != nil {
			s.onStop()
		}
		s.logging.DropBuffer(s.ID)
		s.logger.Info("mock server stopped")
	})
	return err
}

func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) Port() int {
	return s.port
}

func (s *Server) TLS() bool {
	return s.useTLS
}

// URL is the base URL of the running server.
func (s *Server) URL() string {
	scheme := "http"
	if s.useTLS {
		scheme = "https"
	}
	host, _, _ := net.SplitHostPort(s.address)
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(s.port))
}

// Pact returns the pact the server was started with.
func (s *Server) Pact() *model.Pact {
	return s.pact
}

// Matched reports whether every interaction received a matching request.
func (s *Server) Matched() bool {
	for _, i := range s.interactions {
		if !i.matched.Load() {
			return false
		}
	}
	return true
}

// Mismatches returns every mismatched request recorded so far followed by an
// entry for each interaction that never received a matching request.
func (s *Server) Mismatches() []RequestMismatch {
	s.mu.Lock()
	out := make([]RequestMismatch, len(s.mismatches), len(s.mismatches)+len(s.interactions))
	copy(out, s.mismatches)
	s.mu.Unlock()

	for _, i := range s.interactions {
		if i.matched.Load() {
			continue
		}
		out = append(out, RequestMismatch{
			Type:        TypeMissingRequest,
			Method:      i.interaction.Request.Method,
			Path:        i.interaction.Request.Path,
			Interaction: i.interaction.Description,
			Request:     expectedRequest(i.interaction.Request),
		})
	}
	return out
}

// MismatchesJSON is the JSON document of Mismatches.
func (s *Server) MismatchesJSON() ([]byte, error) {
	return json.Marshal(s.Mismatches())
}

// Logs returns the buffered logs of this server. They are only available when
// a buffer sink was applied before the server started.
func (s *Server) Logs() (string, bool) {
	if !s.logsAvailable {
		return "", false
	}
	return s.logging.FetchBuffer(s.ID)
}

func (s *Server) record(m RequestMismatch) {
	s.mu.Lock()
	s.mismatches = append(s.mismatches, m)
	s.mu.Unlock()
}

func (s *Server) handle(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unable to read request body: " + err.Error()})
	}
	actual := matching.NewRequest(req, body)
	logger := s.logger.WithFields(log.Fields{"method": actual.Method, "path": actual.Path})

	best, mismatches := s.bestMatch(actual)
	if best != nil && mismatches.Matched() {
		best.matched.Store(true)
		s.matchedSignal.signal()
		logger.WithField("interaction", best.interaction.Description).Info("request matched")
		return writeResponse(c, best.interaction.Response)
	}

	record := RequestMismatch{
		Method:     actual.Method,
		Path:       actual.Path,
		Request:    recordedRequest(actual),
		Mismatches: mismatches,
	}
	if best == nil || mismatches.RouteMismatch() {
		record.Type = TypeRequestNotFound
	} else {
		record.Type = TypeRequestMismatch
		record.Interaction = best.interaction.Description
	}
	s.record(record)

	logger.WithField("mismatches", len(mismatches)).Warn("request did not match any interaction")
	for _, m := range mismatches {
		logger.Debug(m.String())
	}

	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error":      unmatchedMessage(record),
		"mismatches": []RequestMismatch{record},
	})
}

// bestMatch evaluates every interaction and returns the one with the fewest
// mismatches. Ties go to the interaction declared first.
func (s *Server) bestMatch(actual *matching.Request) (*liveInteraction, matching.Mismatches) {
	var best *liveInteraction
	var bestMismatches matching.Mismatches
	for _, i := range s.interactions {
		mismatches := matching.MatchRequest(i.interaction.Request, actual)
		if best == nil || len(mismatches) < len(bestMismatches) {
			best, bestMismatches = i, mismatches
			if len(mismatches) == 0 {
				break
			}
		}
	}
	return best, bestMismatches
}

func writeResponse(c echo.Context, response model.Response) error {
	header := c.Response().Header()
	for _, name := range response.Headers.Names() {
		for _, value := range response.Headers[name] {
			header.Add(name, value)
		}
	}
	if !response.Body.Present {
		return c.NoContent(response.Status)
	}
	contentType := header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = response.Body.ContentType
	}
	if contentType == "" {
		contentType = model.DetectContentType(response.Body.Content)
	}
	return c.Blob(response.Status, contentType, response.Body.Content)
}
