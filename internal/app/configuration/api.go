package configuration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/form3tech-oss/pact-mock-server/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock-server/internal/app/mockserver"
	"github.com/form3tech-oss/pact-mock-server/internal/app/pactfile"
	"github.com/form3tech-oss/pact-mock-server/internal/app/verifierargs"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// CreateMockServerRequest is the body of POST /mockservers.
type CreateMockServerRequest struct {
	Pact    json.RawMessage `json:"pact"`
	Address string          `json:"address"`
	TLS     bool            `json:"tls"`
}

// MockServerResponse describes a running mock server.
type MockServerResponse struct {
	ID       string `json:"id"`
	Port     int    `json:"port"`
	URL      string `json:"url"`
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
	TLS      bool   `json:"tls"`
	Matched  bool   `json:"matched"`
}

// WritePactRequest is the body of POST /mockservers/:port/pactfile.
type WritePactRequest struct {
	Dir       string `json:"dir"`
	Overwrite bool   `json:"overwrite"`
}

type api struct {
	config Config
}

func ServeAdminAPI(port int, config Config) *echo.Echo {
	adminServer := NewAdminAPI(config)

	go func() {
		address := fmt.Sprintf(":%d", port)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

// NewAdminAPI returns the admin API without starting it.
func NewAdminAPI(config Config) *echo.Echo {
	if config.WaitDelay <= 0 {
		config.WaitDelay = 500 * time.Millisecond
	}
	if config.WaitDuration <= 0 {
		config.WaitDuration = 15 * time.Second
	}
	a := &api{config: config}

	adminServer := echo.New()
	adminServer.HideBanner = true
	adminServer.HidePort = true

	adminServer.GET("/ready", a.readinessHandler)
	adminServer.GET("/verifier/args", a.verifierArgsHandler)
	adminServer.POST("/mockservers", a.postMockServersHandler)
	adminServer.GET("/mockservers", a.getMockServersHandler)
	adminServer.DELETE("/mockservers", a.deleteMockServersHandler)
	adminServer.GET("/mockservers/:port/matched", withServer(a.matchedHandler))
	adminServer.GET("/mockservers/:port/mismatches", withServer(a.mismatchesHandler))
	adminServer.GET("/mockservers/:port/logs", withServer(a.logsHandler))
	adminServer.GET("/mockservers/:port/wait", withServer(a.waitHandler))
	adminServer.POST("/mockservers/:port/pactfile", withServer(a.pactFileHandler))
	adminServer.DELETE("/mockservers/:port", a.deleteMockServerHandler)
	return adminServer
}

func (a *api) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (a *api) verifierArgsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, verifierargs.Describe(verifierargs.FlagSet()))
}

func (a *api) postMockServersHandler(c echo.Context) error {
	var req CreateMockServerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse mock server request. %s", err.Error()))
	}
	if len(req.Pact) == 0 {
		return c.JSON(http.StatusBadRequest, httpresponse.Error("mock server request has no pact"))
	}
	if req.Address == "" {
		req.Address = "127.0.0.1:0"
	}

	document := []byte(req.Pact)
	var text string
	if err := json.Unmarshal(req.Pact, &text); err == nil {
		document = []byte(text)
	}

	pact, err := pactfile.Unmarshal(document)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse pact. %s", err.Error()))
	}

	log.Infof("starting mock server for %s/%s on %s", pact.Consumer, pact.Provider, req.Address)
	server, err := mockserver.Start(pact, mockserver.Options{
		Address:      req.Address,
		TLS:          req.TLS,
		DrainTimeout: a.config.DrainTimeout,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to start mock server. %s", err.Error()))
	}
	return c.JSON(http.StatusCreated, describe(server))
}

func (a *api) getMockServersHandler(c echo.Context) error {
	servers := mockserver.All()
	out := make([]MockServerResponse, 0, len(servers))
	for _, server := range servers {
		out = append(out, describe(server))
	}
	return c.JSON(http.StatusOK, out)
}

func (a *api) deleteMockServersHandler(c echo.Context) error {
	log.Infof("stopping all mock servers")
	mockserver.ShutdownAll()
	return c.NoContent(http.StatusNoContent)
}

func (a *api) deleteMockServerHandler(c echo.Context) error {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil || !mockserver.Cleanup(port) {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("no mock server running on port %s", c.Param("port")))
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *api) matchedHandler(c echo.Context, server *mockserver.Server) error {
	return c.JSON(http.StatusOK, map[string]bool{"matched": server.Matched()})
}

func (a *api) mismatchesHandler(c echo.Context, server *mockserver.Server) error {
	query := c.QueryParam("query")
	if query == "" {
		return c.JSON(http.StatusOK, server.Mismatches())
	}

	data, err := server.MismatchesJSON()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.MockServerErrorf(server.ID, server.Port(), "unable to render mismatches. %s", err.Error()))
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.MockServerErrorf(server.ID, server.Port(), "unable to render mismatches. %s", err.Error()))
	}
	result, err := jsonpath.Get(query, doc)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.MockServerErrorf(server.ID, server.Port(), "invalid query %q. %s", query, err.Error()))
	}
	return c.JSON(http.StatusOK, result)
}

func (a *api) logsHandler(c echo.Context, server *mockserver.Server) error {
	logs, ok := server.Logs()
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.MockServerErrorf(server.ID, server.Port(), "logs are only available when a buffer sink was applied before the mock server started"))
	}
	return c.String(http.StatusOK, logs)
}

func (a *api) waitHandler(c echo.Context, server *mockserver.Server) error {
	duration := durationParam(c, "duration", a.config.WaitDuration)
	delay := durationParam(c, "delay", a.config.WaitDelay)
	log.WithFields(log.Fields{"port": server.Port(), "duration": duration}).Info("waiting for interactions")

	if !server.WaitForMatchedTimeout(duration, delay) {
		return c.JSON(http.StatusRequestTimeout, server.Mismatches())
	}
	return c.NoContent(http.StatusOK)
}

func (a *api) pactFileHandler(c echo.Context, server *mockserver.Server) error {
	req := WritePactRequest{}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.MockServerErrorf(server.ID, server.Port(), "unable to parse pact file request. %s", err.Error()))
		}
	}
	if req.Dir == "" {
		req.Dir = a.config.PactOutputDir
	}

	path, err := pactfile.Write(server.Pact(), req.Dir, req.Overwrite)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.MockServerErrorf(server.ID, server.Port(), "unable to write pact file. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]string{"path": path})
}

// withServer resolves the :port parameter to a running mock server.
func withServer(handler func(echo.Context, *mockserver.Server) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		port, err := strconv.Atoi(c.Param("port"))
		if err == nil {
			if server, ok := mockserver.Lookup(port); ok {
				return handler(c, server)
			}
		}
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("no mock server running on port %s", c.Param("port")))
	}
}

func durationParam(c echo.Context, name string, fallback time.Duration) time.Duration {
	value := c.QueryParam(name)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func describe(server *mockserver.Server) MockServerResponse {
	pact := server.Pact()
	return MockServerResponse{
		ID:       server.ID,
		Port:     server.Port(),
		URL:      server.URL(),
		Consumer: pact.Consumer,
		Provider: pact.Provider,
		TLS:      server.TLS(),
		Matched:  server.Matched(),
	}
}
