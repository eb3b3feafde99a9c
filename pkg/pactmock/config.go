// Package pactmock is a client for the admin API of pact-mock-server.
package pactmock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type MockConfiguration struct {
	client http.Client
	url    string
}

// Configuration returns a client for the admin API listening on url.
func Configuration(url string) *MockConfiguration {
	return &MockConfiguration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

// StartMockServer serves pact, a pact file document, on address. An empty
// address lets the admin API pick a free local port.
func (conf *MockConfiguration) StartMockServer(pact []byte, address string, tls bool) (*MockServer, error) {
	content, err := json.Marshal(createRequest{Pact: string(pact), Address: address, TLS: tls})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal mock server request")
	}

	var info MockServerInfo
	if err := conf.do(http.MethodPost, "/mockservers", content, http.StatusCreated, &info); err != nil {
		return nil, errors.Wrap(err, "failed to start mock server")
	}
	return newMockServer(conf, info), nil
}

// MockServers lists the running mock servers.
func (conf *MockConfiguration) MockServers() ([]MockServerInfo, error) {
	var infos []MockServerInfo
	if err := conf.do(http.MethodGet, "/mockservers", nil, http.StatusOK, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// VerifierArgs returns the descriptor of the provider verifier options.
func (conf *MockConfiguration) VerifierArgs() (json.RawMessage, error) {
	var descriptor json.RawMessage
	if err := conf.do(http.MethodGet, "/verifier/args", nil, http.StatusOK, &descriptor); err != nil {
		return nil, err
	}
	return descriptor, nil
}

// Reset stops every mock server.
func (conf *MockConfiguration) Reset() error {
	if err := conf.do(http.MethodDelete, "/mockservers", nil, http.StatusNoContent, nil); err != nil {
		return errors.Wrap(err, "error resetting mock servers")
	}
	return nil
}

func (conf *MockConfiguration) do(method, path string, body []byte, expected int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, conf.url+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != expected {
		return &StatusError{StatusCode: res.StatusCode, Message: errorMessage(responseBody), Body: responseBody}
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(responseBody, out), "failed to decode response")
}

// StatusError is returned when the admin API answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	return http.StatusText(e.StatusCode) + ": " + e.Message
}

func errorMessage(body []byte) string {
	var res errorResponse
	if err := json.Unmarshal(body, &res); err == nil && res.ErrorMessage != "" {
		return res.ErrorMessage
	}
	return string(body)
}
