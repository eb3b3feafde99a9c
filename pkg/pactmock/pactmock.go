package pactmock

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var ErrTimeout = errors.New("timeout waiting for interactions")

// MockServer is a mock server running behind the admin API.
type MockServer struct {
	MockServerInfo

	conf *MockConfiguration
	path string
}

func newMockServer(conf *MockConfiguration, info MockServerInfo) *MockServer {
	return &MockServer{
		MockServerInfo: info,
		conf:           conf,
		path:           "/mockservers/" + strconv.Itoa(info.Port),
	}
}

func (m *MockServer) Matched() (bool, error) {
	var res map[string]bool
	if err := m.conf.do(http.MethodGet, m.path+"/matched", nil, http.StatusOK, &res); err != nil {
		return false, err
	}
	return res["matched"], nil
}

func (m *MockServer) Mismatches() ([]RequestMismatch, error) {
	var mismatches []RequestMismatch
	if err := m.conf.do(http.MethodGet, m.path+"/mismatches", nil, http.StatusOK, &mismatches); err != nil {
		return nil, err
	}
	return mismatches, nil
}

// QueryMismatches evaluates a JSONPath expression against the mismatch document.
func (m *MockServer) QueryMismatches(jsonPath string) (json.RawMessage, error) {
	q := url.Values{}
	q.Add("query", jsonPath)

	var res json.RawMessage
	if err := m.conf.do(http.MethodGet, m.path+"/mismatches?"+q.Encode(), nil, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Logs returns the logs the server captured. The admin process must log to a buffer sink.
func (m *MockServer) Logs() (string, error) {
	req, err := http.NewRequest(http.MethodGet, m.conf.url+m.path+"/logs", nil)
	if err != nil {
		return "", err
	}
	res, err := m.conf.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	logs, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: res.StatusCode, Message: errorMessage(logs), Body: logs}
	}
	return string(logs), nil
}

// WaitForAll waits until every interaction was matched, using the admin
// API's default duration.
func (m *MockServer) WaitForAll() error {
	return m.wait(url.Values{})
}

// WaitFor waits up to duration until every interaction was matched.
func (m *MockServer) WaitFor(duration time.Duration) error {
	q := url.Values{}
	q.Add("duration", duration.String())
	return m.wait(q)
}

func (m *MockServer) wait(q url.Values) error {
	path := m.path + "/wait"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	err := m.conf.do(http.MethodGet, path, nil, http.StatusOK, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusRequestTimeout {
		return errors.Wrap(ErrTimeout, string(statusErr.Body))
	}
	return err
}

// WritePact writes the pact file into dir, or the admin API's default
// directory when dir is empty. It returns the path written.
func (m *MockServer) WritePact(dir string, overwrite bool) (string, error) {
	content, err := json.Marshal(writePactRequest{Dir: dir, Overwrite: overwrite})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal pact file request")
	}
	var res map[string]string
	if err := m.conf.do(http.MethodPost, m.path+"/pactfile", content, http.StatusOK, &res); err != nil {
		return "", errors.Wrap(err, "failed to write pact file")
	}
	return res["path"], nil
}

// Cleanup stops the mock server.
func (m *MockServer) Cleanup() error {
	return m.conf.do(http.MethodDelete, m.path, nil, http.StatusNoContent, nil)
}
