package pactmock_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-mock-server/internal/app/configuration"
	"github.com/form3tech-oss/pact-mock-server/pkg/pactmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pact = `{
  "consumer": {"name": "checkout"},
  "provider": {"name": "inventory"},
  "interactions": [{
    "description": "reserve an item",
    "request": {"method": "PUT", "path": "/items/7/reservation", "headers": {"X-Request-Id": "abc"}},
    "response": {"status": 204}
  }],
  "metadata": {"pactSpecification": {"version": "2.0.0"}}
}`

func TestConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		err        string
		wantPort   int
		wantConsum string
	}{
		{
			name:       "basic creation",
			status:     http.StatusCreated,
			response:   `{"port": 4000, "url": "http://127.0.0.1:4000", "consumer": "checkout"}`,
			wantPort:   4000,
			wantConsum: "checkout",
		},
		{
			name:     "admin API rejects the pact",
			status:   http.StatusBadRequest,
			response: `{"error_message": "unable to parse pact"}`,
			err:      "unable to parse pact",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/mockservers", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)

				body, err := io.ReadAll(r.Body)
				assert.NoError(t, err)
				var req map[string]interface{}
				assert.NoError(t, json.Unmarshal(body, &req))
				assert.Equal(t, pact, req["pact"])

				rw.WriteHeader(tt.status)
				_, _ = rw.Write([]byte(tt.response))
			}))
			defer ts.Close()

			conf := pactmock.Configuration(ts.URL + "/")

			server, err := conf.StartMockServer([]byte(pact), "", false)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, server.Port)
			assert.Equal(t, tt.wantConsum, server.Consumer)
		})
	}
}

func TestMockServerThroughAdminAPI(t *testing.T) {
	dir := t.TempDir()
	admin := httptest.NewServer(configuration.NewAdminAPI(configuration.Config{
		PactOutputDir: dir,
		WaitDelay:     10 * time.Millisecond,
		WaitDuration:  time.Second,
	}))
	defer admin.Close()

	conf := pactmock.Configuration(admin.URL)
	defer func() { assert.NoError(t, conf.Reset()) }()

	server, err := conf.StartMockServer([]byte(pact), "127.0.0.1:0", false)
	require.NoError(t, err)

	servers, err := conf.MockServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, server.Port, servers[0].Port)

	err = server.WaitFor(20 * time.Millisecond)
	assert.ErrorIs(t, err, pactmock.ErrTimeout)

	req, err := http.NewRequest(http.MethodPut, server.URL+"/items/7/reservation", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

	mismatches, err := server.Mismatches()
	require.NoError(t, err)
	require.NotEmpty(t, mismatches)
	assert.Equal(t, "request-mismatch", mismatches[0].Type)
	require.NotEmpty(t, mismatches[0].Mismatches)
	assert.Equal(t, "X-Request-Id", mismatches[0].Mismatches[0].Key)

	keys, err := server.QueryMismatches("$[0].mismatches[*].key")
	require.NoError(t, err)
	assert.JSONEq(t, `["X-Request-Id"]`, string(keys))

	req.Header.Set("X-Request-Id", "abc")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	require.NoError(t, server.WaitForAll())
	matched, err := server.Matched()
	require.NoError(t, err)
	assert.True(t, matched)

	path, err := server.WritePact("", false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir), path)

	_, err = server.Logs()
	var statusErr *pactmock.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	descriptor, err := conf.VerifierArgs()
	require.NoError(t, err)
	assert.Contains(t, string(descriptor), "hostname")

	require.NoError(t, server.Cleanup())
	_, err = server.Matched()
	assert.Error(t, err)
}
