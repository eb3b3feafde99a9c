package mockserver

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-mock-server/internal/app/logging"
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/pact-foundation/pact-go/dsl"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ServerStage struct {
	t         *testing.T
	assert    *assert.Assertions
	require   *require.Assertions
	pact      *model.Pact
	server    *Server
	useTLS    bool
	logging   *logging.Context
	responses []*http.Response
	bodies    [][]byte
	waitOK    bool
	mu        sync.Mutex
}

func NewServerStage(t *testing.T) (*ServerStage, *ServerStage, *ServerStage) {
	s := &ServerStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		pact:    model.NewPact("consumer", "provider"),
	}
	t.Cleanup(func() {
		if s.server != nil {
			Cleanup(s.server.Port())
		}
	})
	return s, s, s
}

func (s *ServerStage) and() *ServerStage {
	return s
}

func (s *ServerStage) addInteraction(description string, fn func(*model.Interaction)) {
	index, err := s.pact.NewInteraction(description)
	s.require.NoError(err)
	s.require.NoError(s.pact.UpdateInteraction(index, func(i *model.Interaction) error {
		fn(i)
		return nil
	}))
}

func (s *ServerStage) a_pact_with_a_get_users_interaction() *ServerStage {
	s.addInteraction("a request for users", func(i *model.Interaction) {
		i.WithRequest("GET", "/users")
		s.require.NoError(i.WithQueryParameter("page", 0, "1"))
		i.WithBody(model.PartResponse, "application/json", `[{"name":"sam"}]`)
	})
	return s
}

func (s *ServerStage) a_pact_with_a_create_user_interaction() *ServerStage {
	body, err := json.Marshal(dsl.MapMatcher{"name": dsl.Regex("sam", "^[a-z]+$"), "age": dsl.Like(30)})
	s.require.NoError(err)
	s.addInteraction("create a user", func(i *model.Interaction) {
		i.WithRequest("POST", "/users")
		i.WithBody(model.PartRequest, "application/json", string(body))
		s.require.NoError(i.WithHeader(model.PartResponse, "Location", 0, "/users/1"))
		s.require.NoError(i.ResponseStatus(http.StatusCreated))
	})
	return s
}

func (s *ServerStage) tls_is_enabled() *ServerStage {
	s.useTLS = true
	return s
}

func (s *ServerStage) a_buffer_log_sink_is_applied() *ServerStage {
	s.logging = logging.NewContext(log.StandardLogger())
	s.t.Cleanup(s.logging.Reset)
	s.logging.Init()
	s.require.NoError(s.logging.AttachSink("buffer", logging.LevelDebug))
	s.require.NoError(s.logging.Apply())
	return s
}

func (s *ServerStage) the_mock_server_is_started() *ServerStage {
	server, err := Start(s.pact, Options{Address: "127.0.0.1:0", TLS: s.useTLS, Logging: s.logging})
	s.require.NoError(err)
	s.server = server
	return s
}

func (s *ServerStage) client() *http.Client {
	if !s.useTLS {
		return http.DefaultClient
	}
	ca, err := CACertificate()
	s.require.NoError(err)
	pool := x509.NewCertPool()
	s.require.True(pool.AppendCertsFromPEM([]byte(ca)))
	return &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}}
}

func (s *ServerStage) send(method, path, body string) {
	req, err := http.NewRequest(method, s.server.URL()+path, strings.NewReader(body))
	s.require.NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := s.client().Do(req)
	s.require.NoError(err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	s.require.NoError(err)

	s.mu.Lock()
	s.responses = append(s.responses, res)
	s.bodies = append(s.bodies, data)
	s.mu.Unlock()
}

func (s *ServerStage) the_users_are_requested() *ServerStage {
	s.send(http.MethodGet, "/users?page=1", "")
	return s
}

func (s *ServerStage) a_user_is_created() *ServerStage {
	s.send(http.MethodPost, "/users", `{"name":"alex","age":41}`)
	return s
}

func (s *ServerStage) a_user_with_an_invalid_name_is_created() *ServerStage {
	s.send(http.MethodPost, "/users", `{"name":"Alex99","age":41}`)
	return s
}

func (s *ServerStage) an_unknown_path_is_requested() *ServerStage {
	s.send(http.MethodGet, "/unknown", "")
	return s
}

func (s *ServerStage) the_users_are_requested_concurrently(n int) *ServerStage {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, s.server.URL()+"/users?page=1", nil)
			if !assert.NoError(s.t, err) {
				return
			}
			res, err := http.DefaultClient.Do(req)
			if !assert.NoError(s.t, err) {
				return
			}
			defer res.Body.Close()
			_, _ = io.Copy(io.Discard, res.Body)
			s.mu.Lock()
			s.responses = append(s.responses, res)
			s.mu.Unlock()
		}()
	}
	wg.Wait()
	return s
}

func (s *ServerStage) mismatching_requests_are_sent_concurrently(n int) *ServerStage {
	var wg sync.WaitGroup
	send := func(method, path, body string) {
		defer wg.Done()
		req, err := http.NewRequest(method, s.server.URL()+path, strings.NewReader(body))
		if !assert.NoError(s.t, err) {
			return
		}
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := http.DefaultClient.Do(req)
		if !assert.NoError(s.t, err) {
			return
		}
		defer res.Body.Close()
		_, _ = io.Copy(io.Discard, res.Body)
		s.mu.Lock()
		s.responses = append(s.responses, res)
		s.mu.Unlock()
	}
	for i := 0; i < n; i++ {
		wg.Add(2)
		go send(http.MethodPost, "/users", fmt.Sprintf(`{"name":"Alex%d","age":41}`, i))
		go send(http.MethodGet, fmt.Sprintf("/unknown/%d", i), "")
	}
	wg.Wait()
	return s
}

func (s *ServerStage) the_server_is_waited_on_while_users_are_requested() *ServerStage {
	go func() {
		time.Sleep(100 * time.Millisecond)
		res, err := http.Get(s.server.URL() + "/users?page=1")
		if assert.NoError(s.t, err) {
			res.Body.Close()
		}
	}()
	s.waitOK = s.server.WaitForMatchedTimeout(5*time.Second, 50*time.Millisecond)
	return s
}

func (s *ServerStage) the_server_is_waited_on_briefly() *ServerStage {
	s.waitOK = s.server.WaitForMatchedTimeout(200*time.Millisecond, 20*time.Millisecond)
	return s
}

func (s *ServerStage) the_response_status_is(status int) *ServerStage {
	s.require.NotEmpty(s.responses)
	s.assert.Equal(status, s.responses[len(s.responses)-1].StatusCode)
	return s
}

func (s *ServerStage) all_responses_have_status(status int) *ServerStage {
	for _, res := range s.responses {
		s.assert.Equal(status, res.StatusCode)
	}
	return s
}

func (s *ServerStage) the_response_body_is(body string) *ServerStage {
	s.assert.JSONEq(body, string(s.bodies[len(s.bodies)-1]))
	return s
}

func (s *ServerStage) the_response_header_is(name, value string) *ServerStage {
	s.assert.Equal(value, s.responses[len(s.responses)-1].Header.Get(name))
	return s
}

func (s *ServerStage) the_server_is_matched() *ServerStage {
	s.assert.True(s.server.Matched())
	return s
}

func (s *ServerStage) the_server_is_not_matched() *ServerStage {
	s.assert.False(s.server.Matched())
	return s
}

func (s *ServerStage) the_wait_succeeded() *ServerStage {
	s.assert.True(s.waitOK)
	return s
}

func (s *ServerStage) the_wait_failed() *ServerStage {
	s.assert.False(s.waitOK)
	return s
}

func (s *ServerStage) the_mismatch_types_are(types ...string) *ServerStage {
	var got []string
	for _, m := range s.server.Mismatches() {
		got = append(got, m.Type)
	}
	s.assert.Equal(types, got)
	return s
}

func (s *ServerStage) the_mismatch_counts_are(counts map[string]int) *ServerStage {
	got := map[string]int{}
	for _, m := range s.server.Mismatches() {
		got[m.Type]++
	}
	s.assert.Equal(counts, got)
	return s
}

func (s *ServerStage) the_mismatches_report_a_body_mismatch_at(path string) *ServerStage {
	data, err := s.server.MismatchesJSON()
	s.require.NoError(err)

	var doc []map[string]interface{}
	s.require.NoError(json.Unmarshal(data, &doc))
	s.require.NotEmpty(doc)
	details, ok := doc[0]["mismatches"].([]interface{})
	s.require.True(ok)
	s.require.NotEmpty(details)
	first := details[0].(map[string]interface{})
	s.assert.Equal("BodyMismatch", first["type"])
	s.assert.Equal(path, first["path"])
	return s
}

func (s *ServerStage) the_server_logs_contain(text string) *ServerStage {
	logs, ok := s.server.Logs()
	s.require.True(ok)
	s.assert.Contains(logs, text)
	return s
}

func (s *ServerStage) the_server_is_stopped() *ServerStage {
	s.assert.True(Cleanup(s.server.Port()))
	return s
}

func (s *ServerStage) the_port_is_released() *ServerStage {
	_, ok := Lookup(s.server.Port())
	s.assert.False(ok)
	_, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/users", s.server.Port()))
	s.assert.Error(err)
	s.assert.Equal(StateStopped, s.server.State())
	return s
}
