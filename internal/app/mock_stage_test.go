package app

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-mock-server/pkg/pact"
	"github.com/form3tech-oss/pact-mock-server/pkg/pactmock"
	"github.com/pact-foundation/pact-go/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var largeString = strings.Repeat("long_string123BBmmF8BYezrBhCROOCRJfeH5k69hMKXH77TSvwF5GHUZFnbh1dsZ3d90HeR0jUIOovJJVS508uI17djeLFFSb7", 440)

type MockStage struct {
	t          *testing.T
	assert     *assert.Assertions
	require    *require.Assertions
	pact       pact.PactHandle
	config     *pactmock.MockConfiguration
	server     *pactmock.MockServer
	pactFile   string
	mu         sync.Mutex
	statuses   []int
	bodies     [][]byte
	waitResult error
}

func NewMockStage(t *testing.T) (*MockStage, *MockStage, *MockStage) {
	s := &MockStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		pact:    pact.NewPact("user-client", "user-service"),
		config:  pactmock.Configuration(adminURL.String()),
	}
	s.require.NotZero(s.pact)

	t.Cleanup(func() {
		pact.FreePactHandle(s.pact)
		s.assert.NoError(s.config.Reset())
	})
	return s, s, s
}

func (s *MockStage) and() *MockStage {
	return s
}

func (s *MockStage) addInteraction(description, method, path string, request interface{}, status int, response interface{}) {
	interaction := pact.NewInteraction(s.pact, description)
	s.require.NotZero(interaction, pact.GetErrorMessage())
	s.require.True(pact.WithRequest(interaction, method, path))
	if request != nil {
		body, err := json.Marshal(request)
		s.require.NoError(err)
		s.require.True(pact.WithHeader(interaction, pact.PartRequest, "Content-Type", 0, "application/json"))
		s.require.True(pact.WithBody(interaction, pact.PartRequest, "application/json", string(body)))
	}
	s.require.True(pact.ResponseStatus(interaction, status))
	if response != nil {
		body, err := json.Marshal(response)
		s.require.NoError(err)
		s.require.True(pact.WithBody(interaction, pact.PartResponse, "application/json", string(body)))
	}
}

func (s *MockStage) a_pact_that_allows_any_names() *MockStage {
	s.addInteraction("create a user with any name", http.MethodPost, "/users",
		dsl.MapMatcher{"name": dsl.Regex("any", ".*")},
		http.StatusOK, map[string]string{"name": "any"})
	return s
}

func (s *MockStage) a_pact_that_allows_any_age() *MockStage {
	s.addInteraction("create a user with any age", http.MethodPost, "/users",
		dsl.MapMatcher{"age": dsl.Integer()},
		http.StatusOK, map[string]int{"age": 1})
	return s
}

func (s *MockStage) a_pact_for_addresses() *MockStage {
	s.addInteraction("create an address", http.MethodPost, "/addresses",
		dsl.MapMatcher{"address": dsl.Like("a street")},
		http.StatusCreated, nil)
	return s
}

func (s *MockStage) a_pact_for_large_string_generation() *MockStage {
	s.addInteraction("generate a large string", http.MethodPost, "/strings",
		map[string]string{"string": "large"},
		http.StatusOK, map[string]string{"generated": largeString})
	return s
}

func (s *MockStage) the_pact_is_written_and_served() *MockStage {
	dir := s.t.TempDir()
	s.require.Equal(pact.WriteOK, pact.PactHandleWriteFile(s.pact, dir, true), pact.GetErrorMessage())

	data, err := os.ReadFile(filepath.Join(dir, "user-client-user-service.json"))
	s.require.NoError(err)

	server, err := s.config.StartMockServer(data, "", false)
	s.require.NoError(err)
	s.server = server
	return s
}

func (s *MockStage) send(method, path, body string) {
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	if !s.assert.NoError(err) {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if !s.assert.NoError(err) {
		return
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	s.assert.NoError(err)

	s.mu.Lock()
	s.statuses = append(s.statuses, res.StatusCode)
	s.bodies = append(s.bodies, data)
	s.mu.Unlock()
}

func (s *MockStage) a_request_is_sent_using_the_name(name string) *MockStage {
	s.send(http.MethodPost, "/users", `{"name":"`+name+`"}`)
	return s
}

func (s *MockStage) a_request_is_sent_using_the_age(age string) *MockStage {
	s.send(http.MethodPost, "/users", `{"age":`+age+`}`)
	return s
}

func (s *MockStage) a_request_is_sent_to_generate_large_string() *MockStage {
	s.send(http.MethodPost, "/strings", `{"string":"large"}`)
	return s
}

func (s *MockStage) n_concurrent_requests_are_sent_for_users_and_addresses(n int) *MockStage {
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.send(http.MethodPost, "/users", `{"name":"jim"}`)
		}()
		go func() {
			defer wg.Done()
			s.send(http.MethodPost, "/addresses", `{"address":"test"}`)
		}()
	}
	wg.Wait()
	return s
}

func (s *MockStage) the_test_waits_for_all_interactions() *MockStage {
	s.waitResult = s.server.WaitFor(200 * time.Millisecond)
	return s
}

func (s *MockStage) the_pact_file_is_written() *MockStage {
	path, err := s.server.WritePact(s.t.TempDir(), false)
	s.require.NoError(err)
	s.pactFile = path
	return s
}

func (s *MockStage) the_nth_response_is_(n, status int) *MockStage {
	s.require.Greater(len(s.statuses), n-1)
	s.assert.Equal(status, s.statuses[n-1])
	return s
}

func (s *MockStage) the_response_is_(status int) *MockStage {
	return s.the_nth_response_is_(len(s.statuses), status)
}

func (s *MockStage) the_nth_response_body_has_(n int, key, value string) *MockStage {
	s.require.Greater(len(s.bodies), n-1)
	s.assert.Equal(value, gjson.GetBytes(s.bodies[n-1], key).String())
	return s
}

func (s *MockStage) all_responses_are_successful() *MockStage {
	for _, status := range s.statuses {
		s.assert.Less(status, http.StatusBadRequest)
	}
	return s
}

func (s *MockStage) n_responses_were_received(n int) *MockStage {
	s.assert.Len(s.statuses, n)
	return s
}

func (s *MockStage) all_interactions_matched() *MockStage {
	matched, err := s.server.Matched()
	s.require.NoError(err)
	s.assert.True(matched)
	return s
}

func (s *MockStage) not_all_interactions_matched() *MockStage {
	matched, err := s.server.Matched()
	s.require.NoError(err)
	s.assert.False(matched)
	return s
}

func (s *MockStage) a_body_mismatch_is_reported_at(path string) *MockStage {
	paths, err := s.server.QueryMismatches(`$[0].mismatches[*].path`)
	s.require.NoError(err)
	var got []string
	s.require.NoError(json.Unmarshal(paths, &got))
	s.assert.Contains(got, path)
	return s
}

func (s *MockStage) the_wait_succeeded() *MockStage {
	s.assert.NoError(s.waitResult)
	return s
}

func (s *MockStage) the_wait_timed_out() *MockStage {
	s.assert.ErrorIs(s.waitResult, pactmock.ErrTimeout)
	return s
}

func (s *MockStage) the_pact_file_contains_(descriptions ...string) *MockStage {
	data, err := os.ReadFile(s.pactFile)
	s.require.NoError(err)
	var got []string
	for _, d := range gjson.GetBytes(data, "interactions.#.description").Array() {
		got = append(got, d.String())
	}
	s.assert.ElementsMatch(descriptions, got)
	return s
}
