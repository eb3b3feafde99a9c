package mockserver

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchingRequestReturnsConfiguredResponse(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		the_mock_server_is_started()

	when.
		the_users_are_requested()

	then.
		the_response_status_is(http.StatusOK).and().
		the_response_body_is(`[{"name":"sam"}]`).and().
		the_response_header_is("Content-Type", "application/json").and().
		the_server_is_matched()
}

func TestMatchingRulesAreAppliedToRequestBody(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_create_user_interaction().and().
		the_mock_server_is_started()

	when.
		a_user_is_created()

	then.
		the_response_status_is(http.StatusCreated).and().
		the_response_header_is("Location", "/users/1").and().
		the_server_is_matched()
}

func TestBodyMismatchIsRecorded(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_create_user_interaction().and().
		the_mock_server_is_started()

	when.
		a_user_with_an_invalid_name_is_created()

	then.
		the_response_status_is(http.StatusInternalServerError).and().
		the_server_is_not_matched().and().
		the_mismatch_types_are(TypeRequestMismatch, TypeMissingRequest).and().
		the_mismatches_report_a_body_mismatch_at("$.name")
}

func TestMismatchesAreKeptAfterALaterMatch(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_create_user_interaction().and().
		the_mock_server_is_started()

	when.
		a_user_with_an_invalid_name_is_created().and().
		a_user_is_created()

	then.
		the_server_is_matched().and().
		the_mismatch_types_are(TypeRequestMismatch)
}

func TestUnexpectedRequestIsNotFound(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		the_mock_server_is_started()

	when.
		an_unknown_path_is_requested()

	then.
		the_response_status_is(http.StatusInternalServerError).and().
		the_mismatch_types_are(TypeRequestNotFound, TypeMissingRequest)
}

func TestAllInteractionsMustBeMatched(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		a_pact_with_a_create_user_interaction().and().
		the_mock_server_is_started()

	when.
		the_users_are_requested()

	then.
		the_server_is_not_matched().and().
		the_mismatch_types_are(TypeMissingRequest)
}

func TestConcurrentRequestsMatchTheSameInteraction(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		the_mock_server_is_started()

	when.
		the_users_are_requested_concurrently(20)

	then.
		all_responses_have_status(http.StatusOK).and().
		the_server_is_matched().and().
		the_mismatch_types_are()
}

func TestTLSServer(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		tls_is_enabled().and().
		the_mock_server_is_started()

	when.
		the_users_are_requested()

	then.
		the_response_status_is(http.StatusOK).and().
		the_server_is_matched()
}

func TestWaitForMatched(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		the_mock_server_is_started()

	when.
		the_server_is_waited_on_while_users_are_requested()

	then.
		the_wait_succeeded().and().
		the_server_is_matched()
}

func TestWaitForMatchedTimesOut(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		the_mock_server_is_started()

	when.
		the_server_is_waited_on_briefly()

	then.
		the_wait_failed()
}

func TestCleanupReleasesThePort(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_get_users_interaction().and().
		the_mock_server_is_started()

	when.
		the_server_is_stopped()

	then.
		the_port_is_released()
}

func TestLogsAreBufferedPerServer(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_buffer_log_sink_is_applied().and().
		a_pact_with_a_get_users_interaction().and().
		the_mock_server_is_started()

	when.
		the_users_are_requested()

	then.
		the_server_logs_contain("request matched")
}

func TestTwoServersOnPortZero(t *testing.T) {
	pact := model.NewPact("consumer", "provider")
	one, err := Start(pact, Options{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	defer Cleanup(one.Port())
	two, err := Start(pact.Clone(), Options{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	defer Cleanup(two.Port())

	assert.NotEqual(t, one.Port(), two.Port())
	assert.True(t, one.Matched())
}

func TestInvalidAddress(t *testing.T) {
	for _, address := range []string{"", "127.0.0.1", "127.0.0.1:99999", "127.0.0.1:port"} {
		_, err := New(model.NewPact("c", "p"), Options{Address: address})
		assert.ErrorIs(t, err, ErrInvalidAddress, address)
	}
}

func TestPortAlreadyBound(t *testing.T) {
	one, err := Start(model.NewPact("c", "p"), Options{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	defer Cleanup(one.Port())

	_, err = Start(model.NewPact("c", "p"), Options{Address: fmt.Sprintf("127.0.0.1:%d", one.Port())})
	assert.ErrorIs(t, err, ErrBind)
}

func TestCleanupUnknownPort(t *testing.T) {
	assert.False(t, Cleanup(1))
}

func TestStopRunsCallbackOnce(t *testing.T) {
	calls := 0
	server, err := New(model.NewPact("c", "p"), Options{Address: "127.0.0.1:0", OnStop: func() { calls++ }})
	require.NoError(t, err)
	_, err = server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
	assert.Equal(t, 1, calls)
	_, err = server.Start()
	assert.Error(t, err)
}

func TestConcurrentMismatchesAreAllRecorded(t *testing.T) {
	given, when, then := NewServerStage(t)

	given.
		a_pact_with_a_create_user_interaction().and().
		the_mock_server_is_started()

	when.
		mismatching_requests_are_sent_concurrently(25)

	then.
		all_responses_have_status(http.StatusInternalServerError).and().
		the_server_is_not_matched().and().
		the_mismatch_counts_are(map[string]int{
			TypeRequestMismatch: 25,
			TypeRequestNotFound: 25,
			TypeMissingRequest:  1,
		})
}
