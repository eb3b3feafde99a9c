package mockserver

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/form3tech-oss/pact-mock-server/internal/app/matching"
	"github.com/form3tech-oss/pact-mock-server/internal/app/model"
)

const (
	TypeRequestMismatch = "request-mismatch"
	TypeRequestNotFound = "request-not-found"
	TypeMissingRequest  = "missing-request"
)

// RequestMismatch is one entry of the mismatch report of a server.
type RequestMismatch struct {
	Type        string              `json:"type"`
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	Interaction string              `json:"interaction,omitempty"`
	Request     *RecordedRequest    `json:"request,omitempty"`
	Mismatches  matching.Mismatches `json:"mismatches,omitempty"`
}

// RecordedRequest is the request side of a mismatch entry.
type RecordedRequest struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"`
}

func recordedRequest(r *matching.Request) *RecordedRequest {
	out := &RecordedRequest{
		Method: r.Method,
		Path:   r.Path,
	}
	if len(r.Query) > 0 {
		out.Query = r.Query
	}
	if len(r.Headers) > 0 {
		out.Headers = r.Headers
	}
	out.Body = bodyText(r.Body)
	return out
}

func expectedRequest(r model.Request) *RecordedRequest {
	out := &RecordedRequest{
		Method: r.Method,
		Path:   r.Path,
	}
	if len(r.Query) > 0 {
		out.Query = r.Query
	}
	if len(r.Headers) > 0 {
		out.Headers = r.Headers
	}
	if r.Body.Present {
		out.Body = bodyText(r.Body.Content)
	}
	return out
}

func bodyText(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return fmt.Sprintf("<%d bytes of binary data>", len(body))
	}
	return string(body)
}

func unmatchedMessage(m RequestMismatch) string {
	if m.Type == TypeRequestNotFound {
		return fmt.Sprintf("Unexpected request: %s %s", m.Method, m.Path)
	}
	lines := []string{fmt.Sprintf("Request %s %s did not match interaction %q", m.Method, m.Path, m.Interaction)}
	for _, mismatch := range m.Mismatches {
		lines = append(lines, "  "+mismatch.String())
	}
	return strings.Join(lines, "\n")
}
