package pactmock

type MockServerInfo struct {
	ID       string `json:"id"`
	Port     int    `json:"port"`
	URL      string `json:"url"`
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
	TLS      bool   `json:"tls"`
	Matched  bool   `json:"matched"`
}

type RequestMismatch struct {
	Type        string           `json:"type"`
	Method      string           `json:"method"`
	Path        string           `json:"path"`
	Interaction string           `json:"interaction,omitempty"`
	Request     *RequestDocument `json:"request,omitempty"`
	Mismatches  []Mismatch       `json:"mismatches,omitempty"`
}

type RequestDocument struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"`
}

type Mismatch struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Key       string `json:"key,omitempty"`
	Parameter string `json:"parameter,omitempty"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Mismatch  string `json:"mismatch"`
}

type createRequest struct {
	Pact    string `json:"pact"`
	Address string `json:"address,omitempty"`
	TLS     bool   `json:"tls"`
}

type writePactRequest struct {
	Dir       string `json:"dir,omitempty"`
	Overwrite bool   `json:"overwrite"`
}

type errorResponse struct {
	ErrorMessage string `json:"error_message"`
}
