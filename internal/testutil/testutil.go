package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/omriShneor/leave_extractor/internal/leave"
	"github.com/omriShneor/leave_extractor/internal/ollama"
	"github.com/omriShneor/leave_extractor/internal/server"
	"github.com/stretchr/testify/require"
)

// FakeOllama is an httptest stand-in for an Ollama server. Prompts posted to
// /api/generate are answered by the wrapped model.
type FakeOllama struct {
	HTTPServer *httptest.Server
	model      leave.Model

	mu      sync.Mutex
	prompts []string
	status  int
}

// NewFakeOllama starts a fake Ollama server answering with model.
func NewFakeOllama(t *testing.T, model leave.Model) *FakeOllama {
	t.Helper()

	f := &FakeOllama{model: model, status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", f.handleGenerate)
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		if status := f.Status(); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models": []}`))
	})

	f.HTTPServer = httptest.NewServer(mux)
	t.Cleanup(f.HTTPServer.Close)
	return f
}

// URL returns the base URL of the fake server
func (f *FakeOllama) URL() string {
	return f.HTTPServer.URL
}

// FailWith makes every subsequent call answer with the given HTTP status.
func (f *FakeOllama) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Status returns the HTTP status the fake currently answers with.
func (f *FakeOllama) Status() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Prompts returns every prompt received so far.
func (f *FakeOllama) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *FakeOllama) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		Stream bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": "model failed to load"})
		return
	}

	answer, err := f.model.Generate(r.Context(), req.Prompt)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"model":       req.Model,
		"response":    answer,
		"done":        true,
		"done_reason": "stop",
	})
}

// TestServer wraps the API server for E2E testing. Requests go through the
// real Ollama client to a FakeOllama.
type TestServer struct {
	Server     *server.Server
	HTTPServer *httptest.Server
	Ollama     *FakeOllama
	t          *testing.T
}

// TestServerOption configures a test server
type TestServerOption func(*testServerOptions)

type testServerOptions struct {
	model        leave.Model
	now          time.Time
	modelTimeout time.Duration
}

// WithModel answers prompts with the given model instead of the worked examples.
func WithModel(model leave.Model) TestServerOption {
	return func(o *testServerOptions) {
		o.model = model
	}
}

// WithNow fixes the server clock.
func WithNow(now time.Time) TestServerOption {
	return func(o *testServerOptions) {
		o.now = now
	}
}

// WithModelTimeout bounds each model call.
func WithModelTimeout(d time.Duration) TestServerOption {
	return func(o *testServerOptions) {
		o.modelTimeout = d
	}
}

// NewTestServer creates a fully wired API server for E2E testing. By default
// the model replays the worked examples and the clock reads 2024-03-08.
func NewTestServer(t *testing.T, opts ...TestServerOption) *TestServer {
	t.Helper()

	o := testServerOptions{
		now: time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&o)
	}

	prompt, err := leave.DefaultPrompt()
	require.NoError(t, err, "failed to load prompt")

	if o.model == nil {
		o.model = leave.NewExampleModel(prompt.Examples())
	}

	fake := NewFakeOllama(t, o.model)
	client := ollama.NewClient(ollama.Config{
		BaseURL: fake.URL(),
		Model:   "test-model",
		Timeout: o.modelTimeout,
	})

	extractor := leave.NewExtractor(leave.ExtractorConfig{
		Model:    client,
		Prompt:   prompt,
		Clock:    func() time.Time { return o.now },
		Location: time.UTC,
	})

	srv := server.New(server.ServerConfig{
		Extractor:    extractor,
		Model:        client,
		ModelTimeout: o.modelTimeout,
	})

	ts := &TestServer{
		Server:     srv,
		HTTPServer: httptest.NewServer(srv.Handler()),
		Ollama:     fake,
		t:          t,
	}
	t.Cleanup(ts.HTTPServer.Close)

	return ts
}

// URL returns the base URL of the test server
func (ts *TestServer) URL() string {
	return ts.HTTPServer.URL
}

// PostLeave posts a leave message and returns the response.
func (ts *TestServer) PostLeave(text, referenceDate string) *http.Response {
	ts.t.Helper()

	payload := map[string]string{"leave_request": text}
	if referenceDate != "" {
		payload["reference_date"] = referenceDate
	}
	body, err := json.Marshal(payload)
	require.NoError(ts.t, err)

	resp, err := http.Post(ts.URL()+"/leave/", "application/json", bytes.NewReader(body))
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// Get performs a GET request against the test server.
func (ts *TestServer) Get(path string) *http.Response {
	ts.t.Helper()

	resp, err := http.Get(ts.URL() + path)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// DecodeJSON decodes a response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
