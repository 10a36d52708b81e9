package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omriShneor/leave_extractor/internal/leave"
	"github.com/omriShneor/leave_extractor/internal/mocks"
	"github.com/omriShneor/leave_extractor/internal/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)

// createTestServer creates a server whose extractor talks to a mock model
func createTestServer(t *testing.T, model *mocks.MockModel, pinger Pinger) *Server {
	t.Helper()
	prompt, err := leave.DefaultPrompt()
	require.NoError(t, err)

	extractor := leave.NewExtractor(leave.ExtractorConfig{
		Model:    model,
		Prompt:   prompt,
		Clock:    func() time.Time { return testNow },
		Location: time.UTC,
	})

	return New(ServerConfig{Extractor: extractor, Model: pinger})
}

func postLeave(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/leave/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHome(t *testing.T) {
	s := createTestServer(t, new(mocks.MockModel), nil)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result": "Welcome to my app"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleHomeOnlyMatchesRoot(t *testing.T) {
	s := createTestServer(t, new(mocks.MockModel), nil)

	req := httptest.NewRequest("GET", "/nope", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealthCheck(t *testing.T) {
	t.Run("model connected", func(t *testing.T) {
		pinger := new(mocks.MockPinger)
		pinger.On("Ping", mock.Anything).Return(nil)
		s := createTestServer(t, new(mocks.MockModel), pinger)

		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "connected", response["model"])
	})

	t.Run("model unreachable", func(t *testing.T) {
		pinger := new(mocks.MockPinger)
		pinger.On("Ping", mock.Anything).Return(ollama.ErrModelUnavailable)
		s := createTestServer(t, new(mocks.MockModel), pinger)

		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "unreachable", response["model"])
	})

	t.Run("no model configured", func(t *testing.T) {
		s := createTestServer(t, new(mocks.MockModel), nil)

		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"unknown"`)
	})
}

func TestHandleParseLeave(t *testing.T) {
	message := "JOHN: I will be on leave starting tomorrow for 3 days. I have to visit the hospital."
	johnOutput := `{
		"name": "JOHN", "late": false, "early_departure": false, "partially_unavailable": false,
		"leave": {"first_half": false, "second_half": false, "whole_day": true},
		"wfh": {"first_half": false, "second_half": false, "whole_day": false},
		"start_date": "2024-03-09", "end_date": "2024-03-12", "reason": "To visit hospital"
	}`

	t.Run("single event returns object", func(t *testing.T) {
		model := new(mocks.MockModel)
		model.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "Today's date is 2024-03-08.") && leave.MessageFromPrompt(p) == message
		})).Return(johnOutput, nil)
		s := createTestServer(t, model, nil)

		body, _ := json.Marshal(map[string]string{"leave_request": message})
		w := postLeave(t, s, string(body))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
		assert.Equal(t, "JOHN", event["name"])
		assert.Equal(t, "2024-03-09", event["start_date"])
		assert.Equal(t, "2024-03-12", event["end_date"])
		assert.Equal(t, "To visit hospital", event["reason"])
		assert.Equal(t, false, event["late"])
		model.AssertExpectations(t)
	})

	t.Run("multiple events return array", func(t *testing.T) {
		model := new(mocks.MockModel)
		model.On("Generate", mock.Anything, mock.Anything).Return(`[
			{"name": "RAM", "late": false, "leave": true, "wfh": false, "start_date": "2024-03-13", "end_date": null, "reason": "To visit hospital"},
			{"name": "RAM", "late": false, "leave": false, "wfh": true, "start_date": "2024-03-14", "end_date": null, "reason": null}
		]`, nil)
		s := createTestServer(t, model, nil)

		w := postLeave(t, s, `{"leave_request": "RAM: leave tomorrow, WFH the day after"}`)

		require.Equal(t, http.StatusOK, w.Code)
		var events []leave.Event
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
		require.Len(t, events, 2)
		assert.True(t, events[0].Leave.WholeDay)
		assert.True(t, events[1].WFH.WholeDay)
		assert.Nil(t, events[1].Reason)
	})

	t.Run("caller supplied reference date", func(t *testing.T) {
		model := new(mocks.MockModel)
		model.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "Today's date is 2024-01-31.")
		})).Return(`{"name": null, "late": false, "leave": false, "wfh": true, "start_date": "2024-02-01", "end_date": null, "reason": null}`, nil)
		s := createTestServer(t, model, nil)

		w := postLeave(t, s, `{"leave_request": "WFH tomorrow", "reference_date": "2024-01-31"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		model.AssertExpectations(t)
	})

	t.Run("path without trailing slash", func(t *testing.T) {
		model := new(mocks.MockModel)
		model.On("Generate", mock.Anything, mock.Anything).Return(johnOutput, nil)
		s := createTestServer(t, model, nil)

		req := httptest.NewRequest("POST", "/leave", bytes.NewReader([]byte(`{"leave_request": "x"}`)))
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHandleParseLeaveClientErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "not json", body: "leave tomorrow"},
		{name: "missing field", body: `{"message": "leave tomorrow"}`},
		{name: "empty text", body: `{"leave_request": ""}`},
		{name: "blank text", body: `{"leave_request": "   "}`},
		{name: "null text", body: `{"leave_request": null}`},
		{name: "wrong type", body: `{"leave_request": 42}`},
		{name: "bad reference date", body: `{"leave_request": "WFH", "reference_date": "tomorrow"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := new(mocks.MockModel)
			s := createTestServer(t, model, nil)

			w := postLeave(t, s, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var response map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.NotEmpty(t, response["error"])
			model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleParseLeaveBodyTooLarge(t *testing.T) {
	model := new(mocks.MockModel)
	s := createTestServer(t, model, nil)

	w := postLeave(t, s, `{"leave_request": "`+strings.Repeat("a", maxRequestBody)+`"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "exceeds")
	model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestHandleParseLeaveServerErrors(t *testing.T) {
	tests := []struct {
		name           string
		output         string
		err            error
		expectedStatus int
	}{
		{
			name:           "model unavailable",
			err:            fmt.Errorf("%w: connection refused", ollama.ErrModelUnavailable),
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "model timeout",
			err:            fmt.Errorf("%w: context deadline exceeded", ollama.ErrModelTimeout),
			expectedStatus: http.StatusGatewayTimeout,
		},
		{
			name:           "malformed output",
			output:         "Sorry, I can't help with that.",
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "schema violation",
			output:         `{"employee": "JOHN"}`,
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "empty record",
			output:         `{}`,
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "unexpected error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := new(mocks.MockModel)
			model.On("Generate", mock.Anything, mock.Anything).Return(tt.output, tt.err)
			s := createTestServer(t, model, nil)

			w := postLeave(t, s, `{"leave_request": "JOHN: leave tomorrow"}`)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Contains(t, response, "error")
			assert.NotContains(t, response, "name")
		})
	}
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForError(fmt.Errorf("x: %w", leave.ErrInvalidRequest)))
	assert.Equal(t, http.StatusBadGateway, statusForError(fmt.Errorf("x: %w", leave.ErrMalformedOutput)))
	assert.Equal(t, http.StatusBadGateway, statusForError(fmt.Errorf("x: %w", leave.ErrSchemaViolation)))
	assert.Equal(t, http.StatusServiceUnavailable, statusForError(fmt.Errorf("x: %w", ollama.ErrModelUnavailable)))
	assert.Equal(t, http.StatusGatewayTimeout, statusForError(fmt.Errorf("x: %w", ollama.ErrModelTimeout)))
}

func TestCORSPreflight(t *testing.T) {
	s := createTestServer(t, new(mocks.MockModel), nil)

	req := httptest.NewRequest("OPTIONS", "/leave/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := createTestServer(t, new(mocks.MockModel), nil)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
