package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3"
)

var (
	// ErrModelUnavailable means the model endpoint could not be reached or refused the call.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelTimeout means the model did not answer within the allowed time.
	ErrModelTimeout = errors.New("model timeout")
)

// Client is an Ollama text-completion client.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	jsonMode    bool
	timeout     time.Duration
	httpClient  *http.Client
}

// Config configures a Client. A zero Timeout leaves the call unbounded.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	JSONMode    bool
}

// NewClient creates a new Ollama client
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	temperature := cfg.Temperature
	if temperature < 0 {
		temperature = 0
	}

	return &Client{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		jsonMode:    cfg.JSONMode,
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{},
	}
}

// generateRequest represents the /api/generate request structure
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

// generateResponse represents the non-streaming /api/generate response
type generateResponse struct {
	Model      string `json:"model"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Generate sends a single prompt to the model and returns its raw text answer.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: c.temperature},
	}
	if c.jsonMode {
		req.Format = "json"
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", formatAPIError(resp.StatusCode, body)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("%w: failed to unmarshal response: %v", ErrModelUnavailable, err)
	}
	if genResp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, genResp.Error)
	}

	logrus.WithFields(logrus.Fields{
		"model":       c.model,
		"duration_ms": time.Since(start).Milliseconds(),
		"done_reason": genResp.DoneReason,
	}).Debug("model call completed")

	return genResp.Response, nil
}

// Ping checks that the Ollama server answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama returned status %d", ErrModelUnavailable, resp.StatusCode)
	}
	return nil
}

// classifyTransportError maps a failed round trip onto the model error kinds.
// Caller cancellation is passed through untouched.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("model call aborted: %w", ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrModelTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrModelTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}

// formatAPIError builds an error from a non-200 Ollama reply, preferring its
// {"error": "..."} message when present.
func formatAPIError(statusCode int, body []byte) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%w: ollama error (status %d): %s", ErrModelUnavailable, statusCode, apiErr.Error)
	}
	return fmt.Errorf("%w: ollama error (status %d): %s", ErrModelUnavailable, statusCode, strings.TrimSpace(string(body)))
}
