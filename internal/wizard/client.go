// Package wizard provides stateless request helpers for the guided-question
// service: start, answer, advance, finish, and export. The client holds no
// wizard progress of its own — the session state machine owns the session
// identifier and replays it into every call.
package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxdraft/voxdraft/internal/observe"
	"github.com/voxdraft/voxdraft/internal/resilience"
)

// Statuses returned by the wizard service.
const (
	StatusOK   = "ok"
	StatusStay = "stay"
	StatusDone = "done"
)

// ServiceError is a non-ok HTTP response from a wizard endpoint. The session
// surfaces it inline and keeps accumulated answers so the call can be
// retried.
type ServiceError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wizard: %s failed with HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("wizard: %s failed with HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// StepResult is the response shape shared by start, answer, and advance.
type StepResult struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question,omitempty"`
	Index     int    `json:"index,omitempty"`
	Total     int    `json:"total,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Done reports whether the questionnaire has collected every answer.
func (r StepResult) Done() bool { return r.Status == StatusDone }

// FinishResult is the response of the finish endpoint.
type FinishResult struct {
	Status          string `json:"status"`
	Markdown        string `json:"markdown,omitempty"`
	ExportAvailable bool   `json:"export_available,omitempty"`
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Useful in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts sets the per-request timeout and the finish timeout. The
// finish endpoint runs the backend's full document pipeline and needs more
// headroom than the step endpoints.
func WithTimeouts(request, finish time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.requestTimeout = request
		}
		if finish > 0 {
			c.finishTimeout = finish
		}
	}
}

// WithBreaker installs a circuit breaker around every call.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// Client calls the guided-question service over HTTP.
type Client struct {
	baseURL        string
	http           *http.Client
	requestTimeout time.Duration
	finishTimeout  time.Duration
	breaker        *resilience.CircuitBreaker
}

// New creates a Client for the service rooted at baseURL
// (e.g., "http://localhost:8000/gdd"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("wizard: baseURL must not be empty")
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		requestTimeout: 10 * time.Second,
		finishTimeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start creates a new wizard session and returns its identifier together
// with the first question.
func (c *Client) Start(ctx context.Context) (StepResult, error) {
	return c.step(ctx, "start", "/start", map[string]string{})
}

// Answer records an answer for the current question and returns the next
// question, or a done status once every question is answered.
func (c *Client) Answer(ctx context.Context, sessionID, answer string) (StepResult, error) {
	return c.step(ctx, "answer", "/answer", map[string]string{
		"session_id": sessionID,
		"answer":     answer,
	})
}

// Advance skips to the next question without recording an answer.
func (c *Client) Advance(ctx context.Context, sessionID string) (StepResult, error) {
	return c.step(ctx, "advance", "/next", map[string]string{
		"session_id": sessionID,
	})
}

// Finish compiles the collected answers into the generated document.
func (c *Client) Finish(ctx context.Context, sessionID string) (FinishResult, error) {
	var out FinishResult
	err := c.call(ctx, "finish", "/finish", map[string]string{"session_id": sessionID}, c.finishTimeout, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&out)
	})
	if err != nil {
		return FinishResult{}, err
	}
	return out, nil
}

// Export retrieves the generated document as a binary stream.
func (c *Client) Export(ctx context.Context, sessionID string) ([]byte, error) {
	var doc []byte
	err := c.call(ctx, "export", "/export", map[string]string{"session_id": sessionID}, c.requestTimeout, func(body io.Reader) error {
		var readErr error
		doc, readErr = io.ReadAll(body)
		return readErr
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) step(ctx context.Context, op, path string, payload map[string]string) (StepResult, error) {
	var out StepResult
	err := c.call(ctx, op, path, payload, c.requestTimeout, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&out)
	})
	if err != nil {
		return StepResult{}, err
	}
	return out, nil
}

// call performs one POST with the configured timeout, routing the response
// body through decode on 2xx and returning a *ServiceError otherwise. When a
// breaker is installed, the call is accounted against it. Every round trip
// records a span and a latency observation.
func (c *Client) call(ctx context.Context, op, path string, payload map[string]string, timeout time.Duration, decode func(io.Reader) error) (err error) {
	ctx, span := observe.StartSpan(ctx, "wizard."+op)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observe.DefaultMetrics().RecordWizardRequest(ctx, op, status, time.Since(start).Seconds())
	}()

	do := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("wizard: encode %s payload: %w", op, err)
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("wizard: build %s request: %w", op, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("wizard: %s: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &ServiceError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		}
		return decode(resp.Body)
	}

	if c.breaker != nil {
		return c.breaker.Execute(do)
	}
	return do()
}

// ExportFilename is the client-side name for an exported document.
func ExportFilename(sessionID string) string {
	return "GDD_" + sessionID + ".docx"
}
