// Package execution talks to the remote code-execution backend.
//
// The backend exposes one endpoint per language, POST <base>/run/<language>,
// accepting {"code", "input"} and answering with one of {"stdout"},
// {"stderr"} or {"error"}. Client.Run never returns a Go error: every outcome,
// including transport failures, is classified into a Result.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 8 << 20

// Client sends run requests to the execution backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (http.DefaultClient by default).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every run. Zero disables the client-side deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger (slog.Default() by default).
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the backend rooted at baseURL (e.g. "http://localhost:5000").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type runPayload struct {
	Code  string `json:"code"`
	Input string `json:"input"`
}

// Run executes req against the backend and classifies the response.
func (c *Client) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	c.logger.Debug("Sending run request", "runID", req.ID, "language", req.LanguageID, "sourceLen", len(req.Source))

	res := c.run(ctx, req)
	res.Duration = time.Since(start)

	c.logger.Info("Run finished", "runID", req.ID, "language", req.LanguageID, "kind", res.Kind, "duration", res.Duration)
	return res
}

func (c *Client) endpoint(languageID string) string {
	return c.baseURL + "/run/" + url.PathEscape(languageID)
}

func (c *Client) run(ctx context.Context, req Request) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(runPayload{Code: req.Source, Input: req.Stdin})
	if err != nil {
		return ServiceError(fmt.Sprintf("encoding request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(req.LanguageID), bytes.NewReader(body))
	if err != nil {
		return ServiceError(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return transportFailure(err)
	}
	if len(data) > maxResponseBytes {
		c.logger.Warn("Execution backend response too large", "runID", req.ID, "limit", maxResponseBytes)
		return ServiceError(fmt.Sprintf("response exceeds %d bytes", maxResponseBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Execution backend returned non-2xx", "runID", req.ID, "status", resp.StatusCode)
		return ServiceError(statusMessage(resp.Status, data))
	}

	return Classify(data)
}

func transportFailure(err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout()
	}
	return ServiceError(err.Error())
}

func statusMessage(status string, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Sprintf("%s: %s", status, payload.Error)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Sprintf("%s: %s", status, text)
	}
	return status
}

// Classify maps a 2xx response body onto exactly one Result kind:
// a non-empty "stderr" is a runtime error, otherwise a non-empty "error" is a
// service error, otherwise any "stdout" field is a success. A null stdout is
// empty output and other non-string values are kept as their JSON text.
// Anything else, including a body that is not a JSON object, is unrecognized.
func Classify(body []byte) Result {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return Unrecognized("response is not a JSON object")
	}

	if stderr, ok := fields["stderr"].(string); ok && stderr != "" {
		return RuntimeError(stderr)
	}
	if msg, ok := errorText(fields["error"]); ok {
		return ServiceError(msg)
	}
	if stdout, ok := fields["stdout"]; ok {
		return Success(outputText(stdout))
	}
	return Unrecognized("response has no stdout, stderr or error field")
}

func errorText(v any) (string, bool) {
	switch e := v.(type) {
	case nil:
		return "", false
	case string:
		return e, e != ""
	case bool:
		return "error", e
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e), true
		}
		return string(b), true
	}
}

func outputText(v any) string {
	switch o := v.(type) {
	case nil:
		return ""
	case string:
		return o
	default:
		b, err := json.Marshal(o)
		if err != nil {
			return fmt.Sprint(o)
		}
		return string(b)
	}
}
