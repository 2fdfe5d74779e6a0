package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
	"github.com/noah-isme/sma-timetable-engine/pkg/middleware/requestid"
)

// ErrContractViolation marks a solver reply that does not match the agreed schema.
var ErrContractViolation = errors.New("solver contract violation")

const maxResponseBytes = 32 << 20

// Observer receives call timings; MetricsService implements it.
type Observer interface {
	ObserveSolverCall(operation, outcome string, duration time.Duration)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	SchemaVersion string
}

// Client talks to the external timetable solver over HTTP.
type Client struct {
	cfg       Config
	http      *http.Client
	validator *validator.Validate
	observer  Observer
	logger    *zap.Logger
}

// NewClient constructs a solver client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, observer Observer, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "1"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, validator: validator.New(), observer: observer, logger: logger}
}

// SchemaVersion is the result schema this client accepts.
func (c *Client) SchemaVersion() string {
	return c.cfg.SchemaVersion
}

// Submit posts a generation request. Transport failures and non-2xx replies
// are reported as UpstreamUnavailable.
func (c *Client) Submit(ctx context.Context, req Request) (*SubmitResponse, error) {
	if req.SchemaVersion == "" {
		req.SchemaVersion = c.cfg.SchemaVersion
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode solver request: %w", err)
	}

	var out SubmitResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/generate-timetable", body, &out); err != nil {
		return nil, err
	}
	if err := c.validator.Struct(out); err != nil {
		return nil, upstream(fmt.Errorf("%w: submit reply: %v", ErrContractViolation, err), "timetable solver returned an invalid submission reply")
	}
	return &out, nil
}

// Status polls a solver job. For completed jobs the result is decoded and
// validated against the configured schema version; a mismatch returns the
// response together with an error wrapping ErrContractViolation.
func (c *Client) Status(ctx context.Context, solverJobID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, "status", http.MethodGet, "/job-status/"+url.PathEscape(solverJobID), nil, &out); err != nil {
		return nil, err
	}
	if err := c.validator.Struct(out); err != nil {
		return nil, upstream(fmt.Errorf("%w: status reply: %v", ErrContractViolation, err), "timetable solver returned an invalid status reply")
	}
	if out.Status != StatusCompleted {
		return &out, nil
	}

	result, err := c.decodeResult(out.RawResult)
	if err != nil {
		return &out, err
	}
	out.Result = result
	return &out, nil
}

// Cancel asks the solver to stop a job.
func (c *Client) Cancel(ctx context.Context, solverJobID string) error {
	return c.do(ctx, "cancel", http.MethodPost, "/cancel/"+url.PathEscape(solverJobID), nil, nil)
}

func (c *Client) decodeResult(raw json.RawMessage) (*Result, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: completed job has no result", ErrContractViolation)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var result Result
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", ErrContractViolation, err)
	}
	if err := c.validator.Struct(result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	if result.SchemaVersion != c.cfg.SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %q, want %q", ErrContractViolation, result.SchemaVersion, c.cfg.SchemaVersion)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build solver request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.observe(operation, "transport_error", duration)
		c.logger.Warn("solver unreachable", zap.String("operation", operation), zap.Error(err))
		return upstream(err, "")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.observe(operation, "read_error", duration)
		return upstream(fmt.Errorf("read solver response: %w", err), "")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(operation, fmt.Sprintf("http_%d", resp.StatusCode), duration)
		c.logger.Warn("solver returned non-2xx",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(payload, 512)))
		return upstream(fmt.Errorf("solver %s returned status %d", operation, resp.StatusCode), "")
	}
	c.observe(operation, "ok", duration)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return upstream(fmt.Errorf("%w: decode %s reply: %v", ErrContractViolation, operation, err), "timetable solver returned malformed JSON")
	}
	return nil
}

func (c *Client) observe(operation, outcome string, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveSolverCall(operation, outcome, d)
	}
}

func upstream(err error, message string) *appErrors.Error {
	if message == "" {
		message = appErrors.ErrUpstreamUnavailable.Message
	}
	return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, message)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
