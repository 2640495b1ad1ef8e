// Package transport is the REST client for the agent workflow backend. It
// lists and creates threads and messages and does nothing else: no state, no
// caching and no retries. Every failure is returned as a *TransportError.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roasbeef/threadsync/internal/metrics"
	"github.com/roasbeef/threadsync/internal/thread"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "threadsync/1"

	// maxErrorBody is how much of an error response body is kept.
	maxErrorBody = 2048

	// requestIDHeader carries a per-request id for server side tracing.
	requestIDHeader = "X-Request-ID"
)

// Operation names used in errors, logs and metrics.
const (
	OpListThreads  = "list_threads"
	OpListMessages = "list_messages"
	OpSendMessage  = "send_message"
	OpCreateThread = "create_thread"
	OpGetThread    = "get_thread"
)

// Config holds the transport settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://agents.example.com/api".
	BaseURL string

	// Timeout bounds each HTTP round trip. Zero means DefaultTimeout.
	Timeout time.Duration

	// RequestsPerSecond enables a client side rate limit when positive.
	RequestsPerSecond float64

	// Burst is the limiter burst size, at least 1 when the limit is on.
	Burst int

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// Headers are added to every request.
	Headers map[string]string
}

// DefaultConfig returns a Config with default timeout and no rate limit.
func DefaultConfig() Config {
	return Config{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRecorder reports every call to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		c.recorder = metrics.OrNoop(r)
	}
}

// Client talks to the backend over HTTP and JSON.
type Client struct {
	baseURL    *url.URL
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   metrics.Recorder
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, ErrEmptyBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", raw)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &Client{
		baseURL:    base,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		recorder:   metrics.Noop{},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(
			rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1),
		)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ListThreads returns the threads of a workflow.
func (c *Client) ListThreads(ctx context.Context,
	workflowID string) ([]thread.Thread, error) {

	if workflowID == "" {
		return nil, c.fail(OpListThreads, ErrEmptyID)
	}

	var threads []thread.Thread
	err := c.do(
		ctx, OpListThreads, http.MethodGet,
		[]string{"workflows", workflowID, "threads"}, nil, nil,
		&threads,
	)
	if err != nil {
		return nil, err
	}

	return threads, nil
}

// ListMessages returns one page of a thread's messages. The backend answers
// with a bare array; a page shorter than pageSize is the only end-of-data
// signal.
func (c *Client) ListMessages(ctx context.Context, threadID string,
	page, pageSize int) ([]thread.Message, error) {

	if threadID == "" {
		return nil, c.fail(OpListMessages, ErrEmptyID)
	}
	if page < 1 || pageSize < 1 {
		return nil, c.fail(OpListMessages, fmt.Errorf(
			"%w: page=%d pageSize=%d", ErrInvalidPage, page,
			pageSize,
		))
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))

	var msgs []thread.Message
	err := c.do(
		ctx, OpListMessages, http.MethodGet,
		[]string{"threads", threadID, "messages"}, query, nil, &msgs,
	)
	if err != nil {
		return nil, err
	}

	return msgs, nil
}

// SendMessage posts a message to a thread and returns the stored message.
func (c *Client) SendMessage(ctx context.Context, threadID string,
	payload thread.SendPayload) (thread.Message, error) {

	if threadID == "" {
		return thread.Message{}, c.fail(OpSendMessage, ErrEmptyID)
	}
	if payload.Direction == "" {
		payload.Direction = thread.DirectionIncoming
	}

	var msg thread.Message
	err := c.do(
		ctx, OpSendMessage, http.MethodPost,
		[]string{"threads", threadID, "messages"}, nil, payload, &msg,
	)
	if err != nil {
		return thread.Message{}, err
	}

	return msg, nil
}

// CreateThread creates a thread under a workflow.
func (c *Client) CreateThread(ctx context.Context, workflowID string,
	payload thread.CreatePayload) (thread.Thread, error) {

	if workflowID == "" {
		return thread.Thread{}, c.fail(OpCreateThread, ErrEmptyID)
	}

	var th thread.Thread
	err := c.do(
		ctx, OpCreateThread, http.MethodPost,
		[]string{"workflows", workflowID, "threads"}, nil, payload,
		&th,
	)
	if err != nil {
		return thread.Thread{}, err
	}

	return th, nil
}

// GetThread fetches a single thread.
func (c *Client) GetThread(ctx context.Context,
	threadID string) (thread.Thread, error) {

	if threadID == "" {
		return thread.Thread{}, c.fail(OpGetThread, ErrEmptyID)
	}

	var th thread.Thread
	err := c.do(
		ctx, OpGetThread, http.MethodGet, []string{"threads", threadID},
		nil, nil, &th,
	)
	if err != nil {
		return thread.Thread{}, err
	}

	return th, nil
}

// fail wraps a validation error without touching the network.
func (c *Client) fail(op string, err error) error {
	return &TransportError{Op: op, Cause: err}
}

// endpoint joins the escaped path segments onto the base URL.
func (c *Client) endpoint(segments []string, query url.Values) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	u := c.baseURL.JoinPath(escaped...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

// do performs one JSON round trip and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method string,
	segments []string, query url.Values, body, out any) (err error) {

	start := time.Now()
	defer func() {
		c.recorder.ObserveRequest(op, time.Since(start), err)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Op: op, Cause: err}
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &TransportError{
				Op: op, Cause: fmt.Errorf("encode body: %w", err),
			}
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.endpoint(segments, query)
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &TransportError{Op: op, Cause: err}
	}

	requestID := newRequestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	log.TraceS(ctx, "Sending request", "op", op, "method", method,
		"url", target, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.DebugS(ctx, "Request failed", "op", op,
			"request_id", requestID, "err", err)

		return &TransportError{Op: op, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		log.DebugS(ctx, "Request rejected", "op", op,
			"request_id", requestID, "status", resp.StatusCode)

		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Cause: &StatusError{
				Status: resp.Status,
				Body:   strings.TrimSpace(string(snippet)),
			},
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("decode response: %w", err),
		}
	}

	log.DebugS(ctx, "Request complete", "op", op,
		"request_id", requestID, "elapsed", time.Since(start))

	return nil
}

// newRequestID returns a time ordered id, falling back to a random one.
func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}

	return id.String()
}
