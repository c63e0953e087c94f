// Package streamclient implements the Streaming Client (C7): a single
// upstream streaming call wrapped with circuit breaking, retry, telemetry,
// and SSE framing.
package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bestruirui/tollfree/internal/breaker"
	"github.com/bestruirui/tollfree/internal/client"
	"github.com/bestruirui/tollfree/internal/errs"
	"github.com/bestruirui/tollfree/internal/retry"
	"github.com/bestruirui/tollfree/internal/sse"
	"github.com/bestruirui/tollfree/internal/telemetry"
)

const (
	defaultTotalTimeout = 120 * time.Second
	defaultIdleTimeout  = 30 * time.Second
)

// Message is one chat turn in the OpenAI request shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Route describes how to reach one source: its chat-completions endpoint
// and how to authenticate against it.
type Route struct {
	Endpoint    string
	AuthHeader  string // e.g. "Authorization"; empty means no credential header
	AuthValue   string // e.g. "Bearer sk-..."
	StripPrefix string // provider prefix to strip from model before forwarding, e.g. "openrouter/"
}

// Request is one Streaming Client invocation.
type Request struct {
	RequestID string
	Model     string
	Route     Route
	Messages  []Message

	OnChunk    func(content string)
	OnComplete func(result Result)
	OnError    func(err *errs.Error)

	// Done is closed to broadcast cancellation.
	Done <-chan struct{}
}

// Result is delivered to OnComplete on a successful terminal stream.
type Result struct {
	Content string
	TTFT    time.Duration
	Total   time.Duration
}

// Client wires together the resilience pipeline shared by every upstream
// call.
type Client struct {
	httpClient   *http.Client
	breaker      *breaker.Breaker
	retry        *retry.Policy
	telemetry    *telemetry.Logger
	now          func() time.Time
	totalTimeout time.Duration
	idleTimeout  time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTotalTimeout bounds one attempt's end-to-end duration (default
// 120s). Zero leaves the default in place.
func WithTotalTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.totalTimeout = d
		}
	}
}

// WithIdleTimeout bounds the gap between consecutive SSE chunks
// (default 30s). A stall longer than this produces a retryable
// NetworkError. Zero leaves the default in place.
func WithIdleTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.idleTimeout = d
		}
	}
}

func WithBreaker(b *breaker.Breaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

func WithRetryPolicy(p *retry.Policy) Option {
	return func(cl *Client) { cl.retry = p }
}

func WithTelemetry(t *telemetry.Logger) Option {
	return func(cl *Client) { cl.telemetry = t }
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func New(opts ...Option) *Client {
	c := &Client{
		breaker:      breaker.New(),
		retry:        retry.Default(),
		now:          time.Now,
		totalTimeout: defaultTotalTimeout,
		idleTimeout:  defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resolveHTTPClient picks the transport for this attempt: an explicit
// override from WithHTTPClient if one was supplied, otherwise the
// system's current proxy_url setting (falling back to direct). Resolved
// fresh per attempt so a PUT /api/settings proxy change takes effect on
// the next call without restarting.
func (c *Client) resolveHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	hc, err := client.GetHTTPClientSystemProxy(true)
	if err != nil {
		hc, err = client.GetHTTPClientSystemProxy(false)
	}
	if err != nil {
		return &http.Client{Timeout: c.totalTimeout}
	}
	return &http.Client{Transport: hc.Transport, Timeout: c.totalTimeout}
}

type chatRequestBody struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Stream runs the attempt loop described by the resilience pipeline:
// breaker guard, HTTP dispatch, SSE framing, retry-on-failure, telemetry
// on every success, failed attempt and circuit rejection. Aborts are not
// logged to telemetry.
func (c *Client) Stream(ctx context.Context, req Request) {
	if err := c.breaker.Guard(req.Model); err != nil {
		c.logError(req.Model, 0, err)
		if req.OnError != nil {
			req.OnError(err)
		}
		return
	}

	for attempt := 1; ; attempt++ {
		started := c.now()
		result, err := c.attempt(ctx, req, attempt, started)
		if err == nil {
			result.Total = c.now().Sub(started)
			if req.OnComplete != nil {
				req.OnComplete(result)
			}
			return
		}

		if err.Kind == errs.KindAbort {
			// Cancellation: do not count as failure, no retry.
			if req.OnError != nil {
				req.OnError(err)
			}
			return
		}

		c.logError(req.Model, attempt, err)
		if breaker.CountsAsFailure(err) {
			c.breaker.RecordFailure(req.Model)
		}

		if !c.retry.ShouldRetry(err, attempt) {
			if req.OnError != nil {
				req.OnError(err)
			}
			return
		}

		delay := c.retry.Delay(attempt)
		if !retry.Sleep(delay, req.Done) {
			if req.OnError != nil {
				req.OnError(errs.Abort("cancelled during retry backoff"))
			}
			return
		}
	}
}

// attempt runs one HTTP POST + SSE-framed read; it returns the
// accumulated content on success or a classified *errs.Error otherwise.
func (c *Client) attempt(ctx context.Context, req Request, attemptNumber int, started time.Time) (Result, *errs.Error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return Result{}, errs.Network(err.Error())
	}

	resp, err := c.resolveHTTPClient().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, errs.Abort("request cancelled")
		}
		return Result{}, errs.Network(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if resp.StatusCode == http.StatusTooManyRequests {
			return Result{}, errs.RateLimit(req.Model, msg, retryAfterFromHeader(resp.Header))
		}
		return Result{}, errs.Upstream(req.Model, resp.StatusCode, msg)
	}

	return c.readStream(req, attemptNumber, started, resp.Body)
}

func (c *Client) readStream(req Request, attemptNumber int, started time.Time, body io.Reader) (Result, *errs.Error) {
	var content strings.Builder
	var firstChunk time.Time
	var streamErr *errs.Error
	done := false

	framer := sse.New(
		func(chunk string) {
			if firstChunk.IsZero() {
				firstChunk = c.now()
			}
			content.WriteString(chunk)
			if req.OnChunk != nil {
				req.OnChunk(chunk)
			}
		},
		func() { done = true },
		func(msg string) { streamErr = errs.Upstream(req.Model, 0, msg) },
	)

	type readOutcome struct {
		n   int
		err error
	}

readLoop:
	for !done && streamErr == nil {
		select {
		case <-req.Done:
			return Result{}, errs.Abort("stream cancelled by client")
		default:
		}

		buf := make([]byte, 4096)
		readCh := make(chan readOutcome, 1)
		go func() {
			n, err := body.Read(buf)
			readCh <- readOutcome{n, err}
		}()

		select {
		case <-req.Done:
			return Result{}, errs.Abort("stream cancelled by client")
		case <-time.After(c.idleTimeout):
			return Result{}, errs.Network(fmt.Sprintf("no data received for %s", c.idleTimeout))
		case out := <-readCh:
			if out.n > 0 {
				framer.Feed(buf[:out.n])
			}
			if out.err != nil {
				if out.err == io.EOF {
					framer.End()
					break readLoop
				}
				return Result{}, errs.Network(out.err.Error())
			}
		}
	}

	if streamErr != nil {
		return Result{}, streamErr
	}

	var ttft time.Duration
	if !firstChunk.IsZero() {
		ttft = firstChunk.Sub(started)
	}
	if c.telemetry != nil {
		c.telemetry.Log(telemetry.StreamingSuccess(req.Model, attemptNumber, ttft, c.now().Sub(started)))
	}
	c.breaker.RecordSuccess(req.Model)
	return Result{Content: content.String(), TTFT: ttft}, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	model := strings.TrimPrefix(req.Model, req.Route.StripPrefix)
	body := chatRequestBody{Model: model, Messages: req.Messages, Stream: true}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Route.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.Route.AuthHeader != "" && req.Route.AuthValue != "" {
		httpReq.Header.Set(req.Route.AuthHeader, req.Route.AuthValue)
	}
	return httpReq, nil
}

func (c *Client) logError(model string, attemptNumber int, err *errs.Error) {
	if c.telemetry == nil {
		return
	}
	errJSON, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		errJSON = []byte(`{}`)
	}
	c.telemetry.Log(telemetry.StreamingError(model, attemptNumber, errJSON))
}

func retryAfterFromHeader(h http.Header) *time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return nil
	}
	secs, err := time.ParseDuration(v + "s")
	if err != nil {
		return nil
	}
	return &secs
}
