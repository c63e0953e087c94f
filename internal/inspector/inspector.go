// Package inspector implements the Transaction Inspector (C10): a
// bounded ring buffer of captured Upstream Call transactions, exported
// as a HAR 1.2 document, with credential-redacted headers.
package inspector

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultMaxTransactions = 1000

var redactedHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
}

// TokenCounts is the per-transaction token accounting, when known.
type TokenCounts struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}

// Transaction is one captured Upstream Call.
type Transaction struct {
	StartedAt           time.Time     `json:"started_at"`
	EndedAt             time.Time     `json:"ended_at"`
	TTFB                time.Duration `json:"ttfb_ms"`
	RequestMethod       string        `json:"request_method"`
	RequestURL          string        `json:"request_url"`
	RequestHeaders      http.Header   `json:"request_headers"`
	ResponseStatus      int           `json:"response_status"`
	ResponseHeaders     http.Header   `json:"response_headers"`
	ResponseBodySnippet string        `json:"response_body_snippet"`
	TokenCounts         TokenCounts   `json:"token_counts"`
}

// Inspector is the bounded capture buffer. It is safe for concurrent use.
type Inspector struct {
	mu      sync.Mutex
	buf     []Transaction
	max     int
	enabled atomic.Bool
}

type Option func(*Inspector)

func WithMaxTransactions(n int) Option {
	return func(i *Inspector) {
		if n > 0 {
			i.max = n
		}
	}
}

// WithEnabled sets the initial opt-in state.
func WithEnabled(v bool) Option {
	return func(i *Inspector) { i.enabled.Store(v) }
}

func New(opts ...Option) *Inspector {
	i := &Inspector{max: DefaultMaxTransactions}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Enabled reports whether capture is currently on. Callers should check
// this before building a Transaction, so the disabled-path cost is a
// single boolean load.
func (i *Inspector) Enabled() bool {
	return i.enabled.Load()
}

func (i *Inspector) SetEnabled(v bool) {
	i.enabled.Store(v)
}

// Record appends a transaction, evicting the oldest entry first if the
// buffer is at capacity. Headers are redacted before storage, not at
// export time, so raw credentials never touch the buffer.
func (i *Inspector) Record(tx Transaction) {
	tx.RequestHeaders = redact(tx.RequestHeaders)
	tx.ResponseHeaders = redact(tx.ResponseHeaders)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.buf = append(i.buf, tx)
	if len(i.buf) > i.max {
		i.buf = i.buf[len(i.buf)-i.max:]
	}
}

// Clear empties the buffer.
func (i *Inspector) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.buf = nil
}

// Snapshot returns a copy of the current buffer contents, oldest first.
func (i *Inspector) Snapshot() []Transaction {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Transaction, len(i.buf))
	copy(out, i.buf)
	return out
}

func redact(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := make(http.Header, len(h))
	for k, v := range h {
		if redactedHeaders[normalizeHeaderKey(k)] {
			out[k] = []string{"[redacted]"}
			continue
		}
		out[k] = v
	}
	return out
}

func normalizeHeaderKey(k string) string {
	b := []byte(k)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
