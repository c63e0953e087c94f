// Package telemetry implements the batched, fire-and-forget structured
// event queue: Log never blocks or interrupts the caller's flow, and a
// failed or absent sink is absorbed silently.
package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/bestruirui/tollfree/internal/utils/log"
)

const (
	EventStreamingSuccess = "streaming_success"
	EventStreamingError   = "streaming_error"
	EventSpendingWarning  = "spending_warning"

	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxQueueLen   = 1000
)

// Event is the serializable record shipped to the configured sink. It
// never carries raw message content.
type Event struct {
	Type          string          `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	AppVersion    string          `json:"app_version"`
	Platform      string          `json:"platform"`
	Model         string          `json:"model,omitempty"`
	AttemptNumber int             `json:"attempt_number,omitempty"`
	TTFTMs        int64           `json:"ttft_ms,omitempty"`
	TotalMs       int64           `json:"total_ms,omitempty"`
	ErrorJSON     json.RawMessage `json:"error_json,omitempty"`
	Window        string          `json:"window,omitempty"`
	Percent       float64         `json:"percent,omitempty"`
}

// Sink ships a drained batch somewhere. A nil sink (or one that always
// errors) results in events being dropped, which is an accepted
// local-only deployment mode.
type Sink func(batch []Event) error

// Logger is the bounded in-memory queue described above.
type Logger struct {
	mu    sync.Mutex
	queue []Event

	batchSize     int
	maxQueueLen   int
	flushInterval time.Duration
	sink          Sink
	appVersion    string
	platform      string

	stop chan struct{}
	done chan struct{}
}

type Option func(*Logger)

func WithBatchSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.flushInterval = d
		}
	}
}

// WithMaxQueueLen bounds the queue Log can grow to between flushes. Once
// full, the oldest queued events are dropped to make room for new ones.
func WithMaxQueueLen(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.maxQueueLen = n
		}
	}
}

func WithAppVersion(v string) Option {
	return func(l *Logger) { l.appVersion = v }
}

func WithPlatform(p string) Option {
	return func(l *Logger) { l.platform = p }
}

// New constructs a Logger and starts its periodic flush timer. sink may
// be nil, in which case drained batches are dropped.
func New(sink Sink, opts ...Option) *Logger {
	l := &Logger{
		batchSize:     DefaultBatchSize,
		maxQueueLen:   DefaultMaxQueueLen,
		flushInterval: DefaultFlushInterval,
		sink:          sink,
		platform:      "gateway",
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l
}

// Log enqueues an event without blocking the caller. Fields other than
// Type and the payload-specific ones are filled in here. If a burst
// between flushes grows the queue past maxQueueLen, the oldest events
// are dropped to keep it bounded — this is telemetry, not the ledger,
// so losing old events under sustained load is preferable to unbounded
// growth.
func (l *Logger) Log(e Event) {
	e.Timestamp = time.Now()
	e.AppVersion = l.appVersion
	e.Platform = l.platform

	l.mu.Lock()
	l.queue = append(l.queue, e)
	if over := len(l.queue) - l.maxQueueLen; over > 0 {
		l.queue = l.queue[over:]
	}
	shouldFlush := len(l.queue) >= l.batchSize
	l.mu.Unlock()

	if shouldFlush {
		go l.Flush()
	}
}

// Flush drains the queue and ships it via the sink, outside the lock.
// Errors are absorbed silently. Ordering across batches is not
// guaranteed, only within a batch.
func (l *Logger) Flush() {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	if l.sink == nil {
		return
	}
	if err := l.sink(batch); err != nil {
		log.Debugf("telemetry flush failed, dropping %d events: %v", len(batch), err)
	}
}

func (l *Logger) run() {
	defer close(l.done)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.stop:
			l.Flush()
			return
		}
	}
}

// Close stops the flush timer and performs one final flush. It implements
// the shutdown.Register closer signature.
func (l *Logger) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

// StreamingSuccess builds the C7/C8 success event shape.
func StreamingSuccess(model string, attemptNumber int, ttft, total time.Duration) Event {
	return Event{
		Type:          EventStreamingSuccess,
		Model:         model,
		AttemptNumber: attemptNumber,
		TTFTMs:        ttft.Milliseconds(),
		TotalMs:       total.Milliseconds(),
	}
}

// StreamingError builds the C7/C8 error event shape.
func StreamingError(model string, attemptNumber int, errJSON []byte) Event {
	return Event{
		Type:          EventStreamingError,
		Model:         model,
		AttemptNumber: attemptNumber,
		ErrorJSON:     json.RawMessage(errJSON),
	}
}

// SpendingWarning builds the C9 warn-at-percent event shape.
func SpendingWarning(window string, percent float64) Event {
	return Event{
		Type:    EventSpendingWarning,
		Window:  window,
		Percent: percent,
	}
}
