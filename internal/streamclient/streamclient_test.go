package streamclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bestruirui/tollfree/internal/breaker"
	"github.com/bestruirui/tollfree/internal/errs"
	"github.com/bestruirui/tollfree/internal/retry"
)

func testRoute(url string) Route {
	return Route{Endpoint: url}
}

func TestStream_SingleModelSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := New()
	var mu sync.Mutex
	var chunks []string
	var result Result
	var gotComplete bool

	c.Stream(context.Background(), Request{
		Model: "test-model",
		Route: testRoute(srv.URL),
		OnChunk: func(s string) {
			mu.Lock()
			chunks = append(chunks, s)
			mu.Unlock()
		},
		OnComplete: func(r Result) {
			result = r
			gotComplete = true
		},
		OnError: func(e *errs.Error) {},
	})

	if !gotComplete {
		t.Fatalf("expected OnComplete to be called")
	}
	if result.Content != "hello" {
		t.Fatalf("got content %q, want %q", result.Content, "hello")
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
}

func TestStream_RetriesOn500ThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	policy := retry.New(3, time.Millisecond, 5*time.Millisecond)
	policy.Rand = func() float64 { return 0.5 }
	c := New(WithRetryPolicy(policy), WithBreaker(breaker.New()))

	var gotComplete bool
	c.Stream(context.Background(), Request{
		Model:      "test-model",
		Route:      testRoute(srv.URL),
		OnComplete: func(r Result) { gotComplete = true },
		OnError:    func(e *errs.Error) {},
	})

	if calls != 2 {
		t.Fatalf("got %d upstream calls, want 2", calls)
	}
	if !gotComplete {
		t.Fatalf("expected eventual success after retry")
	}
}

func TestStream_CircuitOpenShortCircuitsWithoutDispatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	now := time.Now()
	br := breaker.New(breaker.WithFailureThreshold(1), breaker.WithClock(func() time.Time { return now }))
	br.RecordFailure("test-model")

	c := New(WithBreaker(br))
	var gotCircuitError bool
	c.Stream(context.Background(), Request{
		Model: "test-model",
		Route: testRoute(srv.URL),
		OnError: func(e *errs.Error) {
			gotCircuitError = true
		},
	})

	if calls != 0 {
		t.Fatalf("expected no upstream dispatch while circuit open")
	}
	if !gotCircuitError {
		t.Fatalf("expected OnError to be invoked with circuit-open error")
	}
}
