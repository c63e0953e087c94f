package fanout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bestruirui/tollfree/internal/breaker"
	"github.com/bestruirui/tollfree/internal/ledger"
	"github.com/bestruirui/tollfree/internal/retry"
	"github.com/bestruirui/tollfree/internal/scanner"
	"github.com/bestruirui/tollfree/internal/streamclient"
)

type zeroEstimator struct{}

func (zeroEstimator) EstimateCost(ctx context.Context, modelID string, promptTokens, completionTokens int) float64 {
	return 0
}

func newTestRouter(t *testing.T, srvURL string) (*Router, *scanner.Scanner) {
	ollamaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"a"},{"name":"b"}]}`))
	}))
	t.Cleanup(ollamaSrv.Close)
	emptySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(emptySrv.Close)

	sc := scanner.New(
		scanner.WithOllamaEndpoint(ollamaSrv.URL),
		scanner.WithOpenCodeZenEndpoint(emptySrv.URL),
		scanner.WithOpenRouterEndpoint(emptySrv.URL),
	)

	// Single attempt: an upstream failure stays a failure instead of being retried away.
	cl := streamclient.New(
		streamclient.WithBreaker(breaker.New()),
		streamclient.WithRetryPolicy(retry.New(1, time.Millisecond, time.Millisecond)),
	)
	lg := ledger.New(ledger.WithDailyCap(1000), ledger.WithMonthlyCap(1000))

	resolve := func(m scanner.Model) streamclient.Route {
		return streamclient.Route{Endpoint: srvURL}
	}
	return New(sc, cl, lg, zeroEstimator{}, resolve), sc
}

func TestValidate_RejectsEmptySelection(t *testing.T) {
	r, _ := newTestRouter(t, "http://unused")
	err := r.Validate(context.Background(), ClientCall{ModelSelection: nil})
	if err == nil {
		t.Fatalf("expected rejection of empty model_selection")
	}
}

func TestValidate_RejectsDuplicates(t *testing.T) {
	r, _ := newTestRouter(t, "http://unused")
	err := r.Validate(context.Background(), ClientCall{ModelSelection: []string{"ollama/a", "ollama/a"}})
	if err == nil {
		t.Fatalf("expected rejection of duplicate model_selection")
	}
}

func TestValidate_RejectsUnknownModel(t *testing.T) {
	r, _ := newTestRouter(t, "http://unused")
	err := r.Validate(context.Background(), ClientCall{ModelSelection: []string{"ollama/nonexistent"}})
	if err == nil {
		t.Fatalf("expected rejection of unlisted model")
	}
}

func TestDispatch_PartialFailureStillSucceedsOverall(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	r, _ := newTestRouter(t, srv.URL)

	var records []ModelRecord
	var recMu sync.Mutex
	err := r.Dispatch(context.Background(), ClientCall{
		ModelSelection: []string{"ollama/a", "ollama/b"},
		OnModelDone: func(rec ModelRecord) {
			recMu.Lock()
			records = append(records, rec)
			recMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("expected overall success with >=1 child succeeding, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestDispatch_AllFailuresReturnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, _ := newTestRouter(t, srv.URL)
	err := r.Dispatch(context.Background(), ClientCall{
		ModelSelection: []string{"ollama/a"},
		OnModelDone:    func(rec ModelRecord) {},
	})
	if err == nil {
		t.Fatalf("expected overall failure when every child fails")
	}
}
