package cost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTable_RefreshAndEstimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"openai": map[string]any{
				"models": map[string]any{
					"gpt-4": map[string]any{
						"id":   "gpt-4",
						"cost": map[string]any{"input": 30.0, "output": 60.0},
					},
				},
			},
		})
	}))
	defer srv.Close()

	tbl := New(WithURL(srv.URL))
	if err := tbl.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := tbl.EstimateCost(context.Background(), "openrouter/gpt-4", 1_000_000, 1_000_000)
	want := 30.0 + 60.0
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTable_UnknownModelReturnsMinCost(t *testing.T) {
	tbl := New()
	got := tbl.EstimateCost(context.Background(), "ollama/unknown-model", 100, 100)
	if got != MinCost {
		t.Fatalf("got %v, want %v", got, MinCost)
	}
}

func TestTable_RetainsTableOnFailedRefresh(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"openai": map[string]any{
					"models": map[string]any{
						"gpt-4": map[string]any{"id": "gpt-4", "cost": map[string]any{"input": 1.0, "output": 1.0}},
					},
				},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tbl := New(WithURL(srv.URL))
	if err := tbl.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error on first refresh: %v", err)
	}
	if err := tbl.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error on second refresh")
	}

	got := tbl.EstimateCost(context.Background(), "gpt-4", 1_000_000, 0)
	if got != 1.0 {
		t.Fatalf("expected table retained after failed refresh, got %v", got)
	}
}

func TestBareModelID_StripsSourcePrefix(t *testing.T) {
	if got := bareModelID("openrouter/meta-llama/llama-3"); got != "meta-llama/llama-3" {
		t.Fatalf("got %q", got)
	}
	if got := bareModelID("gpt-4"); got != "gpt-4" {
		t.Fatalf("got %q", got)
	}
}
