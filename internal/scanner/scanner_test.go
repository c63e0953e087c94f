package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchOpenRouter_FiltersFreeModelsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "meta-llama/llama-3:free", "name": "Llama 3", "pricing": map[string]any{"prompt": "0", "completion": "0"}},
				{"id": "openai/gpt-4", "name": "GPT-4", "pricing": map[string]any{"prompt": "0.03", "completion": "0.06"}},
				{"id": "half/free", "name": "Half Free", "pricing": map[string]any{"prompt": "0", "completion": "0.01"}},
			},
		})
	}))
	defer srv.Close()

	s := New(WithOpenRouterEndpoint(srv.URL))
	models, err := s.fetchOpenRouter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("got %d free models, want 1", len(models))
	}
	if models[0].ID != "openrouter/meta-llama/llama-3:free" {
		t.Fatalf("got id %q", models[0].ID)
	}
}

func TestFetchOpenRouter_HandlesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(WithOpenRouterEndpoint(srv.URL))
	_, err := s.fetchOpenRouter(context.Background())
	if err == nil {
		t.Fatalf("expected error on 500 response")
	}
}

func TestRefresh_RetainsPreviousCacheOnFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"id": "a:free", "name": "A", "pricing": map[string]any{"prompt": "0", "completion": "0"}},
				},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(WithOpenRouterEndpoint(srv.URL), WithOllamaEndpoint(srv.URL+"/none"), WithOpenCodeZenEndpoint(srv.URL+"/none"))
	s.Refresh(context.Background(), true)
	first := s.List(context.Background())
	if len(first) == 0 {
		t.Fatalf("expected at least one model after first successful fetch")
	}

	s.Refresh(context.Background(), true)
	second := s.List(context.Background())
	if len(second) != len(first) {
		t.Fatalf("expected cache retained on failed refresh, got %d want %d", len(second), len(first))
	}
}

func TestList_OrderedBySourcePriorityThenName(t *testing.T) {
	s := New()
	s.ollama.replace([]Model{
		{ID: "ollama/z", DisplayName: "z", Source: SourceOllama, IsFree: true},
		{ID: "ollama/a", DisplayName: "a", Source: SourceOllama, IsFree: true},
	}, s.now(), nil)
	s.openRouter.replace([]Model{
		{ID: "openrouter/b", DisplayName: "b", Source: SourceOpenRouter, IsFree: true},
	}, s.now(), nil)
	// Mark open_code_zen fresh and empty so List does not add its built-in models.
	s.openCodeZen.replace([]Model{}, s.now(), nil)

	list := s.List(context.Background())
	if len(list) != 3 {
		t.Fatalf("got %d models, want 3", len(list))
	}
	if list[0].DisplayName != "a" || list[1].DisplayName != "z" || list[2].DisplayName != "b" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestCanonicalDisplayName_StripsVendorAndFreeSuffix(t *testing.T) {
	got := canonicalDisplayName("meta-llama/Llama-3:free")
	if got != "llama-3" {
		t.Fatalf("got %q, want %q", got, "llama-3")
	}
}

func TestGrouped_CollapsesAcrossSources(t *testing.T) {
	s := New()
	s.openCodeZen.replace([]Model{
		{ID: "open_code_zen/glm-4.6-free", DisplayName: "glm-4.6-free", Source: SourceOpenCodeZen, IsFree: true},
	}, s.now(), nil)
	s.openRouter.replace([]Model{
		{ID: "openrouter/z/glm-4.6:free", DisplayName: "glm-4.6:free", Source: SourceOpenRouter, IsFree: true},
	}, s.now(), nil)

	grouped := s.Grouped(context.Background())
	if len(grouped) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(grouped), grouped)
	}
	if len(grouped[0].Providers) != 2 {
		t.Fatalf("got %d providers, want 2", len(grouped[0].Providers))
	}
	if grouped[0].Providers[0].Source != SourceOpenCodeZen {
		t.Fatalf("expected open_code_zen first, got %v", grouped[0].Providers[0].Source)
	}
}
