// Package scanner implements the free-model catalog: it polls three
// upstream source adapters, filters for zero-cost models, caches each
// source independently with a TTL, and exposes a unified listing.
package scanner

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bestruirui/tollfree/internal/utils/log"
	"github.com/samber/lo"
)

// Source identifies one of the three fixed catalog adapters.
type Source string

const (
	SourceOllama      Source = "ollama"
	SourceOpenCodeZen Source = "open_code_zen"
	SourceOpenRouter  Source = "openrouter"
)

// priority implements the flat-listing sort order: ollama < open_code_zen
// < openrouter.
func (s Source) priority() int {
	switch s {
	case SourceOllama:
		return 0
	case SourceOpenCodeZen:
		return 1
	case SourceOpenRouter:
		return 2
	default:
		return 99
	}
}

const DefaultTTL = 300 * time.Second

// Model is a discovered free model descriptor.
type Model struct {
	ID           string
	DisplayName  string
	Source       Source
	Capabilities []string
	IsFree       bool
	DiscoveredAt time.Time
	// Configured reports whether this source has the credential it needs
	// to actually be used (always true for ollama).
	Configured bool
}

type sourceState struct {
	mu        sync.RWMutex
	models    []Model
	fetchedAt time.Time
	lastErr   error
}

func (s *sourceState) snapshot() ([]Model, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models, s.fetchedAt
}

func (s *sourceState) stale(ttl time.Duration, now time.Time) bool {
	_, fetchedAt := s.snapshot()
	return fetchedAt.IsZero() || now.Sub(fetchedAt) > ttl
}

// replace swaps the snapshot atomically on a successful fetch, or retains
// the previous snapshot (only recording the error) on failure.
func (s *sourceState) replace(models []Model, fetchedAt time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		return
	}
	s.models = models
	s.fetchedAt = fetchedAt
	s.lastErr = nil
}

type fetchFunc func(ctx context.Context) ([]Model, error)

// Scanner maintains the three source caches and merges them into one
// catalog.
type Scanner struct {
	ttl        time.Duration
	httpClient *http.Client
	now        func() time.Time

	ollamaEndpoint      string
	openCodeZenEndpoint string
	openCodeZenAPIKey   string
	openRouterEndpoint  string
	openRouterAPIKey    string

	ollama      sourceState
	openCodeZen sourceState
	openRouter  sourceState
}

type Option func(*Scanner)

func WithTTL(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Scanner) { s.httpClient = c }
}

func WithOllamaEndpoint(url string) Option {
	return func(s *Scanner) { s.ollamaEndpoint = url }
}

func WithOpenCodeZenEndpoint(url string) Option {
	return func(s *Scanner) { s.openCodeZenEndpoint = url }
}

func WithOpenCodeZenAPIKey(key string) Option {
	return func(s *Scanner) { s.openCodeZenAPIKey = key }
}

func WithOpenRouterEndpoint(url string) Option {
	return func(s *Scanner) { s.openRouterEndpoint = url }
}

func WithOpenRouterAPIKey(key string) Option {
	return func(s *Scanner) { s.openRouterAPIKey = key }
}

func New(opts ...Option) *Scanner {
	s := &Scanner{
		ttl:                 DefaultTTL,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
		now:                 time.Now,
		ollamaEndpoint:      "http://localhost:11434/api/tags",
		openCodeZenEndpoint: "https://zen.opencode.ai/v1/models",
		openRouterEndpoint:  "https://openrouter.ai/api/v1/models",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh polls every stale source (or every source, if force is true)
// concurrently, retaining each source's previous cache on failure.
func (s *Scanner) Refresh(ctx context.Context, force bool) {
	now := s.now()
	var wg sync.WaitGroup
	for _, pair := range []struct {
		state *sourceState
		fetch fetchFunc
	}{
		{&s.ollama, s.fetchOllama},
		{&s.openCodeZen, s.fetchOpenCodeZen},
		{&s.openRouter, s.fetchOpenRouter},
	} {
		if !force && !pair.state.stale(s.ttl, now) {
			continue
		}
		wg.Add(1)
		go func(st *sourceState, fn fetchFunc) {
			defer wg.Done()
			models, err := fn(ctx)
			if err != nil {
				log.Warnf("catalog refresh failed: %v", err)
			}
			st.replace(models, s.now(), err)
		}(pair.state, pair.fetch)
	}
	wg.Wait()
}

// List returns the flat listing ordered by (source priority, display
// name), triggering a refresh of any stale source first.
func (s *Scanner) List(ctx context.Context) []Model {
	s.Refresh(ctx, false)

	all := s.allModels()
	sort.Slice(all, func(i, j int) bool {
		if all[i].Source.priority() != all[j].Source.priority() {
			return all[i].Source.priority() < all[j].Source.priority()
		}
		return all[i].DisplayName < all[j].DisplayName
	})
	return all
}

func (s *Scanner) allModels() []Model {
	ollama, _ := s.ollama.snapshot()
	zen, _ := s.openCodeZen.snapshot()
	router, _ := s.openRouter.snapshot()

	total := make([]Model, 0, len(ollama)+len(zen)+len(router))
	total = append(total, ollama...)
	total = append(total, zen...)
	total = append(total, router...)
	return lo.Filter(total, func(m Model, _ int) bool { return m.IsFree })
}

// Get looks up one model by id across the merged catalog.
func (s *Scanner) Get(ctx context.Context, id string) (Model, bool) {
	for _, m := range s.List(ctx) {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}
