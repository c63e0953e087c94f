// Package cost estimates the USD cost of a chat completion so the
// spending ledger can pre-check a request before it is sent and record
// its actual cost afterward. Estimation is deliberately pluggable: the
// default Estimator fetches a public price table, but any type
// satisfying the Estimator interface can stand in.
package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bestruirui/tollfree/internal/utils/log"
	"github.com/bestruirui/tollfree/internal/utils/tokenizer"
)

const llmPriceURL = "https://models.dev/api.json"

// Price is USD per million tokens, mirroring the wire shape of the
// models.dev catalog.
type Price struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
	Request    float64 `json:"request"`
}

// Estimator produces a USD cost estimate for a prospective call and, once
// the call has finished, its actual cost. A gateway that only ever talks
// to catalog-filtered free models will typically see zero from both, but
// the ledger treats the estimator as opaque.
type Estimator interface {
	EstimateCost(ctx context.Context, modelID string, promptTokens, completionTokens int) float64
}

// MinCost is the estimate returned for any model absent from the price
// table, and the floor for every estimate. It is zero, so an unrecognized
// model estimates as free.
const MinCost = 0.0

// Table is the default Estimator: an in-memory price table refreshed
// from models.dev, keyed by lowercased bare model id.
type Table struct {
	mu         sync.RWMutex
	prices     map[string]Price
	httpClient *http.Client
	url        string
	updatedAt  time.Time
}

type Option func(*Table)

func WithHTTPClient(c *http.Client) Option {
	return func(t *Table) { t.httpClient = c }
}

func WithURL(url string) Option {
	return func(t *Table) { t.url = url }
}

func New(opts ...Option) *Table {
	t := &Table{
		prices:     make(map[string]Price),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        llmPriceURL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Refresh re-fetches the price table. A failed refresh leaves the
// previous table in place, matching the catalog scanner's cache-retention
// behavior.
func (t *Table) Refresh(ctx context.Context) error {
	start := time.Now()
	defer func() {
		log.Debugf("cost table refresh took %s", time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models.dev returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading models.dev body: %w", err)
	}

	var raw map[string]struct {
		Models map[string]struct {
			ID   string `json:"id"`
			Cost Price  `json:"cost"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("parsing models.dev body: %w", err)
	}

	next := make(map[string]Price)
	for _, provider := range raw {
		for _, m := range provider.Models {
			next[strings.ToLower(m.ID)] = m.Cost
		}
	}

	t.mu.Lock()
	t.prices = next
	t.updatedAt = time.Now()
	t.mu.Unlock()
	return nil
}

func (t *Table) lookup(modelID string) (Price, bool) {
	key := strings.ToLower(bareModelID(modelID))
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[key]
	return p, ok
}

// bareModelID strips the gateway's "source/" prefix so lookups match the
// models.dev catalog's own naming.
func bareModelID(modelID string) string {
	if idx := strings.Index(modelID, "/"); idx >= 0 {
		return modelID[idx+1:]
	}
	return modelID
}

// EstimateCost returns the USD cost of promptTokens and completionTokens
// against modelID, or MinCost if the model is not in the table.
func (t *Table) EstimateCost(ctx context.Context, modelID string, promptTokens, completionTokens int) float64 {
	price, ok := t.lookup(modelID)
	if !ok {
		return MinCost
	}
	cost := float64(promptTokens)/1_000_000*price.Input + float64(completionTokens)/1_000_000*price.Output
	if cost < MinCost {
		return MinCost
	}
	return cost
}

// EstimateForPrompt counts tokens in the given message contents and
// estimates a completion of roughly equal length, the usual shape of a
// chat turn in the absence of a max_tokens hint.
func EstimateForPrompt(ctx context.Context, est Estimator, modelID string, messages []string) float64 {
	promptTokens := 0
	for _, m := range messages {
		promptTokens += tokenizer.CountTokens(m, modelID)
	}
	return est.EstimateCost(ctx, modelID, promptTokens, promptTokens)
}

func (t *Table) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}
