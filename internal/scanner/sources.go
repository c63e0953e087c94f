package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// openCodeZenFreeModels is the beta-free allow-list: itself configuration,
// treated as an enumerated constant set at build/config time.
var openCodeZenFreeModels = []string{
	"glm-4.6-free",
	"qwen3-coder-free",
	"kimi-k2-free",
}

func (s *Scanner) fetchOllama(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ollamaEndpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama catalog returned %d", resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	now := time.Now()
	models := make([]Model, 0, len(payload.Models))
	for _, m := range payload.Models {
		if m.Name == "" {
			continue
		}
		models = append(models, Model{
			ID:           "ollama/" + m.Name,
			DisplayName:  m.Name,
			Source:       SourceOllama,
			Capabilities: []string{"chat"},
			IsFree:       true,
			DiscoveredAt: now,
			Configured:   true,
		})
	}
	return models, nil
}

// fetchOpenCodeZen never makes a network call: the free set is a
// build/config-time constant. Listing does not require a credential;
// using the listed models does.
func (s *Scanner) fetchOpenCodeZen(ctx context.Context) ([]Model, error) {
	now := time.Now()
	configured := s.openCodeZenAPIKey != ""
	models := make([]Model, 0, len(openCodeZenFreeModels))
	for _, name := range openCodeZenFreeModels {
		models = append(models, Model{
			ID:           "open_code_zen/" + name,
			DisplayName:  name,
			Source:       SourceOpenCodeZen,
			Capabilities: []string{"chat"},
			IsFree:       true,
			DiscoveredAt: now,
			Configured:   configured,
		})
	}
	return models, nil
}

type openRouterModel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Pricing struct {
		Prompt     json.RawMessage `json:"prompt"`
		Completion json.RawMessage `json:"completion"`
	} `json:"pricing"`
}

func (s *Scanner) fetchOpenRouter(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.openRouterEndpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter catalog returned %d", resp.StatusCode)
	}

	var payload struct {
		Data []openRouterModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	now := time.Now()
	configured := s.openRouterAPIKey != ""
	models := make([]Model, 0, len(payload.Data))
	for _, m := range payload.Data {
		if m.ID == "" {
			continue
		}
		prompt, promptOK := parsePrice(m.Pricing.Prompt)
		completion, completionOK := parsePrice(m.Pricing.Completion)
		free := promptOK && completionOK && prompt == 0 && completion == 0
		if !free {
			continue
		}
		name := m.Name
		if name == "" {
			name = m.ID
		}
		models = append(models, Model{
			ID:           "openrouter/" + m.ID,
			DisplayName:  name,
			Source:       SourceOpenRouter,
			Capabilities: []string{"chat"},
			IsFree:       true,
			DiscoveredAt: now,
			Configured:   configured,
		})
	}
	return models, nil
}

// parsePrice accepts either a JSON string or a JSON number (OpenRouter's
// wire format encodes pricing fields as strings, e.g. "0"). Unparseable
// or absent values report ok=false, which the caller treats as "not
// free" -- mirroring the upstream default of 1.0 used when pricing is
// missing.
func parsePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	return 0, false
}
