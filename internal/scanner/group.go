package scanner

import (
	"context"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/samber/lo"
)

var (
	vendorPrefixPattern = regexp2.MustCompile(`^[^/]+/`, regexp2.ECMAScript)
	freeSuffixPattern   = regexp2.MustCompile(`(?i)[:-]free$`, regexp2.ECMAScript)
)

// canonicalDisplayName strips the vendor/ prefix and a trailing free-tier
// marker -- openrouter's ":free" or open_code_zen's "-free" -- so the same
// underlying model surfaced by multiple sources groups under one
// canonical name.
func canonicalDisplayName(name string) string {
	out, err := vendorPrefixPattern.Replace(name, "", -1, -1)
	if err != nil {
		out = name
	}
	out, err2 := freeSuffixPattern.Replace(out, "", -1, -1)
	if err2 != nil {
		out = strings.TrimSuffix(out, ":free")
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// ProviderOption is one source's offering of a grouped model.
type ProviderOption struct {
	ID     string
	Source Source
	IsFree bool
}

// GroupedModel is one canonical model exposed across one or more
// sources.
type GroupedModel struct {
	ID           string
	Name         string
	Capabilities []string
	Providers    []ProviderOption
}

func providerPriority(s Source) int {
	switch s {
	case SourceOpenCodeZen:
		return 0
	case SourceOpenRouter:
		return 1
	case SourceOllama:
		return 2
	default:
		return 99
	}
}

// Grouped returns the grouped listing: entries sharing a canonical
// display name across sources collapse into one model with multiple
// provider options, sorted open_code_zen first, then openrouter, then
// ollama.
func (s *Scanner) Grouped(ctx context.Context) []GroupedModel {
	models := s.List(ctx)

	byCanonical := lo.GroupBy(models, func(m Model) string {
		return canonicalDisplayName(m.DisplayName)
	})

	grouped := make([]GroupedModel, 0, len(byCanonical))
	for canonical, ms := range byCanonical {
		providers := lo.Map(ms, func(m Model, _ int) ProviderOption {
			return ProviderOption{ID: m.ID, Source: m.Source, IsFree: m.IsFree}
		})
		sort.Slice(providers, func(i, j int) bool {
			return providerPriority(providers[i].Source) < providerPriority(providers[j].Source)
		})
		caps := lo.Uniq(lo.FlatMap(ms, func(m Model, _ int) []string { return m.Capabilities }))

		grouped = append(grouped, GroupedModel{
			ID:           canonical,
			Name:         ms[0].DisplayName,
			Capabilities: caps,
			Providers:    providers,
		})
	}

	sort.Slice(grouped, func(i, j int) bool { return grouped[i].Name < grouped[j].Name })
	return grouped
}
