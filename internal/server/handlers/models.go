package handlers

import (
	"net/http"

	"github.com/bestruirui/tollfree/internal/scanner"
	"github.com/bestruirui/tollfree/internal/server/router"
	"github.com/gin-gonic/gin"
)

func init() {
	router.NewGroupRouter("/v1").
		AddRoute(
			router.NewRoute("/models", http.MethodGet).
				Handle(listModels),
		).
		AddRoute(
			router.NewRoute("/models/grouped", http.MethodGet).
				Handle(listModelsGrouped),
		)
}

// openAIModel mirrors the shape OpenAI's /v1/models returns.
type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func listModels(c *gin.Context) {
	models := deps.Scanner.List(c.Request.Context())
	out := make([]openAIModel, 0, len(models))
	for _, m := range models {
		out = append(out, openAIModel{
			ID:      m.ID,
			Object:  "model",
			Created: m.DiscoveredAt.Unix(),
			OwnedBy: string(m.Source),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   out,
	})
}

type groupedProvider struct {
	ID     string         `json:"id"`
	Source scanner.Source `json:"source"`
	IsFree bool           `json:"is_free"`
}

type groupedModel struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Capabilities []string          `json:"capabilities"`
	Providers    []groupedProvider `json:"providers"`
}

func listModelsGrouped(c *gin.Context) {
	groups := deps.Scanner.Grouped(c.Request.Context())
	out := make([]groupedModel, 0, len(groups))
	for _, g := range groups {
		providers := make([]groupedProvider, 0, len(g.Providers))
		for _, p := range g.Providers {
			providers = append(providers, groupedProvider{ID: p.ID, Source: p.Source, IsFree: p.IsFree})
		}
		out = append(out, groupedModel{
			ID:           g.ID,
			Name:         g.Name,
			Capabilities: g.Capabilities,
			Providers:    providers,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}
