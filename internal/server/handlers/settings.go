package handlers

import (
	"net/http"

	"github.com/bestruirui/tollfree/internal/model"
	"github.com/bestruirui/tollfree/internal/server/middleware"
	"github.com/bestruirui/tollfree/internal/server/resp"
	"github.com/bestruirui/tollfree/internal/server/router"
	"github.com/bestruirui/tollfree/internal/settings"
	"github.com/gin-gonic/gin"
)

func init() {
	router.NewGroupRouter("/api/settings").
		AddRoute(
			router.NewRoute("", http.MethodGet).
				Handle(getSettings),
		).
		AddRoute(
			router.NewRoute("", http.MethodPut).
				Use(middleware.RequireJSON()).
				Handle(putSettings),
		).
		AddRoute(
			router.NewRoute("/spending", http.MethodGet).
				Handle(getSpending),
		).
		AddRoute(
			router.NewRoute("/spending", http.MethodPost).
				Use(middleware.RequireJSON()).
				Handle(postSpending),
		)
}

func getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settings.CurrentSnapshot())
}

type putSettingsRequest struct {
	OpenRouterAPIKey  *string `json:"openrouter_api_key"`
	OpenCodeZenAPIKey *string `json:"opencode_zen_api_key"`
	ProxyURL          *string `json:"proxy_url"`
}

func putSettings(c *gin.Context) {
	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidJSON)
		return
	}

	fields := []struct {
		key   model.SettingKey
		value *string
	}{
		{model.SettingKeyOpenRouterAPIKey, req.OpenRouterAPIKey},
		{model.SettingKeyOpenCodeZenAPIKey, req.OpenCodeZenAPIKey},
		{model.SettingKeyProxyURL, req.ProxyURL},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if err := settings.Set(deps.DB, f.key, *f.value); err != nil {
			resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
			return
		}
	}

	c.JSON(http.StatusOK, settings.CurrentSnapshot())
}

func getSpending(c *gin.Context) {
	c.JSON(http.StatusOK, deps.Ledger.Status())
}

type postSpendingRequest struct {
	DailyCap      *float64 `json:"daily_cap"`
	MonthlyCap    *float64 `json:"monthly_cap"`
	WarnAtPercent *int     `json:"warn_at_percent"`
}

func postSpending(c *gin.Context) {
	var req postSpendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidJSON)
		return
	}
	deps.Ledger.SetCaps(req.DailyCap, req.MonthlyCap, req.WarnAtPercent)
	c.JSON(http.StatusOK, deps.Ledger.Status())
}
