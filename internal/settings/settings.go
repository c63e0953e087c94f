// Package settings implements the mutable runtime settings store backing
// GET/PUT /api/settings: API credentials, outbound proxy URL, and CORS
// allow-list, all cached in memory and persisted through GORM.
package settings

import (
	"context"
	"fmt"

	"github.com/bestruirui/tollfree/internal/model"
	"github.com/bestruirui/tollfree/internal/utils/cache"
	"gorm.io/gorm"
)

var settingCache = cache.New[model.SettingKey, string](8)

// Init loads persisted settings into the cache, seeding any missing
// default on first run (e.g. the API keys from the config file).
func Init(ctx context.Context, db *gorm.DB, defaultOpenRouterKey, defaultOpenCodeZenKey string) error {
	tx := db.WithContext(ctx)

	var rows []model.Setting
	if err := tx.Find(&rows).Error; err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	existing := make(map[model.SettingKey]bool, len(rows))
	for _, r := range rows {
		existing[r.Key] = true
	}

	defaults := model.DefaultSettings(defaultOpenRouterKey, defaultOpenCodeZenKey)
	missing := make([]model.Setting, 0, len(defaults))
	for _, d := range defaults {
		if !existing[d.Key] {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		if err := tx.CreateInBatches(missing, len(missing)).Error; err != nil {
			return fmt.Errorf("seeding default settings: %w", err)
		}
		rows = append(rows, missing...)
	}

	for _, r := range rows {
		settingCache.Set(r.Key, r.Value)
	}
	return nil
}

func Get(key model.SettingKey) string {
	v, _ := settingCache.Get(key)
	return v
}

func Configured(key model.SettingKey) bool {
	return Get(key) != ""
}

func Set(db *gorm.DB, key model.SettingKey, value string) error {
	if current, ok := settingCache.Get(key); ok && current == value {
		return nil
	}
	result := db.Save(&model.Setting{Key: key, Value: value})
	if result.Error != nil {
		return fmt.Errorf("failed to set %s: %w", key, result.Error)
	}
	settingCache.Set(key, value)
	return nil
}

// Snapshot is the GET /api/settings response shape.
type Snapshot struct {
	OpenRouterConfigured  bool `json:"openrouter_configured"`
	OpenCodeZenConfigured bool `json:"opencode_zen_configured"`
	ProxyConfigured       bool `json:"proxy_configured"`
}

func CurrentSnapshot() Snapshot {
	return Snapshot{
		OpenRouterConfigured:  Configured(model.SettingKeyOpenRouterAPIKey),
		OpenCodeZenConfigured: Configured(model.SettingKeyOpenCodeZenAPIKey),
		ProxyConfigured:       Configured(model.SettingKeyProxyURL),
	}
}
