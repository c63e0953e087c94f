package model

// SettingKey identifies one mutable runtime setting, persisted as a
// single key/value row so it can be changed without a restart.
type SettingKey string

const (
	SettingKeyOpenRouterAPIKey  SettingKey = "openrouter_api_key"
	SettingKeyOpenCodeZenAPIKey SettingKey = "opencode_zen_api_key"
	SettingKeyProxyURL          SettingKey = "proxy_url"
	SettingKeyCORSAllowOrigins  SettingKey = "cors_allow_origins"
)

// Setting is one key/value row.
type Setting struct {
	Key   SettingKey `json:"key" gorm:"primaryKey"`
	Value string     `json:"value" gorm:"not null"`
}

// DefaultSettings seeds the table on first run. API keys default to the
// config file's values so a deployment that never touches PUT
// /api/settings still works.
func DefaultSettings(openRouterKey, openCodeZenKey string) []Setting {
	return []Setting{
		{Key: SettingKeyOpenRouterAPIKey, Value: openRouterKey},
		{Key: SettingKeyOpenCodeZenAPIKey, Value: openCodeZenKey},
		{Key: SettingKeyProxyURL, Value: ""},
		{Key: SettingKeyCORSAllowOrigins, Value: ""},
	}
}
