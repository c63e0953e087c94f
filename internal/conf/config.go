package conf

import (
	"fmt"
	"os"
	"strings"

	"github.com/bestruirui/tollfree/internal/utils/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type GatewayConfig struct {
	Port int `mapstructure:"port"`
}

type APIKeysConfig struct {
	OpenRouter  string `mapstructure:"openrouter"`
	OpenCodeZen string `mapstructure:"opencode_zen"`
}

type ScannerConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

type CircuitConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetMs          int `mapstructure:"reset_ms"`
}

type SpendingConfig struct {
	DailyCap      float64 `mapstructure:"daily_cap"`
	MonthlyCap    float64 `mapstructure:"monthly_cap"`
	WarnAtPercent int     `mapstructure:"warn_at_percent"`
}

type TelemetryConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	BatchSize       int    `mapstructure:"batch_size"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
	MaxQueueLen     int    `mapstructure:"max_queue_len"`
}

type InspectorConfig struct {
	MaxTransactions int `mapstructure:"max_transactions"`
}

type FanoutConfig struct {
	MaxModels int `mapstructure:"max_models"`
}

type StreamingConfig struct {
	TotalTimeoutSeconds int `mapstructure:"total_timeout_seconds"`
	IdleTimeoutSeconds  int `mapstructure:"idle_timeout_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

type Config struct {
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	APIKeys   APIKeysConfig   `mapstructure:"api_keys"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Circuit   CircuitConfig   `mapstructure:"circuit"`
	Spending  SpendingConfig  `mapstructure:"spending"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Inspector InspectorConfig `mapstructure:"inspector"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

var AppConfig Config

// Load reads configuration with precedence: CLI flags > environment variables
// > config file > defaults. flags may be nil when called outside the start
// command (e.g. in tests).
func Load(path string, flags *pflag.FlagSet) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("json")
		viper.AddConfigPath("data")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(strings.ToUpper(APP_NAME))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Spec-mandated env var names that don't follow the APP-prefixed scheme.
	bindEnv("api_keys.openrouter", "OPENROUTER_API_KEY")
	bindEnv("api_keys.opencode_zen", "OPENCODE_ZEN_API_KEY")
	bindEnv("gateway.port", "MULTIAI_PORT")
	bindEnv("spending.daily_cap", "MULTIAI_DAILY_CAP")
	bindEnv("spending.monthly_cap", "MULTIAI_MONTHLY_CAP")
	bindEnv("spending.warn_at_percent", "MULTIAI_WARN_AT_PERCENT")

	setDefaults()

	if flags != nil {
		if err := viper.BindPFlags(flags); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Infof("Using config file: %s", viper.ConfigFileUsed())
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Infof("Config file not found, creating default config")
			if err := os.MkdirAll("data", 0755); err != nil {
				log.Errorf("Failed to create data directory: %v", err)
			}
			if err := viper.SafeWriteConfigAs("data/config.json"); err != nil {
				log.Errorf("Failed to create default config: %v", err)
			}
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return nil
}

func bindEnv(key, env string) {
	if err := viper.BindEnv(key, env); err != nil {
		log.Warnf("failed to bind env %s to %s: %v", env, key, err)
	}
}

func setDefaults() {
	viper.SetDefault("gateway.port", 11434)
	viper.SetDefault("api_keys.openrouter", "")
	viper.SetDefault("api_keys.opencode_zen", "")
	viper.SetDefault("scanner.ttl_seconds", 300)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay_ms", 1000)
	viper.SetDefault("retry.max_delay_ms", 30000)
	viper.SetDefault("circuit.failure_threshold", 5)
	viper.SetDefault("circuit.reset_ms", 60000)
	viper.SetDefault("spending.daily_cap", 5.00)
	viper.SetDefault("spending.monthly_cap", 50.00)
	viper.SetDefault("spending.warn_at_percent", 80)
	viper.SetDefault("telemetry.endpoint", "")
	viper.SetDefault("telemetry.batch_size", 10)
	viper.SetDefault("telemetry.flush_interval_ms", 5000)
	viper.SetDefault("telemetry.max_queue_len", 1000)
	viper.SetDefault("inspector.max_transactions", 1000)
	viper.SetDefault("fanout.max_models", 3)
	viper.SetDefault("streaming.total_timeout_seconds", 120)
	viper.SetDefault("streaming.idle_timeout_seconds", 30)
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.path", "data/data.db")
	viper.SetDefault("log.level", "info")
}
