package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/bestruirui/tollfree/internal/breaker"
	"github.com/bestruirui/tollfree/internal/conf"
	"github.com/bestruirui/tollfree/internal/cost"
	"github.com/bestruirui/tollfree/internal/db"
	"github.com/bestruirui/tollfree/internal/fanout"
	"github.com/bestruirui/tollfree/internal/inspector"
	"github.com/bestruirui/tollfree/internal/ledger"
	"github.com/bestruirui/tollfree/internal/model"
	"github.com/bestruirui/tollfree/internal/retry"
	"github.com/bestruirui/tollfree/internal/scanner"
	"github.com/bestruirui/tollfree/internal/server"
	"github.com/bestruirui/tollfree/internal/server/handlers"
	"github.com/bestruirui/tollfree/internal/settings"
	"github.com/bestruirui/tollfree/internal/streamclient"
	"github.com/bestruirui/tollfree/internal/task"
	"github.com/bestruirui/tollfree/internal/telemetry"
	"github.com/bestruirui/tollfree/internal/utils/log"
	"github.com/bestruirui/tollfree/internal/utils/shutdown"
	"github.com/spf13/cobra"
)

var cfgFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start " + conf.APP_NAME,
	PreRun: func(cmd *cobra.Command, args []string) {
		conf.PrintBanner()
		if err := conf.Load(cfgFile, cmd.Flags()); err != nil {
			log.Errorf("config load error: %v", err)
			return
		}
		log.SetLevel(conf.AppConfig.Log.Level)
	},
	Run: func(cmd *cobra.Command, args []string) {
		shutdown.Init(log.Logger)
		defer shutdown.Listen()

		cfg := conf.AppConfig

		if err := db.InitDB(cfg.Database.Type, cfg.Database.Path, conf.IsDebug()); err != nil {
			log.Errorf("database init error: %v", err)
			return
		}
		shutdown.Register(db.Close)
		gormDB := db.GetDB()

		if err := settings.Init(context.Background(), gormDB, cfg.APIKeys.OpenRouter, cfg.APIKeys.OpenCodeZen); err != nil {
			log.Errorf("settings init error: %v", err)
			return
		}

		sc := scanner.New(
			scanner.WithTTL(time.Duration(cfg.Scanner.TTLSeconds)*time.Second),
			scanner.WithOpenCodeZenAPIKey(settings.Get(model.SettingKeyOpenCodeZenAPIKey)),
			scanner.WithOpenRouterAPIKey(settings.Get(model.SettingKeyOpenRouterAPIKey)),
		)
		sc.Refresh(context.Background(), true)

		var telemetrySink telemetry.Sink
		if cfg.Telemetry.Endpoint != "" {
			telemetrySink = telemetry.NewHTTPSink(&http.Client{Timeout: 10 * time.Second}, cfg.Telemetry.Endpoint)
		}
		telemetryLogger := telemetry.New(telemetrySink,
			telemetry.WithBatchSize(cfg.Telemetry.BatchSize),
			telemetry.WithFlushInterval(time.Duration(cfg.Telemetry.FlushIntervalMs)*time.Millisecond),
			telemetry.WithMaxQueueLen(cfg.Telemetry.MaxQueueLen),
			telemetry.WithAppVersion(conf.Version),
		)
		shutdown.Register(telemetryLogger.Close)

		circuitBreaker := breaker.New(
			breaker.WithFailureThreshold(cfg.Circuit.FailureThreshold),
			breaker.WithResetDuration(time.Duration(cfg.Circuit.ResetMs)*time.Millisecond),
		)

		retryPolicy := retry.New(
			cfg.Retry.MaxAttempts,
			time.Duration(cfg.Retry.BaseDelayMs)*time.Millisecond,
			time.Duration(cfg.Retry.MaxDelayMs)*time.Millisecond,
		)

		streamClient := streamclient.New(
			streamclient.WithBreaker(circuitBreaker),
			streamclient.WithRetryPolicy(retryPolicy),
			streamclient.WithTelemetry(telemetryLogger),
			streamclient.WithTotalTimeout(time.Duration(cfg.Streaming.TotalTimeoutSeconds)*time.Second),
			streamclient.WithIdleTimeout(time.Duration(cfg.Streaming.IdleTimeoutSeconds)*time.Second),
		)

		costTable := cost.New()
		costTable.Refresh(context.Background())

		spendingLedger := ledger.New(
			ledger.WithDailyCap(cfg.Spending.DailyCap),
			ledger.WithMonthlyCap(cfg.Spending.MonthlyCap),
			ledger.WithWarnAtPercent(cfg.Spending.WarnAtPercent),
			ledger.WithDB(gormDB),
			ledger.WithWarnHook(telemetryLogger.Log),
		)

		fanoutRouter := fanout.New(sc, streamClient, spendingLedger, costTable, resolveRoute,
			fanout.WithMaxModels(cfg.Fanout.MaxModels),
		)

		txInspector := inspector.New(
			inspector.WithMaxTransactions(cfg.Inspector.MaxTransactions),
			inspector.WithEnabled(conf.IsDebug()),
		)

		handlers.SetDeps(handlers.Deps{
			Scanner:   sc,
			Router:    fanoutRouter,
			Ledger:    spendingLedger,
			Inspector: txInspector,
			DB:        gormDB,
		})

		if err := server.Start(); err != nil {
			log.Errorf("server start error: %v", err)
			return
		}
		shutdown.Register(server.Close)

		task.Init(sc, costTable, time.Duration(cfg.Scanner.TTLSeconds)*time.Second)
		go task.RUN()
	},
}

// resolveRoute maps a catalog entry to its upstream transport, per the
// fixed provider routing table: ollama is unauthenticated and local,
// open_code_zen and openrouter both take a bearer token read live from
// settings so a PUT /api/settings credential change takes effect on the
// next dispatched call without a restart.
func resolveRoute(m scanner.Model) streamclient.Route {
	switch m.Source {
	case scanner.SourceOllama:
		return streamclient.Route{
			Endpoint:    "http://localhost:11434/v1/chat/completions",
			StripPrefix: "ollama/",
		}
	case scanner.SourceOpenCodeZen:
		return streamclient.Route{
			Endpoint:    "https://zen.opencode.ai/v1/chat/completions",
			AuthHeader:  "Authorization",
			AuthValue:   "Bearer " + settings.Get(model.SettingKeyOpenCodeZenAPIKey),
			StripPrefix: "open_code_zen/",
		}
	case scanner.SourceOpenRouter:
		return streamclient.Route{
			Endpoint:    "https://openrouter.ai/api/v1/chat/completions",
			AuthHeader:  "Authorization",
			AuthValue:   "Bearer " + settings.Get(model.SettingKeyOpenRouterAPIKey),
			StripPrefix: "openrouter/",
		}
	default:
		return streamclient.Route{}
	}
}

func init() {
	startCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./data/config.json)")
	rootCmd.AddCommand(startCmd)
}
