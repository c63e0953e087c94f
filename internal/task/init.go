package task

import (
	"context"
	"time"

	"github.com/bestruirui/tollfree/internal/cost"
	"github.com/bestruirui/tollfree/internal/scanner"
	"github.com/bestruirui/tollfree/internal/utils/log"
)

const (
	TaskCatalogRefresh   = "catalog_refresh"
	TaskCostTableRefresh = "cost_table_refresh"
)

// costTableRefreshInterval is fixed: the models.dev price table changes
// far less often than the catalog TTL, and isn't exposed as a config
// option.
const costTableRefreshInterval = time.Hour

// Init registers the gateway's periodic background work: a forced
// catalog re-poll on the configured scanner TTL (so a cold /v1/models
// request never pays the first fetch) and an hourly cost-table refresh.
func Init(sc *scanner.Scanner, costTable *cost.Table, catalogTTL time.Duration) {
	Register(TaskCatalogRefresh, catalogTTL, true, func() {
		sc.Refresh(context.Background(), true)
	})

	Register(TaskCostTableRefresh, costTableRefreshInterval, false, func() {
		if err := costTable.Refresh(context.Background()); err != nil {
			log.Warnf("cost table refresh failed: %v", err)
		}
	})
}
