package settings

import (
	"context"
	"testing"

	"github.com/bestruirui/tollfree/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := db.AutoMigrate(&model.Setting{}); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

func TestInit_SeedsDefaultsFromConfig(t *testing.T) {
	db := newTestDB(t)
	if err := Init(context.Background(), db, "or-key", "ocz-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := CurrentSnapshot()
	if !snap.OpenRouterConfigured || !snap.OpenCodeZenConfigured {
		t.Fatalf("expected both keys configured from defaults, got %+v", snap)
	}
}

func TestSet_ClearsConfiguredFlagOnEmptyString(t *testing.T) {
	db := newTestDB(t)
	if err := Init(context.Background(), db, "or-key", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Configured(model.SettingKeyOpenRouterAPIKey) {
		t.Fatalf("expected configured after seed")
	}

	if err := Set(db, model.SettingKeyOpenRouterAPIKey, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Configured(model.SettingKeyOpenRouterAPIKey) {
		t.Fatalf("expected cleared after setting empty string")
	}
}
