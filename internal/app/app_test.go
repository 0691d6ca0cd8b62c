package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dvloznov/expense-tracker/internal/alert"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/infra/observability"
	"github.com/dvloznov/expense-tracker/internal/ledger"
	"github.com/dvloznov/expense-tracker/internal/receipts"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LedgerPath:     filepath.Join(dir, "database.xlsx"),
		UploadDir:      filepath.Join(dir, "uploads"),
		Currency:       "RM",
		AlertThreshold: decimal.NewFromInt(3000),
		AlertRecipient: "me@example.com",
		AlertMode:      config.AlertModeOnce,
	}
}

func TestClosers_RunInReverseAndJoinErrors(t *testing.T) {
	var order []int
	var cs Closers
	cs.Add(func() error { order = append(order, 1); return errors.New("first") })
	cs.Add(func() error { order = append(order, 2); return nil })
	cs.Add(func() error { order = append(order, 3); return errors.New("third") })

	err := cs.Close()
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("order = %v", order)
	}
	if err == nil || err.Error() != "third\nfirst" {
		t.Errorf("err = %v", err)
	}
}

func TestOpenLedger_CreatesMissingWorkbook(t *testing.T) {
	cfg := testConfig(t)
	metrics := observability.NewMetrics()

	store, err := OpenLedger(context.Background(), cfg, zerolog.Nop(), metrics)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer store.Close()

	if store.Recovery().Reason != ledger.RecoveryMissing {
		t.Errorf("recovery = %q", store.Recovery().Reason)
	}
}

func TestNewMonitor_FallsBackToLogNotifier(t *testing.T) {
	cfg := testConfig(t)

	m, err := NewMonitor(cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	if m.Status().Mode != alert.ModeOnce {
		t.Errorf("mode = %q", m.Status().Mode)
	}
	if msg := m.Check(context.Background(), decimal.NewFromInt(3001)); msg == nil {
		t.Fatal("expected alert")
	}
	if m.Status().Delivered != 1 {
		t.Errorf("status = %+v", m.Status())
	}
}

func TestNewMonitor_RejectsNegativeThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.AlertThreshold = decimal.NewFromInt(-1)
	if _, err := NewMonitor(cfg, zerolog.Nop(), nil); err == nil {
		t.Error("expected error")
	}
}

func TestNewBlobStore_LocalByDefault(t *testing.T) {
	cfg := testConfig(t)
	var cs Closers

	store, err := NewBlobStore(context.Background(), cfg, &cs)
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	if _, ok := store.(*receipts.LocalStore); !ok {
		t.Errorf("store = %T", store)
	}
	if len(cs) != 0 {
		t.Error("local store needs no closer")
	}
}

func TestNewSinks_NoneConfigured(t *testing.T) {
	var cs Closers
	if sinks := NewSinks(context.Background(), testConfig(t), zerolog.Nop(), &cs); len(sinks) != 0 {
		t.Errorf("sinks = %v", sinks)
	}
}

func TestNewSinks_Notion(t *testing.T) {
	cfg := testConfig(t)
	cfg.NotionToken = "secret"
	cfg.NotionDatabaseID = "db"
	var cs Closers

	sinks := NewSinks(context.Background(), cfg, zerolog.Nop(), &cs)
	if len(sinks) != 1 || sinks[0].Name() != "notion" {
		t.Errorf("sinks = %v", sinks)
	}
}
