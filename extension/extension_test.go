package extension

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/payout"
	"github.com/xraph/tally/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Administrator: "0xadmin"})

	if cfg.AppID != "default" || cfg.Currency != "eth" || cfg.InitialPrice != "0.01" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.TreasuryMode != "drain" || cfg.PluginTimeout != 5*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Administrator != "0xadmin" {
		t.Errorf("administrator lost: %+v", cfg)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{AppID: "from-yaml", Currency: "usd", InitialPrice: "1.50"}
	prog := Config{AppID: "from-code", Administrator: "0xadmin", DisableMigrate: true, StrictPricing: true}

	cfg := mergeConfigurations(yaml, prog)

	if cfg.AppID != "from-yaml" {
		t.Errorf("AppID: got %q, want from-yaml", cfg.AppID)
	}
	if cfg.Administrator != "0xadmin" {
		t.Errorf("Administrator: got %q, want 0xadmin", cfg.Administrator)
	}
	if !cfg.DisableMigrate || !cfg.StrictPricing {
		t.Errorf("bool flags not merged: %+v", cfg)
	}
	if cfg.TreasuryMode != "drain" {
		t.Errorf("TreasuryMode: got %q, want drain", cfg.TreasuryMode)
	}
}

func TestBuildLedger(t *testing.T) {
	ctx := context.Background()
	e := New(
		WithStore(memory.New()),
		WithWallet(payout.Unbounded()),
		WithAdministrator("0xadmin"),
		WithInitialPrice("0.02", "eth"),
		WithTreasuryMode("escrow"),
	)
	e.config = mergeWithDefaults(e.config)

	l, err := e.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = l.Stop() }()

	if l.Owner() != "0xadmin" {
		t.Errorf("owner: got %s", l.Owner())
	}
	if got := l.PricePerUsage().FormatMajor(); got != "0.020000000000000000" {
		t.Errorf("price: got %s", got)
	}
	if l.TreasuryMode() != tally.TreasuryEscrow {
		t.Errorf("treasury mode: got %s", l.TreasuryMode())
	}
}

func TestBuildLedgerInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"Missing administrator", Config{InitialPrice: "0.01", Currency: "eth"}},
		{"Bad price", Config{Administrator: "0xadmin", InitialPrice: "abc", Currency: "eth"}},
		{"Unknown treasury mode", Config{Administrator: "0xadmin", InitialPrice: "0.01", Currency: "eth", TreasuryMode: "burn"}},
		{"Strict zero price", Config{Administrator: "0xadmin", InitialPrice: "0", Currency: "eth", StrictPricing: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(WithConfig(tt.cfg))
			if _, err := e.build(); !errors.Is(err, tally.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
