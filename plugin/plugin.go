// Package plugin provides an extensible plugin system for Tally.
// Plugins can hook into ledger lifecycle and operation events to extend
// functionality. Hook errors are logged and never fail an applied operation.
package plugin

import (
	"context"

	"github.com/xraph/tally/event"
	"github.com/xraph/tally/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. l is the *tally.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnBalanceToppedUp is called after a top-up is persisted.
type OnBalanceToppedUp interface {
	Plugin
	OnBalanceToppedUp(ctx context.Context, e event.BalanceToppedUp) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded is called after a usage charge is persisted.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, e event.UsageRecorded) error
}

// OnUsageRejected is called when a usage charge fails, for example on an
// insufficient balance or an overflowing cost.
type OnUsageRejected interface {
	Plugin
	OnUsageRejected(ctx context.Context, caller types.Principal, units uint64, reason error) error
}

// ──────────────────────────────────────────────────
// Administrator hooks
// ──────────────────────────────────────────────────

// OnPriceUpdated is called after the unit price changes.
type OnPriceUpdated interface {
	Plugin
	OnPriceUpdated(ctx context.Context, e event.PriceUpdated) error
}

// OnFundsWithdrawn is called after held funds are disbursed.
type OnFundsWithdrawn interface {
	Plugin
	OnFundsWithdrawn(ctx context.Context, e event.FundsWithdrawn) error
}

// OnAccessDenied is called when a non-administrator attempts a privileged
// operation.
type OnAccessDenied interface {
	Plugin
	OnAccessDenied(ctx context.Context, caller types.Principal, operation string) error
}
