package extension

import (
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/payout"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/store"
)

// Option configures the Tally Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithWallet sets the custody wallet for the ledger.
func WithWallet(w payout.Wallet) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, tally.WithWallet(w))
	}
}

// WithLedgerOption passes a tally.Option through to the underlying ledger.
func WithLedgerOption(opt tally.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, tally.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithAdministrator sets the administrator principal.
func WithAdministrator(p string) Option {
	return func(e *Extension) { e.config.Administrator = p }
}

// WithInitialPrice sets the bootstrap unit price in major units.
func WithInitialPrice(price, currency string) Option {
	return func(e *Extension) {
		e.config.InitialPrice = price
		e.config.Currency = currency
	}
}

// WithAppID sets the app ID.
func WithAppID(appID string) Option {
	return func(e *Extension) { e.config.AppID = appID }
}

// WithTreasuryMode sets the withdrawal policy ("drain" or "escrow").
func WithTreasuryMode(mode string) Option {
	return func(e *Extension) { e.config.TreasuryMode = mode }
}

// WithStrictPricing rejects a zero unit price.
func WithStrictPricing() Option {
	return func(e *Extension) { e.config.StrictPricing = true }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
