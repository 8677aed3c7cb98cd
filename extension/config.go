package extension

import "time"

// Config holds the Tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start. State is still loaded.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// AppID scopes persisted records (default: "default").
	AppID string `json:"app_id" mapstructure:"app_id" yaml:"app_id"`

	// Administrator is the principal allowed to update the price and
	// withdraw funds. Required.
	Administrator string `json:"administrator" mapstructure:"administrator" yaml:"administrator"`

	// InitialPrice is the unit price in major units ("0.01") used when no
	// persisted state exists yet.
	InitialPrice string `json:"initial_price" mapstructure:"initial_price" yaml:"initial_price"`

	// Currency of the ledger (default: "eth").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// TreasuryMode is "drain" (default) or "escrow".
	TreasuryMode string `json:"treasury_mode" mapstructure:"treasury_mode" yaml:"treasury_mode"`

	// StrictPricing rejects a zero unit price.
	StrictPricing bool `json:"strict_pricing" mapstructure:"strict_pricing" yaml:"strict_pricing"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AppID:         "default",
		InitialPrice:  "0.01",
		Currency:      "eth",
		TreasuryMode:  "drain",
		PluginTimeout: 5 * time.Second,
	}
}
