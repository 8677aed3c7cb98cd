// Package extension provides the Forge extension adapter for Tally.
//
// It implements the forge.Extension interface to integrate a Tally ledger
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tally" or "tally" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tally"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tally"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Prepaid usage billing ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tally as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	ledger     *tally.Ledger
	store      store.Store
	ledgerOpts []tally.Option
}

// New creates a new Tally Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger returns the underlying ledger.
// This is nil until Register is called.
func (e *Extension) Ledger() *tally.Ledger { return e.ledger }

// Register implements [forge.Extension]. It loads configuration,
// constructs the ledger, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	l, err := e.build()
	if err != nil {
		return err
	}
	e.ledger = l

	return vessel.Provide(fapp.Container(), func() (*tally.Ledger, error) {
		return e.ledger, nil
	})
}

// build constructs the ledger from the resolved config. A memory store is
// used when none was provided programmatically.
func (e *Extension) build() (*tally.Ledger, error) {
	if e.store == nil {
		e.store = memory.New()
	}

	admin := types.NewPrincipal(e.config.Administrator)
	price, err := types.Parse(e.config.InitialPrice, e.config.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: initial_price: %w", tally.ErrInvalidConfig, err)
	}

	return tally.New(e.store, admin, price, e.buildLedgerOpts()...)
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.ledger == nil {
		return errors.New("tally: extension not initialized")
	}

	if err := e.ledger.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.ledger != nil {
		if err := e.ledger.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tally: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs tally.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []tally.Option {
	opts := make([]tally.Option, 0, len(e.ledgerOpts)+5)

	if e.config.AppID != "" {
		opts = append(opts, tally.WithAppID(e.config.AppID))
	}
	if e.config.TreasuryMode != "" {
		opts = append(opts, tally.WithTreasuryMode(tally.TreasuryMode(e.config.TreasuryMode)))
	}
	if e.config.StrictPricing {
		opts = append(opts, tally.WithStrictPricing())
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, tally.WithPluginTimeout(e.config.PluginTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, tally.WithoutMigrate())
	}

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tally: configuration is required but not found in config files; " +
				"ensure 'extensions.tally' or 'tally' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tally: configuration loaded",
		forge.F("app_id", e.config.AppID),
		forge.F("administrator", e.config.Administrator),
		forge.F("initial_price", e.config.InitialPrice),
		forge.F("currency", e.config.Currency),
		forge.F("treasury_mode", e.config.TreasuryMode),
		forge.F("disable_migrate", e.config.DisableMigrate),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.tally", "tally"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("tally: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("tally: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AppID == "" {
		cfg.AppID = defaults.AppID
	}
	if cfg.InitialPrice == "" {
		cfg.InitialPrice = defaults.InitialPrice
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.TreasuryMode == "" {
		cfg.TreasuryMode = defaults.TreasuryMode
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.StrictPricing {
		yamlConfig.StrictPricing = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.AppID, programmaticConfig.AppID)
	fill(&yamlConfig.Administrator, programmaticConfig.Administrator)
	fill(&yamlConfig.InitialPrice, programmaticConfig.InitialPrice)
	fill(&yamlConfig.Currency, programmaticConfig.Currency)
	fill(&yamlConfig.TreasuryMode, programmaticConfig.TreasuryMode)

	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
