package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tally/event"
	"github.com/xraph/tally/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit            []OnInit
	onShutdown        []OnShutdown
	onBalanceToppedUp []OnBalanceToppedUp
	onUsageRecorded   []OnUsageRecorded
	onUsageRejected   []OnUsageRejected
	onPriceUpdated    []OnPriceUpdated
	onFundsWithdrawn  []OnFundsWithdrawn
	onAccessDenied    []OnAccessDenied
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnBalanceToppedUp); ok {
		r.onBalanceToppedUp = append(r.onBalanceToppedUp, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnUsageRejected); ok {
		r.onUsageRejected = append(r.onUsageRejected, v)
	}
	if v, ok := p.(OnPriceUpdated); ok {
		r.onPriceUpdated = append(r.onPriceUpdated, v)
	}
	if v, ok := p.(OnFundsWithdrawn); ok {
		r.onFundsWithdrawn = append(r.onFundsWithdrawn, v)
	}
	if v, ok := p.(OnAccessDenied); ok {
		r.onAccessDenied = append(r.onAccessDenied, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", Implemented(p),
	)

	return nil
}

// Implemented returns the hook interfaces implemented by the plugin.
func Implemented(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnBalanceToppedUp)(nil)).Elem(), "OnBalanceToppedUp")
	checkInterface(reflect.TypeOf((*OnUsageRecorded)(nil)).Elem(), "OnUsageRecorded")
	checkInterface(reflect.TypeOf((*OnUsageRejected)(nil)).Elem(), "OnUsageRejected")
	checkInterface(reflect.TypeOf((*OnPriceUpdated)(nil)).Elem(), "OnPriceUpdated")
	checkInterface(reflect.TypeOf((*OnFundsWithdrawn)(nil)).Elem(), "OnFundsWithdrawn")
	checkInterface(reflect.TypeOf((*OnAccessDenied)(nil)).Elem(), "OnAccessDenied")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, ledger)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitBalanceToppedUp emits a balance topped up event.
func (r *Registry) EmitBalanceToppedUp(ctx context.Context, e event.BalanceToppedUp) {
	r.mu.RLock()
	plugins := r.onBalanceToppedUp
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBalanceToppedUp", func() error {
			return p.OnBalanceToppedUp(ctx, e)
		})
	}
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, e event.UsageRecorded) {
	r.mu.RLock()
	plugins := r.onUsageRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnUsageRecorded", func() error {
			return p.OnUsageRecorded(ctx, e)
		})
	}
}

// EmitUsageRejected emits a usage rejected notification.
func (r *Registry) EmitUsageRejected(ctx context.Context, caller types.Principal, units uint64, reason error) {
	r.mu.RLock()
	plugins := r.onUsageRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnUsageRejected", func() error {
			return p.OnUsageRejected(ctx, caller, units, reason)
		})
	}
}

// EmitPriceUpdated emits a price updated event.
func (r *Registry) EmitPriceUpdated(ctx context.Context, e event.PriceUpdated) {
	r.mu.RLock()
	plugins := r.onPriceUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPriceUpdated", func() error {
			return p.OnPriceUpdated(ctx, e)
		})
	}
}

// EmitFundsWithdrawn emits a funds withdrawn event.
func (r *Registry) EmitFundsWithdrawn(ctx context.Context, e event.FundsWithdrawn) {
	r.mu.RLock()
	plugins := r.onFundsWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnFundsWithdrawn", func() error {
			return p.OnFundsWithdrawn(ctx, e)
		})
	}
}

// EmitAccessDenied emits an access denied notification.
func (r *Registry) EmitAccessDenied(ctx context.Context, caller types.Principal, operation string) {
	r.mu.RLock()
	plugins := r.onAccessDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnAccessDenied", func() error {
			return p.OnAccessDenied(ctx, caller, operation)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
