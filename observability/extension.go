// Package observability provides a metrics extension for Tally that records
// operation counts and amounts via a MetricFactory.
package observability

import (
	"context"
	"errors"
	"strconv"

	"github.com/xraph/tally"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnBalanceToppedUp = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded   = (*MetricsExtension)(nil)
	_ plugin.OnUsageRejected   = (*MetricsExtension)(nil)
	_ plugin.OnPriceUpdated    = (*MetricsExtension)(nil)
	_ plugin.OnFundsWithdrawn  = (*MetricsExtension)(nil)
	_ plugin.OnAccessDenied    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger operation metrics.
// Register it as a Tally plugin to track balances flowing through the ledger.
// Amount histograms observe major units ("0.01" ETH observes 0.01).
type MetricsExtension struct {
	factory MetricFactory

	// Balance metrics
	TopUps      Counter
	TopUpAmount Histogram

	// Usage metrics
	UsageRecorded         Counter
	UsageUnits            Counter
	UsageCost             Histogram
	UsageRejected         Counter
	UsageRejectedBalance  Counter
	UsageRejectedOverflow Counter

	// Administrator metrics
	PriceUpdates     Counter
	Withdrawals      Counter
	WithdrawalAmount Histogram
	AccessDenied     Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// NewPrometheusFactory provides a factory backed by client_golang.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TopUps:      factory.Counter("tally.balance.top_ups"),
		TopUpAmount: factory.Histogram("tally.balance.top_up_amount"),

		UsageRecorded:         factory.Counter("tally.usage.recorded"),
		UsageUnits:            factory.Counter("tally.usage.units"),
		UsageCost:             factory.Histogram("tally.usage.cost"),
		UsageRejected:         factory.Counter("tally.usage.rejected"),
		UsageRejectedBalance:  factory.Counter("tally.usage.rejected.insufficient_balance"),
		UsageRejectedOverflow: factory.Counter("tally.usage.rejected.overflow"),

		PriceUpdates:     factory.Counter("tally.price.updates"),
		Withdrawals:      factory.Counter("tally.withdrawals"),
		WithdrawalAmount: factory.Histogram("tally.withdrawal_amount"),
		AccessDenied:     factory.Counter("tally.access.denied"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnBalanceToppedUp implements plugin.OnBalanceToppedUp.
func (m *MetricsExtension) OnBalanceToppedUp(_ context.Context, e event.BalanceToppedUp) error {
	m.TopUps.Inc()
	m.TopUpAmount.Observe(major(e.Amount))
	return nil
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, e event.UsageRecorded) error {
	m.UsageRecorded.Inc()
	m.UsageUnits.Add(float64(e.Units))
	m.UsageCost.Observe(major(e.Cost))
	return nil
}

// OnUsageRejected implements plugin.OnUsageRejected.
func (m *MetricsExtension) OnUsageRejected(_ context.Context, _ types.Principal, _ uint64, reason error) error {
	m.UsageRejected.Inc()
	switch {
	case errors.Is(reason, tally.ErrInsufficientBalance):
		m.UsageRejectedBalance.Inc()
	case errors.Is(reason, tally.ErrArithmeticOverflow):
		m.UsageRejectedOverflow.Inc()
	}
	return nil
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (m *MetricsExtension) OnPriceUpdated(_ context.Context, _ event.PriceUpdated) error {
	m.PriceUpdates.Inc()
	return nil
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (m *MetricsExtension) OnFundsWithdrawn(_ context.Context, e event.FundsWithdrawn) error {
	m.Withdrawals.Inc()
	m.WithdrawalAmount.Observe(major(e.Amount))
	return nil
}

// OnAccessDenied implements plugin.OnAccessDenied.
func (m *MetricsExtension) OnAccessDenied(_ context.Context, _ types.Principal, _ string) error {
	m.AccessDenied.Inc()
	return nil
}

// major converts minor units to a float in major units. Precision loss is
// acceptable for metrics.
func major(m types.Money) float64 {
	f, err := strconv.ParseFloat(m.FormatMajor(), 64)
	if err != nil {
		return 0
	}
	return f
}
