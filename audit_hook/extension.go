// Package audithook bridges Tally operation events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tally/event"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnBalanceToppedUp = (*Extension)(nil)
	_ plugin.OnUsageRecorded   = (*Extension)(nil)
	_ plugin.OnUsageRejected   = (*Extension)(nil)
	_ plugin.OnPriceUpdated    = (*Extension)(nil)
	_ plugin.OnFundsWithdrawn  = (*Extension)(nil)
	_ plugin.OnAccessDenied    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tally operation events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnBalanceToppedUp implements plugin.OnBalanceToppedUp.
func (e *Extension) OnBalanceToppedUp(ctx context.Context, evt event.BalanceToppedUp) error {
	return e.record(ctx, ActionBalanceToppedUp, SeverityInfo, OutcomeSuccess,
		ResourceAccount, evt.Caller.String(), evt.Caller, CategoryBilling, nil,
		"event_id", evt.ID.String(),
		"sequence", evt.Sequence,
		"amount", evt.Amount.AmountString(),
		"currency", evt.Amount.Currency,
	)
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (e *Extension) OnUsageRecorded(ctx context.Context, evt event.UsageRecorded) error {
	return e.record(ctx, ActionUsageRecorded, SeverityInfo, OutcomeSuccess,
		ResourceUsage, evt.Caller.String(), evt.Caller, CategoryUsage, nil,
		"event_id", evt.ID.String(),
		"sequence", evt.Sequence,
		"units", evt.Units,
		"cost", evt.Cost.AmountString(),
		"currency", evt.Cost.Currency,
	)
}

// OnUsageRejected implements plugin.OnUsageRejected.
func (e *Extension) OnUsageRejected(ctx context.Context, caller types.Principal, units uint64, reason error) error {
	return e.record(ctx, ActionUsageRejected, SeverityWarning, OutcomeFailure,
		ResourceUsage, caller.String(), caller, CategoryUsage, reason,
		"units", units,
	)
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (e *Extension) OnPriceUpdated(ctx context.Context, evt event.PriceUpdated) error {
	return e.record(ctx, ActionPriceUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePrice, evt.AppID, "", CategoryBilling, nil,
		"event_id", evt.ID.String(),
		"sequence", evt.Sequence,
		"price_per_unit", evt.NewPrice.AmountString(),
		"currency", evt.NewPrice.Currency,
	)
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (e *Extension) OnFundsWithdrawn(ctx context.Context, evt event.FundsWithdrawn) error {
	return e.record(ctx, ActionFundsWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceTreasury, evt.Reference.String(), evt.Recipient, CategoryPayment, nil,
		"event_id", evt.ID.String(),
		"sequence", evt.Sequence,
		"amount", evt.Amount.AmountString(),
		"currency", evt.Amount.Currency,
	)
}

// OnAccessDenied implements plugin.OnAccessDenied.
func (e *Extension) OnAccessDenied(ctx context.Context, caller types.Principal, operation string) error {
	return e.record(ctx, ActionAccessDenied, SeverityCritical, OutcomeFailure,
		ResourceTreasury, operation, caller, CategoryAccess, nil,
		"operation", operation,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID string,
	actor types.Principal,
	category string,
	err error,
	kvPairs ...any,
) error {
	if !e.Enabled(action) {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor.String(),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
