package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used when the recorder fails.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithEnabledActions restricts auditing to the given actions.
// Without it every action is audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithDisabledActions audits everything except the given actions.
// Combined with WithEnabledActions it removes from the enabled set.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = make(map[string]bool, len(allActions()))
			for _, action := range allActions() {
				e.enabled[action] = true
			}
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// Enabled reports whether action is audited.
func (e *Extension) Enabled(action string) bool {
	return e.enabled == nil || e.enabled[action]
}

// allActions returns all known audit actions.
func allActions() []string {
	return []string{
		ActionBalanceToppedUp,
		ActionUsageRecorded,
		ActionUsageRejected,
		ActionPriceUpdated,
		ActionFundsWithdrawn,
		ActionAccessDenied,
	}
}
