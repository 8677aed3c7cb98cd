package audithook

// Action constants for audit events.
const (
	// Balance actions
	ActionBalanceToppedUp = "balance.topped_up"

	// Usage actions
	ActionUsageRecorded = "usage.recorded"
	ActionUsageRejected = "usage.rejected"

	// Administrator actions
	ActionPriceUpdated   = "price.updated"
	ActionFundsWithdrawn = "funds.withdrawn"
	ActionAccessDenied   = "access.denied"
)

// Resource constants for audit events.
const (
	ResourceAccount  = "account"
	ResourceUsage    = "usage"
	ResourcePrice    = "price"
	ResourceTreasury = "treasury"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryUsage   = "usage"
	CategoryAccess  = "access"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
