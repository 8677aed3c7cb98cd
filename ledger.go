package tally

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/payout"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/state"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// DefaultAppID is used when no app ID is configured.
const DefaultAppID = "default"

// TreasuryMode selects how WithdrawFunds computes the withdrawable amount.
type TreasuryMode string

const (
	// TreasuryDrain withdraws every held unit, including funds that back
	// account balances. Balances are left untouched, so the ledger can end up
	// holding less than it owes; Solvency reports the gap.
	TreasuryDrain TreasuryMode = "drain"

	// TreasuryEscrow withdraws only unattributed funds (usage revenue), so
	// every balance stays backed.
	TreasuryEscrow TreasuryMode = "escrow"
)

// Valid reports whether m is a known mode.
func (m TreasuryMode) Valid() bool {
	return m == TreasuryDrain || m == TreasuryEscrow
}

// Ledger is the prepaid-usage billing engine. Callers deposit into a
// per-principal balance, usage charges units times the current unit price,
// and the administrator may change the price and withdraw held funds.
//
// Every state-changing operation runs under one exclusive lock for its whole
// check-compute-persist sequence, so operations are totally ordered and a
// failed operation leaves no partial change.
type Ledger struct {
	mu sync.RWMutex

	store   store.Store
	wallet  payout.Wallet
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	// Configuration
	appID         string
	admin         types.Principal
	initialPrice  types.Money
	treasury      TreasuryMode
	strictPricing bool
	skipMigrate   bool

	// Loaded on Start
	state *state.State
}

// New creates a new Ledger instance. admin becomes the immutable
// administrator and initialPrice the unit price used when no persisted state
// exists yet. The currency of initialPrice, lowercased, is the ledger's only
// currency.
func New(s store.Store, admin types.Principal, initialPrice types.Money, opts ...Option) (*Ledger, error) {
	admin = types.NewPrincipal(admin.String())
	initialPrice.Currency = strings.ToLower(strings.TrimSpace(initialPrice.Currency))

	l := &Ledger{
		store:        s,
		wallet:       payout.Unbounded(),
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		appID:        DefaultAppID,
		admin:        admin,
		initialPrice: initialPrice,
		treasury:     TreasuryDrain,
	}

	for _, opt := range opts {
		opt(l)
	}

	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) validate() error {
	var errs MultiError
	if l.store == nil {
		errs.Add(fmt.Errorf("%w: store is required", ErrInvalidConfig))
	}
	if l.admin.IsZero() {
		errs.Add(fmt.Errorf("%w: administrator is required", ErrInvalidConfig))
	}
	if l.initialPrice.Currency == "" {
		errs.Add(fmt.Errorf("%w: price currency is required", ErrInvalidConfig))
	}
	if l.strictPricing && l.initialPrice.IsZero() {
		errs.Add(fmt.Errorf("%w: unit price must be positive", ErrInvalidConfig))
	}
	if !l.treasury.Valid() {
		errs.Add(fmt.Errorf("%w: unknown treasury mode %q", ErrInvalidConfig, l.treasury))
	}
	if l.appID == "" {
		errs.Add(fmt.Errorf("%w: app ID is required", ErrInvalidConfig))
	}
	return errs.ErrOrNil()
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// WithWallet sets the custody wallet used by top-ups and withdrawals.
func WithWallet(w payout.Wallet) Option {
	return func(l *Ledger) {
		if w != nil {
			l.wallet = w
		}
	}
}

// WithAppID scopes all persisted records to appID.
func WithAppID(appID string) Option {
	return func(l *Ledger) {
		l.appID = appID
	}
}

// WithTreasuryMode selects the withdrawal policy. The default is TreasuryDrain.
func WithTreasuryMode(m TreasuryMode) Option {
	return func(l *Ledger) {
		l.treasury = m
	}
}

// WithStrictPricing rejects a zero unit price at construction and on update.
func WithStrictPricing() Option {
	return func(l *Ledger) {
		l.strictPricing = true
	}
}

// WithoutMigrate makes Start load state without migrating the store first.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Start migrates the store and loads the ledger state, bootstrapping it from
// the configured administrator and price on first run.
func (l *Ledger) Start(ctx context.Context) error {
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}

	l.mu.Lock()
	st, err := l.load(ctx)
	if err == nil {
		l.state = st
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	l.logger.Info("tally ledger started",
		"app_id", l.appID,
		"administrator", st.Administrator,
		"price_per_unit", st.PricePerUnit.String(),
		"treasury_mode", l.treasury,
		"sequence", st.Sequence,
	)

	return nil
}

func (l *Ledger) load(ctx context.Context) (*state.State, error) {
	st, err := l.store.GetState(ctx, l.appID)
	switch {
	case err == nil:
		if st.Administrator != l.admin {
			return nil, fmt.Errorf("%w: have %q, configured %q", ErrAdministratorMismatch, st.Administrator, l.admin)
		}
		if st.Currency() != l.initialPrice.Currency {
			return nil, fmt.Errorf("%w: persisted ledger uses %s", ErrCurrencyMismatch, st.Currency())
		}
		return st, nil
	case IsNotFound(err):
		st = state.New(l.appID, l.admin, l.initialPrice)
		st.CreatedAt, st.UpdatedAt = l.now(), l.now()
		if err := l.store.CreateState(ctx, st); err != nil {
			return nil, fmt.Errorf("tally: bootstrap state: %w", err)
		}
		l.logger.Info("tally ledger bootstrapped", "app_id", l.appID)
		return st, nil
	default:
		return nil, fmt.Errorf("tally: load state: %w", err)
	}
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	l.mu.Lock()
	l.state = nil
	l.mu.Unlock()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// TopUpBalance collects amount from caller and credits it to the caller's
// balance. Zero amounts are accepted.
func (l *Ledger) TopUpBalance(ctx context.Context, caller types.Principal, amount types.Money) (event.BalanceToppedUp, error) {
	caller = types.NewPrincipal(caller.String())
	amount.Currency = strings.ToLower(amount.Currency)
	if err := validateCaller(caller); err != nil {
		return event.BalanceToppedUp{}, err
	}

	l.mu.Lock()
	e, err := l.topUp(ctx, caller, amount)
	l.mu.Unlock()
	if err != nil {
		l.logger.Debug("top-up failed", "caller", caller, "amount", amount.String(), "error", err)
		return event.BalanceToppedUp{}, err
	}

	l.plugins.EmitBalanceToppedUp(ctx, e)
	return e, nil
}

func (l *Ledger) topUp(ctx context.Context, caller types.Principal, amount types.Money) (event.BalanceToppedUp, error) {
	st, err := l.ready()
	if err != nil {
		return event.BalanceToppedUp{}, err
	}
	if err := l.checkCurrency(st, amount); err != nil {
		return event.BalanceToppedUp{}, err
	}

	acct, err := l.account(ctx, st, caller)
	if err != nil {
		return event.BalanceToppedUp{}, err
	}

	next := st.Clone()
	if acct.Balance, err = acct.Balance.Add(amount); err != nil {
		return event.BalanceToppedUp{}, err
	}
	if next.Held, err = next.Held.Add(amount); err != nil {
		return event.BalanceToppedUp{}, err
	}
	if next.Outstanding, err = next.Outstanding.Add(amount); err != nil {
		return event.BalanceToppedUp{}, err
	}

	if err := l.wallet.Collect(ctx, caller, amount); err != nil {
		return event.BalanceToppedUp{}, fmt.Errorf("tally: collect top-up: %w", err)
	}

	now := l.now()
	next.Sequence++
	next.UpdatedAt = now
	acct.UpdatedAt = now

	entry := l.entry(next, journal.KindTopUp, caller, now)
	entry.Amount = amount
	entry.BalanceAfter = acct.Balance

	if err := l.store.Apply(ctx, &store.Mutation{State: next, Account: acct, Entry: entry}); err != nil {
		l.compensate(ctx, "refund top-up", func(ctx context.Context) error {
			return l.wallet.Disburse(ctx, caller, amount)
		}, "caller", caller, "amount", amount.String())
		return event.BalanceToppedUp{}, fmt.Errorf("tally: persist top-up: %w", err)
	}
	l.state = next

	return event.BalanceToppedUp{
		Meta:   event.NewMeta(l.appID, next.Sequence, now),
		Caller: caller,
		Amount: amount,
	}, nil
}

// RecordUsage charges caller units times the current unit price. It fails
// with ErrInsufficientBalance, leaving the balance unchanged, when the
// balance cannot cover the cost.
func (l *Ledger) RecordUsage(ctx context.Context, caller types.Principal, units uint64) (event.UsageRecorded, error) {
	caller = types.NewPrincipal(caller.String())
	if err := validateCaller(caller); err != nil {
		return event.UsageRecorded{}, err
	}

	l.mu.Lock()
	e, err := l.recordUsage(ctx, caller, units)
	l.mu.Unlock()
	if err != nil {
		l.logger.Debug("usage rejected", "caller", caller, "units", units, "error", err)
		l.plugins.EmitUsageRejected(ctx, caller, units, err)
		return event.UsageRecorded{}, err
	}

	l.plugins.EmitUsageRecorded(ctx, e)
	return e, nil
}

func (l *Ledger) recordUsage(ctx context.Context, caller types.Principal, units uint64) (event.UsageRecorded, error) {
	st, err := l.ready()
	if err != nil {
		return event.UsageRecorded{}, err
	}

	cost, err := st.PricePerUnit.Multiply(units)
	if err != nil {
		return event.UsageRecorded{}, err
	}

	acct, err := l.account(ctx, st, caller)
	if err != nil {
		return event.UsageRecorded{}, err
	}
	if acct.Balance.LessThan(cost) {
		return event.UsageRecorded{}, ErrInsufficientBalance
	}

	next := st.Clone()
	if acct.Balance, err = acct.Balance.Subtract(cost); err != nil {
		return event.UsageRecorded{}, err
	}
	if next.Outstanding, err = next.Outstanding.Subtract(cost); err != nil {
		return event.UsageRecorded{}, fmt.Errorf("tally: outstanding total out of sync: %w", err)
	}

	now := l.now()
	next.Sequence++
	next.UpdatedAt = now
	acct.UpdatedAt = now

	entry := l.entry(next, journal.KindUsage, caller, now)
	entry.Units = units
	entry.Amount = cost
	entry.BalanceAfter = acct.Balance

	m := &store.Mutation{State: next, Account: acct, Entry: entry}
	if cost.IsZero() {
		// Nothing to debit; avoid materialising an account for a principal
		// that never topped up.
		m.Account = nil
	}
	if err := l.store.Apply(ctx, m); err != nil {
		return event.UsageRecorded{}, fmt.Errorf("tally: persist usage: %w", err)
	}
	l.state = next

	return event.UsageRecorded{
		Meta:   event.NewMeta(l.appID, next.Sequence, now),
		Caller: caller,
		Units:  units,
		Cost:   cost,
	}, nil
}

// UpdatePrice sets the unit price applied to all later usage. Only the
// administrator may call it.
func (l *Ledger) UpdatePrice(ctx context.Context, caller types.Principal, newPrice types.Money) (event.PriceUpdated, error) {
	caller = types.NewPrincipal(caller.String())
	newPrice.Currency = strings.ToLower(newPrice.Currency)
	l.mu.Lock()
	e, err := l.updatePrice(ctx, caller, newPrice)
	l.mu.Unlock()
	if err != nil {
		l.denied(ctx, err, caller, "update_price")
		return event.PriceUpdated{}, err
	}

	l.logger.Info("unit price updated", "price_per_unit", newPrice.String(), "sequence", e.Sequence)
	l.plugins.EmitPriceUpdated(ctx, e)
	return e, nil
}

func (l *Ledger) updatePrice(ctx context.Context, caller types.Principal, newPrice types.Money) (event.PriceUpdated, error) {
	st, err := l.ready()
	if err != nil {
		return event.PriceUpdated{}, err
	}
	if caller != st.Administrator {
		return event.PriceUpdated{}, ErrUnauthorized
	}
	if err := l.checkCurrency(st, newPrice); err != nil {
		return event.PriceUpdated{}, err
	}
	if l.strictPricing && newPrice.IsZero() {
		return event.PriceUpdated{}, fmt.Errorf("%w: unit price must be positive", ErrInvalidConfig)
	}

	now := l.now()
	next := st.Clone()
	next.PricePerUnit = newPrice
	next.Sequence++
	next.UpdatedAt = now

	entry := l.entry(next, journal.KindPriceUpdate, caller, now)
	entry.Amount = newPrice

	if err := l.store.Apply(ctx, &store.Mutation{State: next, Entry: entry}); err != nil {
		return event.PriceUpdated{}, fmt.Errorf("tally: persist price update: %w", err)
	}
	l.state = next

	return event.PriceUpdated{
		Meta:     event.NewMeta(l.appID, next.Sequence, now),
		NewPrice: newPrice,
	}, nil
}

// WithdrawFunds disburses held funds to the administrator. Only the
// administrator may call it. The amount depends on the treasury mode.
func (l *Ledger) WithdrawFunds(ctx context.Context, caller types.Principal) (event.FundsWithdrawn, error) {
	caller = types.NewPrincipal(caller.String())
	l.mu.Lock()
	e, err := l.withdraw(ctx, caller)
	l.mu.Unlock()
	if err != nil {
		l.denied(ctx, err, caller, "withdraw_funds")
		return event.FundsWithdrawn{}, err
	}

	l.logger.Info("funds withdrawn",
		"recipient", e.Recipient,
		"amount", e.Amount.String(),
		"treasury_mode", l.treasury,
	)
	l.plugins.EmitFundsWithdrawn(ctx, e)
	return e, nil
}

func (l *Ledger) withdraw(ctx context.Context, caller types.Principal) (event.FundsWithdrawn, error) {
	st, err := l.ready()
	if err != nil {
		return event.FundsWithdrawn{}, err
	}
	if caller != st.Administrator {
		return event.FundsWithdrawn{}, ErrUnauthorized
	}

	amount := st.Held
	if l.treasury == TreasuryEscrow {
		amount = st.Unattributed()
	}

	next := st.Clone()
	if next.Held, err = next.Held.Subtract(amount); err != nil {
		return event.FundsWithdrawn{}, err
	}

	if amount.IsPositive() {
		if err := l.wallet.Disburse(ctx, st.Administrator, amount); err != nil {
			return event.FundsWithdrawn{}, fmt.Errorf("tally: disburse withdrawal: %w", err)
		}
	}

	now := l.now()
	next.Sequence++
	next.UpdatedAt = now

	entry := l.entry(next, journal.KindWithdrawal, caller, now)
	entry.Amount = amount
	entry.BalanceAfter = next.Held

	if err := l.store.Apply(ctx, &store.Mutation{State: next, Entry: entry}); err != nil {
		if amount.IsPositive() {
			l.compensate(ctx, "claw back withdrawal", func(ctx context.Context) error {
				return l.wallet.Collect(ctx, st.Administrator, amount)
			}, "recipient", st.Administrator, "amount", amount.String())
		}
		return event.FundsWithdrawn{}, fmt.Errorf("tally: persist withdrawal: %w", err)
	}
	l.state = next

	return event.FundsWithdrawn{
		Meta:      event.NewMeta(l.appID, next.Sequence, now),
		Reference: id.NewWithdrawalID(),
		Recipient: st.Administrator,
		Amount:    amount,
	}, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Owner returns the administrator principal.
func (l *Ledger) Owner() types.Principal { return l.admin }

// Administrator is an alias for Owner.
func (l *Ledger) Administrator() types.Principal { return l.admin }

// AppID returns the app scope of the ledger.
func (l *Ledger) AppID() string { return l.appID }

// Currency returns the ledger currency.
func (l *Ledger) Currency() string { return l.initialPrice.Currency }

// TreasuryMode returns the configured withdrawal policy.
func (l *Ledger) TreasuryMode() TreasuryMode { return l.treasury }

// PricePerUsage returns the current unit price. Before Start it returns the
// configured initial price.
func (l *Ledger) PricePerUsage() types.Money {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state == nil {
		return l.initialPrice
	}
	return l.state.PricePerUnit
}

// PricePerUnit is an alias for PricePerUsage.
func (l *Ledger) PricePerUnit() types.Money { return l.PricePerUsage() }

// UserBalance returns principal's balance. Unknown principals read as zero.
func (l *Ledger) UserBalance(ctx context.Context, principal types.Principal) (types.Money, error) {
	principal = types.NewPrincipal(principal.String())
	l.mu.RLock()
	defer l.mu.RUnlock()

	st, err := l.ready()
	if err != nil {
		return types.Money{}, err
	}
	acct, err := l.account(ctx, st, principal)
	if err != nil {
		return types.Money{}, err
	}
	return acct.Balance, nil
}

// HeldFunds returns the funds currently in the ledger's custody.
func (l *Ledger) HeldFunds() types.Money {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state == nil {
		return types.Zero(l.initialPrice.Currency)
	}
	return l.state.Held
}

// Solvency returns held funds against outstanding balances.
func (l *Ledger) Solvency() state.Solvency {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state == nil {
		zero := types.Zero(l.initialPrice.Currency)
		return state.Solvency{Held: zero, Outstanding: zero, Unattributed: zero, Shortfall: zero}
	}
	return l.state.Solvency()
}

// State returns a copy of the current ledger state.
func (l *Ledger) State() (*state.State, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st, err := l.ready()
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Accounts lists account balances ordered by principal.
func (l *Ledger) Accounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	if _, err := l.State(); err != nil {
		return nil, err
	}
	return l.store.ListAccounts(ctx, l.appID, opts)
}

// Entries lists journal entries in sequence order.
func (l *Ledger) Entries(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	if _, err := l.State(); err != nil {
		return nil, err
	}
	return l.store.ListEntries(ctx, l.appID, opts)
}

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// ready returns the loaded state. Callers must hold l.mu.
func (l *Ledger) ready() (*state.State, error) {
	if l.state == nil {
		return nil, ErrStoreNotReady
	}
	return l.state, nil
}

func (l *Ledger) account(ctx context.Context, st *state.State, principal types.Principal) (*account.Account, error) {
	acct, err := l.store.GetAccount(ctx, l.appID, principal)
	switch {
	case err == nil:
		return acct, nil
	case IsNotFound(err):
		acct = account.New(l.appID, principal, st.Currency())
		acct.CreatedAt, acct.UpdatedAt = l.now(), l.now()
		return acct, nil
	default:
		return nil, fmt.Errorf("tally: load account: %w", err)
	}
}

func (l *Ledger) checkCurrency(st *state.State, m types.Money) error {
	if m.Currency != st.Currency() {
		return fmt.Errorf("%w: ledger uses %s, got %s", ErrCurrencyMismatch, st.Currency(), m.Currency)
	}
	return nil
}

func (l *Ledger) entry(st *state.State, kind journal.Kind, principal types.Principal, at time.Time) *journal.Entry {
	zero := types.Zero(st.Currency())
	return &journal.Entry{
		ID:           id.NewEntryID(),
		AppID:        l.appID,
		Sequence:     st.Sequence,
		Kind:         kind,
		Principal:    principal,
		Amount:       zero,
		UnitPrice:    st.PricePerUnit,
		BalanceAfter: zero,
		Timestamp:    at,
	}
}

// compensate reverses a wallet movement after a failed persist. The original
// context may already be canceled, so cancellation is detached.
func (l *Ledger) compensate(ctx context.Context, action string, fn func(context.Context) error, args ...any) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		l.logger.Error("tally: compensation failed; wallet and ledger disagree",
			append([]any{"action", action, "error", err}, args...)...,
		)
		return
	}
	l.logger.Warn("tally: compensated wallet movement", append([]any{"action", action}, args...)...)
}

func (l *Ledger) denied(ctx context.Context, err error, caller types.Principal, operation string) {
	if IsAuthorizationError(err) {
		l.logger.Warn("privileged operation denied", "caller", caller, "operation", operation)
		l.plugins.EmitAccessDenied(ctx, caller, operation)
		return
	}
	l.logger.Debug(operation+" failed", "caller", caller, "error", err)
}

func validateCaller(caller types.Principal) error {
	if caller.IsZero() {
		return ValidationError{Field: "caller", Message: "principal is required"}
	}
	return nil
}
