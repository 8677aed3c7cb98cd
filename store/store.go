package store

import (
	"context"
	"errors"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	"github.com/xraph/tally/types"
)

// Store is the unified storage interface for all Tally records.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to keep the backend contract in one place.
type Store interface {
	// State methods
	GetState(ctx context.Context, appID string) (*state.State, error)
	CreateState(ctx context.Context, s *state.State) error

	// Account methods
	GetAccount(ctx context.Context, appID string, principal types.Principal) (*account.Account, error)
	ListAccounts(ctx context.Context, appID string, opts account.ListOpts) ([]*account.Account, error)

	// Journal methods
	ListEntries(ctx context.Context, appID string, opts journal.ListOpts) ([]*journal.Entry, error)

	// Apply persists every write produced by one ledger operation.
	Apply(ctx context.Context, m *Mutation) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Mutation groups the writes of a single applied operation: the new ledger
// state, the touched account (nil for price updates and withdrawals) and the
// journal entry.
type Mutation struct {
	State   *state.State
	Account *account.Account
	Entry   *journal.Entry
}

// ErrEmptyMutation is returned by Validate when State or Entry is missing.
var ErrEmptyMutation = errors.New("tally/store: mutation requires state and entry")

// Validate checks that m carries the mandatory parts.
func (m *Mutation) Validate() error {
	if m == nil || m.State == nil || m.Entry == nil {
		return ErrEmptyMutation
	}
	return nil
}

// Page applies limit/offset to n items and returns the slice bounds.
// A zero limit means no limit.
func Page(n, limit, offset int) (int, int) {
	start := offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + limit
	if limit <= 0 || end > n {
		end = n
	}
	return start, end
}
