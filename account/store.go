package account

import (
	"context"

	"github.com/xraph/tally/types"
)

// Store reads account balances. Writes go through store.Mutation so that an
// account change is always persisted together with the ledger state.
type Store interface {
	GetAccount(ctx context.Context, appID string, principal types.Principal) (*Account, error)
	ListAccounts(ctx context.Context, appID string, opts ListOpts) ([]*Account, error)
}

// ListOpts pages through accounts ordered by principal.
type ListOpts struct {
	Limit  int
	Offset int
}
