// Package payout models custody of funds outside the ledger. A top-up
// collects funds from the caller's wallet; a withdrawal disburses held funds
// to the administrator's wallet.
package payout

import (
	"context"
	"errors"

	"github.com/xraph/tally/types"
)

// ErrInsufficientFunds is returned by Collect when the payer's external
// balance cannot cover the amount.
var ErrInsufficientFunds = errors.New("tally/payout: insufficient external funds")

// Wallet moves funds between external principals and the ledger.
type Wallet interface {
	// Collect takes amount from principal into ledger custody.
	Collect(ctx context.Context, from types.Principal, amount types.Money) error

	// Disburse sends amount from ledger custody to principal.
	Disburse(ctx context.Context, to types.Principal, amount types.Money) error
}

type unbounded struct{}

// Unbounded returns a Wallet whose movements always succeed. It suits
// deployments where funds are settled outside the process.
func Unbounded() Wallet { return unbounded{} }

func (unbounded) Collect(context.Context, types.Principal, types.Money) error  { return nil }
func (unbounded) Disburse(context.Context, types.Principal, types.Money) error { return nil }
