// Package state holds the ledger-wide scalars: administrator, unit price,
// custody totals and the operation sequence.
package state

import (
	"github.com/xraph/tally/types"
)

// State is the persisted ledger record for one app.
//
// Held counts funds in the ledger's custody (top-ups minus withdrawals).
// Outstanding is the sum of all account balances.
type State struct {
	types.Entity
	AppID         string          `json:"app_id"`
	Administrator types.Principal `json:"administrator"`
	PricePerUnit  types.Money     `json:"price_per_unit"`
	Held          types.Money     `json:"held"`
	Outstanding   types.Money     `json:"outstanding"`
	Sequence      uint64          `json:"sequence"`
}

// New returns the initial state for a freshly bootstrapped ledger.
func New(appID string, admin types.Principal, price types.Money) *State {
	return &State{
		Entity:        types.NewEntity(),
		AppID:         appID,
		Administrator: admin,
		PricePerUnit:  price,
		Held:          types.Zero(price.Currency),
		Outstanding:   types.Zero(price.Currency),
	}
}

// Currency is the single currency the ledger accounts in.
func (s *State) Currency() string { return s.PricePerUnit.Currency }

// Unattributed is usage revenue held by the ledger that backs no balance.
func (s *State) Unattributed() types.Money {
	return s.Held.SaturatingSubtract(s.Outstanding)
}

// Shortfall is the amount by which balances exceed held funds. It is only
// non-zero after a full drain.
func (s *State) Shortfall() types.Money {
	return s.Outstanding.SaturatingSubtract(s.Held)
}

// Solvency summarises custody totals.
type Solvency struct {
	Held         types.Money `json:"held"`
	Outstanding  types.Money `json:"outstanding"`
	Unattributed types.Money `json:"unattributed"`
	Shortfall    types.Money `json:"shortfall"`
}

// Solvency returns the custody totals of s.
func (s *State) Solvency() Solvency {
	return Solvency{
		Held:         s.Held,
		Outstanding:  s.Outstanding,
		Unattributed: s.Unattributed(),
		Shortfall:    s.Shortfall(),
	}
}

// Solvent reports whether every balance is backed by held funds.
func (s Solvency) Solvent() bool { return s.Shortfall.IsZero() }

// Clone returns a copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
