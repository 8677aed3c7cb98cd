package account

import (
	"github.com/xraph/tally/types"
)

// Account is a principal's prepaid balance. Accounts are created on the
// first top-up and are never destroyed; a balance may return to zero.
type Account struct {
	types.Entity
	AppID     string          `json:"app_id"`
	Principal types.Principal `json:"principal"`
	Balance   types.Money     `json:"balance"`
}

// New returns an empty account for principal.
func New(appID string, principal types.Principal, currency string) *Account {
	return &Account{
		Entity:    types.NewEntity(),
		AppID:     appID,
		Principal: principal,
		Balance:   types.Zero(currency),
	}
}

// Clone returns a copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
