// Package journal records one append-only entry per applied ledger operation.
package journal

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindTopUp       Kind = "top_up"
	KindUsage       Kind = "usage"
	KindPriceUpdate Kind = "price_update"
	KindWithdrawal  Kind = "withdrawal"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTopUp, KindUsage, KindPriceUpdate, KindWithdrawal:
		return true
	}
	return false
}

// Entry is an applied operation.
//
// Amount holds the top-up amount, the usage cost, the new unit price or the
// withdrawn amount depending on Kind. BalanceAfter is the principal's
// balance after a top-up or usage and the held funds after a withdrawal.
type Entry struct {
	ID           id.ID           `json:"id"`
	AppID        string          `json:"app_id"`
	Sequence     uint64          `json:"sequence"`
	Kind         Kind            `json:"kind"`
	Principal    types.Principal `json:"principal"`
	Units        uint64          `json:"units,omitempty"`
	Amount       types.Money     `json:"amount"`
	UnitPrice    types.Money     `json:"unit_price"`
	BalanceAfter types.Money     `json:"balance_after"`
	Timestamp    time.Time       `json:"timestamp"`
}
