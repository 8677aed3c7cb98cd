// Package event defines the events emitted by ledger operations.
package event

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Event names.
const (
	NameBalanceToppedUp = "BalanceToppedUp"
	NameUsageRecorded   = "UsageRecorded"
	NamePriceUpdated    = "PriceUpdated"
	NameFundsWithdrawn  = "FundsWithdrawn"
)

// Event is implemented by every emitted event.
type Event interface {
	Name() string
	Metadata() Meta
}

// Meta is the envelope shared by all events.
type Meta struct {
	ID        id.ID     `json:"id"`
	AppID     string    `json:"app_id"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMeta stamps a new envelope.
func NewMeta(appID string, seq uint64, at time.Time) Meta {
	return Meta{
		ID:        id.NewEventID(),
		AppID:     appID,
		Sequence:  seq,
		Timestamp: at,
	}
}

// BalanceToppedUp is emitted after funds are credited to Caller.
type BalanceToppedUp struct {
	Meta
	Caller types.Principal `json:"caller"`
	Amount types.Money     `json:"amount"`
}

func (BalanceToppedUp) Name() string     { return NameBalanceToppedUp }
func (e BalanceToppedUp) Metadata() Meta { return e.Meta }

// UsageRecorded is emitted after Cost is deducted from Caller.
type UsageRecorded struct {
	Meta
	Caller types.Principal `json:"caller"`
	Units  uint64          `json:"units"`
	Cost   types.Money     `json:"cost"`
}

func (UsageRecorded) Name() string     { return NameUsageRecorded }
func (e UsageRecorded) Metadata() Meta { return e.Meta }

// PriceUpdated is emitted after the administrator changes the unit price.
type PriceUpdated struct {
	Meta
	NewPrice types.Money `json:"new_price"`
}

func (PriceUpdated) Name() string     { return NamePriceUpdated }
func (e PriceUpdated) Metadata() Meta { return e.Meta }

// FundsWithdrawn is dispatched to plugins after held funds are disbursed.
type FundsWithdrawn struct {
	Meta
	Reference id.ID           `json:"reference"`
	Recipient types.Principal `json:"recipient"`
	Amount    types.Money     `json:"amount"`
}

func (FundsWithdrawn) Name() string     { return NameFundsWithdrawn }
func (e FundsWithdrawn) Metadata() Meta { return e.Meta }
