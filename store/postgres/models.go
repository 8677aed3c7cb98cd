package postgres

import (
	"strconv"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	"github.com/xraph/tally/types"
)

// Amounts are stored as base-10 TEXT because uint64 minor units exceed BIGINT.

// ==================== State models ====================

type stateModel struct {
	grove.BaseModel `grove:"table:tally_state"`

	AppID         string    `grove:"app_id,pk"`
	Administrator string    `grove:"administrator"`
	Currency      string    `grove:"currency"`
	PricePerUnit  string    `grove:"price_per_unit"`
	Held          string    `grove:"held"`
	Outstanding   string    `grove:"outstanding"`
	Sequence      int64     `grove:"sequence"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toStateModel(s *state.State) *stateModel {
	return &stateModel{
		AppID:         s.AppID,
		Administrator: s.Administrator.String(),
		Currency:      s.Currency(),
		PricePerUnit:  s.PricePerUnit.AmountString(),
		Held:          s.Held.AmountString(),
		Outstanding:   s.Outstanding.AmountString(),
		Sequence:      int64(s.Sequence), //nolint:gosec // sequence counts operations
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromStateModel(m *stateModel) (*state.State, error) {
	price, err := types.FromStorage(m.PricePerUnit, m.Currency)
	if err != nil {
		return nil, err
	}
	held, err := types.FromStorage(m.Held, m.Currency)
	if err != nil {
		return nil, err
	}
	outstanding, err := types.FromStorage(m.Outstanding, m.Currency)
	if err != nil {
		return nil, err
	}

	return &state.State{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		AppID:         m.AppID,
		Administrator: types.Principal(m.Administrator),
		PricePerUnit:  price,
		Held:          held,
		Outstanding:   outstanding,
		Sequence:      uint64(m.Sequence), //nolint:gosec // never negative
	}, nil
}

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:tally_accounts"`

	AppID     string    `grove:"app_id,pk"`
	Principal string    `grove:"principal,pk"`
	Currency  string    `grove:"currency"`
	Balance   string    `grove:"balance"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		AppID:     a.AppID,
		Principal: a.Principal.String(),
		Currency:  a.Balance.Currency,
		Balance:   a.Balance.AmountString(),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	bal, err := types.FromStorage(m.Balance, m.Currency)
	if err != nil {
		return nil, err
	}
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		AppID:     m.AppID,
		Principal: types.Principal(m.Principal),
		Balance:   bal,
	}, nil
}

// ==================== Journal models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:tally_entries"`

	ID           string    `grove:"id,pk"`
	AppID        string    `grove:"app_id"`
	Sequence     int64     `grove:"sequence"`
	Kind         string    `grove:"kind"`
	Principal    string    `grove:"principal"`
	Units        string    `grove:"units"`
	Currency     string    `grove:"currency"`
	Amount       string    `grove:"amount"`
	UnitPrice    string    `grove:"unit_price"`
	BalanceAfter string    `grove:"balance_after"`
	Timestamp    time.Time `grove:"timestamp"`
}

func toEntryModel(e *journal.Entry) *entryModel {
	return &entryModel{
		ID:           e.ID.String(),
		AppID:        e.AppID,
		Sequence:     int64(e.Sequence), //nolint:gosec // sequence counts operations
		Kind:         string(e.Kind),
		Principal:    e.Principal.String(),
		Units:        strconv.FormatUint(e.Units, 10),
		Currency:     e.Amount.Currency,
		Amount:       e.Amount.AmountString(),
		UnitPrice:    e.UnitPrice.AmountString(),
		BalanceAfter: e.BalanceAfter.AmountString(),
		Timestamp:    e.Timestamp,
	}
}

func fromEntryModel(m *entryModel) (*journal.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	units, err := strconv.ParseUint(m.Units, 10, 64)
	if err != nil {
		return nil, err
	}
	amount, err := types.FromStorage(m.Amount, m.Currency)
	if err != nil {
		return nil, err
	}
	unitPrice, err := types.FromStorage(m.UnitPrice, m.Currency)
	if err != nil {
		return nil, err
	}
	balanceAfter, err := types.FromStorage(m.BalanceAfter, m.Currency)
	if err != nil {
		return nil, err
	}

	return &journal.Entry{
		ID:           entryID,
		AppID:        m.AppID,
		Sequence:     uint64(m.Sequence), //nolint:gosec // never negative
		Kind:         journal.Kind(m.Kind),
		Principal:    types.Principal(m.Principal),
		Units:        units,
		Amount:       amount,
		UnitPrice:    unitPrice,
		BalanceAfter: balanceAfter,
		Timestamp:    m.Timestamp,
	}, nil
}
