package payout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xraph/tally/types"
)

// Direction of a recorded transfer.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transfer is a wallet movement recorded by Memory.
type Transfer struct {
	Direction Direction
	Principal types.Principal
	Amount    types.Money
	At        time.Time
}

// Memory is an in-process Wallet that tracks each principal's external
// balance. It is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	balances  map[types.Principal]types.Money
	transfers []Transfer
}

var _ Wallet = (*Memory)(nil)

// NewMemory returns an empty in-memory wallet.
func NewMemory() *Memory {
	return &Memory{balances: make(map[types.Principal]types.Money)}
}

// Fund credits principal's external balance.
func (m *Memory) Fund(p types.Principal, amount types.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.balanceLocked(p, amount.Currency).Add(amount)
	if err != nil {
		return err
	}
	m.balances[p] = next
	return nil
}

// Balance returns principal's external balance in currency.
func (m *Memory) Balance(p types.Principal, currency string) types.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(p, currency)
}

// Transfers returns all recorded movements in order.
func (m *Memory) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

func (m *Memory) Collect(ctx context.Context, from types.Principal, amount types.Money) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.balanceLocked(from, amount.Currency).Subtract(amount)
	if err != nil {
		if errors.Is(err, types.ErrUnderflow) {
			return ErrInsufficientFunds
		}
		return err
	}
	m.balances[from] = next
	m.transfers = append(m.transfers, Transfer{Direction: DirectionIn, Principal: from, Amount: amount, At: time.Now().UTC()})
	return nil
}

func (m *Memory) Disburse(ctx context.Context, to types.Principal, amount types.Money) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.balanceLocked(to, amount.Currency).Add(amount)
	if err != nil {
		return err
	}
	m.balances[to] = next
	m.transfers = append(m.transfers, Transfer{Direction: DirectionOut, Principal: to, Amount: amount, At: time.Now().UTC()})
	return nil
}

func (m *Memory) balanceLocked(p types.Principal, currency string) types.Money {
	if b, ok := m.balances[p]; ok {
		return b
	}
	return types.Zero(currency)
}
