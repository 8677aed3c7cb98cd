package payout_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/tally/payout"
	"github.com/xraph/tally/types"
)

func TestMemoryCollect(t *testing.T) {
	ctx := context.Background()
	w := payout.NewMemory()
	if err := w.Fund("alice", types.USD(500)); err != nil {
		t.Fatalf("Fund: %v", err)
	}

	if err := w.Collect(ctx, "alice", types.USD(200)); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := w.Balance("alice", "usd"); !got.Equal(types.USD(300)) {
		t.Errorf("balance = %v, want 300", got)
	}

	err := w.Collect(ctx, "alice", types.USD(301))
	if !errors.Is(err, payout.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := w.Balance("alice", "usd"); !got.Equal(types.USD(300)) {
		t.Errorf("failed collect changed balance to %v", got)
	}
}

func TestMemoryDisburse(t *testing.T) {
	ctx := context.Background()
	w := payout.NewMemory()

	if err := w.Disburse(ctx, "admin", types.USD(250)); err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	if got := w.Balance("admin", "usd"); !got.Equal(types.USD(250)) {
		t.Errorf("balance = %v, want 250", got)
	}

	transfers := w.Transfers()
	if len(transfers) != 1 || transfers[0].Direction != payout.DirectionOut {
		t.Fatalf("unexpected transfers: %+v", transfers)
	}
}

func TestMemoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := payout.NewMemory()
	if err := w.Disburse(ctx, "admin", types.USD(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUnbounded(t *testing.T) {
	w := payout.Unbounded()
	if err := w.Collect(context.Background(), "anyone", types.USD(1<<62)); err != nil {
		t.Fatalf("Collect: %v", err)
	}
}
