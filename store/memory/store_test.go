package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

func seed(t *testing.T, s *memory.Store) *state.State {
	t.Helper()
	st := state.New("app", "0xadmin", types.ETH(100))
	if err := s.CreateState(context.Background(), st); err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	return st
}

func topUp(st *state.State, principal types.Principal, amount uint64) *store.Mutation {
	next := st.Clone()
	next.Sequence++
	next.Held, _ = next.Held.Add(types.ETH(amount))
	next.Outstanding, _ = next.Outstanding.Add(types.ETH(amount))

	acct := account.New(st.AppID, principal, "eth")
	acct.Balance = types.ETH(amount)

	return &store.Mutation{
		State:   next,
		Account: acct,
		Entry: &journal.Entry{
			ID:           id.NewEntryID(),
			AppID:        st.AppID,
			Sequence:     next.Sequence,
			Kind:         journal.KindTopUp,
			Principal:    principal,
			Amount:       types.ETH(amount),
			BalanceAfter: acct.Balance,
			Timestamp:    time.Now(),
		},
	}
}

func TestStateLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, err := s.GetState(ctx, "app"); !errors.Is(err, tally.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}

	st := seed(t, s)
	if err := s.CreateState(ctx, st); !errors.Is(err, tally.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.GetState(ctx, "app")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	got.Sequence = 99
	again, _ := s.GetState(ctx, "app")
	if again.Sequence != 0 {
		t.Error("GetState must return a copy")
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	st := seed(t, s)

	m := topUp(st, "0xalice", 40)
	if err := s.Apply(ctx, m); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, _ := s.GetState(ctx, "app")
	if got.Sequence != 1 || !got.Held.Equal(types.ETH(40)) {
		t.Errorf("state not applied: %+v", got)
	}
	acct, err := s.GetAccount(ctx, "app", "0xalice")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.Balance.Equal(types.ETH(40)) {
		t.Errorf("balance: got %v, want 40 wei", acct.Balance)
	}

	entries, _ := s.ListEntries(ctx, "app", journal.ListOpts{})
	if len(entries) != 1 || entries[0].Kind != journal.KindTopUp {
		t.Errorf("entries: got %+v", entries)
	}
}

func TestApplyErrors(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	st := state.New("other", "0xadmin", types.ETH(1))

	if err := s.Apply(ctx, topUp(st, "0xalice", 1)); !errors.Is(err, tally.ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
	if err := s.Apply(ctx, &store.Mutation{}); !errors.Is(err, store.ErrEmptyMutation) {
		t.Errorf("expected ErrEmptyMutation, got %v", err)
	}

	seeded := seed(t, s)
	if err := s.Apply(ctx, topUp(seeded, "0xalice", 1)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Re-applying a mutation built on the old state must not overwrite.
	if err := s.Apply(ctx, topUp(seeded, "0xbob", 1)); !errors.Is(err, tally.ErrTransactionFailed) {
		t.Errorf("expected ErrTransactionFailed, got %v", err)
	}
}

func TestListFiltersAndPaging(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	st := seed(t, s)

	for _, p := range []types.Principal{"0xcarol", "0xalice", "0xbob", "0xalice"} {
		m := topUp(st, p, 1)
		if err := s.Apply(ctx, m); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		st = m.State
	}

	accounts, _ := s.ListAccounts(ctx, "app", account.ListOpts{})
	if len(accounts) != 3 || accounts[0].Principal != "0xalice" {
		t.Errorf("accounts should be sorted by principal: %+v", accounts)
	}

	tests := []struct {
		name string
		opts journal.ListOpts
		want int
	}{
		{"All", journal.ListOpts{}, 4},
		{"By principal", journal.ListOpts{Principal: "0xalice"}, 2},
		{"By kind", journal.ListOpts{Kind: journal.KindUsage}, 0},
		{"Limit", journal.ListOpts{Limit: 3}, 3},
		{"Offset past end", journal.ListOpts{Offset: 10}, 0},
		{"Limit and offset", journal.ListOpts{Limit: 2, Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEntries(ctx, "app", tt.opts)
			if err != nil {
				t.Fatalf("ListEntries: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}
