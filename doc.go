// Package tally provides a prepaid-usage billing ledger for Go applications.
//
// Account holders deposit funds into a per-principal balance, usage is
// charged at a flat per-unit price against that balance, and a single
// administrator may change the unit price and withdraw the funds the ledger
// holds. Tally is a library: import it directly and pick a store.
//
//   - No double spend: every state-changing operation is serialized
//   - No negative balances: amounts are unsigned with checked arithmetic
//   - Only the administrator can change the price or withdraw funds
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/memory"
//	    "github.com/xraph/tally/types"
//	)
//
//	l, err := tally.New(memory.New(), "0xadmin", types.MustParse("0.01", "eth"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	l.TopUpBalance(ctx, "0xalice", types.MustParse("1", "eth"))
//	l.RecordUsage(ctx, "0xalice", 10)
//
// # Operations
//
// TopUpBalance collects funds through the configured payout.Wallet and
// credits the caller. RecordUsage deducts units times the unit price and
// fails with ErrInsufficientBalance when the balance cannot cover it.
// UpdatePrice and WithdrawFunds fail with ErrUnauthorized for anyone but the
// administrator.
//
// # Treasury modes
//
// In TreasuryDrain mode (the default) a withdrawal takes every held unit,
// including funds that back balances, and leaves balances untouched; after
// such a withdrawal Solvency reports a non-zero Shortfall. TreasuryEscrow
// withdraws only unattributed usage revenue.
//
// # Stores
//
// The memory and pgxstore backends apply each operation's writes in one
// transaction. The grove-backed postgres, sqlite and mongo stores write the
// parts in order while the ledger lock is held.
//
// # TypeID
//
// Journal entries and events use TypeID identifiers:
//
//	entry_01h2xcejqtf2nbrexx3vqjhp41  // Journal entry
//	evt_01h2xcejqtf2nbrexx3vqjhp41    // Event
//	wdr_01h455vb4pex5vsknk084sn02q    // Withdrawal reference
package tally
