package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	"github.com/xraph/tally/types"
)

const insertApply = `
INSERT INTO tally_apply (
    app_id, sequence, price_per_unit, held, outstanding, updated_at,
    has_account, account_principal, account_currency, account_balance, account_created_at,
    entry_id, entry_kind, entry_principal, entry_units, entry_currency,
    entry_amount, entry_unit_price, entry_balance_after, entry_timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// openSchema opens a private in-memory database with the migrated schema.
func openSchema(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, ddl := range []string{createStateTable, createAccountsTable, createEntriesTable, createApplyView} {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}

func seedState(t *testing.T, db *sql.DB) *state.State {
	t.Helper()

	st := state.New("app", "0xadmin", types.ETH(100))
	sm := toStateModel(st)
	_, err := db.Exec(`INSERT INTO tally_state (app_id, administrator, currency, price_per_unit, held, outstanding, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sm.AppID, sm.Administrator, sm.Currency, sm.PricePerUnit, sm.Held, sm.Outstanding, sm.Sequence)
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
	return st
}

// topUp builds a mutation crediting amount to principal from st.
func topUp(st *state.State, principal types.Principal, amount types.Money) (*state.State, *account.Account, *journal.Entry) {
	next := st.Clone()
	next.Sequence++
	next.Held, _ = next.Held.Add(amount)
	next.Outstanding, _ = next.Outstanding.Add(amount)
	next.UpdatedAt = time.Now().UTC()

	acct := account.New(st.AppID, principal, "eth")
	acct.Balance = amount

	entry := &journal.Entry{
		ID:           id.NewEntryID(),
		AppID:        st.AppID,
		Sequence:     next.Sequence,
		Kind:         journal.KindTopUp,
		Principal:    principal,
		Amount:       amount,
		UnitPrice:    next.PricePerUnit,
		BalanceAfter: amount,
		Timestamp:    next.UpdatedAt,
	}
	return next, acct, entry
}

func apply(db *sql.DB, st *state.State, a *account.Account, e *journal.Entry) error {
	m := toApplyModel(st, a, e)
	_, err := db.ExecContext(context.Background(), insertApply,
		m.AppID, m.Sequence, m.PricePerUnit, m.Held, m.Outstanding, m.UpdatedAt,
		m.HasAccount, m.AccountPrincipal, m.AccountCurrency, m.AccountBalance, m.AccountCreatedAt,
		m.EntryID, m.EntryKind, m.EntryPrincipal, m.EntryUnits, m.EntryCurrency,
		m.EntryAmount, m.EntryUnitPrice, m.EntryBalanceAfter, m.EntryTimestamp,
	)
	return err
}

func storedState(t *testing.T, db *sql.DB) (seq int64, held string) {
	t.Helper()
	if err := db.QueryRow(`SELECT sequence, held FROM tally_state WHERE app_id = 'app'`).Scan(&seq, &held); err != nil {
		t.Fatalf("read state: %v", err)
	}
	return seq, held
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestApplyWritesEverything(t *testing.T) {
	db := openSchema(t)
	st := seedState(t, db)

	amount := types.MustParse("30", "eth")
	next, acct, entry := topUp(st, "0xalice", amount)
	if err := apply(db, next, acct, entry); err != nil {
		t.Fatalf("apply: %v", err)
	}

	seq, held := storedState(t, db)
	if seq != 1 || held != amount.AmountString() {
		t.Errorf("state = seq %d held %s, want 1 and %s", seq, held, amount.AmountString())
	}
	var balance string
	if err := db.QueryRow(`SELECT balance FROM tally_accounts WHERE principal = '0xalice'`).Scan(&balance); err != nil {
		t.Fatalf("read account: %v", err)
	}
	if balance != amount.AmountString() {
		t.Errorf("balance = %s, want %s", balance, amount.AmountString())
	}
	if n := count(t, db, "tally_entries"); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestApplyWithoutAccount(t *testing.T) {
	db := openSchema(t)
	st := seedState(t, db)

	next, _, entry := topUp(st, "0xadmin", types.ETH(0))
	entry.Kind = journal.KindPriceUpdate
	if err := apply(db, next, nil, entry); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n := count(t, db, "tally_accounts"); n != 0 {
		t.Errorf("accounts = %d, want 0", n)
	}
}

func TestApplyRejectsStaleSequence(t *testing.T) {
	db := openSchema(t)
	st := seedState(t, db)

	next, acct, entry := topUp(st, "0xalice", types.ETH(40))
	if err := apply(db, next, acct, entry); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Built from the same base state, so it replays sequence 1.
	again, acct2, entry2 := topUp(st, "0xbob", types.ETH(7))
	err := apply(db, again, acct2, entry2)
	if err == nil || !isStaleSequence(err) {
		t.Fatalf("expected stale sequence error, got %v", err)
	}

	if seq, held := storedState(t, db); seq != 1 || held != "40" {
		t.Errorf("state = seq %d held %s, want 1 and 40", seq, held)
	}
	if n := count(t, db, "tally_accounts"); n != 1 {
		t.Errorf("accounts = %d, want 1", n)
	}
}

func TestApplyFailureLeavesNoPartialWrite(t *testing.T) {
	db := openSchema(t)
	st := seedState(t, db)

	next, acct, entry := topUp(st, "0xalice", types.ETH(40))

	// Occupy the entry ID so the last write of the mutation fails after the
	// state and account writes have run.
	em := toEntryModel(entry)
	_, err := db.Exec(`INSERT INTO tally_entries (id, app_id, sequence, kind, currency) VALUES (?, 'other', 1, 'top_up', 'eth')`, em.ID)
	if err != nil {
		t.Fatalf("occupy entry id: %v", err)
	}

	err = apply(db, next, acct, entry)
	if err == nil {
		t.Fatal("expected apply to fail")
	}
	if isStaleSequence(err) {
		t.Fatalf("unexpected stale sequence error: %v", err)
	}

	if seq, held := storedState(t, db); seq != 0 || held != "0" {
		t.Errorf("state = seq %d held %s, want untouched", seq, held)
	}
	if n := count(t, db, "tally_accounts"); n != 0 {
		t.Errorf("accounts = %d, want 0", n)
	}

	// The same mutation with a fresh entry ID goes through afterwards.
	entry.ID = id.NewEntryID()
	if err := apply(db, next, acct, entry); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if seq, _ := storedState(t, db); seq != 1 {
		t.Errorf("sequence after retry = %d, want 1", seq)
	}
}

func TestIsStaleSequence(t *testing.T) {
	err := &testError{"constraint failed: " + staleSequence + " (1811)"}
	if !isStaleSequence(err) {
		t.Error("trigger abort not recognised")
	}
	if isStaleSequence(&testError{"UNIQUE constraint failed"}) {
		t.Error("unrelated error recognised as stale sequence")
	}
	if !strings.Contains(createApplyView, staleSequence) {
		t.Error("trigger does not raise the stale sequence message")
	}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
