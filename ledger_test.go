package tally_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/payout"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

const (
	admin types.Principal = "0xadmin"
	alice types.Principal = "0xalice"
	bob   types.Principal = "0xbob"
)

func eth(s string) types.Money { return types.MustParse(s, "eth") }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newLedger starts a ledger priced at 0.01 ETH per unit over a memory store
// and a memory wallet in which alice and bob hold 10 ETH each.
func newLedger(t *testing.T, opts ...tally.Option) (*tally.Ledger, *payout.Memory) {
	t.Helper()
	return newLedgerOn(t, memory.New(), opts...)
}

func newLedgerOn(t *testing.T, s store.Store, opts ...tally.Option) (*tally.Ledger, *payout.Memory) {
	t.Helper()

	wallet := payout.NewMemory()
	for _, p := range []types.Principal{alice, bob} {
		if err := wallet.Fund(p, eth("10")); err != nil {
			t.Fatalf("fund %s: %v", p, err)
		}
	}

	opts = append([]tally.Option{tally.WithLogger(quietLogger()), tally.WithWallet(wallet)}, opts...)
	l, err := tally.New(s, admin, eth("0.01"), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l, wallet
}

func balance(t *testing.T, l *tally.Ledger, p types.Principal) types.Money {
	t.Helper()
	b, err := l.UserBalance(context.Background(), p)
	if err != nil {
		t.Fatalf("UserBalance(%s): %v", p, err)
	}
	return b
}

func TestTopUpBalance(t *testing.T) {
	ctx := context.Background()
	l, wallet := newLedger(t)

	e, err := l.TopUpBalance(ctx, alice, eth("1"))
	if err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	if e.Caller != alice || !e.Amount.Equal(eth("1")) {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Name() != event.NameBalanceToppedUp || e.ID.IsNil() || e.Sequence != 1 {
		t.Errorf("unexpected event envelope: %+v", e.Meta)
	}

	if _, err := l.TopUpBalance(ctx, alice, eth("0.5")); err != nil {
		t.Fatalf("second TopUpBalance: %v", err)
	}

	if got := balance(t, l, alice); !got.Equal(eth("1.5")) {
		t.Errorf("balance = %v, want 1.5 ETH", got)
	}
	if got := l.HeldFunds(); !got.Equal(eth("1.5")) {
		t.Errorf("held = %v, want 1.5 ETH", got)
	}
	if got := wallet.Balance(alice, "eth"); !got.Equal(eth("8.5")) {
		t.Errorf("external balance = %v, want 8.5 ETH", got)
	}
}

func TestTopUpZeroAmount(t *testing.T) {
	l, _ := newLedger(t)

	if _, err := l.TopUpBalance(context.Background(), alice, eth("0")); err != nil {
		t.Fatalf("zero top-up should succeed: %v", err)
	}
	if got := balance(t, l, alice); !got.IsZero() {
		t.Errorf("balance = %v, want zero", got)
	}
}

func TestTopUpWalletFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	_, err := l.TopUpBalance(ctx, "0xbroke", eth("1"))
	if !errors.Is(err, payout.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := balance(t, l, "0xbroke"); !got.IsZero() {
		t.Errorf("balance = %v, want zero", got)
	}
	if got := l.HeldFunds(); !got.IsZero() {
		t.Errorf("held = %v, want zero", got)
	}
}

func TestTopUpOverflow(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, tally.WithWallet(payout.Unbounded()))

	top := types.FromAmount(types.MaxAmount(), "eth")
	if _, err := l.TopUpBalance(ctx, alice, top); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	_, err := l.TopUpBalance(ctx, alice, types.ETH(1))
	if !errors.Is(err, tally.ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	if got := balance(t, l, alice); !got.Equal(top) {
		t.Errorf("balance changed after overflow: %v", got)
	}
}

func TestTopUpBeyond64Bits(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, tally.WithWallet(payout.Unbounded()))

	// 2^64 wei is about 18.45 ETH; the ledger must hold well past that.
	carol := types.Principal("0xcarol")
	for _, p := range []types.Principal{alice, bob, carol} {
		if _, err := l.TopUpBalance(ctx, p, eth("10")); err != nil {
			t.Fatalf("TopUpBalance(%s): %v", p, err)
		}
	}
	if _, err := l.TopUpBalance(ctx, alice, eth("20")); err != nil {
		t.Fatalf("TopUpBalance 20 ETH: %v", err)
	}

	if got := l.HeldFunds(); !got.Equal(eth("50")) {
		t.Errorf("held = %v, want 50 ETH", got)
	}
	if got := balance(t, l, alice); !got.Equal(eth("30")) {
		t.Errorf("alice = %v, want 30 ETH", got)
	}

	if _, err := l.RecordUsage(ctx, alice, 2000); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if got := balance(t, l, alice); !got.Equal(eth("10")) {
		t.Errorf("alice after usage = %v, want 10 ETH", got)
	}
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}

	e, err := l.RecordUsage(ctx, alice, 10)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if e.Caller != alice || e.Units != 10 || !e.Cost.Equal(eth("0.1")) {
		t.Errorf("unexpected event: %+v", e)
	}
	if got := balance(t, l, alice); !got.Equal(eth("0.9")) {
		t.Errorf("balance = %v, want 0.9 ETH", got)
	}

	// Usage revenue stays in custody.
	if got := l.HeldFunds(); !got.Equal(eth("1")) {
		t.Errorf("held = %v, want 1 ETH", got)
	}
	if got := l.Solvency().Unattributed; !got.Equal(eth("0.1")) {
		t.Errorf("unattributed = %v, want 0.1 ETH", got)
	}
}

func TestRecordUsageWithoutTopUp(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.RecordUsage(context.Background(), alice, 100)
	if !errors.Is(err, tally.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err.Error() != "Insufficient balance. Top up to proceed." {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if got := balance(t, l, alice); !got.IsZero() {
		t.Errorf("balance = %v, want zero", got)
	}
}

func TestRecordUsageUntilInsufficient(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	if _, err := l.TopUpBalance(ctx, alice, eth("0.05")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := l.RecordUsage(ctx, alice, 1); err != nil {
			t.Fatalf("usage %d: %v", i, err)
		}
	}
	if _, err := l.RecordUsage(ctx, alice, 1); !errors.Is(err, tally.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := balance(t, l, alice); !got.IsZero() {
		t.Errorf("balance = %v, want zero", got)
	}
}

func TestRecordUsageZeroUnits(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	e, err := l.RecordUsage(ctx, alice, 0)
	if err != nil {
		t.Fatalf("RecordUsage(0): %v", err)
	}
	if !e.Cost.IsZero() {
		t.Errorf("cost = %v, want zero", e.Cost)
	}

	accounts, err := l.Accounts(ctx, account.ListOpts{})
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("zero-cost usage created %d accounts", len(accounts))
	}
}

func TestRecordUsageCostOverflow(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	// Any price above 2^192 wei overflows 256 bits at MaxUint64 units.
	huge, err := types.AmountFromBig(new(big.Int).Lsh(big.NewInt(1), 200))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.UpdatePrice(ctx, admin, types.FromAmount(huge, "eth")); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	_, err = l.RecordUsage(ctx, alice, math.MaxUint64)
	if !errors.Is(err, tally.ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	if got := balance(t, l, alice); !got.Equal(eth("1")) {
		t.Errorf("balance = %v, want 1 ETH", got)
	}
}

func TestUpdatePrice(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	_, err := l.UpdatePrice(ctx, alice, eth("0.02"))
	if !errors.Is(err, tally.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err.Error() != "Only the owner can perform this action." {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if got := l.PricePerUsage(); !got.Equal(eth("0.01")) {
		t.Errorf("price changed by non-admin: %v", got)
	}

	e, err := l.UpdatePrice(ctx, admin, eth("0.02"))
	if err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	if !e.NewPrice.Equal(eth("0.02")) {
		t.Errorf("event price = %v", e.NewPrice)
	}

	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	usage, err := l.RecordUsage(ctx, alice, 5)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if !usage.Cost.Equal(eth("0.1")) {
		t.Errorf("cost = %v, want 0.1 ETH", usage.Cost)
	}
}

func TestUpdatePriceZero(t *testing.T) {
	ctx := context.Background()

	l, _ := newLedger(t)
	if _, err := l.UpdatePrice(ctx, admin, eth("0")); err != nil {
		t.Fatalf("zero price should be accepted by default: %v", err)
	}

	strict, _ := newLedger(t, tally.WithStrictPricing())
	if _, err := strict.UpdatePrice(ctx, admin, eth("0")); !errors.Is(err, tally.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestUpdatePriceCurrencyMismatch(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.UpdatePrice(context.Background(), admin, types.USD(1))
	if !errors.Is(err, tally.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestWithdrawFundsDrain(t *testing.T) {
	ctx := context.Background()
	l, wallet := newLedger(t)

	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatalf("TopUpBalance alice: %v", err)
	}
	if _, err := l.TopUpBalance(ctx, bob, eth("0.5")); err != nil {
		t.Fatalf("TopUpBalance bob: %v", err)
	}
	if _, err := l.RecordUsage(ctx, alice, 10); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	if _, err := l.WithdrawFunds(ctx, alice); !errors.Is(err, tally.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	before := wallet.Balance(admin, "eth")
	e, err := l.WithdrawFunds(ctx, admin)
	if err != nil {
		t.Fatalf("WithdrawFunds: %v", err)
	}
	if !e.Amount.Equal(eth("1.5")) || e.Recipient != admin || e.Reference.IsNil() {
		t.Errorf("unexpected event: %+v", e)
	}

	gained, err := wallet.Balance(admin, "eth").Subtract(before)
	if err != nil {
		t.Fatalf("admin balance decreased: %v", err)
	}
	if !gained.Equal(eth("1.5")) {
		t.Errorf("admin gained %v, want 1.5 ETH", gained)
	}
	if got := l.HeldFunds(); !got.IsZero() {
		t.Errorf("held = %v, want zero", got)
	}

	// Balances are left untouched.
	if got := balance(t, l, alice); !got.Equal(eth("0.9")) {
		t.Errorf("alice balance = %v, want 0.9 ETH", got)
	}
	if got := balance(t, l, bob); !got.Equal(eth("0.5")) {
		t.Errorf("bob balance = %v, want 0.5 ETH", got)
	}

	solvency := l.Solvency()
	if solvency.Solvent() || !solvency.Shortfall.Equal(eth("1.4")) {
		t.Errorf("unexpected solvency after drain: %+v", solvency)
	}
}

func TestWithdrawFundsEscrow(t *testing.T) {
	ctx := context.Background()
	l, wallet := newLedger(t, tally.WithTreasuryMode(tally.TreasuryEscrow))

	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	if _, err := l.RecordUsage(ctx, alice, 10); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	e, err := l.WithdrawFunds(ctx, admin)
	if err != nil {
		t.Fatalf("WithdrawFunds: %v", err)
	}
	if !e.Amount.Equal(eth("0.1")) {
		t.Errorf("withdrawn %v, want 0.1 ETH", e.Amount)
	}
	if got := wallet.Balance(admin, "eth"); !got.Equal(eth("0.1")) {
		t.Errorf("admin wallet = %v, want 0.1 ETH", got)
	}
	if got := l.HeldFunds(); !got.Equal(eth("0.9")) {
		t.Errorf("held = %v, want 0.9 ETH", got)
	}
	if !l.Solvency().Solvent() {
		t.Errorf("escrow withdrawal left a shortfall: %+v", l.Solvency())
	}
}

func TestConcurrentUsageNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	// 1 ETH at 0.01 ETH per unit covers exactly 100 units.
	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}

	var (
		wg           sync.WaitGroup
		succeeded    atomic.Int64
		insufficient atomic.Int64
		unexpected   atomic.Int64
	)
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := l.RecordUsage(ctx, alice, 1)
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, tally.ErrInsufficientBalance):
					insufficient.Add(1)
				default:
					unexpected.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 100 {
		t.Errorf("succeeded = %d, want 100", succeeded.Load())
	}
	if insufficient.Load() != 150 {
		t.Errorf("insufficient = %d, want 150", insufficient.Load())
	}
	if unexpected.Load() != 0 {
		t.Errorf("unexpected errors = %d", unexpected.Load())
	}
	if got := balance(t, l, alice); !got.IsZero() {
		t.Errorf("balance = %v, want zero", got)
	}
}

func TestOperationsBeforeStart(t *testing.T) {
	l, err := tally.New(memory.New(), admin, eth("0.01"), tally.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := l.TopUpBalance(context.Background(), alice, eth("1")); !errors.Is(err, tally.ErrStoreNotReady) {
		t.Fatalf("expected ErrStoreNotReady, got %v", err)
	}
	if !tally.IsRetryable(tally.ErrStoreNotReady) {
		t.Error("ErrStoreNotReady should be retryable")
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		admin types.Principal
		price types.Money
		opts  []tally.Option
	}{
		{"missing admin", "", eth("0.01"), nil},
		{"missing currency", admin, types.Money{Amount: types.NewAmount(1)}, nil},
		{"strict zero price", admin, eth("0"), []tally.Option{tally.WithStrictPricing()}},
		{"unknown treasury", admin, eth("0.01"), []tally.Option{tally.WithTreasuryMode("burn")}},
		{"empty app", admin, eth("0.01"), []tally.Option{tally.WithAppID("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tally.New(memory.New(), tt.admin, tt.price, tt.opts...)
			if !errors.Is(err, tally.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := tally.New(memory.New(), admin, eth("0")); err != nil {
		t.Errorf("zero price should be accepted by default: %v", err)
	}
}

func TestEmptyCaller(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.TopUpBalance(context.Background(), "  ", eth("1"))
	if !errors.Is(err, tally.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var ve tally.ValidationError
	if !errors.As(err, &ve) || ve.Field != "caller" {
		t.Errorf("expected caller validation error, got %v", err)
	}
}

func TestRestartResumesState(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first, _ := newLedgerOn(t, s)
	if _, err := first.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	if _, err := first.UpdatePrice(ctx, admin, eth("0.05")); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}

	second, _ := newLedgerOn(t, s)
	if got := second.PricePerUsage(); !got.Equal(eth("0.05")) {
		t.Errorf("price = %v, want persisted 0.05 ETH", got)
	}
	if got := balance(t, second, alice); !got.Equal(eth("1")) {
		t.Errorf("balance = %v, want 1 ETH", got)
	}

	st, err := second.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Sequence != 2 {
		t.Errorf("sequence = %d, want 2", st.Sequence)
	}

	other, err := tally.New(s, "0xmallory", eth("0.01"), tally.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := other.Start(ctx); !errors.Is(err, tally.ErrAdministratorMismatch) {
		t.Fatalf("expected ErrAdministratorMismatch, got %v", err)
	}
}

func TestEntriesJournal(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.RecordUsage(ctx, alice, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := l.UpdatePrice(ctx, admin, eth("0.02")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.WithdrawFunds(ctx, admin); err != nil {
		t.Fatal(err)
	}

	entries, err := l.Entries(ctx, journal.ListOpts{})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	wantKinds := []journal.Kind{journal.KindTopUp, journal.KindUsage, journal.KindPriceUpdate, journal.KindWithdrawal}
	if len(entries) != len(wantKinds) {
		t.Fatalf("got %d entries, want %d", len(entries), len(wantKinds))
	}
	for i, e := range entries {
		if e.Kind != wantKinds[i] {
			t.Errorf("entry %d kind = %s, want %s", i, e.Kind, wantKinds[i])
		}
		if e.Sequence != uint64(i+1) {
			t.Errorf("entry %d sequence = %d", i, e.Sequence)
		}
	}
	if !entries[1].Amount.Equal(eth("0.03")) || !entries[1].BalanceAfter.Equal(eth("0.97")) {
		t.Errorf("unexpected usage entry: %+v", entries[1])
	}

	usage, err := l.Entries(ctx, journal.ListOpts{Principal: alice, Kind: journal.KindUsage})
	if err != nil {
		t.Fatalf("Entries filtered: %v", err)
	}
	if len(usage) != 1 {
		t.Errorf("filtered entries = %d, want 1", len(usage))
	}
}

// failingStore fails every Apply.
type failingStore struct {
	*memory.Store
}

func (failingStore) Apply(context.Context, *store.Mutation) error {
	return errors.New("disk full")
}

func TestPersistFailureCompensatesWallet(t *testing.T) {
	ctx := context.Background()
	l, wallet := newLedgerOn(t, failingStore{memory.New()})

	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err == nil {
		t.Fatal("expected persist failure")
	}
	if got := wallet.Balance(alice, "eth"); !got.Equal(eth("10")) {
		t.Errorf("alice external balance = %v, want refunded 10 ETH", got)
	}
	if got := l.HeldFunds(); !got.IsZero() {
		t.Errorf("held = %v, want zero", got)
	}
}

// flakyStore fails the next n Apply calls without writing anything.
type flakyStore struct {
	*memory.Store
	fail atomic.Int32
}

func (f *flakyStore) Apply(ctx context.Context, m *store.Mutation) error {
	if f.fail.Add(-1) >= 0 {
		return errors.New("conn reset")
	}
	return f.Store.Apply(ctx, m)
}

func TestPersistFailureDoesNotWedgeLedger(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	l, _ := newLedgerOn(t, s)

	s.fail.Store(1)
	if _, err := l.TopUpBalance(ctx, alice, eth("1")); err == nil {
		t.Fatal("expected persist failure")
	}

	e, err := l.TopUpBalance(ctx, alice, eth("2"))
	if err != nil {
		t.Fatalf("TopUpBalance after failure: %v", err)
	}
	if e.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", e.Sequence)
	}
	if _, err := l.UpdatePrice(ctx, admin, eth("0.02")); err != nil {
		t.Fatalf("UpdatePrice after failure: %v", err)
	}

	st, err := s.GetState(ctx, tally.DefaultAppID)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Held.Equal(eth("2")) || st.Sequence != 2 {
		t.Errorf("stored state = held %v seq %d, want 2 ETH seq 2", st.Held, st.Sequence)
	}
}

func TestCurrencyIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	price := types.Money{Amount: types.NewAmount(10), Currency: "USD"}

	l, err := tally.New(memory.New(), admin, price, tally.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	if got := l.Currency(); got != "usd" {
		t.Fatalf("currency = %q, want usd", got)
	}
	if _, err := l.TopUpBalance(ctx, alice, types.MustParse("1", "usd")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	if _, err := l.UpdatePrice(ctx, admin, types.Money{Amount: types.NewAmount(20), Currency: "USD"}); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
}

func TestPrincipalWhitespaceIsTrimmed(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	if _, err := l.TopUpBalance(ctx, " 0xalice ", eth("1")); err != nil {
		t.Fatalf("TopUpBalance: %v", err)
	}
	if _, err := l.RecordUsage(ctx, "0xalice\t", 10); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	if got := balance(t, l, alice); !got.Equal(eth("0.9")) {
		t.Errorf("balance = %v, want 0.9 ETH", got)
	}
	accounts, err := l.Accounts(ctx, account.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 || accounts[0].Principal != alice {
		t.Errorf("accounts = %+v, want only %s", accounts, alice)
	}
	if _, err := l.UpdatePrice(ctx, " 0xadmin", eth("0.02")); err != nil {
		t.Errorf("padded administrator rejected: %v", err)
	}
}
