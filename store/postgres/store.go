package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Apply is a single statement guarded by the previous sequence number, so a
// failed write changes nothing and a second writer on the same app fails
// instead of overwriting.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== State Store ====================

func (s *Store) GetState(ctx context.Context, appID string) (*state.State, error) {
	m := new(stateModel)
	err := s.pg.NewSelect(m).
		Where("app_id = $1", appID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrStateNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get state: %w", err)
	}
	return fromStateModel(m)
}

func (s *Store) CreateState(ctx context.Context, st *state.State) error {
	_, err := s.pg.NewInsert(toStateModel(st)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: create state: %w", err)
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, appID string, principal types.Principal) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("app_id = $1", appID).
		Where("principal = $2", principal.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get account: %w", err)
	}
	return fromAccountModel(m)
}

func (s *Store) ListAccounts(ctx context.Context, appID string, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.pg.NewSelect(&models).Where("app_id = $1", appID)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("principal ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Journal Store ====================

func (s *Store) ListEntries(ctx context.Context, appID string, opts journal.ListOpts) ([]*journal.Entry, error) {
	var models []entryModel
	q := s.pg.NewSelect(&models).Where("app_id = $1", appID)

	argIdx := 1
	if opts.Principal != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("principal = $%d", argIdx), opts.Principal.String())
	}
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("sequence ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list entries: %w", err)
	}

	result := make([]*journal.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Mutations ====================

// applySQL performs the whole mutation as one statement. Postgres runs a
// statement atomically, so either every write lands or none does. The state
// update matches only when the stored sequence is the one the mutation was
// built from; otherwise the insert CTEs see no rows and nothing is written.
const applySQL = `
WITH moved AS (
    UPDATE tally_state
    SET price_per_unit = $1::text,
        held           = $2::text,
        outstanding    = $3::text,
        sequence       = $4::bigint,
        updated_at     = $5::timestamptz
    WHERE app_id = $6::text AND sequence = $4::bigint - 1
    RETURNING app_id
), acct AS (
    INSERT INTO tally_accounts (app_id, principal, currency, balance, created_at, updated_at)
    SELECT app_id, $7::text, $8::text, $9::text, $10::timestamptz, $5::timestamptz
    FROM moved
    WHERE $11::boolean
    ON CONFLICT (app_id, principal) DO UPDATE
    SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
    RETURNING 1
), entry AS (
    INSERT INTO tally_entries (id, app_id, sequence, kind, principal, units, currency, amount, unit_price, balance_after, timestamp)
    SELECT $12::text, app_id, $4::bigint, $13::text, $14::text, $15::text, $16::text, $17::text, $18::text, $19::text, $20::timestamptz
    FROM moved
    RETURNING 1
)
SELECT count(*) FROM moved`

// Apply writes the state, account and journal entry in one atomic statement.
func (s *Store) Apply(ctx context.Context, m *tallystore.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	sm := toStateModel(m.State)
	em := toEntryModel(m.Entry)
	am := &accountModel{}
	if m.Account != nil {
		am = toAccountModel(m.Account)
	}

	var moved int64
	err := s.pg.NewRaw(applySQL,
		sm.PricePerUnit, sm.Held, sm.Outstanding, sm.Sequence, sm.UpdatedAt, sm.AppID,
		am.Principal, am.Currency, am.Balance, am.CreatedAt, m.Account != nil,
		em.ID, em.Kind, em.Principal, em.Units, em.Currency, em.Amount, em.UnitPrice, em.BalanceAfter, em.Timestamp,
	).Scan(ctx, &moved)
	if err != nil {
		return fmt.Errorf("tally/postgres: apply: %w", err)
	}
	if moved == 0 {
		return fmt.Errorf("%w: state for %s moved past sequence %d", tally.ErrTransactionFailed, sm.AppID, sm.Sequence-1)
	}
	return nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
