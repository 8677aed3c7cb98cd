// Package pgxstore implements store.Store directly on a pgx connection pool.
// Unlike the grove backends, Apply runs the state, account and journal
// writes in a single transaction.
package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// PoolConfig tunes the connection pool created by Connect.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig suits a small service against a serverless Postgres.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MinConns:        0,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Connect parses databaseURL, opens a pool and pings it.
func Connect(ctx context.Context, databaseURL string, pc PoolConfig) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: database URL is not set", tally.ErrInvalidConfig)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("tally/pgxstore: parse database URL: %w", err)
	}
	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	config.MinConns = pc.MinConns
	if pc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("tally/pgxstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tally/pgxstore: ping: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("tally/pgxstore: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== State Store ====================

const selectState = `
SELECT app_id, administrator, currency, price_per_unit, held, outstanding, sequence, created_at, updated_at
FROM tally_state WHERE app_id = $1`

func (s *Store) GetState(ctx context.Context, appID string) (*state.State, error) {
	st, err := scanState(s.pool.QueryRow(ctx, selectState, appID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tally.ErrStateNotFound
		}
		return nil, fmt.Errorf("tally/pgxstore: get state: %w", err)
	}
	return st, nil
}

func (s *Store) CreateState(ctx context.Context, st *state.State) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tally_state (app_id, administrator, currency, price_per_unit, held, outstanding, sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		st.AppID, st.Administrator.String(), st.Currency(),
		st.PricePerUnit.AmountString(), st.Held.AmountString(), st.Outstanding.AmountString(),
		int64(st.Sequence), st.CreatedAt, st.UpdatedAt, //nolint:gosec // sequence counts operations
	)
	if err != nil {
		if isUniqueViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/pgxstore: create state: %w", err)
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, appID string, principal types.Principal) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT app_id, principal, currency, balance, created_at, updated_at
		FROM tally_accounts WHERE app_id = $1 AND principal = $2`, appID, principal.String())
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/pgxstore: get account: %w", err)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, appID string, opts account.ListOpts) ([]*account.Account, error) {
	query := `
		SELECT app_id, principal, currency, balance, created_at, updated_at
		FROM tally_accounts WHERE app_id = $1 ORDER BY principal ASC`
	args := []any{appID}
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tally/pgxstore: list accounts: %w", err)
	}
	defer rows.Close()

	result := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/pgxstore: scan account: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ==================== Journal Store ====================

func (s *Store) ListEntries(ctx context.Context, appID string, opts journal.ListOpts) ([]*journal.Entry, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT id, app_id, sequence, kind, principal, units, currency, amount, unit_price, balance_after, timestamp
		FROM tally_entries WHERE app_id = $1`)
	args := []any{appID}
	if opts.Principal != "" {
		args = append(args, opts.Principal.String())
		fmt.Fprintf(&b, " AND principal = $%d", len(args))
	}
	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		fmt.Fprintf(&b, " AND kind = $%d", len(args))
	}
	b.WriteString(" ORDER BY sequence ASC")
	query, args := paginate(b.String(), args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tally/pgxstore: list entries: %w", err)
	}
	defer rows.Close()

	result := make([]*journal.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/pgxstore: scan entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ==================== Mutations ====================

// Apply writes the mutation in one transaction. The state row is locked and
// its sequence checked so that concurrent writers on the same app serialize.
func (s *Store) Apply(ctx context.Context, m *tallystore.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tally/pgxstore: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var current int64
	err = tx.QueryRow(ctx, `SELECT sequence FROM tally_state WHERE app_id = $1 FOR UPDATE`, m.State.AppID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tally.ErrStateNotFound
		}
		return fmt.Errorf("tally/pgxstore: lock state: %w", err)
	}
	if uint64(current)+1 != m.State.Sequence { //nolint:gosec // never negative
		return fmt.Errorf("%w: state for %s is at sequence %d", tally.ErrTransactionFailed, m.State.AppID, current)
	}

	st := m.State
	if _, err := tx.Exec(ctx, `
		UPDATE tally_state
		SET price_per_unit = $1, held = $2, outstanding = $3, sequence = $4, updated_at = $5
		WHERE app_id = $6`,
		st.PricePerUnit.AmountString(), st.Held.AmountString(), st.Outstanding.AmountString(),
		int64(st.Sequence), st.UpdatedAt, st.AppID, //nolint:gosec // sequence counts operations
	); err != nil {
		return fmt.Errorf("tally/pgxstore: update state: %w", err)
	}

	if a := m.Account; a != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tally_accounts (app_id, principal, currency, balance, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (app_id, principal) DO UPDATE
			SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
			a.AppID, a.Principal.String(), a.Balance.Currency, a.Balance.AmountString(), a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("tally/pgxstore: upsert account: %w", err)
		}
	}

	e := m.Entry
	if _, err := tx.Exec(ctx, `
		INSERT INTO tally_entries (id, app_id, sequence, kind, principal, units, currency, amount, unit_price, balance_after, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID.String(), e.AppID, int64(e.Sequence), string(e.Kind), e.Principal.String(), //nolint:gosec // sequence counts operations
		strconv.FormatUint(e.Units, 10), e.Amount.Currency,
		e.Amount.AmountString(), e.UnitPrice.AmountString(), e.BalanceAfter.AmountString(), e.Timestamp,
	); err != nil {
		return fmt.Errorf("tally/pgxstore: append entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", tally.ErrTransactionFailed, err)
	}
	return nil
}

// ==================== Helpers ====================

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func scanState(row pgx.Row) (*state.State, error) {
	var (
		st                       state.State
		admin, currency          string
		price, held, outstanding string
		sequence                 int64
	)
	if err := row.Scan(&st.AppID, &admin, &currency, &price, &held, &outstanding, &sequence, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if st.PricePerUnit, err = types.FromStorage(price, currency); err != nil {
		return nil, err
	}
	if st.Held, err = types.FromStorage(held, currency); err != nil {
		return nil, err
	}
	if st.Outstanding, err = types.FromStorage(outstanding, currency); err != nil {
		return nil, err
	}
	st.Administrator = types.Principal(admin)
	st.Sequence = uint64(sequence) //nolint:gosec // never negative
	return &st, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a                            account.Account
		principal, currency, balance string
	)
	if err := row.Scan(&a.AppID, &principal, &currency, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	bal, err := types.FromStorage(balance, currency)
	if err != nil {
		return nil, err
	}
	a.Principal = types.Principal(principal)
	a.Balance = bal
	return &a, nil
}

func scanEntry(row pgx.Row) (*journal.Entry, error) {
	var (
		e                                     journal.Entry
		entryID, kind, principal, units       string
		currency, amount, unitPrice, balAfter string
		sequence                              int64
	)
	if err := row.Scan(&entryID, &e.AppID, &sequence, &kind, &principal, &units, &currency, &amount, &unitPrice, &balAfter, &e.Timestamp); err != nil {
		return nil, err
	}

	var err error
	if e.ID, err = id.ParseEntryID(entryID); err != nil {
		return nil, err
	}
	if e.Units, err = strconv.ParseUint(units, 10, 64); err != nil {
		return nil, err
	}
	if e.Amount, err = types.FromStorage(amount, currency); err != nil {
		return nil, err
	}
	if e.UnitPrice, err = types.FromStorage(unitPrice, currency); err != nil {
		return nil, err
	}
	if e.BalanceAfter, err = types.FromStorage(balAfter, currency); err != nil {
		return nil, err
	}
	e.Sequence = uint64(sequence) //nolint:gosec // never negative
	e.Kind = journal.Kind(kind)
	e.Principal = types.Principal(principal)
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
