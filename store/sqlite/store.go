package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
//
// Apply is a single statement guarded by the previous sequence number, so a
// failed write changes nothing and a second writer on the same app fails
// instead of overwriting.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: migration failed: %w", err)
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
	err := s.sdb.NewSelect(m).
		Where("app_id = ?", appID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrStateNotFound
		}
		return nil, fmt.Errorf("tally/sqlite: get state: %w", err)
	}
	return fromStateModel(m)
}

func (s *Store) CreateState(ctx context.Context, st *state.State) error {
	_, err := s.sdb.NewInsert(toStateModel(st)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create state: %w", err)
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, appID string, principal types.Principal) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("app_id = ?", appID).
		Where("principal = ?", principal.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/sqlite: get account: %w", err)
	}
	return fromAccountModel(m)
}

func (s *Store) ListAccounts(ctx context.Context, appID string, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.sdb.NewSelect(&models).Where("app_id = ?", appID)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("principal ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list accounts: %w", err)
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
	q := s.sdb.NewSelect(&models).Where("app_id = ?", appID)

	if opts.Principal != "" {
		q = q.Where("principal = ?", opts.Principal.String())
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("sequence ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list entries: %w", err)
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

// Apply inserts the mutation into the tally_apply view. Its trigger checks
// the sequence and performs every write inside the one statement.
func (s *Store) Apply(ctx context.Context, m *tallystore.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if _, err := s.sdb.NewInsert(toApplyModel(m.State, m.Account, m.Entry)).Exec(ctx); err != nil {
		if isStaleSequence(err) {
			return fmt.Errorf("%w: state for %s moved past sequence %d", tally.ErrTransactionFailed, m.State.AppID, m.State.Sequence-1)
		}
		return fmt.Errorf("tally/sqlite: apply: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

func isStaleSequence(err error) bool {
	return strings.Contains(err.Error(), staleSequence)
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
