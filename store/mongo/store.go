package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// Collection name constants.
const (
	colState    = "tally_state"
	colAccounts = "tally_accounts"
	colEntries  = "tally_entries"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m stateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": appID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrStateNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get state: %w", err)
	}
	return fromStateModel(&m)
}

func (s *Store) CreateState(ctx context.Context, st *state.State) error {
	_, err := s.mdb.NewInsert(toStateModel(st)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create state: %w", err)
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, appID string, principal types.Principal) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountKey(appID, principal)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) ListAccounts(ctx context.Context, appID string, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"app_id": appID}).
		Sort(bson.D{{Key: "principal", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list accounts: %w", err)
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

	filter := bson.M{"app_id": appID}
	if opts.Principal != "" {
		filter["principal"] = opts.Principal.String()
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "sequence", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list entries: %w", err)
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

// Apply updates the state guarded by the previous sequence, upserts the
// account and appends the entry inside one multi-document transaction, so a
// failed write leaves nothing behind. Transactions need a replica set or a
// sharded cluster.
func (s *Store) Apply(ctx context.Context, m *tallystore.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	states := s.mdb.Collection(colState)
	sess, err := states.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("tally/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(tx context.Context) (any, error) {
		return nil, s.apply(tx, m)
	})
	if err != nil {
		if errors.Is(err, tally.ErrTransactionFailed) {
			return err
		}
		return fmt.Errorf("tally/mongo: apply: %w", err)
	}
	return nil
}

// apply runs the writes of m. tx carries the session transaction.
func (s *Store) apply(tx context.Context, m *tallystore.Mutation) error {
	sm := toStateModel(m.State)
	res, err := s.mdb.Collection(colState).UpdateOne(tx,
		bson.M{"_id": sm.AppID, "sequence": sm.Sequence - 1},
		bson.M{"$set": bson.M{
			"price_per_unit": sm.PricePerUnit,
			"held":           sm.Held,
			"outstanding":    sm.Outstanding,
			"sequence":       sm.Sequence,
			"updated_at":     sm.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: state for %s moved past sequence %d", tally.ErrTransactionFailed, sm.AppID, sm.Sequence-1)
	}

	if m.Account != nil {
		am := toAccountModel(m.Account)
		_, err := s.mdb.Collection(colAccounts).UpdateOne(tx,
			bson.M{"_id": am.Key},
			bson.M{"$set": bson.M{
				"app_id":     am.AppID,
				"principal":  am.Principal,
				"currency":   am.Currency,
				"balance":    am.Balance,
				"created_at": am.CreatedAt,
				"updated_at": am.UpdatedAt,
			}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("upsert account: %w", err)
		}
	}

	em := toEntryModel(m.Entry)
	doc := bson.D{
		{Key: "_id", Value: em.ID},
		{Key: "app_id", Value: em.AppID},
		{Key: "sequence", Value: em.Sequence},
		{Key: "kind", Value: em.Kind},
		{Key: "principal", Value: em.Principal},
		{Key: "units", Value: em.Units},
		{Key: "currency", Value: em.Currency},
		{Key: "amount", Value: em.Amount},
		{Key: "unit_price", Value: em.UnitPrice},
		{Key: "balance_after", Value: em.BalanceAfter},
		{Key: "timestamp", Value: em.Timestamp},
	}
	if _, err := s.mdb.Collection(colEntries).InsertOne(tx, doc); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "principal", Value: 1}}},
		},
		colEntries: {
			{
				Keys:    bson.D{{Key: "app_id", Value: 1}, {Key: "sequence", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "principal", Value: 1}, {Key: "sequence", Value: 1}}},
		},
		colState: {},
	}
}
