package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store (SQLite).
var Migrations = migrate.NewGroup("tally")

const createStateTable = `
CREATE TABLE IF NOT EXISTS tally_state (
    app_id         TEXT PRIMARY KEY,
    administrator  TEXT NOT NULL,
    currency       TEXT NOT NULL,
    price_per_unit TEXT NOT NULL DEFAULT '0',
    held           TEXT NOT NULL DEFAULT '0',
    outstanding    TEXT NOT NULL DEFAULT '0',
    sequence       INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);
`

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS tally_accounts (
    app_id     TEXT NOT NULL,
    principal  TEXT NOT NULL,
    currency   TEXT NOT NULL,
    balance    TEXT NOT NULL DEFAULT '0',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (app_id, principal)
);
`

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS tally_entries (
    id            TEXT PRIMARY KEY,
    app_id        TEXT NOT NULL,
    sequence      INTEGER NOT NULL,
    kind          TEXT NOT NULL,
    principal     TEXT NOT NULL DEFAULT '',
    units         TEXT NOT NULL DEFAULT '0',
    currency      TEXT NOT NULL,
    amount        TEXT NOT NULL DEFAULT '0',
    unit_price    TEXT NOT NULL DEFAULT '0',
    balance_after TEXT NOT NULL DEFAULT '0',
    timestamp     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_entries_app_seq ON tally_entries (app_id, sequence);
CREATE INDEX IF NOT EXISTS idx_tally_entries_principal ON tally_entries (app_id, principal, sequence);
`

// staleSequence is raised by the apply trigger when the stored sequence is
// not the one the mutation was built from.
const staleSequence = "tally: stale sequence"

// createApplyView defines tally_apply, a write-only view whose INSTEAD OF
// trigger performs a whole mutation. SQLite runs each statement atomically,
// so one INSERT into the view either applies every write or none.
const createApplyView = `
CREATE VIEW IF NOT EXISTS tally_apply AS
SELECT
    NULL AS app_id,
    NULL AS sequence,
    NULL AS price_per_unit,
    NULL AS held,
    NULL AS outstanding,
    NULL AS updated_at,
    NULL AS has_account,
    NULL AS account_principal,
    NULL AS account_currency,
    NULL AS account_balance,
    NULL AS account_created_at,
    NULL AS entry_id,
    NULL AS entry_kind,
    NULL AS entry_principal,
    NULL AS entry_units,
    NULL AS entry_currency,
    NULL AS entry_amount,
    NULL AS entry_unit_price,
    NULL AS entry_balance_after,
    NULL AS entry_timestamp
WHERE 0;

CREATE TRIGGER IF NOT EXISTS tally_apply_insert
INSTEAD OF INSERT ON tally_apply
BEGIN
    SELECT RAISE(ABORT, '` + staleSequence + `')
    WHERE NOT EXISTS (
        SELECT 1 FROM tally_state
        WHERE app_id = NEW.app_id AND sequence = NEW.sequence - 1
    );

    UPDATE tally_state
    SET price_per_unit = NEW.price_per_unit,
        held           = NEW.held,
        outstanding    = NEW.outstanding,
        sequence       = NEW.sequence,
        updated_at     = NEW.updated_at
    WHERE app_id = NEW.app_id;

    INSERT OR REPLACE INTO tally_accounts (app_id, principal, currency, balance, created_at, updated_at)
    SELECT NEW.app_id, NEW.account_principal, NEW.account_currency, NEW.account_balance,
           NEW.account_created_at, NEW.updated_at
    WHERE NEW.has_account;

    INSERT INTO tally_entries (id, app_id, sequence, kind, principal, units, currency, amount, unit_price, balance_after, timestamp)
    VALUES (NEW.entry_id, NEW.app_id, NEW.sequence, NEW.entry_kind, NEW.entry_principal, NEW.entry_units,
            NEW.entry_currency, NEW.entry_amount, NEW.entry_unit_price, NEW.entry_balance_after, NEW.entry_timestamp);
END;
`

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_state",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, createStateTable)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_accounts",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, createAccountsTable)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_entries",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, createEntriesTable)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_apply",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, createApplyView)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TRIGGER IF EXISTS tally_apply_insert; DROP VIEW IF EXISTS tally_apply`)
				return err
			},
		},
	)
}
