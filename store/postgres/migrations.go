package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store.
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_state",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_state (
    app_id         TEXT PRIMARY KEY,
    administrator  TEXT NOT NULL,
    currency       TEXT NOT NULL,
    price_per_unit TEXT NOT NULL DEFAULT '0',
    held           TEXT NOT NULL DEFAULT '0',
    outstanding    TEXT NOT NULL DEFAULT '0',
    sequence       BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
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
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_accounts (
    app_id     TEXT NOT NULL,
    principal  TEXT NOT NULL,
    currency   TEXT NOT NULL,
    balance    TEXT NOT NULL DEFAULT '0',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (app_id, principal)
);
`)
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
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_entries (
    id            TEXT PRIMARY KEY,
    app_id        TEXT NOT NULL,
    sequence      BIGINT NOT NULL,
    kind          TEXT NOT NULL,
    principal     TEXT NOT NULL DEFAULT '',
    units         TEXT NOT NULL DEFAULT '0',
    currency      TEXT NOT NULL,
    amount        TEXT NOT NULL DEFAULT '0',
    unit_price    TEXT NOT NULL DEFAULT '0',
    balance_after TEXT NOT NULL DEFAULT '0',
    timestamp     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_entries_app_seq ON tally_entries (app_id, sequence);
CREATE INDEX IF NOT EXISTS idx_tally_entries_principal ON tally_entries (app_id, principal, sequence);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_entries`)
				return err
			},
		},
	)
}
