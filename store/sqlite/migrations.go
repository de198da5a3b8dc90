package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the licensor store (SQLite).
var Migrations = migrate.NewGroup("licensor")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_licensor_accounts",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_accounts (
    id                 TEXT PRIMARY KEY,
    username           TEXT NOT NULL,
    role               TEXT NOT NULL DEFAULT 'user',
    balance            INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
    initial_balance    INTEGER NOT NULL DEFAULT 0,
    unlimited_balance  INTEGER NOT NULL DEFAULT 0,
    balance_duration   TEXT NOT NULL DEFAULT '',
    balance_expires_at TIMESTAMP,
    active             INTEGER NOT NULL DEFAULT 1,
    deduction_rates    TEXT,
    created_by         TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMP NOT NULL DEFAULT (datetime('now')),
    updated_at         TIMESTAMP NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_accounts_username ON licensor_accounts (username);
CREATE INDEX IF NOT EXISTS idx_licensor_accounts_created_by ON licensor_accounts (created_by);
CREATE INDEX IF NOT EXISTS idx_licensor_accounts_role ON licensor_accounts (role);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_mod_balances",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_mod_balances (
    account_id        TEXT NOT NULL REFERENCES licensor_accounts (id) ON DELETE CASCADE,
    mod_id            TEXT NOT NULL,
    balance           INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
    initial_balance   INTEGER NOT NULL DEFAULT 0,
    unlimited_balance INTEGER NOT NULL DEFAULT 0,
    expires_at        TIMESTAMP,
    created_at        TIMESTAMP NOT NULL DEFAULT (datetime('now')),
    updated_at        TIMESTAMP NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (account_id, mod_id)
);

CREATE INDEX IF NOT EXISTS idx_licensor_mod_balances_mod ON licensor_mod_balances (mod_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_mod_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_license_keys",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_license_keys (
    id          TEXT PRIMARY KEY,
    token       TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    tier        TEXT NOT NULL DEFAULT 'reseller',
    created_by  TEXT NOT NULL,
    is_active   INTEGER NOT NULL DEFAULT 1,
    expires_at  TIMESTAMP NOT NULL,
    usage_count INTEGER NOT NULL DEFAULT 0,
    max_usage   INTEGER NOT NULL DEFAULT 0,
    max_devices INTEGER NOT NULL DEFAULT 1,
    mod_id      TEXT NOT NULL DEFAULT '',
    last_used   TIMESTAMP,
    created_at  TIMESTAMP NOT NULL DEFAULT (datetime('now')),
    updated_at  TIMESTAMP NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_keys_token ON licensor_license_keys (token);
CREATE INDEX IF NOT EXISTS idx_licensor_keys_created_by ON licensor_license_keys (created_by);
CREATE INDEX IF NOT EXISTS idx_licensor_keys_mod ON licensor_license_keys (mod_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_license_keys`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_codes",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_codes (
    id              TEXT PRIMARY KEY,
    code            TEXT NOT NULL,
    variant         TEXT NOT NULL DEFAULT 'plain',
    mod_id          TEXT NOT NULL DEFAULT '',
    balance         INTEGER NOT NULL DEFAULT 0,
    duration        TEXT NOT NULL DEFAULT '',
    deduction_rates TEXT,
    unlimited       INTEGER NOT NULL DEFAULT 0,
    created_by      TEXT NOT NULL,
    redeemed_by     TEXT NOT NULL DEFAULT '',
    used_count      INTEGER NOT NULL DEFAULT 0,
    is_used         INTEGER NOT NULL DEFAULT 0,
    used_at         TIMESTAMP,
    active          INTEGER NOT NULL DEFAULT 1,
    expires_at      TIMESTAMP,
    created_at      TIMESTAMP NOT NULL DEFAULT (datetime('now')),
    updated_at      TIMESTAMP NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_codes_code ON licensor_codes (code);
CREATE INDEX IF NOT EXISTS idx_licensor_codes_created_by ON licensor_codes (created_by);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_codes`)
				return err
			},
		},
	)
}
