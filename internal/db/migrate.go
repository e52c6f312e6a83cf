package db

import (
	"context"
	"database/sql"
)

const linkMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS account_links (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    provider text NOT NULL,
    external_user_id text NOT NULL,
    identifier text NOT NULL,
    internal_email text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    last_login_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT account_links_external_unique
        UNIQUE (provider, external_user_id)
);

CREATE INDEX IF NOT EXISTS account_links_email_idx
ON account_links (LOWER(internal_email));
`

// RunLinkMigration creates the account link ledger schema. It is safe to
// run on every start.
func RunLinkMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, linkMigration)
	return err
}
