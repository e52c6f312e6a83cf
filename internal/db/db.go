package db

import "database/sql"

// DB wraps the Postgres handle shared by the ledger components.
type DB struct {
	*sql.DB
}
