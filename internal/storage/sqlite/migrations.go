package sqlite

import "database/sql"

// schema runs on startup to ensure tables exist.
// owner is the checksummed hex address of the identity the preference belongs to.
const schema = `
CREATE TABLE IF NOT EXISTS preferences (
    owner TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (owner, key)
);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
