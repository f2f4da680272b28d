package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the PRAGMA user_version this build writes. schema.sql
// always describes this version in full.
const SchemaVersion = 1

var (
	// ErrSchemaTooNew is returned by Open for a database written by a newer
	// build.
	ErrSchemaTooNew = errors.New("database schema is newer than this build")
	// ErrBrokenChain is returned by Open when the stored batches do not form
	// a gapless chain starting at seq 1.
	ErrBrokenChain = errors.New("stored batch chain is broken")
)

// connParams are applied by the driver to every new connection.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// Store is the durable copy of SyncState and of every committed batch.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and brings its schema up to
// SchemaVersion. ":memory:" gives a private in-memory database.
//
// Open refuses a database whose batches do not chain back to genesis, so
// the engine never recovers from a head it cannot verify.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+connParams.Encode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := checkChain(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Query runs read-only SQL produced by querysql. The caller closes the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("migrate: read user_version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: v%d, want at most v%d", ErrSchemaTooNew, version, SchemaVersion)
	}
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: apply schema: %w", err)
	}
	if version < SchemaVersion {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("migrate: set user_version: %w", err)
		}
	}
	return tx.Commit()
}

// checkChain finds the lowest seq whose prev_hash does not name the batch
// before it. Seq 1 must link to the zero hash; a gap counts as a break.
func checkChain(ctx context.Context, db *sql.DB) error {
	var broken sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT MIN(b.seq)
		FROM batches b
		LEFT JOIN batches p ON p.seq = b.seq - 1
		WHERE (b.seq = 1 AND b.prev_hash != zeroblob(32))
		   OR (b.seq > 1 AND (p.hash IS NULL OR b.prev_hash != p.hash))
	`).Scan(&broken)
	if err != nil {
		return fmt.Errorf("check chain: %w", err)
	}
	if broken.Valid {
		return fmt.Errorf("%w at seq %d", ErrBrokenChain, broken.Int64)
	}
	return nil
}
