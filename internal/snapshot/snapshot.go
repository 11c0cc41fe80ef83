package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/idbforensics/internal/reader"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added ordering index on records(object_store_id, id)
const currentSchemaVersion = 1

func init() {
	open := func(path, blobPath string) (reader.Source, error) {
		return Open(path, blobPath)
	}
	reader.Register(".db", open)
	reader.Register(".sqlite", open)
}

// Snapshot is a SQLite-backed store reader.
type Snapshot struct {
	db       *sql.DB
	blobPath string
	writable bool
}

var _ reader.Source = (*Snapshot)(nil)

// Open opens an existing snapshot read-only. The file is never modified.
// blobPath is the directory external values are resolved against; it may be empty.
func Open(path, blobPath string) (*Snapshot, error) {
	dsn, err := fileDSN(path, "mode=ro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open snapshot")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to snapshot")
	}
	db.SetMaxOpenConns(1)

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "get user_version")
	}
	if version > currentSchemaVersion {
		db.Close()
		return nil, errors.Newf("snapshot schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	return &Snapshot{db: db, blobPath: blobPath}, nil
}

// Create creates or opens a writable snapshot at path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Create(path string) (*Snapshot, error) {
	dsn, err := fileDSN(path, "")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open snapshot")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to snapshot")
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply pragmas")
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	return &Snapshot{db: db, writable: true}, nil
}

// New wraps an existing connection. Used with sqlmock in tests.
func New(db *sql.DB, blobPath string) *Snapshot {
	return &Snapshot{db: db, blobPath: blobPath}
}

// Close closes the database connection. A writable snapshot is switched back
// to rollback journaling first so the file can be opened read-only on its own.
func (s *Snapshot) Close() error {
	if s.db == nil {
		return nil
	}
	if s.writable {
		if _, err := s.db.Exec("PRAGMA journal_mode = DELETE"); err != nil {
			s.db.Close()
			return errors.Wrap(err, "leave WAL mode")
		}
	}
	return s.db.Close()
}

// fileDSN turns path into a SQLite URI. The path is made absolute and
// percent-encoded, so '?', '#' and '%' stay part of the file name.
func fileDSN(path, query string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve snapshot path %s", path)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: query}
	return u.String(), nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "failed to execute %q", pragma)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "failed to execute schema")
	}

	if err := runMigrations(db); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "get user_version")
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}

	return nil
}

// migrateToV1 adds the index that backs ordered record iteration.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_store_order
		ON records(object_store_id, id)
	`)
	if err != nil {
		return errors.Wrap(err, "migrate to v1")
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Snapshot) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRowContext(context.Background(), fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return errors.Wrapf(err, "failed to query %s", name)
	}
	if value != expected {
		return errors.Newf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
