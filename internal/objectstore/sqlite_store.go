package objectstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/book-expert/scripture-service/internal/core"
)

const (
	sqliteDriverName = "sqlite"
	sqliteFallback   = "sqlite://objects"

	createObjectsTable = `CREATE TABLE IF NOT EXISTS objects (
		key          TEXT PRIMARY KEY,
		data         BLOB NOT NULL,
		content_type TEXT NOT NULL,
		digest       TEXT NOT NULL,
		updated_at   INTEGER NOT NULL
	)`
	selectExists = `SELECT 1 FROM objects WHERE key = ?`
	selectObject = `SELECT data, digest FROM objects WHERE key = ?`
	upsertObject = `INSERT INTO objects (key, data, content_type, digest, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			content_type = excluded.content_type,
			digest = excluded.digest,
			updated_at = excluded.updated_at`
)

// ErrDigestMismatch is returned when a stored object no longer matches its recorded digest.
var ErrDigestMismatch = errors.New("object digest mismatch")

// SQLiteObjectStore implements core.ObjectStore on a single SQLite database file.
type SQLiteObjectStore struct {
	db            *sql.DB
	publicBaseURL string
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(ctx context.Context, path, publicBaseURL string) (*SQLiteObjectStore, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open sqlite database %s: %w", core.ErrStorage, path, err)
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY under concurrent puts.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, createObjectsTable)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: failed to create objects table: %w", core.ErrStorage, err)
	}

	return &SQLiteObjectStore{db: db, publicBaseURL: publicBaseURL}, nil
}

// Close releases the database handle.
func (s *SQLiteObjectStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("%w: failed to close sqlite database: %w", core.ErrStorage, err)
	}

	return nil
}

// Exists reports whether key is present.
func (s *SQLiteObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	var found int

	err := s.db.QueryRowContext(ctx, selectExists, key).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("%w: failed to stat object '%s': %w", core.ErrStorage, key, err)
	}

	return true, nil
}

// Download reads an object and verifies it against its recorded digest.
func (s *SQLiteObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	var (
		data   []byte
		digest string
	)

	err := s.db.QueryRowContext(ctx, selectObject, key).Scan(&data, &digest)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get object '%s': %w", core.ErrStorage, key, err)
	}

	if Digest(data) != digest {
		return nil, fmt.Errorf("%w: %w for '%s'", core.ErrStorage, ErrDigestMismatch, key)
	}

	return data, nil
}

// Upload writes an object, replacing any previous version.
func (s *SQLiteObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.db.ExecContext(ctx, upsertObject, key, data, contentType, Digest(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: failed to put object '%s': %w", core.ErrStorage, key, err)
	}

	return nil
}

// URL returns the public address of key.
func (s *SQLiteObjectStore) URL(key string) string {
	return publicURL(s.publicBaseURL, sqliteFallback, key)
}
