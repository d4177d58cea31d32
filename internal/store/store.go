// Package store persists folders, media files and their embeddings in SQLite
// and answers exact dot-product similarity queries over them.
//
// Writes go through a single connection so in-process writers never contend;
// reads use a separate query-only pool, so searches run against the last
// committed snapshot and never wait on an indexing transaction (WAL mode).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/metrics"
)

// Options configures Open.
type Options struct {
	// CacheMB is the page cache per connection in megabytes (default 64).
	CacheMB int
	// ReadConns is the reader pool size (default 4).
	ReadConns int
	// WriteRetries bounds retries of a write hitting SQLITE_BUSY (default 5).
	WriteRetries uint64
	// WriteRetryBase is the Fibonacci backoff base (default 50ms).
	WriteRetryBase time.Duration
}

func (o Options) withDefaults() Options {
	if o.CacheMB <= 0 {
		o.CacheMB = 64
	}
	if o.ReadConns <= 0 {
		o.ReadConns = 4
	}
	if o.WriteRetries == 0 {
		o.WriteRetries = 5
	}
	if o.WriteRetryBase <= 0 {
		o.WriteRetryBase = 50 * time.Millisecond
	}
	return o
}

// Store is the SQLite-backed VectorStore.
type Store struct {
	path string
	opts Options
	db   *sql.DB // writer, single connection
	rdb  *sql.DB // readers
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeStoreUnavailable, "failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", opts.CacheMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, terrors.New(terrors.ErrCodeStoreUnavailable, "failed to set pragma", err)
		}
	}

	s := &Store{path: path, opts: opts, db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, terrors.New(terrors.ErrCodeStoreUnavailable, "failed to initialize schema", err)
	}

	// Reader connections are opened lazily by the pool, so their pragmas
	// travel in the DSN rather than through Exec.
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "query_only(1)")
	q.Add("_pragma", fmt.Sprintf("cache_size(-%d)", opts.CacheMB*1024))
	rdb, err := sql.Open("sqlite", path+"?"+q.Encode())
	if err != nil {
		_ = db.Close()
		return nil, terrors.New(terrors.ErrCodeStoreUnavailable, "failed to open read pool", err)
	}
	rdb.SetMaxOpenConns(opts.ReadConns)
	rdb.SetMaxIdleConns(opts.ReadConns)
	s.rdb = rdb

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		modality_filter TEXT NOT NULL DEFAULT 'all',
		watch_enabled INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		last_indexed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS media_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		folder_id INTEGER,
		modality TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL DEFAULT '',
		modified_at INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER,
		deletion_notified INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_media_files_status ON media_files(status);
	CREATE INDEX IF NOT EXISTS idx_media_files_folder ON media_files(folder_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		file_id INTEGER NOT NULL REFERENCES media_files(id),
		modality TEXT NOT NULL,
		model_version TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (file_id, modality, model_version)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_modality ON embeddings(modality, model_version);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks both pools.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	if err := s.rdb.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close closes both pools.
func (s *Store) Close() error {
	rerr := s.rdb.Close()
	werr := s.db.Close()
	return errors.Join(werr, rerr)
}

// write runs fn, retrying with Fibonacci backoff while SQLite reports the
// database busy or locked. Other failures are returned classified.
func (s *Store) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.opts.WriteRetries, retry.NewFibonacci(s.opts.WriteRetryBase))
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isBusy(err) {
			metrics.StoreWriteConflicts.Inc()
			slog.Debug("store write conflict, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt))
			return retry.RetryableError(terrors.New(terrors.ErrCodeStoreWriteConflict, op+": database busy", err))
		}
		return err
	})
	if err == nil {
		return nil
	}
	if _, ok := terrors.As(err); ok {
		return err
	}
	return classify(op, err)
}

// withTx runs fn inside a write transaction under the write retry policy.
// Statements in fn should write before they read so the write lock is taken
// up front.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return s.write(ctx, op, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// isBusy reports SQLITE_BUSY / SQLITE_LOCKED style failures.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// classify maps a raw database error to the error taxonomy.
// Missing rows are NotFound; everything else means the store cannot serve.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := terrors.As(err); ok {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return terrors.New(terrors.ErrCodeNotFound, op+": not found", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isBusy(err) {
		return terrors.New(terrors.ErrCodeStoreWriteConflict, op+": database busy", err)
	}
	return terrors.New(terrors.ErrCodeStoreUnavailable, op+": "+err.Error(), err)
}

// likePrefix returns a LIKE pattern matching paths strictly below root.
func likePrefix(root string) string {
	prefix := strings.TrimRight(root, string(filepath.Separator)) + string(filepath.Separator)
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
