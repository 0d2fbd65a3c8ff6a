// Package store is the normalized entity store behind sbomkit.
//
// Files and packages are content addressed (SHA-1 and verification code),
// licenses are keyed by normalized short name, and every document gets its
// own namespace, identifiers and relationships. All writes go through short
// transactions opened with WithTx; inserts of content identities are
// insert-if-absent, so a concurrent insert of the same digest falls back to
// the row that won.
//
// Two drivers are supported: "sqlite" (modernc, the default) and "pgx"
// (PostgreSQL through pgx's database/sql adapter).
//
// Example usage:
//
//	s, err := store.Open(ctx, store.Config{Driver: "sqlite", DSN: "/tmp/sbom.db"})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.WithTx(ctx, func(tx *store.Tx) error {
//	    _, err := tx.LookupOrCreateLicense(ctx, "MIT", "found by nomos")
//	    return err
//	})
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config configures the store connection.
type Config struct {
	Driver       string        // "sqlite" (default) or "pgx"
	DSN          string        // file path for sqlite, connection string for pgx
	MaxOpenConns int           // pgx only; sqlite always uses one connection (default: 8)
	BusyTimeout  time.Duration // sqlite busy timeout (default: 5s)
	CacheSize    int           // license cache entries (default: 4096)
	Logger       core.Logger
}

// Store is the entity store.
type Store struct {
	db      *sql.DB
	driver  string
	logger  core.Logger
	license *lru.Cache[string, License]
}

// Open connects to the database. Call Init before first use of a new
// database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.DSN == "" {
		return nil, errors.E(errors.KindInvalidInput, "store.Open", "database DSN is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err = sql.Open(DriverSQLite, sqliteDSN(cfg.DSN, cfg.BusyTimeout))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		// Writers serialize on the database file anyway; one connection
		// keeps transactions from tripping over each other.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	default:
		return nil, errors.E(errors.KindInvalidInput, "store.Open", fmt.Sprintf("unsupported driver %q", cfg.Driver))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cache, err := lru.New[string, License](cfg.CacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create license cache: %w", err)
	}

	return &Store{
		db:      db,
		driver:  cfg.Driver,
		logger:  core.LoggerOrDefault(cfg.Logger),
		license: cache,
	}, nil
}

func sqliteDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(busy.Milliseconds(), 10)+")")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// Transactions
// =============================================================================

// Tx is a store transaction. All entity operations are Tx methods.
type Tx struct {
	tx *sql.Tx
	s  *Store

	// licenses resolved in this transaction; published to the cache on commit
	pending map[string]License
}

// WithTx runs fn in a read-write transaction. The transaction is committed
// when fn returns nil and rolled back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.withTx(ctx, nil, fn)
}

// WithReadTx runs fn in a read-only transaction.
func (s *Store) WithReadTx(ctx context.Context, fn func(tx *Tx) error) error {
	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	return s.withTx(ctx, opts, fn)
}

func (s *Store) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return s.classify("store.BeginTx", err)
	}
	tx := &Tx{tx: sqlTx, s: s, pending: make(map[string]License)}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return s.classify("store.Commit", err)
	}
	for name, lic := range tx.pending {
		s.license.Add(name, lic)
	}
	return nil
}

func (t *Tx) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.s.rebind(query), args...)
	if err != nil {
		return nil, t.s.classify(op, err)
	}
	return res, nil
}

func (t *Tx) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.s.rebind(query), args...)
	if err != nil {
		return nil, t.s.classify(op, err)
	}
	return rows, nil
}

// get scans a single row into dest. A missing row returns sql.ErrNoRows.
func (t *Tx) get(ctx context.Context, op, query string, args []any, dest ...any) error {
	err := t.tx.QueryRowContext(ctx, t.s.rebind(query), args...).Scan(dest...)
	if err == sql.ErrNoRows {
		return err
	}
	if err != nil {
		return t.s.classify(op, err)
	}
	return nil
}

// insertID runs an INSERT ... RETURNING statement and returns the new id.
// It returns sql.ErrNoRows when ON CONFLICT DO NOTHING skipped the row.
func (t *Tx) insertID(ctx context.Context, op, query string, args ...any) (int64, error) {
	var id int64
	if err := t.get(ctx, op, query, args, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// count returns the number of rows matched by a COUNT(*) query.
func (t *Tx) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	if err := t.get(ctx, op, query, args, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "(?, ?), (?, ?)" style value lists.
func placeholders(rows, cols int) string {
	one := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	return strings.TrimSuffix(strings.Repeat(one+", ", rows), ", ")
}

// =============================================================================
// Error classification
// =============================================================================

// classify maps driver errors onto the error taxonomy.
func (s *Store) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.GetKind(err) != errors.KindUnknown {
		return errors.Wrap(err, op)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.E(errors.KindTimeout, op, err)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return errors.E(errors.KindConstraint, op, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errors.E(errors.KindBusy, op, err)
		}
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "23505", "23514", "23503", "23502":
			return errors.E(errors.KindConstraint, op, err)
		case "40001", "40P01", "55P03":
			return errors.E(errors.KindBusy, op, err)
		}
	}
	return errors.E(errors.KindInternal, op, err)
}
