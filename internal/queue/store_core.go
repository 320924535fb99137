package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bgtask/internal/config"
)

// Store manages task persistence on a SQL backend.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	location string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open connects to the configured backend and applies pending migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	dialect, err := ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Store.DSN
	location := redactDSN(dsn)
	if dialect == SQLite {
		dsn = sqliteDSN(cfg.Store.Path, cfg.Store.BusyTimeoutMS)
		location = cfg.Store.Path
	}

	store, err := OpenDSN(context.Background(), dialect, dsn)
	if err != nil {
		return nil, err
	}
	store.location = location
	if cfg.Store.MaxOpenConns > 0 {
		store.db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	}
	return store, nil
}

// OpenDSN connects with an explicit dialect and data source name. SQLite
// DSNs without a _txlock parameter get _txlock=immediate so WithLock holds
// the write lock before it reloads the row.
func OpenDSN(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	location := redactDSN(dsn)
	if dialect == SQLite {
		dsn = immediateTxLock(dsn)
	}
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}

	store := &Store{db: db, dialect: dialect, location: location}
	if err := store.applyMigrations(ensureContext(ctx)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// sqliteDSN builds a modernc DSN. Transactions start with BEGIN IMMEDIATE so
// the write lock is taken before the row is reloaded.
func sqliteDSN(path string, busyTimeoutMS int) string {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

func immediateTxLock(dsn string) string {
	base, query, hasQuery := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(query)
	if err == nil && params.Get("_txlock") != "" {
		return dsn
	}
	if !strings.HasPrefix(base, "file:") {
		base = "file:" + base
	}
	if hasQuery && query != "" {
		return base + "?" + query + "&_txlock=immediate"
	}
	return base + "?_txlock=immediate"
}

// redactDSN strips credentials for display.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		u.User = url.User(u.User.Username())
		return u.String()
	}
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		if colon := strings.Index(dsn[:at], ":"); colon >= 0 {
			return dsn[:colon] + ":***" + dsn[at:]
		}
	}
	return dsn
}

// Dialect reports the backend this store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Location is the database path or DSN with any password masked.
func (s *Store) Location() string {
	return s.location
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
