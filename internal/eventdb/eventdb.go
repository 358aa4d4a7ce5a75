// Package eventdb is the event repository: a relational store for
// deduplicated webhook callbacks, retry-wrapped against transient failures
// and translating unique-constraint violations into a duplicate sentinel.
package eventdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chainhook/forwarder/internal/constants"
	"github.com/chainhook/forwarder/internal/retry"
)

// Dialect specifies the SQL dialect to use with GORM.
type Dialect string

const (
	// DialectPostgres is the production dialect.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite backs tests with an in-memory database.
	DialectSQLite Dialect = "sqlite"
)

// ErrDuplicate is returned by Store when the (provider, hash) pair already exists.
var ErrDuplicate = errors.New("event already stored")

// pqUniqueViolation is Postgres' SQLSTATE code for unique_violation.
const pqUniqueViolation = "23505"

// EventDB is a handle to the forwarder's event store.
type EventDB struct {
	db      *gorm.DB
	policy  *retry.Policy
	dialect Dialect
}

// New opens a Postgres-backed EventDB using databaseURL as the DSN.
// databaseURL is parsed as a URI: TLS is required by default (sslmode=require,
// trusting the server certificate) and the connection's search_path is
// pinned to constants.SchemaName unless the DSN already overrides either.
func New(ctx context.Context, databaseURL string, log *slog.Logger) (*EventDB, error) {
	dsn, err := prepareDSN(databaseURL)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sql database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if _, err := sqlDB.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+constants.SchemaName); err != nil {
		return nil, fmt.Errorf("creating schema %s: %w", constants.SchemaName, err)
	}

	return NewFromSQLDatabase(DialectPostgres, sqlDB, log)
}

// prepareDSN parses databaseURL as a URI and fills in the defaults the
// forwarder requires: TLS with server-certificate trust, and a search_path
// scoped to the forwarder's dedicated schema. Values already present in the
// URI are left untouched.
func prepareDSN(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL as URI: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported database URL scheme %q: expected postgres or postgresql", u.Scheme)
	}

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
	}
	if q.Get("search_path") == "" {
		q.Set("search_path", constants.SchemaName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewFromSQLDatabase creates an EventDB handle using an already-open SQL
// handle, letting tests hand in an in-memory SQLite database.
func NewFromSQLDatabase(dialect Dialect, db *sql.DB, log *slog.Logger) (*EventDB, error) {
	var gormDB *gorm.DB
	var err error

	switch dialect {
	case DialectPostgres:
		gormDB, err = gorm.Open(gormpostgres.New(gormpostgres.Config{
			Conn: db,
		}), &gorm.Config{
			Logger: newGORMLogger(log),
		})
	case DialectSQLite:
		gormDB, err = gorm.Open(gormsqlite.New(gormsqlite.Config{
			Conn: db,
		}), &gorm.Config{
			Logger: newGORMLogger(log),
		})
	default:
		return nil, fmt.Errorf("unsupported SQL dialect: %s", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing gorm: %w", err)
	}

	return &EventDB{
		db:      gormDB,
		policy:  retry.New(retry.WithClassifier(retry.IsTransient)),
		dialect: dialect,
	}, nil
}

// Close closes the underlying connection.
func (e *EventDB) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// CheckHealth verifies the database connection is alive.
func (e *EventDB) CheckHealth(ctx context.Context) error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

func newGORMLogger(log *slog.Logger) logger.Interface {
	return &gormLogger{
		log:           log,
		level:         logger.Warn,
		slowThreshold: 400 * time.Millisecond,
	}
}

type gormLogger struct {
	log           *slog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.log.InfoContext(ctx, l.flatten(msg), args...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.log.WarnContext(ctx, l.flatten(msg), args...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.log.ErrorContext(ctx, l.flatten(msg), args...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sqlStr, rows := fc()
	sqlStr = l.flatten(sqlStr)
	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, logger.ErrRecordNotFound) && !isUniqueViolation(err):
		l.log.ErrorContext(ctx, "sql error", "duration_ms", float64(elapsed.Nanoseconds())/1e6, "rows", rows, "sql", sqlStr, "error", err)
	case elapsed > l.slowThreshold && l.slowThreshold != 0 && l.level >= logger.Warn:
		l.log.WarnContext(ctx, "slow sql", "duration_ms", float64(elapsed.Nanoseconds())/1e6, "rows", rows, "sql", sqlStr)
	case l.level == logger.Info:
		l.log.InfoContext(ctx, "sql query", "duration_ms", float64(elapsed.Nanoseconds())/1e6, "rows", rows, "sql", sqlStr)
	}
}

func (l *gormLogger) flatten(msg string) string {
	return strings.ReplaceAll(strings.ReplaceAll(msg, "\n", " "), "\t", " ")
}

// isUniqueViolation reports whether err is a Postgres unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	// SQLite's driver reports constraint violations as a plain string; tests
	// run against SQLite so this keeps the duplicate path exercised there too.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
