package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"

	PostgresConnectionString = "host=%s user=%s password=%s dbname=%s port=%s sslmode=%s"
	SqliteConnectionString   = "file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	connectAttempts = 5
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	dbLogger = logger.Get("DB")

	ErrNotConnected = errors.New("DB manager has not yet connected")
)

type (
	SqlLogger struct {
		logger logger.Logger
	}

	// Manager owns the underlying database handle. Transactions are
	// obtained from the manager using Begin, and each transaction is
	// owned exclusively by the caller that began it.
	Manager struct {
		rawDb   *sql.DB
		db      *sqlx.DB
		dialect string
		sink    StatementSink
	}
)

func New() *Manager {
	return &Manager{sink: logStatement}
}

// Connect opens the database described by the config provided, retrying the initial
// ping a number of times before giving up. Once connected, the embedded migrations
// are executed.
func (db *Manager) Connect(config DatabaseConfig) error {
	if config.Driver == "" {
		config.Driver = DriverPostgres
	}

	driverName, dsn, err := config.dataSource()
	if err != nil {
		return err
	}

	if config.Driver == DriverSqlite {
		if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
	}

	opened, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", config.Driver, err)
	}

	logged := sqldblogger.OpenDriver(dsn, opened.Driver(), &SqlLogger{dbLogger})
	if config.Driver == DriverSqlite {
		// A single writer avoids SQLITE_BUSY churn between pooled connections
		logged.SetMaxOpenConns(1)
	}

	for attempt := 1; ; attempt++ {
		err := logged.Ping()
		if err == nil {
			break
		}

		if attempt >= connectAttempts {
			dbLogger.Emit(logger.ERROR, "All attempts FAILED!\n")
			logged.Close()
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		dbLogger.Emit(logger.WARNING, "Attempt (%v/%v) failed... Retrying in 3s\n", attempt, connectAttempts)
		time.Sleep(3 * time.Second)
	}

	db.rawDb = logged
	db.dialect = config.Driver
	db.db = sqlx.NewDb(logged, config.sqlxDriverName())

	if err := db.ExecuteMigrations(); err != nil {
		return err
	}

	dbLogger.Emit(logger.SUCCESS, "Database connection complete!\n")
	return nil
}

// ExecuteMigrations uses the comp-time embedded SQL migrations (found in the 'migrations'
// dir in this package) and runs them against the current DB instance.
func (db *Manager) ExecuteMigrations() error {
	rawDb := db.rawDb
	if rawDb == nil {
		return fmt.Errorf("cannot execute migrations: %w", ErrNotConnected)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(dbLogger)
	if err := goose.SetDialect(gooseDialect(db.dialect)); err != nil {
		return fmt.Errorf("failed to set dialect for DB migration: %w", err)
	}

	dbLogger.Emit(logger.INFO, "Checking for pending DB migrations...\n")
	if err := goose.Up(rawDb, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate DB: %w", err)
	}

	dbLogger.Emit(logger.SUCCESS, "DB Goose migration complete!\n")
	return nil
}

// GetSqlxDb returns the sqlx database handle if one has
// been opened using 'Connect'. Otherwise, nil is returned
func (db *Manager) GetSqlxDb() *sqlx.DB {
	return db.db
}

// Dialect returns the driver name the manager connected with.
func (db *Manager) Dialect() string { return db.dialect }

// SetStatementSink replaces the sink which is notified of every statement
// before it is sent to the driver. A nil sink disables reporting.
func (db *Manager) SetStatementSink(sink StatementSink) {
	db.sink = sink
}

// Begin starts a new transaction scope using the commit policy given. The
// returned Conn must be closed (see Conn.Close) on every exit path.
func (db *Manager) Begin(ctx context.Context, policy Policy) (*Conn, error) {
	if db.db == nil {
		return nil, ErrNotConnected
	}

	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	dbLogger.Emit(logger.VERBOSE, "Begin transaction (policy=%s)\n", policy)
	return &Conn{tx: tx, ctx: ctx, policy: policy, state: Open, sink: db.sink}, nil
}

func (db *Manager) Close() error {
	if db.rawDb == nil {
		return nil
	}

	err := db.rawDb.Close()
	db.rawDb = nil
	db.db = nil
	return err
}

func (l *SqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	switch level {
	case sqldblogger.LevelError:
		l.logger.Errorf("%s - %v\n", msg, data)
	default:
		l.logger.Verbosef("%s [%.2fms]\n", msg, data["duration"])
	}
}

// WithTransaction begins a transaction using the policy provided and then calls
// the user provided function. Upon return (or panic) of the function, the
// transaction is closed according to the scope-exit rules of Conn.Close: an
// error or panic ALWAYS rolls back, otherwise the policy decides.
func WithTransaction(ctx context.Context, db Beginner, policy Policy, f func(*Conn) error) (err error) {
	conn, err := db.Begin(ctx, policy)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = conn.Close(fmt.Errorf("panic: %v", p))
			panic(p)
		}

		if closeErr := conn.Close(err); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err = f(conn); err != nil {
		dbLogger.Errorf("Transaction failed... rolling back. Error: %s\n", err.Error())
	}

	return err
}

func gooseDialect(driver string) string {
	if driver == DriverSqlite {
		return "sqlite3"
	}

	return driver
}
