package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go-calendar-core/core/constants"
	"go-calendar-core/core/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(constants.DatabaseDriverSQLite, sqlx.QUESTION)
}

type IDatabase interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	Rebind(query string) string
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InTx(ctx context.Context) bool
	Ping(ctx context.Context) error
	SQLx() *sqlx.DB
}

// Transactor runs a unit of work inside one transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Database struct {
	db     *sql.DB
	sqlx   *sqlx.DB
	driver string
}

type DatabaseConfig struct {
	Driver          string // postgres | sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string // disable, require, verify-ca, verify-full
	Path            string // sqlite file
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
}

type txKey struct{}

func InitDB(config DatabaseConfig) (*Database, error) {
	logger.Info("Database:Init:Start", "driver", config.Driver)

	driver, dsn, err := dataSource(config)
	if err != nil {
		return nil, err
	}

	sqlxDB, err := sqlx.Connect(driver, dsn)
	if err != nil {
		logger.Error("Database:Init:Connect:Error", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	maxOpen := orDefault(config.MaxOpenConns, constants.DatabaseMaxOpenConns)
	maxIdle := orDefault(config.MaxIdleConns, constants.DatabaseMaxIdleConns)
	lifetime := orDefault(config.ConnMaxLifetime, constants.DatabaseConnMaxLifetime)
	if driver == constants.DatabaseDriverSQLite {
		// a single writer avoids SQLITE_BUSY between pooled connections
		maxOpen, maxIdle = 1, 1
	}

	sqlDB := sqlxDB.DB
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(lifetime) * time.Minute)

	if err = sqlDB.Ping(); err != nil {
		logger.Error("Database:Init:Ping:Error", "error", err)
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database:Init:Success",
		"driver", driver,
		"host", config.Host,
		"database", config.DBName,
		"path", config.Path,
		"maxOpenConns", maxOpen,
		"maxIdleConns", maxIdle,
		"connMaxLifetime", lifetime,
	)

	return &Database{db: sqlDB, sqlx: sqlxDB, driver: driver}, nil
}

// OpenSQLite opens a sqlite database at path with the pool settings the
// rest of the code expects.
func OpenSQLite(path string) (*Database, error) {
	return InitDB(DatabaseConfig{Driver: constants.DatabaseDriverSQLite, Path: path})
}

func dataSource(config DatabaseConfig) (string, string, error) {
	switch config.Driver {
	case "", constants.DatabaseDriverPostgres:
		sslMode := config.SSLMode
		if sslMode == "" {
			sslMode = constants.DatabaseSSLMode
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.User, config.Password, config.DBName, sslMode)
		return constants.DatabaseDriverPostgres, dsn, nil
	case constants.DatabaseDriverSQLite:
		if config.Path == "" {
			return "", "", fmt.Errorf("sqlite path is required")
		}
		dsn := config.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		return constants.DatabaseDriverSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %q", config.Driver)
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// WithTx runs fn inside a transaction carried by the context passed to fn.
// A transaction already present in ctx is joined instead of nested. The
// transaction rolls back when fn returns an error or panics.
func (d *Database) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if d.InTx(ctx) {
		return fn(ctx)
	}

	tx, err := d.sqlx.BeginTxx(ctx, nil)
	if err != nil {
		logger.Error("Database:WithTx:Begin:Error", "error", err)
		return fmt.Errorf("begin transaction: %w", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Database:WithTx:Rollback:Error", "error", rbErr)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	done = true
	if err = tx.Commit(); err != nil {
		logger.Error("Database:WithTx:Commit:Error", "error", err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (d *Database) InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return ok
}

// Executor returns the transaction carried by ctx, or the pool.
func (d *Database) Executor(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return d.sqlx
}

func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.Executor(ctx).ExecContext(ctx, query, args...)
}

func (d *Database) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, d.Executor(ctx), dest, query, args...)
}

func (d *Database) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, d.Executor(ctx), dest, query, args...)
}

func (d *Database) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return d.Executor(ctx).QueryRowxContext(ctx, query, args...)
}

// Rebind converts '?' placeholders to the driver's bind style.
func (d *Database) Rebind(query string) string {
	return d.sqlx.Rebind(query)
}

func (d *Database) DriverName() string {
	return d.driver
}

func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabasePingTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.sqlx.Close()
}

func (d *Database) SQLx() *sqlx.DB {
	return d.sqlx
}
