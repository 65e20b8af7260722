package constants

import "time"

const (
	DatabaseDriverPostgres = "postgres"
	DatabaseDriverSQLite   = "sqlite"

	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
	DatabaseSSLMode         = "disable"
	DatabasePingTimeout     = 5 * time.Second
)

const (
	CacheKeyAccountsPrefix = "calendar:accounts"
)

const (
	HealthRequestIDHeader = "X-Request-ID"
	ShutdownTimeout       = 10 * time.Second
)
