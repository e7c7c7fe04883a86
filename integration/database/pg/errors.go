package pg

import "errors"

// Domain-specific PostgreSQL errors for consistent error handling across the
// application. Use errors.Is() to check error types for retry logic.
var (
	ErrEmptyConnectionString = errors.New("empty postgres connection string")
	ErrFailedToParseConfig   = errors.New("failed to parse postgres connection string")
	ErrFailedToConnect       = errors.New("failed to connect to postgres")
	ErrMigrationFailed       = errors.New("postgres migration failed")
	ErrHealthcheckFailed     = errors.New("postgres healthcheck failed")
)
