package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// Database Specific Errors
	ErrDBConnection  = errors.New("database connection error")
	ErrQueryFailed   = errors.New("database query failed")
	ErrUpdateFailed  = errors.New("database update failed")
	ErrStateNotFound = errors.New("strategy state not found")

	// Simulation Errors
	ErrIncompleteHistory = errors.New("candle history has gaps")
	ErrNoManagers        = errors.New("no managers to run")
	ErrInvalidRange      = errors.New("invalid range")
)
