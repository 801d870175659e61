package domain

// errCode values give every error family a stable, loggable identifier
// independent of its human message.
type errCode string

// AuthError covers bearer-token extraction and verification failures.
type AuthError struct {
	Code    errCode
	Message string
}

func (e *AuthError) Error() string { return e.Message }

var (
	ErrTokenExpired   = &AuthError{Code: "token_expired", Message: "token has expired"}
	ErrTokenInvalid   = &AuthError{Code: "token_invalid", Message: "token is invalid"}
	ErrKeyNotFound    = &AuthError{Code: "key_not_found", Message: "signing key not found in JWKS"}
	ErrIssuerInvalid  = &AuthError{Code: "issuer_invalid", Message: "token issuer is not recognized"}
	ErrAudienceInvalid = &AuthError{Code: "audience_invalid", Message: "token audience is not recognized"}
	ErrClaimsMissing  = &AuthError{Code: "claims_missing", Message: "required claims are missing"}
	ErrNoToken        = &AuthError{Code: "no_token", Message: "no bearer token provided"}
)

// AuthzError covers role/permission failures once a user is authenticated.
type AuthzError struct {
	Code    errCode
	Message string
}

func (e *AuthzError) Error() string { return e.Message }

var (
	ErrInsufficientRole  = &AuthzError{Code: "insufficient_role", Message: "role does not permit this action"}
	ErrInsufficientScope = &AuthzError{Code: "insufficient_scope", Message: "token scope does not permit this action"}
)

// RateError covers rate limiting and temporary blocking.
type RateError struct {
	Code    errCode
	Message string
}

func (e *RateError) Error() string { return e.Message }

var (
	ErrIPBlocked         = &RateError{Code: "ip_blocked", Message: "identifier is temporarily blocked"}
	ErrRateLimitExceeded = &RateError{Code: "rate_limit_exceeded", Message: "rate limit exceeded"}
)

// InputError covers sanitizer and shape violations.
type InputError struct {
	Code    errCode
	Message string
}

func (e *InputError) Error() string { return e.Message }

var (
	ErrTooLong        = &InputError{Code: "too_long", Message: "input exceeds the maximum allowed length"}
	ErrInvalidFormat  = &InputError{Code: "invalid_format", Message: "input has an invalid format"}
	ErrInvalidEmail   = &InputError{Code: "invalid_email", Message: "email address is invalid"}
	ErrInvalidUUID    = &InputError{Code: "invalid_uuid", Message: "identifier is not a valid UUID"}
)

// BudgetError covers BudgetEnforcer denials.
type BudgetError struct {
	Code    errCode
	Message string
}

func (e *BudgetError) Error() string { return e.Message }

var (
	ErrPerRequestExceeded = &BudgetError{Code: "per_request_exceeded", Message: "estimated cost exceeds the per-request cap"}
	ErrDailyExceeded      = &BudgetError{Code: "daily_exceeded", Message: "daily budget exceeded"}
	ErrMonthlyExceeded    = &BudgetError{Code: "monthly_exceeded", Message: "monthly budget exceeded"}
	ErrUserBlocked        = &BudgetError{Code: "user_blocked", Message: "user is blocked"}
)

// ProviderError covers LLM provider call failures. These are recovered
// internally by LLMDispatcher's retry loop; they only escape the dispatcher
// on the final attempt, and even then the dispatcher converts them into a
// fallback response rather than propagating the error.
type ProviderError struct {
	Code    errCode
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

var (
	ErrProviderTimeout   = &ProviderError{Code: "provider_timeout", Message: "LLM provider timed out"}
	ErrProviderEmpty     = &ProviderError{Code: "provider_empty", Message: "LLM provider returned an empty response"}
	ErrProviderTransport = &ProviderError{Code: "provider_transport", Message: "LLM provider transport error"}
)

// StorageError covers TokenStore failures.
type StorageError struct {
	Code    errCode
	Message string
}

func (e *StorageError) Error() string { return e.Message }

var (
	ErrStorageUnavailable = &StorageError{Code: "storage_unavailable", Message: "storage is unavailable"}
	ErrNotFound           = &StorageError{Code: "not_found", Message: "record not found"}
	ErrConflict           = &StorageError{Code: "conflict", Message: "concurrent write conflict"}
)

// ConfigError covers Config section validation failures.
type ConfigError struct {
	Code    errCode
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

var (
	ErrConfigMissing = &ConfigError{Code: "config_missing", Message: "required configuration is missing"}
	ErrConfigInvalid = &ConfigError{Code: "config_invalid", Message: "configuration value is invalid"}
)
