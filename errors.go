package sessionguard

import "errors"

var (
	// ErrMissingCredential is returned when a request carries no credential at all.
	ErrMissingCredential = errors.New("missing credential")
	// ErrTokenInvalid covers malformed, expired, revoked and unknown access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid covers every renewal credential validity failure.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshNotFound is returned by Logout for an unknown renewal secret.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrRefreshReuse classifies a rotated-away renewal secret presented after its
	// grace window. It is used for audit and metrics; callers receive ErrRefreshInvalid.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrChallengeInvalid covers unknown, consumed, expired and failed challenges.
	ErrChallengeInvalid = errors.New("invalid 2fa challenge")
	// ErrInvalidCredentials is returned for any identifier/password failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when an identifier spent its failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrPrincipalNotFound is returned by an AccountProvider for unknown principals.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPasswordResetInvalid covers unknown, consumed and expired reset tickets.
	ErrPasswordResetInvalid = errors.New("invalid password reset ticket")
	// ErrNotificationRateLimited wraps dispatch.ErrRateLimited.
	ErrNotificationRateLimited = errors.New("notification rate limited")
	// ErrNotificationCircuitOpen wraps dispatch.ErrCircuitOpen.
	ErrNotificationCircuitOpen = errors.New("notification circuit open")
	// ErrNotificationFailed wraps dispatch.ErrTransport.
	ErrNotificationFailed = errors.New("notification failed")
	// ErrNotificationsDisabled is returned when no mail transport was configured.
	ErrNotificationsDisabled = errors.New("notifications disabled")
	// ErrDependencyUnavailable is returned when the credential store or another
	// dependency fails. Validation never degrades to success on this error.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrInvalidValidationMode is returned for an unknown ValidationMode.
	ErrInvalidValidationMode = errors.New("invalid validation mode")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
