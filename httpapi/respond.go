package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/middleware"
)

// Error codes carried in the "code" field of error bodies.
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeMissingToken         = "MISSING_TOKEN"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	CodeRefreshTokenNotFound = "REFRESH_TOKEN_NOT_FOUND"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeInvalid2FA           = "INVALID_2FA"
	CodeRateLimited          = "RATE_LIMITED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeInternal             = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeEngineError maps infrastructure failures shared by every route. It
// reports false when err is a credential judgment the caller must map itself.
func writeEngineError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, sessionguard.ErrDependencyUnavailable),
		errors.Is(err, sessionguard.ErrEngineNotReady),
		errors.Is(err, sessionguard.ErrNotificationCircuitOpen),
		errors.Is(err, sessionguard.ErrNotificationFailed),
		errors.Is(err, sessionguard.ErrNotificationsDisabled):
		writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "service temporarily unavailable")
	case errors.Is(err, sessionguard.ErrLoginRateLimited),
		errors.Is(err, sessionguard.ErrNotificationRateLimited):
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests, try again later")
	case errors.Is(err, sessionguard.ErrMissingCredential):
		writeError(w, http.StatusUnauthorized, CodeMissingToken, "credential required")
	default:
		return false
	}
	return true
}

// guardError renders middleware rejections in the same envelope as handlers.
func guardError(w http.ResponseWriter, _ *http.Request, err error) {
	if writeEngineError(w, err) {
		return
	}
	if errors.Is(err, middleware.ErrGatewayUnverified) {
		writeError(w, http.StatusUnauthorized, CodeInvalidToken, "unauthorized")
		return
	}
	writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
}
