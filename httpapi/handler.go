package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/middleware"
)

const defaultMaxBodyBytes = 64 << 10

// PasswordSetter stores a new password for a principal after a reset ticket
// was redeemed. accounts.Directory satisfies it.
type PasswordSetter interface {
	SetPassword(principalID, plaintext string) error
}

// Option customizes a [Handler].
type Option func(*Handler)

// WithLogger sets the logger for unexpected failures. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithPasswordSetter enables /auth/reset-password.
func WithPasswordSetter(s PasswordSetter) Option {
	return func(h *Handler) { h.passwords = s }
}

// WithTrustedGateway protects authenticated routes with
// middleware.RequireGateway instead of middleware.RequireDirect.
func WithTrustedGateway() Option {
	return func(h *Handler) { h.gateway = true }
}

// WithMaxBodyBytes caps request bodies. Default 64 KiB.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// Handler routes the auth endpoints to an Engine.
type Handler struct {
	engine    *sessionguard.Engine
	logger    *slog.Logger
	passwords PasswordSetter
	gateway   bool
	maxBody   int64
	mux       *http.ServeMux
}

// New builds the route table for engine.
func New(engine *sessionguard.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:  engine,
		logger:  slog.Default(),
		maxBody: defaultMaxBodyBytes,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	guard := middleware.RequireDirect(h.engine, middleware.WithErrorHandler(guardError))
	if h.gateway {
		guard = middleware.RequireGateway(h.engine, middleware.WithErrorHandler(guardError))
	}

	h.mux.HandleFunc("POST /auth/login", h.login)
	h.mux.HandleFunc("POST /auth/refresh", h.refresh)
	h.mux.HandleFunc("POST /auth/logout", h.logout)
	h.mux.HandleFunc("POST /auth/validate-token", h.validateToken)
	h.mux.HandleFunc("POST /auth/2fa/verify", h.verify2FA)
	h.mux.HandleFunc("POST /auth/forgot-password", h.forgotPassword)
	h.mux.HandleFunc("POST /auth/verify-email", h.verifyEmail)
	if h.passwords != nil {
		h.mux.HandleFunc("POST /auth/reset-password", h.resetPassword)
	}
	h.mux.Handle("POST /auth/revoke-all", guard(http.HandlerFunc(h.revokeAll)))
	h.mux.Handle("POST /auth/resend-verification", guard(http.HandlerFunc(h.resendVerification)))
	h.mux.Handle("GET /auth/me", guard(http.HandlerFunc(h.me)))
	h.mux.HandleFunc("GET /healthz", h.health)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "malformed request body")
		return false
	}
	return true
}

func (h *Handler) unexpected(w http.ResponseWriter, route string, err error) {
	h.logger.Error("httpapi: unexpected engine error", "route", route, "error", err)
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
