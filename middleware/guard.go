package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionguard"
)

// ErrorHandler writes the response for a rejected request. err is
// sessionguard.ErrMissingCredential, sessionguard.ErrTokenInvalid,
// [ErrGatewayUnverified], or a dependency failure.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option customizes a guard.
type Option func(*options)

type options struct {
	onError ErrorHandler
}

// WithErrorHandler replaces the default plain-text error responses.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.onError = h
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{onError: defaultErrorHandler}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Guard validates the bearer token of every request in mode and passes
// authenticated requests to next. In sessionguard.ModeTrustedGateway it behaves
// exactly like [RequireGateway] and demands the gateway marker.
func Guard(engine *sessionguard.Engine, mode sessionguard.ValidationMode, opts ...Option) func(http.Handler) http.Handler {
	if mode == sessionguard.ModeTrustedGateway {
		return RequireGateway(engine, opts...)
	}
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serveValidated(engine, mode, o, next, w, r)
		})
	}
}

// RequireDirect returns a guard in sessionguard.ModeDirect.
func RequireDirect(engine *sessionguard.Engine, opts ...Option) func(http.Handler) http.Handler {
	return Guard(engine, sessionguard.ModeDirect, opts...)
}

func serveValidated(
	engine *sessionguard.Engine,
	mode sessionguard.ValidationMode,
	o options,
	next http.Handler,
	w http.ResponseWriter,
	r *http.Request,
) {
	if engine == nil {
		o.onError(w, r, sessionguard.ErrEngineNotReady)
		return
	}

	token, ok := BearerToken(r)
	if !ok {
		o.onError(w, r, sessionguard.ErrMissingCredential)
		return
	}

	ctx := RequestContext(r)
	res, err := engine.Validate(ctx, token, mode)
	if err != nil {
		o.onError(w, r, err)
		return
	}

	next.ServeHTTP(w, r.WithContext(sessionguard.WithAuthResult(ctx, res)))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	value := r.Header.Get("Authorization")
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

// RequestContext returns r's context annotated with the client IP and user
// agent for audit events.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = sessionguard.WithClientIP(ctx, host)
	} else if r.RemoteAddr != "" {
		ctx = sessionguard.WithClientIP(ctx, r.RemoteAddr)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = sessionguard.WithUserAgent(ctx, ua)
	}
	return ctx
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, sessionguard.ErrDependencyUnavailable) || errors.Is(err, sessionguard.ErrEngineNotReady) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
