package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/MrEthical07/sessionguard"
)

// ErrGatewayUnverified rejects trusted-gateway requests without a matching
// marker header, including every request when no gateway secret is configured.
var ErrGatewayUnverified = errors.New("gateway marker missing or invalid")

// RequireGateway returns a guard in sessionguard.ModeTrustedGateway. The
// request must carry Validation.GatewayHeader set to Validation.GatewaySecret;
// otherwise it is rejected before the token is looked at.
func RequireGateway(engine *sessionguard.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	var header string
	var secret []byte
	if engine != nil {
		cfg := engine.Config().Validation
		header = cfg.GatewayHeader
		secret = []byte(cfg.GatewaySecret)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gatewayVerified(r, header, secret) {
				o.onError(w, r, ErrGatewayUnverified)
				return
			}
			serveValidated(engine, sessionguard.ModeTrustedGateway, o, next, w, r)
		})
	}
}

func gatewayVerified(r *http.Request, header string, secret []byte) bool {
	if len(secret) == 0 || header == "" {
		return false
	}
	presented := r.Header.Get(header)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), secret) == 1
}
