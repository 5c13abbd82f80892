package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/middleware"
	"github.com/MrEthical07/sessionguard/password"
)

type pairResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func newPairResponse(p *sessionguard.TokenPair) pairResponse {
	return pairResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

type challengeResponse struct {
	Require2FA bool   `json:"require2FA"`
	TempToken  string `json:"tempToken"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	identifier := body.Identifier
	if identifier == "" {
		identifier = body.Email
	}

	res, err := h.engine.Login(middleware.RequestContext(r), identifier, body.Password)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		if errors.Is(err, sessionguard.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials")
			return
		}
		h.unexpected(w, "login", err)
		return
	}

	if res.MFARequired {
		writeJSON(w, http.StatusAccepted, challengeResponse{Require2FA: true, TempToken: res.ChallengeToken})
		return
	}
	writeJSON(w, http.StatusOK, newPairResponse(res.Tokens))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	pair, err := h.engine.Refresh(middleware.RequestContext(r), body.RefreshToken)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		if errors.Is(err, sessionguard.ErrRefreshInvalid) {
			writeError(w, http.StatusUnauthorized, CodeInvalidRefreshToken, "invalid or expired refresh token")
			return
		}
		h.unexpected(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, newPairResponse(pair))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
		AccessToken  string `json:"accessToken"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.AccessToken == "" {
		body.AccessToken, _ = middleware.BearerToken(r)
	}

	err := h.engine.Logout(middleware.RequestContext(r), body.RefreshToken, body.AccessToken)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		if errors.Is(err, sessionguard.ErrRefreshNotFound) {
			writeError(w, http.StatusNotFound, CodeRefreshTokenNotFound, "refresh token not found")
			return
		}
		h.unexpected(w, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true})
}

func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	auth, ok := sessionguard.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
		return
	}

	n, err := h.engine.RevokeAll(r.Context(), auth.PrincipalID)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		h.unexpected(w, "revoke-all", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RevokedCount int `json:"revokedCount"`
	}{RevokedCount: n})
}

func (h *Handler) validateToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.Token == "" {
		body.Token, _ = middleware.BearerToken(r)
	}

	view, err := h.engine.ValidateToken(middleware.RequestContext(r), body.Token)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		h.unexpected(w, "validate-token", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) verify2FA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TempToken string `json:"tempToken"`
		Code      string `json:"code"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	pair, err := h.engine.RedeemChallenge(middleware.RequestContext(r), body.TempToken, body.Code)
	if err != nil {
		if errors.Is(err, sessionguard.ErrChallengeInvalid) {
			writeError(w, http.StatusUnauthorized, CodeInvalid2FA, "invalid or expired verification code")
			return
		}
		if writeEngineError(w, err) {
			return
		}
		h.unexpected(w, "2fa/verify", err)
		return
	}
	writeJSON(w, http.StatusOK, newPairResponse(pair))
}

const forgotPasswordMessage = "If an account with that identifier exists, a reset link has been sent."

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	identifier := body.Identifier
	if identifier == "" {
		identifier = body.Email
	}

	if err := h.engine.RequestPasswordReset(middleware.RequestContext(r), identifier); err != nil {
		h.logger.Warn("httpapi: password reset request failed", "error", err)
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: forgotPasswordMessage})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	// the ticket is single use, so reject unusable passwords before redeeming it
	if len(body.NewPassword) < password.MinPasswordBytes {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "password too short")
		return
	}

	ctx := middleware.RequestContext(r)
	p, err := h.engine.ConsumePasswordReset(ctx, body.Token)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		if errors.Is(err, sessionguard.ErrPasswordResetInvalid) {
			writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired reset token")
			return
		}
		h.unexpected(w, "reset-password", err)
		return
	}

	if err := h.passwords.SetPassword(p.ID, body.NewPassword); err != nil {
		h.unexpected(w, "reset-password", err)
		return
	}
	if err := h.engine.SendChangeConfirmation(ctx, p, "password"); err != nil {
		h.logger.Warn("httpapi: change confirmation not sent", "principal_id", p.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	p, err := h.engine.ConfirmEmailVerification(middleware.RequestContext(r), body.Token)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		if errors.Is(err, sessionguard.ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired verification token")
			return
		}
		h.unexpected(w, "verify-email", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Verified    bool   `json:"verified"`
		PrincipalID string `json:"id"`
	}{Verified: true, PrincipalID: p.ID})
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	auth, ok := sessionguard.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
		return
	}

	p, err := h.engine.Principal(r.Context(), auth.PrincipalID)
	if err != nil {
		if writeEngineError(w, err) {
			return
		}
		if errors.Is(err, sessionguard.ErrPrincipalNotFound) {
			writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
			return
		}
		h.unexpected(w, "resend-verification", err)
		return
	}

	if err := h.engine.SendVerificationEmail(r.Context(), p); err != nil {
		if writeEngineError(w, err) {
			return
		}
		h.unexpected(w, "resend-verification", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "verification email sent"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	auth, ok := sessionguard.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true})
}
