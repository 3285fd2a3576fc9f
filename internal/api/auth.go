package api

import (
	"net/http"
	"time"

	"github.com/ashureev/skill-worlds/internal/identity"
)

// Register creates an account and signs the user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	res, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.setTokenCookie(w, res.Token, res.ExpiresAt)
	JSON(w, http.StatusCreated, res)
}

// Login signs a user in with email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	res, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.setTokenCookie(w, res.Token, res.ExpiresAt)
	JSON(w, http.StatusOK, res)
}

// Logout revokes the token and drops the user's flows and sockets.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := identity.ClaimsFromContext(r.Context())
	if err := h.accounts.SignOut(r.Context(), claims); err != nil {
		WriteError(w, r, err)
		return
	}
	h.flows.CloseUser(claims.UserID)
	if h.sockets != nil {
		h.sockets.CloseUser(claims.UserID)
	}
	h.clearTokenCookie(w)
	JSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// GetMe returns the current user and profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, profile, err := h.accounts.Me(r.Context(), identity.SessionFromContext(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"profile": profile,
	})
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
