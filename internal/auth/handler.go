package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/openshelf/service-library-go/internal/account"
)

// Handler exposes the login endpoint.
type Handler struct {
	accounts *account.Service
	tokens   *TokenService
	logger   *zap.SugaredLogger
}

func NewHandler(accounts *account.Service, tokens *TokenService, logger *zap.SugaredLogger) *Handler {
	return &Handler{accounts: accounts, tokens: tokens, logger: logger}
}

// Login verifies form credentials (OAuth2 password style: username carries
// the email) and issues a bearer token on success.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	email := r.Form.Get("username")
	password := r.Form.Get("password")
	if email == "" || password == "" {
		h.writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := h.accounts.Authenticate(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, account.ErrBadCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.writeError(w, http.StatusUnauthorized, "Incorrect email or password")
			return
		}
		h.logger.Warnw("login failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.logger.Errorw("token issuance failed", "user_id", u.ID, "err", err)
		h.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"detail": msg})
}
