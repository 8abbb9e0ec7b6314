package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/openshelf/service-library-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for member registration and lookup.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CreateRequest is the registration payload.
type CreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	u, err := h.svc.Create(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			h.writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		h.logger.Warnw("user registration failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	skip, limit := utilities.Pagination(r)
	users, err := h.svc.List(r.Context(), skip, limit)
	if err != nil {
		h.logger.Warnw("user listing failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Warnw("user lookup failed", "id", id, "err", err)
		h.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"detail": msg})
}
