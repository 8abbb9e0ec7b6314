package loan

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/openshelf/service-library-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for the loan lifecycle.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CreateRequest is the borrow payload.
type CreateRequest struct {
	UserID int64 `json:"user_id"`
	BookID int64 `json:"book_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.UserID == 0 || req.BookID == 0 {
		h.writeError(w, http.StatusBadRequest, "user_id and book_id are required")
		return
	}
	l, err := h.svc.Create(r.Context(), req.UserID, req.BookID)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, ErrBookNotFound):
			h.writeError(w, http.StatusNotFound, "Book not found")
		case errors.Is(err, ErrLoanLimitReached):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrBookUnavailable):
			h.writeError(w, http.StatusBadRequest, "Book is not available for loan")
		default:
			h.logger.Warnw("loan creation failed", "user_id", req.UserID, "book_id", req.BookID, "err", err)
			h.writeError(w, http.StatusInternalServerError, "loan creation failed")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	l, err := h.svc.Return(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrLoanNotFound):
			h.writeError(w, http.StatusNotFound, "Loan not found")
		case errors.Is(err, ErrAlreadyReturned):
			h.writeError(w, http.StatusBadRequest, "Loan is already returned")
		default:
			h.logger.Warnw("loan return failed", "loan_id", id, "err", err)
			h.writeError(w, http.StatusInternalServerError, "loan return failed")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, l)
}

func (h *Handler) ListActiveOrDelayed(w http.ResponseWriter, r *http.Request) {
	skip, limit := utilities.Pagination(r)
	loans, err := h.svc.ListActiveOrDelayed(r.Context(), skip, limit)
	if err != nil {
		h.logger.Warnw("loan listing failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, loans)
}

// ListByUser serves a user's loan history; mounted under the users routes.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	skip, limit := utilities.Pagination(r)
	loans, err := h.svc.ListByUser(r.Context(), userID, skip, limit)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Warnw("user loan listing failed", "user_id", userID, "err", err)
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, loans)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"detail": msg})
}
