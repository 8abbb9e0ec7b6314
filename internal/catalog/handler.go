package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/openshelf/service-library-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for authors and books.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// AuthorRequest is the author creation payload.
type AuthorRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req AuthorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	a, err := h.svc.CreateAuthor(r.Context(), req.Name)
	if err != nil {
		h.logger.Warnw("author creation failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "author creation failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	skip, limit := utilities.Pagination(r)
	authors, err := h.svc.ListAuthors(r.Context(), skip, limit)
	if err != nil {
		h.logger.Warnw("author listing failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, authors)
}

func (h *Handler) DeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid author id")
		return
	}
	if err := h.svc.DeleteAuthor(r.Context(), id); err != nil {
		if errors.Is(err, ErrAuthorNotFound) {
			h.writeError(w, http.StatusNotFound, "Author not found")
			return
		}
		h.logger.Warnw("author deletion failed", "id", id, "err", err)
		h.writeError(w, http.StatusInternalServerError, "deletion failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBooksByAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid author id")
		return
	}
	skip, limit := utilities.Pagination(r)
	books, err := h.svc.ListBooksByAuthor(r.Context(), id, skip, limit)
	if err != nil {
		if errors.Is(err, ErrAuthorNotFound) {
			h.writeError(w, http.StatusNotFound, "Author not found")
			return
		}
		h.logger.Warnw("author books listing failed", "id", id, "err", err)
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, books)
}

// BookRequest is the book creation payload.
type BookRequest struct {
	Title    string  `json:"title"`
	ISBN     *string `json:"isbn"`
	AuthorID int64   `json:"author_id"`
}

func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Title == "" || req.AuthorID == 0 {
		h.writeError(w, http.StatusBadRequest, "title and author_id are required")
		return
	}
	b, err := h.svc.CreateBook(r.Context(), req.Title, req.ISBN, req.AuthorID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthorNotFound):
			h.writeError(w, http.StatusNotFound, "Author not found")
		case errors.Is(err, ErrISBNTaken):
			h.writeError(w, http.StatusBadRequest, "ISBN already registered")
		default:
			h.logger.Warnw("book creation failed", "err", err)
			h.writeError(w, http.StatusInternalServerError, "book creation failed")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	skip, limit := utilities.Pagination(r)
	books, err := h.svc.ListBooks(r.Context(), skip, limit)
	if err != nil {
		h.logger.Warnw("book listing failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, books)
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	b, err := h.svc.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			h.writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		h.logger.Warnw("book lookup failed", "id", id, "err", err)
		h.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"book_id":      b.ID,
		"is_available": b.IsAvailable,
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
