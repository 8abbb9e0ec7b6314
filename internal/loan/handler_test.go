package loan

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openshelf/service-library-go/internal/loan/entity"
)

func newTestHandler() (*Handler, *fakeBooks) {
	svc, _, books, _ := newTestService()
	return NewHandler(svc, zap.NewNop().Sugar()), books
}

func postLoan(t *testing.T, h *Handler, userID, bookID int64) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"user_id":%d,"book_id":%d}`, userID, bookID)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, r)
	return w
}

func postReturn(t *testing.T, h *Handler, loanID int64) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/loans/%d/return", loanID), nil)
	r.SetPathValue("id", fmt.Sprintf("%d", loanID))
	w := httptest.NewRecorder()
	h.Return(w, r)
	return w
}

func TestHandler_BorrowAndReturnFlow(t *testing.T) {
	h, books := newTestHandler()

	// borrow: book becomes unavailable
	w := postLoan(t, h, 1, 1)
	require.Equal(t, http.StatusCreated, w.Code)
	var created entity.Loan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, entity.StatusActive, created.Status)
	assert.False(t, books.books[1].IsAvailable)

	// a second borrower is rejected with a domain-rule violation
	w = postLoan(t, h, 2, 1)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not available")

	// return: fee 0 before the due date, book available again
	w = postReturn(t, h, created.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var returned entity.Loan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &returned))
	assert.Equal(t, entity.StatusReturned, returned.Status)
	assert.Equal(t, 0.0, returned.LateFee)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, books.books[1].IsAvailable)

	// returning again is a conflict
	w = postReturn(t, h, created.ID)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already returned")
}

func TestHandler_StatusMapping(t *testing.T) {
	h, _ := newTestHandler()

	assert.Equal(t, http.StatusNotFound, postLoan(t, h, 99, 1).Code)
	assert.Equal(t, http.StatusNotFound, postLoan(t, h, 1, 99).Code)
	assert.Equal(t, http.StatusNotFound, postReturn(t, h, 99).Code)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader("{bad json"))
	w := httptest.NewRecorder()
	h.Create(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_LimitReachedIs400WithLimitInMessage(t *testing.T) {
	h, _ := newTestHandler()

	for bookID := int64(1); bookID <= 3; bookID++ {
		require.Equal(t, http.StatusCreated, postLoan(t, h, 1, bookID).Code)
	}
	w := postLoan(t, h, 1, 4)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "3")
}
