package loan

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountentity "github.com/openshelf/service-library-go/internal/account/entity"
	catalogentity "github.com/openshelf/service-library-go/internal/catalog/entity"
	"github.com/openshelf/service-library-go/internal/loan/entity"
	"github.com/openshelf/service-library-go/internal/loan/repo"
)

type fakeBooks struct {
	books map[int64]*catalogentity.Book
}

func (f *fakeBooks) GetBook(_ context.Context, id int64) (*catalogentity.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

type fakeUsers struct {
	users map[int64]*accountentity.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*accountentity.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

// fakeStore emulates the transactional loan/book write pairs in memory,
// including the conditional-update semantics of the double-lend guard.
type fakeStore struct {
	loans  map[int64]*entity.Loan
	nextID int64
	books  *fakeBooks
}

func (f *fakeStore) CreateReservingBook(_ context.Context, l *entity.Loan) error {
	b, ok := f.books.books[l.BookID]
	if !ok || !b.IsAvailable {
		return repo.ErrBookTaken
	}
	b.IsAvailable = false
	f.nextID++
	l.ID = f.nextID
	cp := *l
	f.loans[l.ID] = &cp
	return nil
}

func (f *fakeStore) ReturnReleasingBook(_ context.Context, loanID int64, returnedAt time.Time, fee float64) (*entity.Loan, error) {
	l, ok := f.loans[loanID]
	if !ok || l.Status.Terminal() {
		return nil, repo.ErrLoanClosed
	}
	l.Status = entity.StatusReturned
	t := returnedAt
	l.ReturnDate = &t
	l.LateFee = fee
	if b, ok := f.books.books[l.BookID]; ok {
		b.IsAvailable = true
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*entity.Loan, error) {
	l, ok := f.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) CountNonTerminalByUser(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, l := range f.loans {
		if l.UserID == userID && !l.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID int64, skip, limit int) ([]*entity.Loan, error) {
	out := []*entity.Loan{}
	for id := int64(1); id <= f.nextID; id++ {
		if l, ok := f.loans[id]; ok && l.UserID == userID {
			out = append(out, l)
		}
	}
	return page(out, skip, limit), nil
}

func (f *fakeStore) ListActiveOrDelayed(_ context.Context, skip, limit int) ([]*entity.Loan, error) {
	out := []*entity.Loan{}
	for id := int64(1); id <= f.nextID; id++ {
		if l, ok := f.loans[id]; ok && !l.Status.Terminal() {
			out = append(out, l)
		}
	}
	return page(out, skip, limit), nil
}

func (f *fakeStore) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, l := range f.loans {
		if l.Status == entity.StatusActive && l.DueDate.Before(now) {
			l.Status = entity.StatusOverdue
			n++
		}
	}
	return n, nil
}

func page(loans []*entity.Loan, skip, limit int) []*entity.Loan {
	if skip >= len(loans) {
		return []*entity.Loan{}
	}
	loans = loans[skip:]
	if limit < len(loans) {
		loans = loans[:limit]
	}
	return loans
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *fakeStore, *fakeBooks, *fakeUsers) {
	books := &fakeBooks{books: map[int64]*catalogentity.Book{
		1: {ID: 1, Title: "Dom Casmurro", AuthorID: 1, IsAvailable: true},
		2: {ID: 2, Title: "Quincas Borba", AuthorID: 1, IsAvailable: true},
		3: {ID: 3, Title: "Memorias Postumas", AuthorID: 1, IsAvailable: true},
		4: {ID: 4, Title: "O Alienista", AuthorID: 1, IsAvailable: true},
	}}
	users := &fakeUsers{users: map[int64]*accountentity.User{
		1: {ID: 1, Name: "Alice", Email: "alice@example.com", IsActive: true},
		2: {ID: 2, Name: "Bruno", Email: "bruno@example.com", IsActive: true},
	}}
	store := &fakeStore{loans: map[int64]*entity.Loan{}, books: books}
	svc := NewService(store, books, users, Config{
		LoanPeriodDays: 14,
		MaxActiveLoans: 3,
		LateFeePerDay:  2.0,
	})
	svc.now = func() time.Time { return testNow }
	return svc, store, books, users
}

func TestCreate_Succeeds(t *testing.T) {
	svc, _, books, _ := newTestService()

	l, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusActive, l.Status)
	assert.Equal(t, testNow, l.LoanDate)
	assert.Equal(t, testNow.AddDate(0, 0, 14), l.DueDate)
	assert.Zero(t, l.LateFee)
	assert.Nil(t, l.ReturnDate)
	assert.NotEmpty(t, l.Reference)
	assert.False(t, books.books[1].IsAvailable, "lent book must be unavailable")
}

func TestCreate_UserNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 99, 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreate_BookNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestCreate_BookUnavailable(t *testing.T) {
	svc, _, books, _ := newTestService()
	books.books[1].IsAvailable = false

	_, err := svc.Create(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func TestCreate_SecondBorrowerRejected(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), 2, 1)
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func TestCreate_LimitReached(t *testing.T) {
	svc, _, _, _ := newTestService()

	for bookID := int64(1); bookID <= 3; bookID++ {
		_, err := svc.Create(context.Background(), 1, bookID)
		require.NoError(t, err)
	}

	_, err := svc.Create(context.Background(), 1, 4)
	assert.ErrorIs(t, err, ErrLoanLimitReached)
	assert.Contains(t, err.Error(), "3", "message must carry the limit")
}

func TestCreate_OverdueLoansCountAgainstLimit(t *testing.T) {
	svc, store, _, _ := newTestService()

	for bookID := int64(1); bookID <= 3; bookID++ {
		_, err := svc.Create(context.Background(), 1, bookID)
		require.NoError(t, err)
	}
	for _, l := range store.loans {
		l.Status = entity.StatusOverdue
	}

	_, err := svc.Create(context.Background(), 1, 4)
	assert.ErrorIs(t, err, ErrLoanLimitReached)
}

// racyStore simulates a concurrent loan winning the book between the
// service's availability pre-check and the reservation.
type racyStore struct {
	*fakeStore
}

func (r *racyStore) CreateReservingBook(context.Context, *entity.Loan) error {
	return repo.ErrBookTaken
}

func TestCreate_RaceOnAvailabilitySurfacesAsUnavailable(t *testing.T) {
	svc, store, _, _ := newTestService()
	svc.store = &racyStore{fakeStore: store}

	_, err := svc.Create(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func TestReturn_OnTimeNoFee(t *testing.T) {
	svc, _, books, _ := newTestService()

	l, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)

	// return exactly on the due date
	svc.now = func() time.Time { return l.DueDate }
	returned, err := svc.Return(context.Background(), l.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusReturned, returned.Status)
	assert.Equal(t, 0.0, returned.LateFee)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, l.DueDate, *returned.ReturnDate)
	assert.True(t, books.books[1].IsAvailable, "returned book must be available")
}

func TestReturn_LateFeeTable(t *testing.T) {
	testCases := []struct {
		name        string
		lateBy      time.Duration
		expectedFee float64
	}{
		{"early", -48 * time.Hour, 0},
		{"on the due date", 0, 0},
		{"under a day late", 23 * time.Hour, 0},
		{"one day late", 24 * time.Hour, 2.0},
		{"two and a half days late", 60 * time.Hour, 4.0},
		{"three days late", 72 * time.Hour, 6.0},
		{"ten days late", 240 * time.Hour, 20.0},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _ := newTestService()

			l, err := svc.Create(context.Background(), 1, 1)
			require.NoError(t, err)

			svc.now = func() time.Time { return l.DueDate.Add(tt.lateBy) }
			returned, err := svc.Return(context.Background(), l.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedFee, returned.LateFee)
		})
	}
}

func TestReturn_Twice(t *testing.T) {
	svc, _, _, _ := newTestService()

	l, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)

	_, err = svc.Return(context.Background(), l.ID)
	require.NoError(t, err)

	_, err = svc.Return(context.Background(), l.ID)
	assert.ErrorIs(t, err, ErrAlreadyReturned)
}

func TestReturn_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Return(context.Background(), 42)
	assert.ErrorIs(t, err, ErrLoanNotFound)
}

func TestReturn_FreesLoanSlot(t *testing.T) {
	svc, _, _, _ := newTestService()

	var last *entity.Loan
	for bookID := int64(1); bookID <= 3; bookID++ {
		l, err := svc.Create(context.Background(), 1, bookID)
		require.NoError(t, err)
		last = l
	}
	_, err := svc.Create(context.Background(), 1, 4)
	require.ErrorIs(t, err, ErrLoanLimitReached)

	_, err = svc.Return(context.Background(), last.ID)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), 1, 4)
	assert.NoError(t, err)
}

func TestAvailabilityInvariant(t *testing.T) {
	svc, store, books, _ := newTestService()

	l1, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 2, 2)
	require.NoError(t, err)
	_, err = svc.Return(context.Background(), l1.ID)
	require.NoError(t, err)

	// availability is false iff a non-terminal loan references the book
	for id, b := range books.books {
		open := false
		for _, l := range store.loans {
			if l.BookID == id && !l.Status.Terminal() {
				open = true
			}
		}
		assert.Equal(t, !open, b.IsAvailable, "book %d", id)
	}
}

func TestSweepOverdue(t *testing.T) {
	svc, store, _, _ := newTestService()

	l, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 1, 2)
	require.NoError(t, err)

	// past the first loan's due date only
	svc.now = func() time.Time { return l.DueDate.Add(time.Hour) }
	store.loans[2].DueDate = l.DueDate.Add(48 * time.Hour)

	n, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, entity.StatusOverdue, store.loans[l.ID].Status)
	assert.Equal(t, entity.StatusActive, store.loans[2].Status)

	// repeated sweeps are no-ops
	n, err = svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListActiveOrDelayed_IncludesOverdue(t *testing.T) {
	svc, store, _, _ := newTestService()

	l1, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)
	l2, err := svc.Create(context.Background(), 1, 2)
	require.NoError(t, err)
	l3, err := svc.Create(context.Background(), 2, 3)
	require.NoError(t, err)

	store.loans[l1.ID].Status = entity.StatusOverdue
	_, err = svc.Return(context.Background(), l3.ID)
	require.NoError(t, err)

	loans, err := svc.ListActiveOrDelayed(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, l1.ID, loans[0].ID)
	assert.Equal(t, l2.ID, loans[1].ID)
}

func TestListByUser(t *testing.T) {
	svc, _, _, _ := newTestService()

	l, err := svc.Create(context.Background(), 1, 1)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 2, 2)
	require.NoError(t, err)

	loans, err := svc.ListByUser(context.Background(), 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, l.ID, loans[0].ID)

	_, err = svc.ListByUser(context.Background(), 99, 0, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLateDays(t *testing.T) {
	due := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		returnedAt time.Time
		expected   int
	}{
		{due.Add(-72 * time.Hour), 0},
		{due, 0},
		{due.Add(time.Minute), 0},
		{due.Add(24 * time.Hour), 1},
		{due.Add(36 * time.Hour), 1},
		{due.Add(72 * time.Hour), 3},
	}
	for _, tt := range testCases {
		assert.Equal(t, tt.expected, lateDays(due, tt.returnedAt))
	}
}
