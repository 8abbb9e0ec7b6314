package loan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	accountentity "github.com/openshelf/service-library-go/internal/account/entity"
	catalogentity "github.com/openshelf/service-library-go/internal/catalog/entity"
	"github.com/openshelf/service-library-go/internal/loan/entity"
	"github.com/openshelf/service-library-go/internal/loan/repo"
	"github.com/openshelf/service-library-go/pkg/utilities"
)

// Store is the narrow persistence surface the loan service needs. The two
// mutation methods are transactional units covering the loan and the book.
type Store interface {
	CreateReservingBook(ctx context.Context, l *entity.Loan) error
	ReturnReleasingBook(ctx context.Context, loanID int64, returnedAt time.Time, fee float64) (*entity.Loan, error)
	GetByID(ctx context.Context, id int64) (*entity.Loan, error)
	CountNonTerminalByUser(ctx context.Context, userID int64) (int, error)
	ListByUser(ctx context.Context, userID int64, skip, limit int) ([]*entity.Loan, error)
	ListActiveOrDelayed(ctx context.Context, skip, limit int) ([]*entity.Loan, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// BookDirectory resolves books for pre-loan checks.
type BookDirectory interface {
	GetBook(ctx context.Context, id int64) (*catalogentity.Book, error)
}

// UserDirectory resolves users for pre-loan checks.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*accountentity.User, error)
}

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrBookNotFound     = errors.New("book not found")
	ErrLoanNotFound     = errors.New("loan not found")
	ErrBookUnavailable  = errors.New("book is not available for loan")
	ErrAlreadyReturned  = errors.New("loan is already returned")
	ErrLoanLimitReached = errors.New("active loan limit reached")
)

// Config carries the lending rules.
type Config struct {
	LoanPeriodDays int
	MaxActiveLoans int
	LateFeePerDay  float64
}

// Service owns the borrowing invariants: the active-loan cap, book
// availability transitions, due dates and late fees.
type Service struct {
	store Store
	books BookDirectory
	users UserDirectory
	cfg   Config
	now   func() time.Time
}

func NewService(store Store, books BookDirectory, users UserDirectory, cfg Config) *Service {
	return &Service{
		store: store,
		books: books,
		users: users,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create lends a book to a user. Checks run in order: user exists, user is
// under the loan cap (OVERDUE loans still hold books, so they count), book
// exists, book is available. The loan insert and the availability flip are
// one atomic unit in the store; a lost race surfaces as ErrBookUnavailable.
func (s *Service) Create(ctx context.Context, userID, bookID int64) (*entity.Loan, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	open, err := s.store.CountNonTerminalByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if open >= s.cfg.MaxActiveLoans {
		return nil, fmt.Errorf("%w: maximum of %d active loans", ErrLoanLimitReached, s.cfg.MaxActiveLoans)
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	if !book.IsAvailable {
		return nil, ErrBookUnavailable
	}

	now := s.now()
	l := &entity.Loan{
		Reference: utilities.NewLoanReference(),
		UserID:    userID,
		BookID:    bookID,
		LoanDate:  now,
		DueDate:   now.AddDate(0, 0, s.cfg.LoanPeriodDays),
		Status:    entity.StatusActive,
		LateFee:   0,
	}
	if err := s.store.CreateReservingBook(ctx, l); err != nil {
		if errors.Is(err, repo.ErrBookTaken) {
			return nil, ErrBookUnavailable
		}
		return nil, err
	}
	return l, nil
}

// Return finalizes a loan: computes the late fee, marks the loan RETURNED
// and frees the book, all in one store transaction. Whole days only; a
// return on the due date itself costs nothing.
func (s *Service) Return(ctx context.Context, loanID int64) (*entity.Loan, error) {
	l, err := s.store.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	if l.Status.Terminal() {
		return nil, ErrAlreadyReturned
	}

	now := s.now()
	fee := float64(lateDays(l.DueDate, now)) * s.cfg.LateFeePerDay
	if fee < 0 {
		fee = 0
	}

	updated, err := s.store.ReturnReleasingBook(ctx, loanID, now, fee)
	if err != nil {
		if errors.Is(err, repo.ErrLoanClosed) {
			return nil, ErrAlreadyReturned
		}
		return nil, err
	}
	return updated, nil
}

// ListByUser returns a page of the user's full loan history.
func (s *Service) ListByUser(ctx context.Context, userID int64, skip, limit int) ([]*entity.Loan, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.store.ListByUser(ctx, userID, skip, limit)
}

// ListActiveOrDelayed returns a page of loans that still hold a book.
func (s *Service) ListActiveOrDelayed(ctx context.Context, skip, limit int) ([]*entity.Loan, error) {
	return s.store.ListActiveOrDelayed(ctx, skip, limit)
}

// SweepOverdue persists the OVERDUE state for every active loan past its due
// date and returns how many were transitioned. Safe to run repeatedly.
func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	return s.store.MarkOverdue(ctx, s.now())
}

// lateDays counts whole days past the due date, clamped to zero.
func lateDays(due, returned time.Time) int {
	if !returned.After(due) {
		return 0
	}
	return int(returned.Sub(due).Hours() / 24)
}
