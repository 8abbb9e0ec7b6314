package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openshelf/service-library-go/internal/loan/entity"
)

var (
	// ErrBookTaken means the conditional availability update matched no row:
	// a concurrent loan reserved the book first.
	ErrBookTaken = errors.New("book is already reserved")
	// ErrLoanClosed means the loan row was already terminal when the
	// conditional return update ran.
	ErrLoanClosed = errors.New("loan is already closed")
)

// LoanRepo provides data access for the loans table. The loan/book write
// pairs run inside a single transaction so neither side commits alone.
type LoanRepo struct {
	db *sqlx.DB
}

func NewLoanRepo(db *sqlx.DB) *LoanRepo { return &LoanRepo{db: db} }

// EnsureTable creates the loans table if not exists (idempotent).
func (r *LoanRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS loans (
  id BIGSERIAL PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  user_id BIGINT NOT NULL REFERENCES users(id),
  book_id BIGINT NOT NULL REFERENCES books(id),
  loan_date TIMESTAMPTZ NOT NULL,
  due_date TIMESTAMPTZ NOT NULL,
  return_date TIMESTAMPTZ,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  late_fee DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_loans_user_id ON loans(user_id);
CREATE INDEX IF NOT EXISTS idx_loans_book_id ON loans(book_id);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// CreateReservingBook inserts the loan and flips the book to unavailable in
// one transaction. The conditional update on the book row is the double-lend
// guard: if another transaction took the book first, zero rows match and the
// whole unit rolls back with ErrBookTaken.
func (r *LoanRepo) CreateReservingBook(ctx context.Context, l *entity.Loan) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE books SET is_available=false WHERE id=$1 AND is_available=true`, l.BookID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBookTaken
	}

	const q = `INSERT INTO loans (reference, user_id, book_id, loan_date, due_date, status, late_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err = tx.QueryRowxContext(ctx, q,
		l.Reference, l.UserID, l.BookID, l.LoanDate, l.DueDate, l.Status, l.LateFee).
		Scan(&l.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ReturnReleasingBook finalizes the loan and frees the book in one
// transaction. The status guard in the UPDATE makes a double return a
// conflict instead of a silent overwrite.
func (r *LoanRepo) ReturnReleasingBook(ctx context.Context, loanID int64, returnedAt time.Time, fee float64) (*entity.Loan, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `UPDATE loans SET status=$2, return_date=$3, late_fee=$4
		WHERE id=$1 AND status <> $2
		RETURNING id, reference, user_id, book_id, loan_date, due_date, return_date, status, late_fee`
	var l entity.Loan
	err = tx.GetContext(ctx, &l, q, loanID, entity.StatusReturned, returnedAt, fee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanClosed
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET is_available=true WHERE id=$1`, l.BookID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetByID returns the loan or sql.ErrNoRows.
func (r *LoanRepo) GetByID(ctx context.Context, id int64) (*entity.Loan, error) {
	const q = `SELECT id, reference, user_id, book_id, loan_date, due_date, return_date, status, late_fee
		FROM loans WHERE id=$1`
	var l entity.Loan
	if err := r.db.GetContext(ctx, &l, q, id); err != nil {
		return nil, err
	}
	return &l, nil
}

// CountNonTerminalByUser counts a user's ACTIVE and OVERDUE loans. Overdue
// loans still hold a book, so they count against the cap.
func (r *LoanRepo) CountNonTerminalByUser(ctx context.Context, userID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE user_id=$1 AND status IN ($2, $3)`
	var n int
	if err := r.db.GetContext(ctx, &n, q, userID, entity.StatusActive, entity.StatusOverdue); err != nil {
		return 0, err
	}
	return n, nil
}

// ListByUser returns a page of a user's full loan history.
func (r *LoanRepo) ListByUser(ctx context.Context, userID int64, skip, limit int) ([]*entity.Loan, error) {
	const q = `SELECT id, reference, user_id, book_id, loan_date, due_date, return_date, status, late_fee
		FROM loans WHERE user_id=$1 ORDER BY id OFFSET $2 LIMIT $3`
	loans := []*entity.Loan{}
	if err := r.db.SelectContext(ctx, &loans, q, userID, skip, limit); err != nil {
		return nil, err
	}
	return loans, nil
}

// ListActiveOrDelayed returns a page of loans in ACTIVE or OVERDUE state, so
// overdue loans are visible even before the sweep has persisted them.
func (r *LoanRepo) ListActiveOrDelayed(ctx context.Context, skip, limit int) ([]*entity.Loan, error) {
	const q = `SELECT id, reference, user_id, book_id, loan_date, due_date, return_date, status, late_fee
		FROM loans WHERE status IN ($1, $2) ORDER BY id OFFSET $3 LIMIT $4`
	loans := []*entity.Loan{}
	if err := r.db.SelectContext(ctx, &loans, q, entity.StatusActive, entity.StatusOverdue, skip, limit); err != nil {
		return nil, err
	}
	return loans, nil
}

// MarkOverdue bulk-transitions ACTIVE loans past their due date to OVERDUE.
// Idempotent: already-overdue loans no longer match the filter.
func (r *LoanRepo) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE loans SET status=$1 WHERE status=$2 AND due_date < $3`
	res, err := r.db.ExecContext(ctx, q, entity.StatusOverdue, entity.StatusActive, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
