package entity

import "time"

// Status is the loan state machine: ACTIVE -> OVERDUE -> RETURNED.
// OVERDUE is reached by the periodic sweep; RETURNED is terminal and entered
// only through an explicit return.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusOverdue  Status = "OVERDUE"
	StatusReturned Status = "RETURNED"
)

// Terminal reports whether the loan can no longer change state.
func (s Status) Terminal() bool { return s == StatusReturned }

// Loan ties one user to one book for a bounded period. The late fee stays 0
// until the loan is returned; it is finalized exactly once at return time.
type Loan struct {
	ID         int64      `db:"id" json:"id"`
	Reference  string     `db:"reference" json:"reference"`
	UserID     int64      `db:"user_id" json:"user_id"`
	BookID     int64      `db:"book_id" json:"book_id"`
	LoanDate   time.Time  `db:"loan_date" json:"loan_date"`
	DueDate    time.Time  `db:"due_date" json:"due_date"`
	ReturnDate *time.Time `db:"return_date" json:"return_date,omitempty"`
	Status     Status     `db:"status" json:"status"`
	LateFee    float64    `db:"late_fee" json:"late_fee"`
}
