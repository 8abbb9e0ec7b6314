package entity

import "time"

// Author owns a collection of books; deleting an author cascades to them.
type Author struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Book is a lendable title. ISBN is optional but globally unique when set.
// The availability flag is owned by the loan lifecycle; catalog writes only
// set it at creation.
type Book struct {
	ID          int64     `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	ISBN        *string   `db:"isbn" json:"isbn,omitempty"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	AuthorID    int64     `db:"author_id" json:"author_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`

	Author *Author `db:"-" json:"author,omitempty"`
}
