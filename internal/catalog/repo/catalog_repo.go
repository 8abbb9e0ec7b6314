package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openshelf/service-library-go/internal/catalog/entity"
)

// ErrDuplicateISBN reports a unique-constraint violation on books.isbn.
var ErrDuplicateISBN = errors.New("isbn already exists")

// CatalogRepo provides data access for the authors and books tables.
type CatalogRepo struct {
	db *sqlx.DB
}

func NewCatalogRepo(db *sqlx.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// EnsureTables creates the authors and books tables if not exists (idempotent).
// Books reference their author with ON DELETE CASCADE.
func (r *CatalogRepo) EnsureTables(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS authors (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS books (
  id BIGSERIAL PRIMARY KEY,
  title TEXT NOT NULL,
  isbn TEXT UNIQUE,
  is_available BOOLEAN NOT NULL DEFAULT true,
  author_id BIGINT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_books_author_id ON books(author_id);
CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// CreateAuthor inserts a new author row. Author names are not unique.
func (r *CatalogRepo) CreateAuthor(ctx context.Context, a *entity.Author) error {
	const q = `INSERT INTO authors (name) VALUES ($1) RETURNING id, created_at`
	return r.db.QueryRowxContext(ctx, q, a.Name).Scan(&a.ID, &a.CreatedAt)
}

// GetAuthor returns the author or sql.ErrNoRows.
func (r *CatalogRepo) GetAuthor(ctx context.Context, id int64) (*entity.Author, error) {
	const q = `SELECT id, name, created_at FROM authors WHERE id=$1`
	var a entity.Author
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAuthors returns a page of authors in insertion order.
func (r *CatalogRepo) ListAuthors(ctx context.Context, skip, limit int) ([]*entity.Author, error) {
	const q = `SELECT id, name, created_at FROM authors ORDER BY id OFFSET $1 LIMIT $2`
	authors := []*entity.Author{}
	if err := r.db.SelectContext(ctx, &authors, q, skip, limit); err != nil {
		return nil, err
	}
	return authors, nil
}

// DeleteAuthor removes an author; the FK cascade removes their books.
func (r *CatalogRepo) DeleteAuthor(ctx context.Context, id int64) (int64, error) {
	const q = `DELETE FROM authors WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateBook inserts a new book row and fills in the generated fields.
func (r *CatalogRepo) CreateBook(ctx context.Context, b *entity.Book) error {
	const q = `INSERT INTO books (title, isbn, is_available, author_id)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, q, b.Title, b.ISBN, b.IsAvailable, b.AuthorID).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateISBN
		}
		return err
	}
	return nil
}

// GetBook returns the book or sql.ErrNoRows. The author is not loaded.
func (r *CatalogRepo) GetBook(ctx context.Context, id int64) (*entity.Book, error) {
	const q = `SELECT id, title, isbn, is_available, author_id, created_at
		FROM books WHERE id=$1`
	var b entity.Book
	if err := r.db.GetContext(ctx, &b, q, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookByISBN returns the book holding the given ISBN or sql.ErrNoRows.
func (r *CatalogRepo) GetBookByISBN(ctx context.Context, isbn string) (*entity.Book, error) {
	const q = `SELECT id, title, isbn, is_available, author_id, created_at
		FROM books WHERE isbn=$1`
	var b entity.Book
	if err := r.db.GetContext(ctx, &b, q, isbn); err != nil {
		return nil, err
	}
	return &b, nil
}

// bookAuthorRow flattens the books/authors join for sqlx scanning.
type bookAuthorRow struct {
	ID              int64     `db:"id"`
	Title           string    `db:"title"`
	ISBN            *string   `db:"isbn"`
	IsAvailable     bool      `db:"is_available"`
	AuthorID        int64     `db:"author_id"`
	CreatedAt       time.Time `db:"created_at"`
	AuthorName      string    `db:"author_name"`
	AuthorCreatedAt time.Time `db:"author_created_at"`
}

func (row *bookAuthorRow) toBook() *entity.Book {
	return &entity.Book{
		ID:          row.ID,
		Title:       row.Title,
		ISBN:        row.ISBN,
		IsAvailable: row.IsAvailable,
		AuthorID:    row.AuthorID,
		CreatedAt:   row.CreatedAt,
		Author: &entity.Author{
			ID:        row.AuthorID,
			Name:      row.AuthorName,
			CreatedAt: row.AuthorCreatedAt,
		},
	}
}

// ListBooksWithAuthors returns a page of books with their author eager-loaded.
func (r *CatalogRepo) ListBooksWithAuthors(ctx context.Context, skip, limit int) ([]*entity.Book, error) {
	const q = `SELECT b.id, b.title, b.isbn, b.is_available, b.author_id, b.created_at,
			a.name AS author_name, a.created_at AS author_created_at
		FROM books b JOIN authors a ON a.id = b.author_id
		ORDER BY b.id OFFSET $1 LIMIT $2`
	rows := []*bookAuthorRow{}
	if err := r.db.SelectContext(ctx, &rows, q, skip, limit); err != nil {
		return nil, err
	}
	books := make([]*entity.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toBook())
	}
	return books, nil
}

// ListBooksByAuthor returns a page of an author's books.
func (r *CatalogRepo) ListBooksByAuthor(ctx context.Context, authorID int64, skip, limit int) ([]*entity.Book, error) {
	const q = `SELECT id, title, isbn, is_available, author_id, created_at
		FROM books WHERE author_id=$1 ORDER BY id OFFSET $2 LIMIT $3`
	books := []*entity.Book{}
	if err := r.db.SelectContext(ctx, &books, q, authorID, skip, limit); err != nil {
		return nil, err
	}
	return books, nil
}
