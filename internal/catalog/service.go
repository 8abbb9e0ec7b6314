package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/openshelf/service-library-go/internal/catalog/entity"
	"github.com/openshelf/service-library-go/internal/catalog/repo"
)

const listingCachePrefix = "books_list"

var listingJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the narrow persistence surface the catalog service needs.
type Store interface {
	CreateAuthor(ctx context.Context, a *entity.Author) error
	GetAuthor(ctx context.Context, id int64) (*entity.Author, error)
	ListAuthors(ctx context.Context, skip, limit int) ([]*entity.Author, error)
	DeleteAuthor(ctx context.Context, id int64) (int64, error)
	CreateBook(ctx context.Context, b *entity.Book) error
	GetBook(ctx context.Context, id int64) (*entity.Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*entity.Book, error)
	ListBooksWithAuthors(ctx context.Context, skip, limit int) ([]*entity.Book, error)
	ListBooksByAuthor(ctx context.Context, authorID int64, skip, limit int) ([]*entity.Book, error)
}

// ListingCache is the advisory cache port for book-listing pages. Absence
// (a nil ListingCache) is a valid configuration, not a special case.
type ListingCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	DeleteMatching(ctx context.Context, prefix string) int
}

var (
	ErrAuthorNotFound = errors.New("author not found")
	ErrBookNotFound   = errors.New("book not found")
	ErrISBNTaken      = errors.New("isbn already registered")
)

// Service manages authors and books and serves cached paginated listings.
type Service struct {
	store  Store
	cache  ListingCache
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewService constructs a catalog service. cache may be nil, in which case
// every listing goes to the store.
func NewService(store Store, cache ListingCache, ttl time.Duration, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, cache: cache, ttl: ttl, logger: logger}
}

// CreateAuthor registers a new author. Names are not unique.
func (s *Service) CreateAuthor(ctx context.Context, name string) (*entity.Author, error) {
	a := &entity.Author{Name: name}
	if err := s.store.CreateAuthor(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAuthors returns a page of authors in insertion order, uncached.
func (s *Service) ListAuthors(ctx context.Context, skip, limit int) ([]*entity.Author, error) {
	return s.store.ListAuthors(ctx, skip, limit)
}

// DeleteAuthor removes an author and, via cascade, their books. Listing pages
// may reference the removed books, so the namespace is invalidated.
func (s *Service) DeleteAuthor(ctx context.Context, id int64) error {
	rows, err := s.store.DeleteAuthor(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAuthorNotFound
	}
	s.invalidateListings(ctx)
	return nil
}

// CreateBook registers a new book under an existing author. The book starts
// available. Every cached listing page is invalidated: pagination keys are
// unbounded in principle, so the whole namespace goes.
func (s *Service) CreateBook(ctx context.Context, title string, isbn *string, authorID int64) (*entity.Book, error) {
	author, err := s.store.GetAuthor(ctx, authorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthorNotFound
		}
		return nil, err
	}

	if isbn != nil && *isbn != "" {
		_, err := s.store.GetBookByISBN(ctx, *isbn)
		if err == nil {
			return nil, ErrISBNTaken
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	} else {
		isbn = nil
	}

	b := &entity.Book{
		Title:       title,
		ISBN:        isbn,
		IsAvailable: true,
		AuthorID:    authorID,
	}
	if err := s.store.CreateBook(ctx, b); err != nil {
		if errors.Is(err, repo.ErrDuplicateISBN) {
			return nil, ErrISBNTaken
		}
		return nil, err
	}
	b.Author = author

	s.invalidateListings(ctx)
	return b, nil
}

// GetBook returns a book by ID without its author.
func (s *Service) GetBook(ctx context.Context, id int64) (*entity.Book, error) {
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return b, nil
}

// ListBooks serves a page of books with embedded authors through the
// read-through cache. The cache is advisory: a miss, a stale codec or an
// unreachable cache all fall through to the store and the listing succeeds.
func (s *Service) ListBooks(ctx context.Context, skip, limit int) ([]*entity.Book, error) {
	key := listingKey(skip, limit)

	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			books := []*entity.Book{}
			if err := listingJSON.Unmarshal(raw, &books); err == nil {
				return books, nil
			}
			s.logger.Debugw("cached book page is unreadable, refetching", "key", key)
		}
	}

	books, err := s.store.ListBooksWithAuthors(ctx, skip, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := listingJSON.Marshal(books); err == nil {
			s.cache.Set(ctx, key, raw, s.ttl)
		}
	}
	return books, nil
}

// ListBooksByAuthor returns a page of one author's books, uncached.
func (s *Service) ListBooksByAuthor(ctx context.Context, authorID int64, skip, limit int) ([]*entity.Book, error) {
	if _, err := s.store.GetAuthor(ctx, authorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthorNotFound
		}
		return nil, err
	}
	return s.store.ListBooksByAuthor(ctx, authorID, skip, limit)
}

func (s *Service) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeleteMatching(ctx, listingCachePrefix); n > 0 {
		s.logger.Debugw("book listing cache invalidated", "keys", n)
	}
}

func listingKey(skip, limit int) string {
	return fmt.Sprintf("%s:%d:%d", listingCachePrefix, skip, limit)
}
