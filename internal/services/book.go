package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/readshelf/apiserver/internal/access"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/storage"
	"github.com/readshelf/apiserver/types"
)

// BookRepository defines persistence operations for the catalog.
type BookRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	GetByISBN(ctx context.Context, isbn string) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	Delete(ctx context.Context, id int) error
}

// BookLookup resolves an ISBN against the external bibliographic service.
type BookLookup interface {
	LookupISBN(ctx context.Context, isbn string) (types.Book, error)
}

// CoverFetcher downloads a cover image.
type CoverFetcher interface {
	FetchCover(ctx context.Context, url string) (io.ReadCloser, string, int64, error)
}

// CoverStore keeps mirrored cover images.
type CoverStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// CatalogEvents is notified after catalog changes commit.
type CatalogEvents interface {
	BookCached(ctx context.Context, book types.Book)
	BookDeleted(ctx context.Context, book types.Book)
}

// BookInput is the full writable state of a book.
type BookInput struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	ISBN        *string `json:"isbn"`
	Description *string `json:"description"`
	CoverURL    *string `json:"cover_url"`
}

func (in BookInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.Author, validation.Required),
		validation.Field(&in.Description, validation.Length(0, types.MaxDescriptionLength)),
	)
}

func (in BookInput) normalized() BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	if in.ISBN != nil {
		isbn := strings.TrimSpace(*in.ISBN)
		if isbn == "" {
			in.ISBN = nil
		} else {
			in.ISBN = &isbn
		}
	}
	return in
}

// Cover is either an opened mirrored image or a URL to redirect to.
type Cover struct {
	Object      *storage.Object
	RedirectURL string
}

type BookOption func(*BookService)

// WithCoverMirror enables copying looked-up covers into store.
func WithCoverMirror(store CoverStore, fetcher CoverFetcher) BookOption {
	return func(s *BookService) {
		s.covers = store
		s.fetcher = fetcher
	}
}

func WithCatalogEvents(events CatalogEvents) BookOption {
	return func(s *BookService) { s.events = events }
}

func WithBookLogger(log *logger.Logger) BookOption {
	return func(s *BookService) { s.log = log }
}

// BookService encapsulates catalog use-cases, including the ISBN cache.
type BookService struct {
	repo    BookRepository
	tx      Transactor
	lookup  BookLookup
	covers  CoverStore
	fetcher CoverFetcher
	events  CatalogEvents
	log     *logger.Logger
}

func NewBookService(repo BookRepository, tx Transactor, lookup BookLookup, opts ...BookOption) *BookService {
	s := &BookService{repo: repo, tx: tx, lookup: lookup, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BookService) List(ctx context.Context, page Page) ([]types.Book, error) {
	page = page.Normalize()
	return s.repo.List(ctx, page.Offset, page.Limit)
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Book{}, bookNotFound(err)
	}
	return book, nil
}

func (s *BookService) Create(ctx context.Context, caller access.Caller, in BookInput) (types.Book, error) {
	if err := access.Check(caller, access.CreateBook, 0); err != nil {
		return types.Book{}, deny(err, "Only administrators can create books")
	}
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return types.Book{}, validationError(err)
	}

	var created types.Book
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureISBNFree(ctx, in.ISBN, 0); err != nil {
			return err
		}
		var err error
		created, err = s.repo.Create(ctx, types.Book{
			Title:       in.Title,
			Author:      in.Author,
			ISBN:        in.ISBN,
			Description: in.Description,
			CoverURL:    in.CoverURL,
		})
		return err
	})
	if err != nil {
		return types.Book{}, err
	}
	return created, nil
}

// Update replaces every writable field of the book.
func (s *BookService) Update(ctx context.Context, caller access.Caller, id int, in BookInput) (types.Book, error) {
	if err := access.Check(caller, access.UpdateBook, id); err != nil {
		return types.Book{}, deny(err, "Only administrators can update books")
	}
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return types.Book{}, validationError(err)
	}

	var updated types.Book
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		book, err := s.repo.Get(ctx, id)
		if err != nil {
			return bookNotFound(err)
		}
		if err := s.ensureISBNFree(ctx, in.ISBN, id); err != nil {
			return err
		}

		book.Title = in.Title
		book.Author = in.Author
		book.ISBN = in.ISBN
		book.Description = in.Description
		book.CoverURL = in.CoverURL

		updated, err = s.repo.Update(ctx, book)
		return bookNotFound(err)
	})
	if err != nil {
		return types.Book{}, err
	}
	return updated, nil
}

// Delete removes a book. Shelf items referencing it go with it.
func (s *BookService) Delete(ctx context.Context, caller access.Caller, id int) error {
	if err := access.Check(caller, access.DeleteBook, id); err != nil {
		return deny(err, "Only administrators can delete books")
	}

	var deleted types.Book
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		book, err := s.repo.Get(ctx, id)
		if err != nil {
			return bookNotFound(err)
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return bookNotFound(err)
		}
		deleted = book
		return nil
	})
	if err != nil {
		return err
	}

	if s.covers != nil {
		if err := s.covers.Delete(ctx, storage.CoverKey(id)); err != nil {
			s.log.Warnw("delete mirrored cover", "book_id", id, "error", err)
		}
	}
	if s.events != nil {
		s.events.BookDeleted(ctx, deleted)
	}
	return nil
}

// FindOrFetchByISBN returns the cached book for isbn, or looks it up
// externally and stores it. created reports whether a new row was written.
func (s *BookService) FindOrFetchByISBN(ctx context.Context, isbn string) (book types.Book, created bool, err error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return types.Book{}, false, apperr.New(apperr.ErrValidation, "isbn: cannot be blank.")
	}

	book, err = s.repo.GetByISBN(ctx, isbn)
	switch {
	case err == nil:
		s.log.Debugw("isbn cache hit", "isbn", isbn, "book_id", book.ID)
		return book, false, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return types.Book{}, false, fmt.Errorf("lookup cached isbn: %w", err)
	}

	s.log.Infow("isbn cache miss, querying external catalog", "isbn", isbn)
	fetched, err := s.lookup.LookupISBN(ctx, isbn)
	if err != nil {
		return types.Book{}, false, err
	}
	fetched.ISBN = &isbn

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		book, err = s.repo.Create(ctx, fetched)
		return err
	})
	if err != nil {
		return types.Book{}, false, err
	}
	s.log.Infow("cached book from external catalog", "isbn", isbn, "book_id", book.ID)

	s.mirrorCover(ctx, book)
	if s.events != nil {
		s.events.BookCached(ctx, book)
	}
	return book, true, nil
}

// Cover prefers the mirrored image and falls back to the upstream URL.
func (s *BookService) Cover(ctx context.Context, id int) (Cover, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		return Cover{}, err
	}

	if s.covers != nil {
		obj, err := s.covers.Get(ctx, storage.CoverKey(id))
		switch {
		case err == nil:
			return Cover{Object: &obj}, nil
		case !errors.Is(err, storage.ErrObjectNotFound):
			s.log.Warnw("read mirrored cover", "book_id", id, "error", err)
		}
	}

	if book.CoverURL != nil && *book.CoverURL != "" {
		return Cover{RedirectURL: *book.CoverURL}, nil
	}
	return Cover{}, apperr.New(apperr.ErrNotFound, "Book has no cover")
}

func (s *BookService) mirrorCover(ctx context.Context, book types.Book) {
	if s.covers == nil || s.fetcher == nil || book.CoverURL == nil {
		return
	}

	body, contentType, size, err := s.fetcher.FetchCover(ctx, *book.CoverURL)
	if err != nil {
		s.log.Warnw("fetch cover", "book_id", book.ID, "url", *book.CoverURL, "error", err)
		return
	}
	defer body.Close()

	if err := s.covers.Put(ctx, storage.CoverKey(book.ID), body, size, contentType); err != nil {
		s.log.Warnw("store cover", "book_id", book.ID, "error", err)
	}
}

func (s *BookService) ensureISBNFree(ctx context.Context, isbn *string, excludeID int) error {
	if isbn == nil {
		return nil
	}
	existing, err := s.repo.GetByISBN(ctx, *isbn)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != excludeID:
		return apperr.New(apperr.ErrConflict, "A book with this ISBN already exists")
	}
	return nil
}

func bookNotFound(err error) error {
	if err != nil && errors.Is(err, apperr.ErrNotFound) && apperr.Message(err) == apperr.ErrNotFound.Error() {
		return apperr.New(apperr.ErrNotFound, "Book not found")
	}
	return err
}
