package services

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/readshelf/apiserver/internal/access"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/types"
)

// ShelfRepository defines persistence operations for shelf items.
type ShelfRepository interface {
	ListByUser(ctx context.Context, userID int) ([]types.ShelfItem, error)
	Get(ctx context.Context, id int) (types.ShelfItem, error)
	Exists(ctx context.Context, userID, bookID int) (bool, error)
	Create(ctx context.Context, item types.ShelfItem) (types.ShelfItem, error)
	Update(ctx context.Context, item types.ShelfItem) (types.ShelfItem, error)
	Delete(ctx context.Context, id int) error
}

// BookReader is the slice of the catalog the shelf needs.
type BookReader interface {
	Get(ctx context.Context, id int) (types.Book, error)
}

// ShelfAdd is the payload of a new shelf item. Status defaults to
// plan_to_read.
type ShelfAdd struct {
	BookID int                  `json:"book_id"`
	Status *types.ReadingStatus `json:"status"`
	Rating *int                 `json:"rating"`
	Review *string              `json:"review"`
}

func (a ShelfAdd) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BookID, validation.Required, validation.Min(1)),
		validation.Field(&a.Status, validation.By(validStatus)),
		validation.Field(&a.Rating, validation.By(validRating)),
	)
}

// ShelfPatch holds the fields a caller asked to change. Nil means untouched.
type ShelfPatch struct {
	Status *types.ReadingStatus `json:"status"`
	Rating *int                 `json:"rating"`
	Review *string              `json:"review"`
}

func (p ShelfPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Status, validation.By(validStatus)),
		validation.Field(&p.Rating, validation.By(validRating)),
	)
}

func validStatus(value any) error {
	status, ok := value.(*types.ReadingStatus)
	if !ok || status == nil {
		return nil
	}
	if !status.Valid() {
		return errors.New("must be one of plan_to_read, reading, completed, dropped")
	}
	return nil
}

func validRating(value any) error {
	rating, ok := value.(*int)
	if !ok || rating == nil {
		return nil
	}
	if *rating < types.MinRating || *rating > types.MaxRating {
		return fmt.Errorf("must be between %d and %d", types.MinRating, types.MaxRating)
	}
	return nil
}

// ShelfService encapsulates personal shelf use-cases. Items are visible to
// their owner only.
type ShelfService struct {
	repo  ShelfRepository
	books BookReader
	tx    Transactor
}

func NewShelfService(repo ShelfRepository, books BookReader, tx Transactor) *ShelfService {
	return &ShelfService{repo: repo, books: books, tx: tx}
}

func (s *ShelfService) List(ctx context.Context, caller access.Caller) ([]types.ShelfItem, error) {
	if err := access.Check(caller, access.ViewShelf, caller.ID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, caller.ID)
}

func (s *ShelfService) Get(ctx context.Context, caller access.Caller, id int) (types.ShelfItem, error) {
	item, err := s.owned(ctx, caller, access.ReadShelfItem, id)
	if err != nil {
		return types.ShelfItem{}, err
	}
	return item, nil
}

// Add puts a book on the caller's shelf. A second add of the same book is a
// Conflict, also when two requests race.
func (s *ShelfService) Add(ctx context.Context, caller access.Caller, add ShelfAdd) (types.ShelfItem, error) {
	if err := access.Check(caller, access.AddToShelf, caller.ID); err != nil {
		return types.ShelfItem{}, err
	}
	if err := add.Validate(); err != nil {
		return types.ShelfItem{}, validationError(err)
	}

	item := types.ShelfItem{
		UserID: caller.ID,
		BookID: add.BookID,
		Status: types.StatusPlanToRead,
		Rating: add.Rating,
		Review: add.Review,
	}
	if add.Status != nil {
		item.Status = *add.Status
	}

	var created types.ShelfItem
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		book, err := s.books.Get(ctx, add.BookID)
		if err != nil {
			return bookNotFound(err)
		}
		exists, err := s.repo.Exists(ctx, caller.ID, add.BookID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.New(apperr.ErrConflict, "Book already on your shelf")
		}
		created, err = s.repo.Create(ctx, item)
		if err != nil {
			return err
		}
		created.Book = &book
		return nil
	})
	if err != nil {
		return types.ShelfItem{}, err
	}
	return created, nil
}

// Update applies only the fields present in patch.
func (s *ShelfService) Update(ctx context.Context, caller access.Caller, id int, patch ShelfPatch) (types.ShelfItem, error) {
	if err := patch.Validate(); err != nil {
		return types.ShelfItem{}, validationError(err)
	}

	var updated types.ShelfItem
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.owned(ctx, caller, access.UpdateShelfItem, id)
		if err != nil {
			return err
		}
		types.ShelfItemPatch{Status: patch.Status, Rating: patch.Rating, Review: patch.Review}.Apply(&item)

		book := item.Book
		updated, err = s.repo.Update(ctx, item)
		if err != nil {
			return shelfItemNotFound(err)
		}
		updated.Book = book
		return nil
	})
	if err != nil {
		return types.ShelfItem{}, err
	}
	return updated, nil
}

func (s *ShelfService) Delete(ctx context.Context, caller access.Caller, id int) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.owned(ctx, caller, access.DeleteShelfItem, id); err != nil {
			return err
		}
		return shelfItemNotFound(s.repo.Delete(ctx, id))
	})
}

// owned loads the item and checks the caller owns it.
func (s *ShelfService) owned(ctx context.Context, caller access.Caller, action access.Action, id int) (types.ShelfItem, error) {
	if !caller.Authenticated() {
		return types.ShelfItem{}, apperr.ErrUnauthenticated
	}
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.ShelfItem{}, shelfItemNotFound(err)
	}
	if err := access.Check(caller, action, item.UserID); err != nil {
		return types.ShelfItem{}, deny(err, "Not authorized to access this shelf item")
	}
	return item, nil
}

func shelfItemNotFound(err error) error {
	if err != nil && errors.Is(err, apperr.ErrNotFound) {
		return apperr.New(apperr.ErrNotFound, "Shelf item not found")
	}
	return err
}
