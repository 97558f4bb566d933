package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/readshelf/apiserver/internal/access"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/services"
	"github.com/readshelf/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShelf holds one item, id 5, owned by plainUser.
type fakeShelf struct {
	added     bool
	lastPatch services.ShelfPatch
}

func (f *fakeShelf) item() types.ShelfItem {
	return types.ShelfItem{ID: 5, UserID: plainUser.ID, BookID: 1, Status: types.StatusPlanToRead,
		Book: &types.Book{ID: 1, Title: "t", Author: "a"}}
}

func (f *fakeShelf) List(_ context.Context, caller access.Caller) ([]types.ShelfItem, error) {
	if caller.ID != plainUser.ID {
		return []types.ShelfItem{}, nil
	}
	return []types.ShelfItem{f.item()}, nil
}

func (f *fakeShelf) Get(_ context.Context, caller access.Caller, id int) (types.ShelfItem, error) {
	if id != 5 {
		return types.ShelfItem{}, apperr.New(apperr.ErrNotFound, "Shelf item not found")
	}
	if err := access.Check(caller, access.ReadShelfItem, plainUser.ID); err != nil {
		return types.ShelfItem{}, err
	}
	return f.item(), nil
}

func (f *fakeShelf) Add(_ context.Context, _ access.Caller, add services.ShelfAdd) (types.ShelfItem, error) {
	if f.added {
		return types.ShelfItem{}, apperr.New(apperr.ErrConflict, "Book already on your shelf")
	}
	if add.Rating != nil && (*add.Rating < 1 || *add.Rating > 5) {
		return types.ShelfItem{}, apperr.New(apperr.ErrValidation, "rating: must be between 1 and 5.")
	}
	f.added = true
	return f.item(), nil
}

func (f *fakeShelf) Update(ctx context.Context, caller access.Caller, id int, patch services.ShelfPatch) (types.ShelfItem, error) {
	item, err := f.Get(ctx, caller, id)
	if err != nil {
		return types.ShelfItem{}, err
	}
	f.lastPatch = patch
	return item, nil
}

func (f *fakeShelf) Delete(ctx context.Context, caller access.Caller, id int) error {
	_, err := f.Get(ctx, caller, id)
	return err
}

func shelfRoutes(shelf *fakeShelf) func(chi.Router, func(http.Handler) http.Handler) {
	return func(r chi.Router, auth func(http.Handler) http.Handler) {
		r.Route("/shelf", func(r chi.Router) {
			ShelfRouter(r, shelf, auth, logger.Nop())
		})
	}
}

func TestShelfAdd(t *testing.T) {
	h := newTestRouter(nil, shelfRoutes(&fakeShelf{}))

	rec := do(t, h, http.MethodPost, "/shelf/", "", `{"book_id":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/shelf/", "user", `{"book_id":1,"rating":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/shelf/", "user", `{"book_id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"book":{`)

	rec = do(t, h, http.MethodPost, "/shelf/", "user", `{"book_id":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestShelfItemOwnerOnly(t *testing.T) {
	shelf := &fakeShelf{}
	h := newTestRouter(nil, shelfRoutes(shelf))

	rec := do(t, h, http.MethodPut, "/shelf/5", "admin", `{"rating":3}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, "/shelf/5", "user", `{"rating":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, shelf.lastPatch.Status)
	assert.Nil(t, shelf.lastPatch.Review)
	require.NotNil(t, shelf.lastPatch.Rating)
	assert.Equal(t, 3, *shelf.lastPatch.Rating)

	rec = do(t, h, http.MethodGet, "/shelf/5", "user", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/shelf/6", "user", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/shelf/5", "user", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestShelfListScopedToCaller(t *testing.T) {
	h := newTestRouter(nil, shelfRoutes(&fakeShelf{}))

	rec := do(t, h, http.MethodGet, "/shelf/", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
