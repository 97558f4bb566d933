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

type fakeUserAdmin struct {
	lastUpdate services.UserUpdate
}

func (f *fakeUserAdmin) List(_ context.Context, caller access.Caller, _ services.Page) ([]types.User, error) {
	if err := access.Check(caller, access.ListUsers, 0); err != nil {
		return nil, err
	}
	return []types.User{adminUser, plainUser}, nil
}

func (f *fakeUserAdmin) Get(_ context.Context, caller access.Caller, id int) (types.User, error) {
	if err := access.Check(caller, access.ViewUser, id); err != nil {
		return types.User{}, err
	}
	return plainUser, nil
}

func (f *fakeUserAdmin) Update(_ context.Context, caller access.Caller, id int, upd services.UserUpdate) (types.User, error) {
	if err := access.Check(caller, access.UpdateUser, id); err != nil {
		return types.User{}, err
	}
	f.lastUpdate = upd
	return plainUser, nil
}

func (f *fakeUserAdmin) Delete(_ context.Context, caller access.Caller, id int) error {
	switch err := access.Check(caller, access.DeleteUser, id); {
	case err == nil:
		return nil
	case err == apperr.ErrSelfDelete:
		return apperr.New(apperr.ErrSelfDelete, "Cannot delete your own account")
	default:
		return err
	}
}

func userRoutes(users *fakeUserAdmin) func(chi.Router, func(http.Handler) http.Handler) {
	return func(r chi.Router, auth func(http.Handler) http.Handler) {
		r.Route("/users", func(r chi.Router) {
			UserRouter(r, users, auth, logger.Nop())
		})
	}
}

func TestUserRoutesRequireAuth(t *testing.T) {
	h := newTestRouter(nil, userRoutes(&fakeUserAdmin{}))

	rec := do(t, h, http.MethodGet, "/users/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/", "user", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/", "admin", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteUserSelfIsDistinctFromForbidden(t *testing.T) {
	h := newTestRouter(nil, userRoutes(&fakeUserAdmin{}))

	rec := do(t, h, http.MethodDelete, "/users/1", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot delete your own account", decodeDetail(t, rec))

	rec = do(t, h, http.MethodDelete, "/users/1", "user", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodDelete, "/users/2", "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateUserDecodesOptionalFields(t *testing.T) {
	users := &fakeUserAdmin{}
	h := newTestRouter(nil, userRoutes(users))

	rec := do(t, h, http.MethodPut, "/users/2", "user", `{"email":"new@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, users.lastUpdate.Username)
	assert.Nil(t, users.lastUpdate.Role)
	require.NotNil(t, users.lastUpdate.Email)
	assert.Equal(t, "new@example.com", *users.lastUpdate.Email)

	rec = do(t, h, http.MethodGet, "/users/1", "user", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
