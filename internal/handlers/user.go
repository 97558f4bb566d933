package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/readshelf/apiserver/internal/access"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/services"
	"github.com/readshelf/apiserver/types"
)

// UserAdminService is the part of services.UserService the user routes use.
type UserAdminService interface {
	List(ctx context.Context, caller access.Caller, page services.Page) ([]types.User, error)
	Get(ctx context.Context, caller access.Caller, id int) (types.User, error)
	Update(ctx context.Context, caller access.Caller, id int, upd services.UserUpdate) (types.User, error)
	Delete(ctx context.Context, caller access.Caller, id int) error
}

type UserHandler struct {
	users UserAdminService
	log   *logger.Logger
}

func NewUserHandler(users UserAdminService, log *logger.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// UserRouter registers user routes. Every route requires authentication.
func UserRouter(
	r chi.Router,
	users UserAdminService,
	authMiddleware func(http.Handler) http.Handler,
	log *logger.Logger,
) {
	handler := NewUserHandler(users, log)

	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Put("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := h.users.List(r.Context(), callerFromContext(r.Context()), page)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	user, err := h.users.Get(r.Context(), callerFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	var req services.UserUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	user, err := h.users.Update(r.Context(), callerFromContext(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	caller := callerFromContext(r.Context())
	if err := h.users.Delete(r.Context(), caller, id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	h.log.Infow("user deleted", "user_id", id, "by", caller.ID)
	w.WriteHeader(http.StatusNoContent)
}
