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

// ShelfManager is the part of services.ShelfService the shelf routes use.
type ShelfManager interface {
	List(ctx context.Context, caller access.Caller) ([]types.ShelfItem, error)
	Get(ctx context.Context, caller access.Caller, id int) (types.ShelfItem, error)
	Add(ctx context.Context, caller access.Caller, add services.ShelfAdd) (types.ShelfItem, error)
	Update(ctx context.Context, caller access.Caller, id int, patch services.ShelfPatch) (types.ShelfItem, error)
	Delete(ctx context.Context, caller access.Caller, id int) error
}

type ShelfHandler struct {
	shelf ShelfManager
	log   *logger.Logger
}

func NewShelfHandler(shelf ShelfManager, log *logger.Logger) *ShelfHandler {
	return &ShelfHandler{shelf: shelf, log: log}
}

// ShelfRouter registers the caller's shelf routes. Every route requires
// authentication.
func ShelfRouter(
	r chi.Router,
	shelf ShelfManager,
	authMiddleware func(http.Handler) http.Handler,
	log *logger.Logger,
) {
	handler := NewShelfHandler(shelf, log)

	r.Use(authMiddleware)
	r.Get("/", handler.ListShelf)
	r.Post("/", handler.AddToShelf)
	r.Route("/{itemID}", func(r chi.Router) {
		r.Get("/", handler.GetShelfItem)
		r.Put("/", handler.UpdateShelfItem)
		r.Delete("/", handler.RemoveFromShelf)
	})
}

func (h *ShelfHandler) ListShelf(w http.ResponseWriter, r *http.Request) {
	items, err := h.shelf.List(r.Context(), callerFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ShelfHandler) AddToShelf(w http.ResponseWriter, r *http.Request) {
	var req services.ShelfAdd
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	item, err := h.shelf.Add(r.Context(), callerFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ShelfHandler) GetShelfItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	item, err := h.shelf.Get(r.Context(), callerFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ShelfHandler) UpdateShelfItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	var req services.ShelfPatch
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	item, err := h.shelf.Update(r.Context(), callerFromContext(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ShelfHandler) RemoveFromShelf(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if err := h.shelf.Delete(r.Context(), callerFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
