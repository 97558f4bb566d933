package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/readshelf/apiserver/internal/access"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/services"
	"github.com/readshelf/apiserver/types"
)

// CatalogService is the part of services.BookService the book routes use.
type CatalogService interface {
	List(ctx context.Context, page services.Page) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, caller access.Caller, in services.BookInput) (types.Book, error)
	Update(ctx context.Context, caller access.Caller, id int, in services.BookInput) (types.Book, error)
	Delete(ctx context.Context, caller access.Caller, id int) error
	FindOrFetchByISBN(ctx context.Context, isbn string) (types.Book, bool, error)
	Cover(ctx context.Context, id int) (services.Cover, error)
}

// BookHandler provides HTTP handlers for the catalog.
type BookHandler struct {
	books CatalogService
	log   *logger.Logger
}

func NewBookHandler(books CatalogService, log *logger.Logger) *BookHandler {
	return &BookHandler{books: books, log: log}
}

// BookRouter registers book routes on the given router.
func BookRouter(
	r chi.Router,
	books CatalogService,
	authMiddleware func(http.Handler) http.Handler,
	log *logger.Logger,
) {
	handler := NewBookHandler(books, log)

	r.Get("/", handler.ListBooks)
	r.Post("/search-by-isbn", handler.SearchByISBN)
	r.With(authMiddleware).Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.Get("/cover", handler.GetCover)
		r.With(authMiddleware).Put("/", handler.UpdateBook)
		r.With(authMiddleware).Delete("/", handler.DeleteBook)
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	books, err := h.books.List(r.Context(), page)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "bookID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	book, err := h.books.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req services.BookInput
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	book, err := h.books.Create(r.Context(), callerFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "bookID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	var req services.BookInput
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	book, err := h.books.Update(r.Context(), callerFromContext(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "bookID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if err := h.books.Delete(r.Context(), callerFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchByISBN answers 200 for a cached book and 201 for one fetched now.
func (h *BookHandler) SearchByISBN(w http.ResponseWriter, r *http.Request) {
	var req ISBNSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	book, created, err := h.books.FindOrFetchByISBN(r.Context(), req.ISBN)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, book)
}

func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "bookID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	cover, err := h.books.Cover(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if cover.Object == nil {
		http.Redirect(w, r, cover.RedirectURL, http.StatusFound)
		return
	}
	defer cover.Object.Body.Close()

	contentType := cover.Object.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	if cover.Object.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(cover.Object.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, cover.Object.Body); err != nil {
		h.log.Warnw("stream cover", "book_id", id, "error", err)
	}
}

type ISBNSearchRequest struct {
	ISBN string `json:"isbn"`
}

