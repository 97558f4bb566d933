package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/services"
	"github.com/readshelf/apiserver/types"
)

// AccountService is the part of services.UserService the auth routes use.
type AccountService interface {
	Register(ctx context.Context, reg services.Registration) (types.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	ResolveToken(ctx context.Context, token string) (types.User, error)
}

// AuthHandler provides registration, token and identity endpoints.
type AuthHandler struct {
	accounts AccountService
	log      *logger.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts AccountService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, accounts AccountService, log *logger.Logger) {
	handler := NewAuthHandler(accounts, log)

	r.Post("/register", handler.Register)
	r.Post("/token", handler.Token)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// freshly loaded user to the context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.accounts, h.log)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(accounts AccountService, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, apperr.ErrUnauthenticated.Error())
				return
			}

			user, err := accounts.ResolveToken(r.Context(), token)
			if err != nil {
				writeServiceError(w, r, log, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// Register creates a new USER account. A taken username or email is a 400.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.Registration
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req)
	if errors.Is(err, apperr.ErrConflict) {
		writeError(w, http.StatusBadRequest, apperr.Message(err))
		return
	}
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	h.log.Infow("user registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, user)
}

// Token exchanges form-encoded credentials for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := h.accounts.Login(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, apperr.ErrUnauthenticated.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
