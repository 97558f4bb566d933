package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/readshelf/apiserver/internal/access"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/services"
	"github.com/readshelf/apiserver/types"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// callerFromContext returns the anonymous caller when no user is attached.
func callerFromContext(ctx context.Context) access.Caller {
	user, ok := userFromContext(ctx)
	if !ok {
		return access.Caller{}
	}
	return access.CallerFromUser(user)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, ErrorResponse{Detail: message})
}

// writeServiceError maps err through the error taxonomy. Errors outside it
// are logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := apperr.StatusFromError(err)
	if apperr.IsInternal(err) {
		log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else if status >= http.StatusInternalServerError {
		log.Warnw("upstream failure", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, apperr.Message(err))
}

func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return apperr.New(apperr.ErrValidation, "invalid request body")
	}
	return nil
}

func parseID(r *http.Request, param string) (int, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, apperr.New(apperr.ErrValidation, "invalid "+strings.TrimSuffix(param, "ID")+" id")
	}
	return id, nil
}

// parsePage reads skip/limit. Clamping happens in the services.
func parsePage(r *http.Request) (services.Page, error) {
	page := services.Page{Limit: services.DefaultPageLimit}

	if raw := strings.TrimSpace(r.URL.Query().Get("skip")); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return services.Page{}, errors.New("invalid skip")
		}
		page.Offset = skip
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return services.Page{}, errors.New("invalid limit")
		}
		page.Limit = limit
	}
	return page, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
