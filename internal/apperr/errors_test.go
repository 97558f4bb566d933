package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("token: %w", ErrUnauthenticated), http.StatusUnauthorized},
		{fmt.Errorf("delete book: %w", ErrForbidden), http.StatusForbidden},
		{ErrSelfDelete, http.StatusBadRequest},
		{fmt.Errorf("rating: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("book: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("username: %w", ErrConflict), http.StatusConflict},
		{ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{ErrUpstream, http.StatusInternalServerError},
		{ErrUpstreamUnavailable, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFromError(tt.err), "%v", tt.err)
	}
}

func TestSelfDeleteIsNotForbidden(t *testing.T) {
	assert.False(t, errors.Is(ErrSelfDelete, ErrForbidden))
	assert.NotEqual(t, StatusFromError(ErrSelfDelete), StatusFromError(ErrForbidden))
}

func TestIsInternal(t *testing.T) {
	assert.False(t, IsInternal(fmt.Errorf("x: %w", ErrNotFound)))
	assert.True(t, IsInternal(errors.New("pq: connection refused")))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Book not found", Message(fmt.Errorf("get: %w", New(ErrNotFound, "Book not found"))))
	assert.Equal(t, "forbidden", Message(fmt.Errorf("delete: %w", ErrForbidden)))
	assert.Equal(t, "internal server error", Message(errors.New("pq: relation \"users\" does not exist")))
}

func TestErrorUnwrapsToKind(t *testing.T) {
	err := New(ErrConflict, "username already registered")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, http.StatusConflict, StatusFromError(err))
}
