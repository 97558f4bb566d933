package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/readshelf/apiserver/internal/apperr"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = apperr.ErrNotFound

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = apperr.ErrConflict

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

var conflictMessages = map[string]string{
	"users_username_key":        "Username already registered",
	"users_email_key":           "Email already registered",
	"books_isbn_key":            "A book with this ISBN already exists",
	"shelf_items_user_book_key": "Book already on your shelf",
}

// translate maps driver errors onto the apperr taxonomy. Constraint
// violations raised at commit time surface here too, which is what makes
// concurrent duplicate inserts lose with a conflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		if msg, ok := conflictMessages[pqErr.Constraint]; ok {
			return apperr.New(apperr.ErrConflict, msg)
		}
		return apperr.New(apperr.ErrConflict, "Resource already exists")
	case pqForeignKeyViolation:
		return apperr.New(apperr.ErrNotFound, "Referenced resource not found")
	case pqCheckViolation:
		return apperr.New(apperr.ErrValidation, "Value out of range")
	}
	return err
}
