// Package services holds the use cases behind the HTTP handlers. Every
// operation that mutates storage runs inside one Transactor unit of work.
package services

import (
	"context"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/readshelf/apiserver/internal/apperr"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100
)

// Transactor runs fn inside a transaction carried by the returned context.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Page is an offset/limit window over a listing.
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps the window to non-negative offset and 1..MaxPageLimit.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// validationError turns ozzo errors into the Validation kind.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return apperr.New(apperr.ErrValidation, verrs.Error())
	}
	return apperr.New(apperr.ErrValidation, err.Error())
}

// deny attaches message to a Forbidden decision. Other outcomes keep their
// default text.
func deny(err error, message string) error {
	if errors.Is(err, apperr.ErrForbidden) {
		return apperr.New(apperr.ErrForbidden, message)
	}
	return err
}
