// Package access holds the authorization rules of the service as a single
// pure decision table. Nothing here performs I/O.
package access

import (
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/types"
)

type Action int

const (
	ReadBook Action = iota
	SearchISBN
	Register
	Login
	CreateBook
	UpdateBook
	DeleteBook
	ListUsers
	ViewUser
	UpdateUser
	DeleteUser
	ViewShelf
	AddToShelf
	ReadShelfItem
	UpdateShelfItem
	DeleteShelfItem
)

var actionNames = map[Action]string{
	ReadBook:        "read book",
	SearchISBN:      "search by isbn",
	Register:        "register",
	Login:           "login",
	CreateBook:      "create book",
	UpdateBook:      "update book",
	DeleteBook:      "delete book",
	ListUsers:       "list users",
	ViewUser:        "view user",
	UpdateUser:      "update user",
	DeleteUser:      "delete user",
	ViewShelf:       "view shelf",
	AddToShelf:      "add to shelf",
	ReadShelfItem:   "read shelf item",
	UpdateShelfItem: "update shelf item",
	DeleteShelfItem: "delete shelf item",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown action"
}

type Decision int

const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyForbidden
	DenySelfDelete
)

// Err converts a decision into the matching apperr sentinel, nil for Allow.
func (d Decision) Err() error {
	switch d {
	case Allow:
		return nil
	case DenyUnauthenticated:
		return apperr.ErrUnauthenticated
	case DenySelfDelete:
		return apperr.ErrSelfDelete
	default:
		return apperr.ErrForbidden
	}
}

// Caller is the resolved identity behind a request. The zero value is anonymous.
type Caller struct {
	ID   int
	Role types.Role
}

func (c Caller) Authenticated() bool { return c.ID > 0 }
func (c Caller) IsAdmin() bool       { return c.Authenticated() && c.Role == types.RoleAdmin }

// CallerFromUser builds a Caller from a stored user.
func CallerFromUser(u types.User) Caller {
	return Caller{ID: u.ID, Role: u.Role}
}

// Request describes one authorization question. TargetID is the user the
// action is about: the subject of a user operation or the owner of a
// shelf item. It is ignored for catalog operations.
type Request struct {
	Caller   Caller
	Action   Action
	TargetID int
}

// Decide evaluates the rules in precedence order.
func Decide(req Request) Decision {
	caller := req.Caller

	switch req.Action {
	case ReadBook, SearchISBN, Register, Login:
		return Allow
	}

	if !caller.Authenticated() {
		return DenyUnauthenticated
	}

	switch req.Action {
	case DeleteUser:
		if !caller.IsAdmin() {
			return DenyForbidden
		}
		if caller.ID == req.TargetID {
			return DenySelfDelete
		}
		return Allow
	case CreateBook, UpdateBook, DeleteBook, ListUsers:
		if caller.IsAdmin() {
			return Allow
		}
		return DenyForbidden
	case ViewUser, UpdateUser:
		if caller.IsAdmin() || caller.ID == req.TargetID {
			return Allow
		}
		return DenyForbidden
	case ViewShelf, AddToShelf:
		return Allow
	case ReadShelfItem, UpdateShelfItem, DeleteShelfItem:
		if caller.ID == req.TargetID {
			return Allow
		}
		return DenyForbidden
	}

	return DenyForbidden
}

// Check is Decide returning an error, for call sites that only propagate.
func Check(caller Caller, action Action, targetID int) error {
	return Decide(Request{Caller: caller, Action: action, TargetID: targetID}).Err()
}

// CanChangeRole reports whether a role field sent by caller should be
// applied. Non-admin role changes are dropped without error.
func CanChangeRole(caller Caller) bool {
	return caller.IsAdmin()
}
