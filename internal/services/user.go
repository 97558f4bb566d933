package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/readshelf/apiserver/internal/access"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/internal/security"
	"github.com/readshelf/apiserver/types"
)

var errBadCredentials = apperr.New(apperr.ErrUnauthenticated, "Incorrect username or password")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.User, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	UsernameTaken(ctx context.Context, username string, excludeID int) (bool, error)
	EmailTaken(ctx context.Context, email string, excludeID int) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
	DeleteShelfItems(ctx context.Context, userID int) (int64, error)
}

// Registration is the payload of a new account.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(passwordFitsHash)),
	)
}

// passwordFitsHash bounds the password in bytes, not runes.
func passwordFitsHash(value any) error {
	password, _ := value.(string)
	if len(password) > security.MaxPasswordBytes {
		return fmt.Errorf("must be at most %d bytes", security.MaxPasswordBytes)
	}
	return nil
}

// UserUpdate holds the fields a caller asked to change. Nil means untouched.
type UserUpdate struct {
	Username *string     `json:"username"`
	Email    *string     `json:"email"`
	Role     *types.Role `json:"role"`
}

func (u UserUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Username, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&u.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&u.Role, validation.By(validRole)),
	)
}

func validRole(value any) error {
	role, ok := value.(*types.Role)
	if !ok || role == nil {
		return nil
	}
	if !role.Valid() {
		return errors.New("must be USER or ADMIN")
	}
	return nil
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo   UserRepository
	tx     Transactor
	hasher security.PasswordHasher
	tokens *security.TokenManager
}

func NewUserService(repo UserRepository, tx Transactor, hasher security.PasswordHasher, tokens *security.TokenManager) *UserService {
	return &UserService{repo: repo, tx: tx, hasher: hasher, tokens: tokens}
}

// Register creates a USER account. Taken usernames or emails are a Conflict.
func (s *UserService) Register(ctx context.Context, reg Registration) (types.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := reg.Validate(); err != nil {
		return types.User{}, validationError(err)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	var created types.User
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureAvailable(ctx, reg.Username, reg.Email, 0); err != nil {
			return err
		}
		created, err = s.repo.Create(ctx, types.User{
			Username:     reg.Username,
			Email:        reg.Email,
			Role:         types.RoleUser,
			PasswordHash: hash,
		})
		return err
	})
	if err != nil {
		return types.User{}, err
	}
	return created, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords fail
// the same way.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return types.User{}, errBadCredentials
		}
		return types.User{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return types.User{}, errBadCredentials
	}
	return user, nil
}

// Login authenticates and issues a session token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	token, err := s.tokens.Issue(security.Identity{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// ResolveToken verifies a bearer token and loads its subject fresh, so role
// changes and deletions apply to tokens already issued.
func (s *UserService) ResolveToken(ctx context.Context, token string) (types.User, error) {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return types.User{}, apperr.ErrUnauthenticated
	}
	user, err := s.repo.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return types.User{}, apperr.ErrUnauthenticated
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, caller access.Caller, page Page) ([]types.User, error) {
	if err := access.Check(caller, access.ListUsers, 0); err != nil {
		return nil, deny(err, "Only administrators can view all users")
	}
	page = page.Normalize()
	return s.repo.List(ctx, page.Offset, page.Limit)
}

func (s *UserService) Get(ctx context.Context, caller access.Caller, id int) (types.User, error) {
	if err := access.Check(caller, access.ViewUser, id); err != nil {
		return types.User{}, deny(err, "Not authorized")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, userNotFound(err)
	}
	return user, nil
}

// Update applies the present fields. A role change by a non-ADMIN is
// dropped without error.
func (s *UserService) Update(ctx context.Context, caller access.Caller, id int, upd UserUpdate) (types.User, error) {
	if err := access.Check(caller, access.UpdateUser, id); err != nil {
		return types.User{}, deny(err, "Not authorized")
	}
	if upd.Username != nil {
		trimmed := strings.TrimSpace(*upd.Username)
		upd.Username = &trimmed
	}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(*upd.Email)
		upd.Email = &trimmed
	}
	if !access.CanChangeRole(caller) {
		upd.Role = nil
	}
	if err := upd.Validate(); err != nil {
		return types.User{}, validationError(err)
	}

	var updated types.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		user, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return userNotFound(err)
		}

		if upd.Username != nil {
			taken, err := s.repo.UsernameTaken(ctx, *upd.Username, id)
			if err != nil {
				return err
			}
			if taken {
				return apperr.New(apperr.ErrConflict, "Username already taken")
			}
			user.Username = *upd.Username
		}
		if upd.Email != nil {
			taken, err := s.repo.EmailTaken(ctx, *upd.Email, id)
			if err != nil {
				return err
			}
			if taken {
				return apperr.New(apperr.ErrConflict, "Email already taken")
			}
			user.Email = *upd.Email
		}
		if upd.Role != nil {
			user.Role = *upd.Role
		}

		updated, err = s.repo.Update(ctx, user)
		return err
	})
	if err != nil {
		return types.User{}, err
	}
	return updated, nil
}

// Delete removes a user and their shelf in one transaction.
func (s *UserService) Delete(ctx context.Context, caller access.Caller, id int) error {
	switch err := access.Check(caller, access.DeleteUser, id); {
	case errors.Is(err, apperr.ErrSelfDelete):
		return apperr.New(apperr.ErrSelfDelete, "Cannot delete your own account")
	case err != nil:
		return deny(err, "Only administrators can delete users")
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return userNotFound(err)
		}
		if _, err := s.repo.DeleteShelfItems(ctx, id); err != nil {
			return fmt.Errorf("delete shelf items: %w", err)
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return userNotFound(err)
		}
		return nil
	})
}

func (s *UserService) ensureAvailable(ctx context.Context, username, email string, excludeID int) error {
	taken, err := s.repo.UsernameTaken(ctx, username, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.New(apperr.ErrConflict, "Username already registered")
	}
	taken, err = s.repo.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.New(apperr.ErrConflict, "Email already registered")
	}
	return nil
}

func userNotFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.New(apperr.ErrNotFound, "User not found")
	}
	return err
}
