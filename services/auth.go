package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/store"
	"github.com/greenloop/ecotrack/utils"
)

// AuthCode identifies a typed authentication failure.
type AuthCode string

const (
	AuthUserNotFound  AuthCode = "user_not_found"
	AuthWrongPassword AuthCode = "wrong_password"
	AuthEmailInUse    AuthCode = "email_in_use"
	AuthWeakPassword  AuthCode = "weak_password"
	AuthInvalidEmail  AuthCode = "invalid_email"
	AuthUnknown       AuthCode = "unknown"
)

// AuthError is the typed failure returned by sign-up and sign-in.
type AuthError struct {
	Code AuthCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Auth verifies credentials and creates accounts against the record store.
type Auth struct {
	store RecordStore
}

// NewAuth creates an Auth service over the given record store.
func NewAuth(rs RecordStore) *Auth {
	return &Auth{store: rs}
}

// SignUp creates a local account. The password is bcrypt hashed before it
// ever reaches the store.
func (a *Auth) SignUp(ctx context.Context, username, email, password, ip string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) {
		return nil, &AuthError{Code: AuthInvalidEmail}
	}
	if len(password) < 6 || len(password) > 72 {
		return nil, &AuthError{Code: AuthWeakPassword}
	}

	if _, err := a.store.UserByEmail(ctx, email); err == nil {
		return nil, &AuthError{Code: AuthEmailInUse}
	} else if !store.IsNotFound(err) {
		return nil, &AuthError{Code: AuthUnknown, Err: err}
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, &AuthError{Code: AuthUnknown, Err: err}
	}

	user := &models.User{
		Username:     strings.TrimSpace(username),
		Email:        email,
		PasswordHash: hash,
		RegisterIP:   ip,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, &AuthError{Code: AuthUnknown, Err: err}
	}
	return user, nil
}

// SignIn verifies an email/password pair and returns the account.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := a.store.UserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &AuthError{Code: AuthUserNotFound}
		}
		return nil, &AuthError{Code: AuthUnknown, Err: err}
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, &AuthError{Code: AuthWrongPassword}
	}
	return user, nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// reject display-name forms; the stored value must be the bare address
	return addr.Address == email && strings.Contains(email, ".")
}
