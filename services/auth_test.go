package services

import (
	"context"
	"errors"
	"testing"
)

func authCode(t *testing.T, err error) AuthCode {
	t.Helper()
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("error %v is not an AuthError", err)
	}
	return ae.Code
}

func TestSignUpValidation(t *testing.T) {
	auth := NewAuth(newFakeRecordStore())

	cases := []struct {
		name     string
		email    string
		password string
		want     AuthCode
	}{
		{"empty email", "", "secret123", AuthInvalidEmail},
		{"no at sign", "ivy.example.com", "secret123", AuthInvalidEmail},
		{"display name form", "Ivy <ivy@example.com>", "secret123", AuthInvalidEmail},
		{"short password", "ivy@example.com", "abc", AuthWeakPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.SignUp(context.Background(), "ivy", tc.email, tc.password, "127.0.0.1")
			if got := authCode(t, err); got != tc.want {
				t.Fatalf("code = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	fs := newFakeRecordStore()
	auth := NewAuth(fs)

	user, err := auth.SignUp(context.Background(), "ivy", "Ivy@Example.com", "secret123", "127.0.0.1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "ivy@example.com" {
		t.Fatalf("email stored as %q, want lowercased", user.Email)
	}
	if user.PasswordHash == "secret123" || user.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	if _, err := auth.SignUp(context.Background(), "ivy2", "ivy@example.com", "secret123", "127.0.0.1"); authCode(t, err) != AuthEmailInUse {
		t.Fatalf("duplicate sign-up code = %v, want %s", err, AuthEmailInUse)
	}

	signedIn, err := auth.SignIn(context.Background(), "ivy@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if signedIn.ID != user.ID {
		t.Fatalf("signed in as user %d, want %d", signedIn.ID, user.ID)
	}

	if _, err := auth.SignIn(context.Background(), "ivy@example.com", "wrong-pass"); authCode(t, err) != AuthWrongPassword {
		t.Fatalf("wrong password code = %v, want %s", err, AuthWrongPassword)
	}
	if _, err := auth.SignIn(context.Background(), "nobody@example.com", "secret123"); authCode(t, err) != AuthUserNotFound {
		t.Fatalf("unknown email code = %v, want %s", err, AuthUserNotFound)
	}
}
