// Package auth handles signup, login and session tokens.
package auth

import (
	"context"

	"foodbudget/internal/core"
)

// Authenticator registers and verifies users. The credential format is up to
// the implementation.
type Authenticator interface {
	Register(ctx context.Context, email, displayName, credential string) (*core.User, error)
	Authenticate(ctx context.Context, email, credential string) (*core.User, error)
	ValidateCredential(credential string) error
}
