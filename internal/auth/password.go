package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"foodbudget/internal/core"
	"foodbudget/internal/store"
)

// DefaultMinPasswordLength applies when the authenticator is built without
// an explicit minimum.
const DefaultMinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password is too short")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrDomainNotAllowed   = errors.New("email domain is not allowed")
	ErrInvalidEmail       = errors.New("invalid email")
)

type PasswordAuthenticator struct {
	users     store.UserStore
	domain    string
	minLength int
	cost      int
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator restricts signup to addresses ending in
// "@"+domain. An empty domain allows any address.
func NewPasswordAuthenticator(users store.UserStore, domain string, minLength int) *PasswordAuthenticator {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	return &PasswordAuthenticator{
		users:     users,
		domain:    strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@")),
		minLength: minLength,
		cost:      bcrypt.DefaultCost,
	}
}

func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < a.minLength {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakPassword, a.minLength)
	}
	return nil
}

// ValidateEmail checks the address shape and the allowed domain.
func (a *PasswordAuthenticator) ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if a.domain != "" && !strings.HasSuffix(email, "@"+a.domain) {
		return fmt.Errorf("%w: only @%s addresses can sign up", ErrDomainNotAllowed, a.domain)
	}
	return nil
}

func (a *PasswordAuthenticator) Register(ctx context.Context, email, displayName, credential string) (*core.User, error) {
	if err := a.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	existing, err := a.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrEmailExists
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if strings.TrimSpace(displayName) == "" {
		displayName = localPart(email)
	}
	user := newUser(email, strings.TrimSpace(displayName), string(hash))
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (*core.User, error) {
	user, err := a.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func localPart(email string) string {
	email = strings.TrimSpace(email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func newUser(email, displayName, passwordHash string) *core.User {
	return &core.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
}
