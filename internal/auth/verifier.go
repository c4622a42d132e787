package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/duelforge/duel-server-go/internal/repository"
)

var (
	// ErrInvalidCredential covers malformed or unverifiable credentials.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInvalidUsername covers names outside the allowed length/charset.
	ErrInvalidUsername = errors.New("invalid username")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// ValidateUsername enforces the 3-20 character restricted-charset rule.
func ValidateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return ErrInvalidUsername
	}
	return nil
}

// Identity is a verified user. Guest identities are transient: they carry
// a fresh id, never touch the user store, and are not eligible for
// reconnection.
type Identity struct {
	ID       string
	Username string
	Guest    bool
	Wins     int
	Losses   int
}

// Durable reports whether the identity survives a disconnect for
// reconnection purposes.
func (id Identity) Durable() bool {
	return !id.Guest && id.ID != ""
}

// Verifier turns an opaque handshake credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// UserSource is the account-store surface the verifier needs. Implemented
// by repository.UserRepository and by the in-memory source used when the
// database is disabled.
type UserSource interface {
	ByToken(ctx context.Context, token string) (repository.User, error)
	ByUsername(ctx context.Context, username string) (repository.User, error)
}

type verifier struct {
	users  UserSource
	logger *zap.Logger
}

// NewVerifier creates the credential verifier. users may be nil, in which
// case only guest credentials are accepted.
func NewVerifier(users UserSource, logger *zap.Logger) Verifier {
	return &verifier{users: users, logger: logger}
}

// Verify accepts three credential forms:
//
//	guest:<name>            transient guest identity
//	token:<value>           opaque session token lookup
//	basic:<user>:<password> username + password
func (v *verifier) Verify(ctx context.Context, credential string) (Identity, error) {
	kind, rest, ok := strings.Cut(credential, ":")
	if !ok {
		return Identity{}, ErrInvalidCredential
	}

	switch kind {
	case "guest":
		return v.verifyGuest(rest)
	case "token":
		return v.verifyToken(ctx, rest)
	case "basic":
		return v.verifyBasic(ctx, rest)
	default:
		return Identity{}, fmt.Errorf("%w: unknown scheme %q", ErrInvalidCredential, kind)
	}
}

func (v *verifier) verifyGuest(name string) (Identity, error) {
	if err := ValidateUsername(name); err != nil {
		return Identity{}, err
	}
	return Identity{
		ID:       uuid.New().String(),
		Username: name,
		Guest:    true,
	}, nil
}

func (v *verifier) verifyToken(ctx context.Context, token string) (Identity, error) {
	if v.users == nil || token == "" {
		return Identity{}, ErrInvalidCredential
	}

	u, err := v.users.ByToken(ctx, token)
	if errors.Is(err, repository.ErrUserNotFound) {
		return Identity{}, ErrInvalidCredential
	}
	if err != nil {
		return Identity{}, fmt.Errorf("verify token: %w", err)
	}
	return identityOf(u), nil
}

func (v *verifier) verifyBasic(ctx context.Context, rest string) (Identity, error) {
	username, password, ok := strings.Cut(rest, ":")
	if !ok || v.users == nil {
		return Identity{}, ErrInvalidCredential
	}
	if err := ValidateUsername(username); err != nil {
		return Identity{}, err
	}

	u, err := v.users.ByUsername(ctx, username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return Identity{}, ErrInvalidCredential
	}
	if err != nil {
		return Identity{}, fmt.Errorf("verify password: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		v.logger.Warn("password mismatch", zap.String("username", username))
		return Identity{}, ErrInvalidCredential
	}
	return identityOf(u), nil
}

func identityOf(u repository.User) Identity {
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		Wins:     u.Wins,
		Losses:   u.Losses,
	}
}
