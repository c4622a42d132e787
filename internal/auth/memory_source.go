package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/duelforge/duel-server-go/internal/repository"
)

// StaticUser is a user provisioned from configuration rather than the
// database.
type StaticUser struct {
	Username     string
	PasswordHash string
	Token        string
}

// MemorySource is an in-process UserSource for development and tests,
// used when the database is disabled.
type MemorySource struct {
	mu      sync.RWMutex
	byName  map[string]repository.User
	byToken map[string]string // token -> username key
}

// NewMemorySource creates an empty in-memory user source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		byName:  make(map[string]repository.User),
		byToken: make(map[string]string),
	}
}

// NewStaticSource builds a MemorySource from provisioned users, minting a
// durable id for each so reconnection records can key on it.
func NewStaticSource(users []StaticUser) *MemorySource {
	s := NewMemorySource()
	for _, u := range users {
		s.Add(repository.User{
			ID:           uuid.New().String(),
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
		}, u.Token)
	}
	return s
}

// Add registers a user, optionally reachable through a token.
func (s *MemorySource) Add(u repository.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Username)
	s.byName[key] = u
	if token != "" {
		s.byToken[token] = key
	}
}

// ByToken implements UserSource.
func (s *MemorySource) ByToken(_ context.Context, token string) (repository.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byToken[token]
	if !ok {
		return repository.User{}, repository.ErrUserNotFound
	}
	return s.byName[key], nil
}

// ByUsername implements UserSource.
func (s *MemorySource) ByUsername(_ context.Context, username string) (repository.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return repository.User{}, repository.ErrUserNotFound
	}
	return u, nil
}
