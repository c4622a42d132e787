package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// User is one persisted account row. The session core never mutates
// anything here except the win/loss counters at game end.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Wins         int
	Losses       int
}

// UserRepository provides account lookups for the identity verifier and
// win/loss persistence at game end.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a user repository backed by the given pool.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// ByToken resolves the user owning an opaque session token.
func (r *UserRepository) ByToken(ctx context.Context, token string) (User, error) {
	const q = `
		SELECT u.id, u.username, u.password_hash, u.wins, u.losses
		FROM users u
		JOIN auth_tokens t ON t.user_id = u.id
		WHERE t.token = $1 AND t.expires_at > now()`

	var u User
	err := r.db.pool.QueryRow(ctx, q, token).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Wins, &u.Losses)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user by token: %w", err)
	}
	return u, nil
}

// ByUsername resolves a user by display name.
func (r *UserRepository) ByUsername(ctx context.Context, username string) (User, error) {
	const q = `
		SELECT id, username, password_hash, wins, losses
		FROM users
		WHERE lower(username) = lower($1)`

	var u User
	err := r.db.pool.QueryRow(ctx, q, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Wins, &u.Losses)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user by username: %w", err)
	}
	return u, nil
}

// RecordResult increments a user's win or loss counter.
func (r *UserRepository) RecordResult(ctx context.Context, userID string, won bool) error {
	q := `UPDATE users SET losses = losses + 1 WHERE id = $1`
	if won {
		q = `UPDATE users SET wins = wins + 1 WHERE id = $1`
	}

	tag, err := r.db.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
