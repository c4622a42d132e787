package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/duelforge/duel-server-go/internal/repository"
)

func TestValidateUsername(t *testing.T) {
	valid := []string{"abc", "Player_1", "some-name", "aaaaaaaaaaaaaaaaaaaa"}
	for _, name := range valid {
		assert.NoError(t, ValidateUsername(name), "name %q", name)
	}

	invalid := []string{"", "ab", "aaaaaaaaaaaaaaaaaaaaa", "has space", "bad!char", "ünïcode"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateUsername(name), ErrInvalidUsername, "name %q", name)
	}
}

func TestVerifyGuest(t *testing.T) {
	v := NewVerifier(nil, zap.NewNop())

	id, err := v.Verify(context.Background(), "guest:Wanderer")
	require.NoError(t, err)
	assert.True(t, id.Guest)
	assert.False(t, id.Durable())
	assert.Equal(t, "Wanderer", id.Username)
	assert.NotEmpty(t, id.ID)

	// Two guests with the same name are distinct identities.
	id2, err := v.Verify(context.Background(), "guest:Wanderer")
	require.NoError(t, err)
	assert.NotEqual(t, id.ID, id2.ID)

	_, err = v.Verify(context.Background(), "guest:x")
	assert.ErrorIs(t, err, ErrInvalidUsername)
}

func TestVerifyToken(t *testing.T) {
	src := NewMemorySource()
	src.Add(repository.User{ID: "u-1", Username: "Kael", Wins: 4, Losses: 2}, "tok-abc")
	v := NewVerifier(src, zap.NewNop())

	id, err := v.Verify(context.Background(), "token:tok-abc")
	require.NoError(t, err)
	assert.False(t, id.Guest)
	assert.True(t, id.Durable())
	assert.Equal(t, "u-1", id.ID)
	assert.Equal(t, "Kael", id.Username)
	assert.Equal(t, 4, id.Wins)

	_, err = v.Verify(context.Background(), "token:nope")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = v.Verify(context.Background(), "token:")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyBasic(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)

	src := NewMemorySource()
	src.Add(repository.User{ID: "u-2", Username: "Mira", PasswordHash: string(hash)}, "")
	v := NewVerifier(src, zap.NewNop())

	id, err := v.Verify(context.Background(), "basic:Mira:hunter22")
	require.NoError(t, err)
	assert.Equal(t, "u-2", id.ID)

	_, err = v.Verify(context.Background(), "basic:Mira:wrong")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = v.Verify(context.Background(), "basic:NoSuchUser:pw")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyStaticUsers(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)

	src := NewStaticSource([]StaticUser{
		{Username: "Alice", PasswordHash: string(hash), Token: "tok-alice"},
		{Username: "Bob", PasswordHash: string(hash)},
	})
	v := NewVerifier(src, zap.NewNop())

	// Static users get minted durable ids, stable across both schemes.
	byToken, err := v.Verify(context.Background(), "token:tok-alice")
	require.NoError(t, err)
	assert.True(t, byToken.Durable())
	assert.Equal(t, "Alice", byToken.Username)

	byBasic, err := v.Verify(context.Background(), "basic:Alice:hunter22")
	require.NoError(t, err)
	assert.Equal(t, byToken.ID, byBasic.ID)

	// A user provisioned without a token only verifies with basic.
	_, err = v.Verify(context.Background(), "token:")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	bob, err := v.Verify(context.Background(), "basic:Bob:hunter22")
	require.NoError(t, err)
	assert.True(t, bob.Durable())
	assert.NotEqual(t, byToken.ID, bob.ID)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	v := NewVerifier(nil, zap.NewNop())

	for _, cred := range []string{"", "garbage", "weird:stuff"} {
		_, err := v.Verify(context.Background(), cred)
		assert.ErrorIs(t, err, ErrInvalidCredential, "credential %q", cred)
	}

	// Token and basic credentials cannot verify without a user source.
	_, err := v.Verify(context.Background(), "token:abc")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = v.Verify(context.Background(), "basic:Mira:pw")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
