package services

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*AuthService, *UserService) {
	t.Helper()
	logger := quietLogger()
	users := NewUserService(repository.NewMemoryStore(), logger)
	tokens := auth.NewTokenIssuer("test-secret-test-secret-test-secret", "datalabel-test", time.Hour)
	return NewAuthService(auth.NewChallengeStore(time.Minute, "labels.test"), auth.NewEd25519Verifier(), tokens, users, logger), users
}

func sign(w wallet, message string) string {
	return base58.Encode(ed25519.Sign(w.key, []byte(message)))
}

func TestLoginFlow(t *testing.T) {
	s, users := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	challenge, message, err := s.Nonce(w.address)
	require.NoError(t, err)
	assert.Equal(t, w.address, challenge.Message.PublicKey)
	assert.Contains(t, message, challenge.Message.Nonce)

	result, err := s.Login(ctx, w.address, message, sign(w, message))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))
	assert.Equal(t, models.RoleUnselected, result.User.Role)

	p, err := s.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, w.address, p.WalletAddress)
	assert.Equal(t, models.RoleUnselected, p.Role)

	// role changes are visible to existing sessions
	_, err = users.SelectRole(ctx, p, models.RoleWorker)
	require.NoError(t, err)
	p, err = s.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleWorker, p.Role)

	// nonces are single use
	_, err = s.Login(ctx, w.address, message, sign(w, message))
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
}

func TestLoginRejectsBadSignatures(t *testing.T) {
	s, _ := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)
	other := newWallet(t)

	_, message, err := s.Nonce(w.address)
	require.NoError(t, err)

	_, err = s.Login(ctx, w.address, message, sign(other, message))
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	_, err = s.Login(ctx, other.address, message, sign(other, message))
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	_, err = s.Login(ctx, w.address, "hello", sign(w, "hello"))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	// a failed attempt does not burn the challenge
	_, err = s.Login(ctx, w.address, message, sign(w, message))
	require.NoError(t, err)
}

func TestNonceRejectsMalformedWallet(t *testing.T) {
	s, _ := newAuthService(t)
	_, _, err := s.Nonce("not a wallet")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestAuthenticateRejectsForeignTokens(t *testing.T) {
	s, _ := newAuthService(t)
	_, err := s.Authenticate(context.Background(), "garbage")
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	foreign := auth.NewTokenIssuer("another-secret-another-secret-1234", "datalabel-test", time.Hour)
	token, _, err := foreign.IssueSession(newWallet(t).address)
	require.NoError(t, err)
	_, err = s.Authenticate(context.Background(), token)
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
}

func TestUserRoles(t *testing.T) {
	users := NewUserService(repository.NewMemoryStore(), quietLogger())
	ctx := context.Background()
	w := newWallet(t)
	p := auth.Principal{WalletAddress: w.address}

	_, err := users.CreateUser(ctx, p, newWallet(t).address, models.RoleWorker)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	user, err := users.CreateUser(ctx, p, w.address, models.RoleUnselected)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUnselected, user.Role)
	_, err = users.CreateUser(ctx, p, w.address, models.RoleWorker)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	_, err = users.SelectRole(ctx, p, "ADMIN")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	user, err = users.SelectRole(ctx, p, models.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, models.RoleProvider, user.Role)
	_, err = users.SelectRole(ctx, p, models.RoleProvider)
	require.NoError(t, err)
	_, err = users.SelectRole(ctx, p, models.RoleWorker)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

	user, err = users.SetRole(ctx, w.address, models.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, models.RoleWorker, user.Role)

	unknown, err := users.Principal(ctx, newWallet(t).address)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUnselected, unknown.Role)
	_, err = users.Principal(ctx, "")
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
}
