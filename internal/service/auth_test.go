package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/defects/internal/domain"
)

func newAuthService(w *world, cfg AuthConfig) *AuthService {
	cfg.JWTSecret = "test-secret"
	cfg.BcryptCost = bcrypt.MinCost
	cfg.Now = w.clock
	return NewAuthService(fakeUsers{w}, cfg)
}

func TestAuthService_Register(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{})
	ctx := context.Background()

	u, err := svc.Register(ctx, "  alice ", "s3cret", domain.Role("admin"))
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, domain.RoleObserver, u.Role)
	require.NotNil(t, u.PasswordHash)
	assert.NotEqual(t, "s3cret", *u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte("s3cret")))

	eng, err := svc.Register(ctx, "bob", "pw", domain.RoleEngineer)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEngineer, eng.Role)
}

func TestAuthService_RegisterConflictKeepsHash(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{})
	ctx := context.Background()

	first, err := svc.Register(ctx, "alice", "original", domain.RoleManager)
	require.NoError(t, err)
	hash := *first.PasswordHash

	_, err = svc.Register(ctx, "alice", "replacement", domain.RoleObserver)
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored := w.users[first.ID]
	assert.Equal(t, hash, *stored.PasswordHash)
	assert.Equal(t, domain.RoleManager, stored.Role)
	assert.Len(t, w.users, 1)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc := newAuthService(newWorld(), AuthConfig{})
	ctx := context.Background()

	tests := []struct {
		name, username, password, field string
	}{
		{"short username", "al", "pw", "username"},
		{"missing password", "alice", "", "password"},
		{"password too long", "alice", strings.Repeat("p", 73), "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.password, domain.RoleObserver)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestAuthService_LoginFailuresAreIdentical(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{})
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "correct", domain.RoleEngineer)
	require.NoError(t, err)

	_, _, wrongPassword := svc.Login(ctx, "alice", "incorrect")
	_, _, unknownUser := svc.Login(ctx, "mallory", "correct")

	assert.ErrorIs(t, wrongPassword, domain.ErrAuthenticationFailed)
	assert.ErrorIs(t, unknownUser, domain.ErrAuthenticationFailed)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestAuthService_LoginAndVerify(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{AccessTTL: time.Hour})
	ctx := context.Background()
	registered, err := svc.Register(ctx, "alice", "correct", domain.RoleEngineer)
	require.NoError(t, err)

	user, pair, err := svc.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	identity, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ID: registered.ID, Username: "alice", Role: domain.RoleEngineer}, identity)

	// Role changes apply to existing tokens.
	u := w.users[registered.ID]
	u.Role = domain.RoleManager
	w.users[registered.ID] = u
	identity, err = svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, identity.Role)

	_, err = svc.Verify(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "refresh tokens are not access tokens")
}

func TestAuthService_VerifyRejects(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{AccessTTL: time.Hour})
	ctx := context.Background()
	registered, err := svc.Register(ctx, "alice", "correct", domain.RoleEngineer)
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice", "correct")
	require.NoError(t, err)

	foreign := NewAuthService(fakeUsers{w}, AuthConfig{JWTSecret: "other-secret", BcryptCost: bcrypt.MinCost, Now: w.clock})
	_, foreignPair, err := foreign.Login(ctx, "alice", "correct")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":          "",
		"garbage":        "not.a.jwt",
		"foreign secret": foreignPair.AccessToken,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(ctx, token)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}

	t.Run("expired", func(t *testing.T) {
		later := newAuthService(&world{now: w.now.Add(2 * time.Hour), users: w.users}, AuthConfig{})
		_, err := later.Verify(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("deleted user", func(t *testing.T) {
		delete(w.users, registered.ID)
		_, err := svc.Verify(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{})
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "correct", domain.RoleObserver)
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice", "correct")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, next.AccessToken)
	assert.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_SignInProvider(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{})
	ctx := context.Background()
	w.addUser("octocat", domain.RoleManager)

	u, err := svc.signInProvider(ctx, domain.AuthProviderGitHub, oauthProfile{ID: "583231", Username: "octocat"})
	require.NoError(t, err)
	assert.Equal(t, "octocat-github", u.Username)
	assert.Equal(t, domain.RoleObserver, u.Role)
	assert.Nil(t, u.PasswordHash)

	again, err := svc.signInProvider(ctx, domain.AuthProviderGitHub, oauthProfile{ID: "583231", Username: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	// OAuth-only accounts cannot log in with a password.
	_, _, err = svc.Login(ctx, "octocat-github", "")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestAuthService_OAuthURL(t *testing.T) {
	w := newWorld()
	svc := newAuthService(w, AuthConfig{
		GitHubClientID:     "id",
		GitHubClientSecret: "secret",
		FrontendURL:        "http://localhost:5173",
	})

	assert.True(t, svc.OAuthEnabled(domain.AuthProviderGitHub))
	assert.False(t, svc.OAuthEnabled(domain.AuthProviderGoogle))

	url, err := svc.OAuthURL(domain.AuthProviderGitHub, "xyz")
	require.NoError(t, err)
	assert.Contains(t, url, "state=xyz")
	assert.Contains(t, url, "client_id=id")

	_, err = svc.OAuthURL(domain.AuthProviderGoogle, "xyz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
