package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	"murmur/internal/infrastructure/repositories/memory"
	apperrors "murmur/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "auth-test-secret-auth-test-secret"

func newTestAuth(t *testing.T, users ports.UserRepository, cfg AuthConfig) AuthService {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	cfg.BcryptCost = bcrypt.MinCost
	auth := NewAuthService(users, cfg, testLogger)
	t.Cleanup(auth.Stop)
	return auth
}

func TestAuthService_RegisterAndToken(t *testing.T) {
	users := memory.NewMemoryUserRepository()
	auth := newTestAuth(t, users, AuthConfig{})
	ctx := context.Background()

	user, token, err := auth.Register(ctx, "  Ada@Example.COM ", "secret1", "")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "ada", user.Name)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)

	got, err := auth.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, user.Identity(), got)

	_, _, err = auth.Register(ctx, "ada@example.com", "secret2", "Other")
	requireCode(t, err, apperrors.ErrCodeConflict, http.StatusConflict)

	for name, tc := range map[string][2]string{
		"bad email":      {"not-an-email", "secret1"},
		"short password": {"bob@example.com", "12345"},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := auth.Register(ctx, tc[0], tc[1], "")
			requireCode(t, err, apperrors.ErrCodeInvalidInput, http.StatusBadRequest)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	users := memory.NewMemoryUserRepository()
	auth := newTestAuth(t, users, AuthConfig{})
	ctx := context.Background()

	user, _, err := auth.Register(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, &domain.User{
		ID: "guest-1", Email: "guest@example.com", Name: domain.GuestName, Role: domain.RoleUser, IsActive: true, IsGuest: true,
	}))

	got, token, err := auth.Login(ctx, "ADA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, token)

	_, _, wrong := auth.Login(ctx, "ada@example.com", "nope-nope")
	_, _, unknown := auth.Login(ctx, "who@example.com", "secret1")
	_, _, guest := auth.Login(ctx, "guest@example.com", "")
	_, _, guestWithPassword := auth.Login(ctx, "guest@example.com", "anything")
	requireCode(t, wrong, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
	requireCode(t, unknown, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
	requireCode(t, guest, apperrors.ErrCodeInvalidInput, http.StatusBadRequest)
	requireCode(t, guestWithPassword, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
	assert.Equal(t, wrong.Error(), unknown.Error())
	assert.Equal(t, wrong.Error(), guestWithPassword.Error())

	user.IsActive = false
	require.NoError(t, users.Update(ctx, user))
	_, _, err = auth.Login(ctx, "ada@example.com", "secret1")
	requireCode(t, err, apperrors.ErrCodeForbidden, http.StatusForbidden)
}

func TestAuthService_ValidateToken(t *testing.T) {
	users := memory.NewMemoryUserRepository()
	auth := newTestAuth(t, users, AuthConfig{})
	user := &domain.User{ID: "u1", Email: "a@example.com", Role: domain.RoleUser, IsActive: true}

	sign := func(method jwt.SigningMethod, key interface{}, claims *Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	claims := func(ttl time.Duration) *Claims {
		now := time.Now()
		return &Claims{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			},
		}
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", sign(jwt.SigningMethodHS256, []byte(testSecret), claims(-time.Minute)), ErrExpiredToken},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("another-secret"), claims(time.Hour)), ErrInvalidToken},
		{"wrong algorithm", sign(jwt.SigningMethodHS512, []byte(testSecret), claims(time.Hour)), ErrInvalidToken},
		{"none algorithm", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims(time.Hour)), ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"missing user", sign(jwt.SigningMethodHS256, []byte(testSecret), &Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}), ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)

			_, err = auth.Authenticate(context.Background(), tt.token)
			requireCode(t, err, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
		})
	}

	good, err := auth.GenerateToken(user)
	require.NoError(t, err)
	_, err = auth.ValidateToken(good)
	assert.NoError(t, err)
}

func TestAuthService_AuthenticateReadsTheStore(t *testing.T) {
	users := memory.NewMemoryUserRepository()
	auth := newTestAuth(t, users, AuthConfig{})
	ctx := context.Background()

	user, token, err := auth.Register(ctx, "ada@example.com", "secret1", "")
	require.NoError(t, err)

	// the role comes from the store, not the token
	user.Role = domain.RoleAdmin
	require.NoError(t, users.Update(ctx, user))
	got, err := auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())

	user.IsActive = false
	require.NoError(t, users.Update(ctx, user))
	_, err = auth.Authenticate(ctx, token)
	requireCode(t, err, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
}

func TestAuthService_IdentityCacheAndInvalidate(t *testing.T) {
	users := memory.NewMemoryUserRepository()
	auth := newTestAuth(t, users, AuthConfig{IdentityCacheTTL: time.Minute})
	ctx := context.Background()

	user, token, err := auth.Register(ctx, "ada@example.com", "secret1", "")
	require.NoError(t, err)
	_, err = auth.Authenticate(ctx, token)
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, users.Update(ctx, user))

	// still cached
	_, err = auth.Authenticate(ctx, token)
	require.NoError(t, err)

	auth.Invalidate(user.ID)
	_, err = auth.Authenticate(ctx, token)
	requireCode(t, err, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
}
