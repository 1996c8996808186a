package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	"murmur/pkg/cache"
	apperrors "murmur/pkg/errors"
	"murmur/pkg/utils"
	"murmur/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type AuthService interface {
	ports.IdentityVerifier
	Register(ctx context.Context, email, password, name string) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	GenerateToken(user *domain.User) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	Invalidate(userID domain.UserID)
	Stop()
}

type Claims struct {
	UserID domain.UserID `json:"user_id"`
	Email  string        `json:"email"`
	Role   domain.Role   `json:"role"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	JWTSecret        string
	AccessTokenTTL   time.Duration
	IdentityCacheTTL time.Duration
	BcryptCost       int
}

type authService struct {
	users      ports.UserRepository
	cfg        AuthConfig
	jwtSecret  []byte
	identities *cache.Loader[domain.Identity]
	logger     *zap.SugaredLogger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(users ports.UserRepository, cfg AuthConfig, logger *zap.SugaredLogger) AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &authService{
		users:      users,
		cfg:        cfg,
		jwtSecret:  []byte(cfg.JWTSecret),
		identities: cache.NewLoader[domain.Identity](cfg.IdentityCacheTTL),
		logger:     logger,
	}
}

func errInvalidCredentials() *apperrors.AppError {
	return apperrors.WrapError(domain.ErrUnauthenticated, apperrors.ErrCodeUnauthorized, "invalid email or password", http.StatusUnauthorized)
}

func (s *authService) Register(ctx context.Context, email, password, name string) (*domain.User, string, error) {
	email = utils.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, "", errInvalid(err, err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, "", errInvalid(err, err.Error())
	}
	name = utils.SanitizeString(name)
	if name == "" {
		name = utils.EmailLocalPart(email)
	}
	if err := validation.ValidateDisplayName(name); err != nil {
		return nil, "", errInvalid(err, err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, "", apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to hash password", http.StatusInternalServerError)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           domain.UserID(utils.NewID()),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", storeError(err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", err
	}

	s.logger.Infow("user registered", "user_id", user.ID, "email", utils.MaskEmail(email))
	return user, token, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", errInvalid(nil, "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, "", storeError(err)
		}
		// spend the same time as a real comparison
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, "", errInvalidCredentials()
	}
	if user.IsGuest || user.PasswordHash == "" {
		return nil, "", errInvalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", errInvalidCredentials()
	}
	if !user.IsActive {
		return nil, "", errForbidden("account is deactivated")
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) GenerateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to sign token", http.StatusInternalServerError)
	}
	return signed, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Authenticate verifies token and confirms against the store that its user
// still exists and is active. The role comes from the store, not the token.
func (s *authService) Authenticate(ctx context.Context, tokenString string) (domain.Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, errUnauthenticated(err)
	}

	identity, err := s.identities.GetOrLoad(ctx, string(claims.UserID), func(ctx context.Context) (domain.Identity, error) {
		user, err := s.users.GetByID(ctx, claims.UserID)
		if err != nil {
			return domain.Identity{}, err
		}
		return user.Identity(), nil
	})
	if err != nil {
		return domain.Identity{}, errUnauthenticated(err)
	}
	if !identity.IsActive {
		return domain.Identity{}, errUnauthenticated(nil)
	}
	return identity, nil
}

// Invalidate drops the cached identity so role or status changes apply at once.
func (s *authService) Invalidate(userID domain.UserID) {
	s.identities.Forget(string(userID))
}

func (s *authService) Stop() {
	s.identities.Stop()
}

func (s *authService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cfg.BcryptCost)
	})
	return s.dummyHash
}
