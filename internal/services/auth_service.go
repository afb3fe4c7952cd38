package services

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"groupware/internal/apperr"
	"groupware/internal/middleware"
	"groupware/internal/models"
	"groupware/internal/repositories"
	"groupware/internal/utils"
)

// TokenPair is issued on login and on refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type AuthService interface {
	Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.User, *TokenPair, error)
	HashPassword(plain string) (string, error)
}

type authService struct {
	users      repositories.UserRepository
	jwtKey     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(users repositories.UserRepository, jwtKey []byte, accessTTL, refreshTTL time.Duration) AuthService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &authService{users: users, jwtKey: jwtKey, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (s *authService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, nil, apperr.New(apperr.KindPermission, "INVALID_CREDENTIALS", "invalid email or password")
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apperr.New(apperr.KindPermission, "INVALID_CREDENTIALS", "invalid email or password")
	}
	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates the refresh token; a stolen token dies on first legitimate
// use.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*models.User, *TokenPair, error) {
	user, err := s.users.ByRefreshToken(ctx, refreshToken)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, nil, apperr.New(apperr.KindPermission, "INVALID_REFRESH", "invalid or expired refresh token")
		}
		return nil, nil, err
	}
	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *authService) issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	expires := time.Now().Add(s.accessTTL)
	claims := &middleware.Claims{
		UserID:    user.ID,
		ContextID: user.ContextID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, err, "signing access token")
	}

	refresh, err := utils.NewRefreshToken(32)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, err, "generating refresh token")
	}
	if err := s.users.UpdateRefresh(ctx, user.ID, refresh, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expires}, nil
}

func (s *authService) HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInfrastructure, err, "hashing password")
	}
	return string(h), nil
}
