package services

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/repositories"
)

// defaultAvatar mirrors the fallback the web client uses when a profile has
// no picture of its own.
const defaultAvatar = "https://api.dicebear.com/7.x/avataaars/svg?seed="

type AuthResult struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
	Token     string `json:"token"`
}

type IAuthService interface {
	Register(req auth.RegisterRequest) (AuthResult, error)
	Login(req auth.LoginRequest) (AuthResult, error)
	Verify(token string) (*auth.CustomClaims, error)
	ListUsers() ([]repositories.User, error)
}

type AuthService struct {
	users         repositories.IUserRepository
	tokenDuration time.Duration
	log           *slog.Logger
}

func NewAuthService(users repositories.IUserRepository, tokenDuration time.Duration, log *slog.Logger) *AuthService {
	return &AuthService{users: users, tokenDuration: tokenDuration, log: log}
}

func (s *AuthService) Register(req auth.RegisterRequest) (AuthResult, error) {
	if err := auth.ValidateRegister(req); err != nil {
		return AuthResult{}, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(repositories.User{
		Username:     req.Username,
		Email:        req.Email,
		AvatarURL:    defaultAvatar + req.Username,
		PasswordHash: hash,
	})
	if err != nil {
		return AuthResult{}, err
	}

	token, err := auth.GenerateToken(user.Username, user.AvatarURL, s.tokenDuration)
	if err != nil {
		return AuthResult{}, errors.ErrTokenGeneration
	}

	s.log.Info("user registered", slog.String("username", user.Username))
	return AuthResult{
		Username:  user.Username,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Token:     token,
	}, nil
}

// Login deliberately collapses unknown-email and bad-password into the same
// ErrInvalidCredentials so the response does not leak which accounts exist.
func (s *AuthService) Login(req auth.LoginRequest) (AuthResult, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetUserByEmail(req.Email)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return AuthResult{}, errors.ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil {
		return AuthResult{}, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return AuthResult{}, errors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.Username, user.AvatarURL, s.tokenDuration)
	if err != nil {
		return AuthResult{}, errors.ErrTokenGeneration
	}

	s.log.Info("user logged in", slog.String("username", user.Username))
	return AuthResult{
		Username:  user.Username,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Token:     token,
	}, nil
}

func (s *AuthService) Verify(token string) (*auth.CustomClaims, error) {
	return auth.ValidateToken(token)
}

func (s *AuthService) ListUsers() ([]repositories.User, error) {
	return s.users.ListUsers()
}
