package services

import (
	"fmt"

	"chat-server/auth"
	"chat-server/errors"
	"chat-server/repositories"
)

type IAuthService interface {
	Register(username, password string) (Token, string, error)
	Login(username, password string) (Token, string, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
}

type Token string

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenManager) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

// Register creates an account and returns the initial session token together
// with the new user id.
func (s *AuthService) Register(username, password string) (Token, string, error) {
	valReq := auth.RegisterRequest{
		Username: username,
		Password: password,
	}

	// Validate business rules (username format, password complexity) before
	// any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hashing happens in the service layer to keep the repository unaware of
	// plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", "", fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(username, hashedPassword)
	if err != nil {
		return "", "", err // Propagates ErrUserAlreadyExists if the name is taken
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return "", "", errors.ErrTokenGeneration
	}
	return Token(token), user.ID, nil
}

func (s *AuthService) Login(username, password string) (Token, string, error) {
	user, err := s.userRepository.GetUserByName(username)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return "", "", errors.ErrTokenGeneration
	}
	return Token(token), user.ID, nil
}
