package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"papertrader/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type AuthService struct {
	users  UserRepository
	logger *zap.Logger
}

func NewAuthService(users UserRepository, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, logger: logger}
}

// Register creates a new user. The returned user carries no password hash.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	user := models.NewUser(username, email)
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	user.CreatedAt = time.Now().UTC()

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("username", user.Username), zap.String("user_id", user.ID.Hex()))
	pub := user.Public()
	return &pub, nil
}

// Login authenticates a user. The returned user carries no password hash.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, models.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.PasswordMatches(password) {
		s.logger.Debug("login rejected", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	pub := user.Public()
	return &pub, nil
}

// GetUserByID returns a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pub := user.Public()
	return &pub, nil
}
