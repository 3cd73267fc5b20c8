package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bracketline/notify-engine/internal/domain"
	"github.com/bracketline/notify-engine/internal/repository"
)

type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func NewUserService(users repository.UserRepository, logger *zap.Logger) (*UserService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UserService{users: users, logger: logger}, nil
}

func (s *UserService) Register(ctx context.Context, username, email string, discordID *string) (*domain.User, error) {
	user := &domain.User{
		ID:        uuid.NewString(),
		Username:  strings.TrimSpace(username),
		Email:     strings.TrimSpace(email),
		DiscordID: normalizeOptionalID(discordID),
	}

	if user.Username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if user.Email == "" || !strings.Contains(user.Email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: discord account is already linked", domain.ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("userId", user.ID),
		zap.Bool("discordLinked", user.DiscordID != nil),
	)

	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.users.GetByID(ctx, trimmedID)
}
