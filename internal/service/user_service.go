package service

import (
	"context"
	"errors"
	"log/slog"

	"streamspace/internal/domain"
	"streamspace/internal/repository"
)

// UserService covers the minimal user provisioning the signaling core needs
// so that connections can resolve an identity. Credentials live elsewhere.
type UserService struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewUserService(users repository.UserRepository, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{users: users, log: log}
}

func (s *UserService) CreateUser(ctx context.Context, username string, email string) (*domain.User, error) {
	const op = "service.user.create"

	if username == "" {
		return nil, errors.New("username is required")
	}
	if email == "" {
		return nil, errors.New("email is required")
	}

	user := domain.NewUser(username, email)
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user created", "op", op, "email", email, "username", username)
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, email string) (*domain.User, error) {
	return s.users.FindUser(ctx, email)
}
