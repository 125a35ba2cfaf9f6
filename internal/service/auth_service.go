package service

import (
	"errors"
	"time"

	"loyalty/config"
	"loyalty/internal/auth"
	"loyalty/internal/domain"
	"loyalty/internal/models"
	"loyalty/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type AuthService struct {
	cfg    *config.Config
	admins *repository.AdminRepository
}

func NewAuthService(cfg *config.Config, admins *repository.AdminRepository) *AuthService {
	return &AuthService{cfg: cfg, admins: admins}
}

// AdminLogin verifies credentials and issues an admin token.
func (s *AuthService) AdminLogin(username, password string) (string, *models.AdminUser, error) {
	admin, err := s.admins.GetByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := auth.GenerateToken(&s.cfg.JWT, admin.ID, admin.Username, domain.RoleAdmin)
	if err != nil {
		return "", nil, err
	}
	_ = s.admins.TouchLastLogin(admin.ID, time.Now())
	return token, admin, nil
}
