package repository

import (
	"errors"
	"time"

	"loyalty/internal/models"

	"gorm.io/gorm"
)

var ErrAdminNotFound = errors.New("admin not found")

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetByUsername(username string) (*models.AdminUser, error) {
	var a models.AdminUser
	if err := r.db.Where("username = ?", username).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AdminRepository) TouchLastLogin(id uint, at time.Time) error {
	return r.db.Model(&models.AdminUser{}).Where("id = ?", id).
		Update("last_login_at", at).Error
}
