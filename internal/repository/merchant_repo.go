package repository

import (
	"errors"

	"loyalty/internal/models"

	"gorm.io/gorm"
)

var ErrMerchantNotFound = errors.New("merchant not found")

type MerchantRepository struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) Create(m *models.Merchant) error {
	return r.db.Create(m).Error
}

func (r *MerchantRepository) GetByID(id uint) (*models.Merchant, error) {
	var m models.Merchant
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return &m, nil
}
