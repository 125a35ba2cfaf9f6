package models

import (
	"time"

	"loyalty/internal/domain"

	"gorm.io/gorm"
)

type Merchant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:128;not null" json:"name"`
	Status    string         `gorm:"size:20;not null;default:'pending';index" json:"status"` // active | pending | disabled
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Merchant) TableName() string {
	return "merchants"
}

func (m *Merchant) IsActive() bool { return m.Status == domain.MerchantActive }
