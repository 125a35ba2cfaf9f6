package models

import (
	"time"

	"loyalty/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Nickname      string         `gorm:"size:64" json:"nickname"`
	Phone         string         `gorm:"size:20;index" json:"phone"`
	Status        string         `gorm:"size:20;not null;default:'active';index" json:"status"` // active | suspended
	PointsBalance int64          `gorm:"not null;default:0" json:"points_balance"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsActive() bool { return u.Status == domain.UserActive }
