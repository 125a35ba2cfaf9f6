package models

import (
	"time"

	"loyalty/internal/domain"
)

// PointsRecord is one append-only ledger entry: a signed point change, the
// balance snapshot immediately after it, and the reason. Corrections are
// new compensating entries, never edits.
type PointsRecord struct {
	ID           uint                  `gorm:"primaryKey" json:"id"`
	UserID       uint                  `gorm:"not null;index" json:"user_id"`
	OrderID      *uint                 `gorm:"index" json:"order_id"` // nil for order-independent entries
	PointsChange int64                 `gorm:"not null" json:"points_change"`
	BalanceAfter int64                 `gorm:"not null" json:"balance_after"`
	Category     domain.PointsCategory `gorm:"size:30;not null;index" json:"category"`
	Description  string                `gorm:"size:255" json:"description"`
	ExpiresAt    *time.Time            `gorm:"index" json:"expires_at"`
	CreatedAt    time.Time             `json:"created_at"`

	User  User          `gorm:"foreignKey:UserID" json:"-"`
	Order *PaymentOrder `gorm:"foreignKey:OrderID" json:"-"`
}

func (PointsRecord) TableName() string {
	return "points_records"
}
