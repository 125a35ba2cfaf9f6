package models

import (
	"time"

	"loyalty/internal/domain"
)

// PaymentOrder is created once with amount and points_awarded fixed, then
// mutated only through the guarded status transitions in the order
// repository. Rows are never deleted.
type PaymentOrder struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	OrderNo       string             `gorm:"size:32;uniqueIndex;not null" json:"order_no"`
	UserID        uint               `gorm:"not null;index" json:"user_id"`
	MerchantID    uint               `gorm:"not null;index" json:"merchant_id"`
	AmountCents   int64              `gorm:"not null" json:"amount_cents"`
	PointsAwarded int64              `gorm:"not null" json:"points_awarded"`
	Status        domain.OrderStatus `gorm:"size:20;not null;index" json:"status"`
	TransactionID string             `gorm:"size:64;index" json:"transaction_id"`
	Description   string             `gorm:"size:255" json:"description"`
	PaidAt        *time.Time         `json:"paid_at"`
	ExpiredAt     time.Time          `gorm:"not null" json:"expired_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`

	User     User     `gorm:"foreignKey:UserID" json:"-"`
	Merchant Merchant `gorm:"foreignKey:MerchantID" json:"-"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}
