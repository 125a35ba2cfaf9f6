package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditLog records admin operations (adjustments, refunds, cancellations)
// for traceability. It is separate from the points ledger: the ledger is
// the source of truth for balances, this is who-did-what.
type AuditLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	AdminID    *uint          `gorm:"index" json:"admin_id"`
	Action     string         `gorm:"size:64;not null;index" json:"action"`
	Resource   string         `gorm:"size:64" json:"resource"`
	ResourceID string         `gorm:"size:64" json:"resource_id"`
	Detail     string         `gorm:"type:text" json:"detail"`
	IP         string         `gorm:"size:45" json:"ip"`
	UserAgent  string         `gorm:"size:255" json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
