package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions
const (
	AuditActionTenantOverride      = "tenant.override"
	AuditActionImpersonationIssued = "tenant.impersonation_issued"
)

// AuditLog represents an audit log entry in the public partition
type AuditLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID     int64     `gorm:"not null;index" json:"tenant_id"`
	UserID       int64     `gorm:"index" json:"user_id"`
	Action       string    `gorm:"type:varchar(100);not null;index" json:"action"`
	ResourceType string    `gorm:"type:varchar(50);index" json:"resource_type"`
	ResourceID   string    `gorm:"type:varchar(255);index" json:"resource_id"`
	IPAddress    string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent    string    `gorm:"type:text" json:"user_agent"`
	RequestID    string    `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	Status       string    `gorm:"type:varchar(20);index" json:"status"` // success, failure
	CreatedAt    time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
