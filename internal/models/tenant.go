package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tenant represents a customer organization registered in the public partition.
// SchemaName is assigned at provisioning and never changes afterwards.
type Tenant struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Subdomain      string    `gorm:"type:varchar(63);uniqueIndex;not null" json:"subdomain"`
	SchemaName     string    `gorm:"type:varchar(63);uniqueIndex;not null" json:"-"`
	IsActive       bool      `gorm:"default:true;index" json:"is_active"`
	PrimaryColor   string    `gorm:"type:varchar(16)" json:"primary_color,omitempty"`
	SecondaryColor string    `gorm:"type:varchar(16)" json:"secondary_color,omitempty"`
	LogoPath       string    `gorm:"type:varchar(500)" json:"logo_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Tenant) TableName() string {
	return "tenants"
}

// Branding returns the display attributes handed to downstream consumers.
func (t *Tenant) Branding() Branding {
	return Branding{
		TenantName:     t.Name,
		Subdomain:      t.Subdomain,
		PrimaryColor:   t.PrimaryColor,
		SecondaryColor: t.SecondaryColor,
		LogoPath:       t.LogoPath,
	}
}

// Branding is opaque to the tenancy pipeline; it is carried for display only.
type Branding struct {
	TenantName     string `json:"tenant_name"`
	Subdomain      string `json:"subdomain"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
	LogoPath       string `json:"logo_path,omitempty"`
}

// Claims represents the signed credential payload
type Claims struct {
	UserID        int64  `json:"user_id"`
	TenantID      *int64 `json:"tenant_id,omitempty"`
	SuperAdmin    bool   `json:"super_admin,omitempty"`
	Impersonation bool   `json:"impersonation,omitempty"`
	jwt.RegisteredClaims
}
