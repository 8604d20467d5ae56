package models

import (
	"time"

	"github.com/lib/pq"
)

// User lives in a tenant partition. Its permissions come only from its role.
type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName     string    `gorm:"type:varchar(255)" json:"full_name"`
	PasswordHash string    `gorm:"type:text;not null" json:"-"`
	RoleID       int64     `gorm:"not null;index" json:"role_id"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// Role groups the capabilities granted to its users.
type Role struct {
	ID          int64          `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Permissions pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"permissions"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName overrides the table name
func (Role) TableName() string {
	return "roles"
}

// UserWithRole is the row shape of a user joined to its role.
type UserWithRole struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	RoleName     string
	Permissions  pq.StringArray `gorm:"column:permissions;type:text[]"`
}

// SuperAdminAccount is an operator identity stored in the public partition.
type SuperAdminAccount struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:text;not null" json:"-"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName overrides the table name
func (SuperAdminAccount) TableName() string {
	return "super_admins"
}
