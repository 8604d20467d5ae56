package repository

import (
	"context"
	"fmt"

	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/models"
	"gorm.io/gorm"
)

const userWithRoleColumns = "users.id, users.email, users.full_name, users.password_hash, " +
	"roles.name AS role_name, roles.permissions"

// UserRepository reads users of a tenant partition. Every method runs on the
// handle it is given, which must already be bound to the tenant's schema.
type UserRepository struct{}

// NewUserRepository creates a new user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// GetActiveWithRole retrieves an active user joined to its role
func (r *UserRepository) GetActiveWithRole(ctx context.Context, db *gorm.DB, id int64) (*models.UserWithRole, error) {
	var user models.UserWithRole
	if err := activeUsers(ctx, db).Where("users.id = ?", id).Take(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetActiveByEmail retrieves an active user by email, joined to its role.
// Emails match case-insensitively; email must already be lower case.
func (r *UserRepository) GetActiveByEmail(ctx context.Context, db *gorm.DB, email string) (*models.UserWithRole, error) {
	var user models.UserWithRole
	if err := activeUsers(ctx, db).Where("LOWER(users.email) = ?", email).Take(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func activeUsers(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Table("users").
		Select(userWithRoleColumns).
		Joins("JOIN roles ON roles.id = users.role_id").
		Where("users.is_active = ?", true)
}

// SuperAdminRepository reads operator accounts in the public partition
type SuperAdminRepository struct {
	scopes       *database.ScopeManager
	publicSchema string
}

// NewSuperAdminRepository creates a new super admin repository
func NewSuperAdminRepository(scopes *database.ScopeManager, publicSchema string) *SuperAdminRepository {
	return &SuperAdminRepository{scopes: scopes, publicSchema: publicSchema}
}

// GetActiveByEmail retrieves an active super admin by lower-case email
func (r *SuperAdminRepository) GetActiveByEmail(ctx context.Context, email string) (*models.SuperAdminAccount, error) {
	var admin models.SuperAdminAccount
	err := r.scopes.WithScope(ctx, r.publicSchema, func(sc *database.ScopedConn) error {
		return sc.DB().WithContext(ctx).
			Where("LOWER(email) = ? AND is_active = ?", email, true).
			First(&admin).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get super admin: %w", err)
	}
	return &admin, nil
}
