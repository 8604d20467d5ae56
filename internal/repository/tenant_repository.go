package repository

import (
	"context"
	"fmt"

	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/models"
)

// TenantRepository reads the tenant registry in the public partition
type TenantRepository struct {
	scopes       *database.ScopeManager
	publicSchema string
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(scopes *database.ScopeManager, publicSchema string) *TenantRepository {
	return &TenantRepository{scopes: scopes, publicSchema: publicSchema}
}

// GetActiveByID retrieves an active tenant. Inactive and unknown tenants both
// yield gorm.ErrRecordNotFound.
func (r *TenantRepository) GetActiveByID(ctx context.Context, id int64) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.scopes.WithScope(ctx, r.publicSchema, func(sc *database.ScopedConn) error {
		return sc.DB().WithContext(ctx).
			Where("id = ? AND is_active = ?", id, true).
			First(&tenant).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// GetActiveBySubdomain retrieves an active tenant by subdomain
func (r *TenantRepository) GetActiveBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.scopes.WithScope(ctx, r.publicSchema, func(sc *database.ScopedConn) error {
		return sc.DB().WithContext(ctx).
			Where("subdomain = ? AND is_active = ?", subdomain, true).
			First(&tenant).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}
