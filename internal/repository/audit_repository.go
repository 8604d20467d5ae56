package repository

import (
	"context"
	"fmt"

	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/models"
)

// AuditRepository handles audit log database operations. Audit logs live in
// the public partition regardless of the tenant they describe.
type AuditRepository struct {
	scopes       *database.ScopeManager
	publicSchema string
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(scopes *database.ScopeManager, publicSchema string) *AuditRepository {
	return &AuditRepository{scopes: scopes, publicSchema: publicSchema}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	err := r.scopes.WithScope(ctx, r.publicSchema, func(sc *database.ScopedConn) error {
		return sc.DB().WithContext(ctx).Create(entry).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// GetByTenantID retrieves audit logs for a tenant
func (r *AuditRepository) GetByTenantID(ctx context.Context, tenantID int64, limit, offset int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := r.scopes.WithScope(ctx, r.publicSchema, func(sc *database.ScopedConn) error {
		query := sc.DB().WithContext(ctx).
			Where("tenant_id = ?", tenantID).
			Order("created_at DESC")

		if limit > 0 {
			query = query.Limit(limit)
		}
		if offset > 0 {
			query = query.Offset(offset)
		}
		return query.Find(&logs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}
