package services

import (
	"context"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/repository"
)

// AuditService reads the audit trail kept in the public partition
type AuditService struct {
	repo *repository.AuditRepository
}

// NewAuditService creates a new audit service
func NewAuditService(repo *repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// ListByTenant retrieves a page of a tenant's audit entries, newest first
func (s *AuditService) ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]models.AuditLog, error) {
	if tenantID <= 0 {
		return nil, apperr.New(apperr.KindInvalidRequest, "invalid tenant id")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.repo.GetByTenantID(ctx, tenantID, limit, offset)
	if err != nil {
		if apperr.Is(err, apperr.KindSchemaConnectionFailure) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list audit logs", err)
	}
	return logs, nil
}
