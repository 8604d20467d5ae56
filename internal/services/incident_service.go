package services

import (
	"context"
	"strings"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/repository"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// IncidentService handles incident operations for the tenant a handle is
// bound to
type IncidentService struct {
	repo *repository.IncidentRepository
}

// NewIncidentService creates a new incident service
func NewIncidentService(repo *repository.IncidentRepository) *IncidentService {
	return &IncidentService{repo: repo}
}

// List retrieves a page of incidents
func (s *IncidentService) List(ctx context.Context, db *gorm.DB, limit, offset int) ([]models.Incident, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	incidents, err := s.repo.List(ctx, db, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list incidents", err)
	}
	return incidents, nil
}

// Create opens an incident reported by principal
func (s *IncidentService) Create(ctx context.Context, db *gorm.DB, principal models.Principal, req *models.IncidentRequest) (*models.Incident, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "title is required")
	}

	severity := req.Severity
	switch severity {
	case "":
		severity = models.SeverityMedium
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		return nil, apperr.New(apperr.KindInvalidRequest, "unknown severity")
	}

	incident := &models.Incident{
		Title:       title,
		Description: req.Description,
		Severity:    severity,
		Status:      "open",
		ReportedBy:  principal.Subject(),
	}
	if err := s.repo.Create(ctx, db, incident); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create incident", err)
	}
	return incident, nil
}
