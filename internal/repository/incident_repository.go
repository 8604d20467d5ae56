package repository

import (
	"context"
	"fmt"

	"github.com/otcheredev/incident-desk/internal/models"
	"gorm.io/gorm"
)

// IncidentRepository handles incident database operations inside a tenant
// partition
type IncidentRepository struct{}

// NewIncidentRepository creates a new incident repository
func NewIncidentRepository() *IncidentRepository {
	return &IncidentRepository{}
}

// Create creates a new incident
func (r *IncidentRepository) Create(ctx context.Context, db *gorm.DB, incident *models.Incident) error {
	if err := db.WithContext(ctx).Create(incident).Error; err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// List retrieves incidents, newest first
func (r *IncidentRepository) List(ctx context.Context, db *gorm.DB, limit, offset int) ([]models.Incident, error) {
	var incidents []models.Incident
	query := db.WithContext(ctx).Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&incidents).Error; err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, nil
}
