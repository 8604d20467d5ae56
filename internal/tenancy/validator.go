package tenancy

import (
	"context"
	"errors"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// TenantStore looks up active tenants in the registry.
type TenantStore interface {
	GetActiveByID(ctx context.Context, id int64) (*models.Tenant, error)
	GetActiveBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
}

// Validator admits only tenants that exist and are active.
type Validator struct {
	tenants TenantStore
}

// NewValidator creates a new tenant validator
func NewValidator(tenants TenantStore) *Validator {
	return &Validator{tenants: tenants}
}

// Validate returns the tenant a candidate names. The registry is read on
// every call so a deactivation takes effect on the next request.
func (v *Validator) Validate(ctx context.Context, candidate Candidate) (*models.Tenant, error) {
	id, err := candidate.ID()
	if err != nil {
		return nil, err
	}
	return v.ValidateID(ctx, id)
}

// ValidateID is Validate for an already parsed id
func (v *Validator) ValidateID(ctx context.Context, id int64) (*models.Tenant, error) {
	tenant, err := v.tenants.GetActiveByID(ctx, id)
	if err != nil {
		return nil, registryError(err, "tenant_id", id)
	}
	return tenant, nil
}

// ValidateSubdomain returns the active tenant registered under subdomain
func (v *Validator) ValidateSubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	if subdomain == "" {
		return nil, apperr.New(apperr.KindMissingTenantIdentifier, "tenant identifier is required")
	}
	tenant, err := v.tenants.GetActiveBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, registryError(err, "subdomain", subdomain)
	}
	return tenant, nil
}

func registryError(err error, key string, value any) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(apperr.KindTenantNotFound, "tenant not found", err)
	case apperr.Is(err, apperr.KindSchemaConnectionFailure):
		return err
	default:
		log.Error().Err(err).Interface(key, value).Msg("Tenant registry lookup failed")
		return apperr.Wrap(apperr.KindSchemaConnectionFailure, "failed to open data partition", err)
	}
}
