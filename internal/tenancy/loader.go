package tenancy

import (
	"context"
	"errors"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/models"
	"gorm.io/gorm"
)

// UserStore looks up active users of the partition db is bound to.
type UserStore interface {
	GetActiveWithRole(ctx context.Context, db *gorm.DB, id int64) (*models.UserWithRole, error)
}

// PrincipalLoader resolves the caller inside its tenant partition.
type PrincipalLoader struct {
	users UserStore
}

// NewPrincipalLoader creates a new principal loader
func NewPrincipalLoader(users UserStore) *PrincipalLoader {
	return &PrincipalLoader{users: users}
}

// Load builds the TenantUser for subjectID using conn, which must be bound to
// tenant's schema. Permissions come from the user's role only.
func (l *PrincipalLoader) Load(ctx context.Context, conn *database.ScopedConn, tenant *models.Tenant, subjectID int64) (*models.TenantUser, error) {
	user, err := l.users.GetActiveWithRole(ctx, conn.DB(), subjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.KindUserNotFound, "user not found", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load user", err)
	}

	return &models.TenantUser{
		SubjectID:   user.ID,
		TenantID:    tenant.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		RoleName:    user.RoleName,
		Permissions: models.NewPermissionSet(user.Permissions...),
		Branding:    tenant.Branding(),
	}, nil
}
