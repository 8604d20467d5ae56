package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/auth"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/repository"
	"github.com/otcheredev/incident-desk/internal/tenancy"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var errBadLogin = apperr.New(apperr.KindInvalidCredential, "invalid email or password")

// unknownAccountHash is compared against when no account matches so that
// unknown and known emails take the same time to reject.
var unknownAccountHash, _ = bcrypt.GenerateFromPassword([]byte("incident-desk unknown account"), bcrypt.DefaultCost)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Principal models.Principal `json:"principal"`
}

// RequestOrigin describes where an audited request came from
type RequestOrigin struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// AuthService handles credential issue and revocation
type AuthService struct {
	verifier  *auth.Verifier
	validator *tenancy.Validator
	scopes    *database.ScopeManager
	users     *repository.UserRepository
	admins    *repository.SuperAdminRepository
	auditor   tenancy.Auditor
}

// AuthOption configures an AuthService
type AuthOption func(*AuthService)

// WithImpersonation enables impersonation credentials. Every issued
// credential is written to a.
func WithImpersonation(a tenancy.Auditor) AuthOption {
	return func(s *AuthService) {
		s.auditor = a
	}
}

// NewAuthService creates a new auth service
func NewAuthService(
	verifier *auth.Verifier,
	validator *tenancy.Validator,
	scopes *database.ScopeManager,
	users *repository.UserRepository,
	admins *repository.SuperAdminRepository,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		verifier:  verifier,
		validator: validator,
		scopes:    scopes,
		users:     users,
		admins:    admins,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks a tenant user's password inside the tenant's partition and
// issues a credential bound to that tenant.
func (s *AuthService) Login(ctx context.Context, candidate tenancy.Candidate, email, password string) (*LoginResult, error) {
	tenant, err := s.validator.Validate(ctx, candidate)
	if err != nil {
		return nil, err
	}
	return s.login(ctx, tenant, email, password)
}

// LoginBySubdomain is Login for a tenant named by its subdomain
func (s *AuthService) LoginBySubdomain(ctx context.Context, subdomain, email, password string) (*LoginResult, error) {
	tenant, err := s.validator.ValidateSubdomain(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	return s.login(ctx, tenant, email, password)
}

func (s *AuthService) login(ctx context.Context, tenant *models.Tenant, email, password string) (*LoginResult, error) {
	var user *models.UserWithRole
	err := s.scopes.WithScope(ctx, tenant.SchemaName, func(sc *database.ScopedConn) error {
		var err error
		user, err = s.users.GetActiveByEmail(ctx, sc.DB(), normalizeEmail(email))
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bcrypt.CompareHashAndPassword(unknownAccountHash, []byte(password))
			return nil, errBadLogin
		}
		return nil, lookupError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Info().Int64("tenant_id", tenant.ID).Int64("user_id", user.ID).Msg("Login rejected")
		return nil, errBadLogin
	}

	token, claims, err := s.verifier.Issue(models.Claims{UserID: user.ID, TenantID: &tenant.ID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to issue credential", err)
	}

	log.Info().Int64("tenant_id", tenant.ID).Int64("user_id", user.ID).Msg("User logged in")
	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Principal: tenantUser(tenant, user),
	}, nil
}

// AdminLogin checks a super admin's password and issues a credential that
// carries no tenant.
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (*LoginResult, error) {
	admin, err := s.admins.GetActiveByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bcrypt.CompareHashAndPassword(unknownAccountHash, []byte(password))
			return nil, errBadLogin
		}
		return nil, lookupError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		log.Warn().Int64("user_id", admin.ID).Msg("Super admin login rejected")
		return nil, errBadLogin
	}

	token, claims, err := s.verifier.Issue(models.Claims{UserID: admin.ID, SuperAdmin: true})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to issue credential", err)
	}

	log.Info().Int64("user_id", admin.ID).Msg("Super admin logged in")
	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Principal: &models.SuperAdmin{SubjectID: admin.ID},
	}, nil
}

// Impersonate issues, on behalf of super admin adminID, a credential for an
// active user of the candidate tenant that may name other tenants. The issue
// is audited before the credential is returned.
func (s *AuthService) Impersonate(ctx context.Context, adminID int64, candidate tenancy.Candidate, userID int64, origin RequestOrigin) (*LoginResult, error) {
	if s.auditor == nil {
		return nil, apperr.New(apperr.KindInsufficientPermission, "impersonation is disabled")
	}
	if userID <= 0 {
		return nil, apperr.New(apperr.KindInvalidRequest, "user_id is required")
	}

	tenant, err := s.validator.Validate(ctx, candidate)
	if err != nil {
		return nil, err
	}

	var user *models.UserWithRole
	err = s.scopes.WithScope(ctx, tenant.SchemaName, func(sc *database.ScopedConn) error {
		var err error
		user, err = s.users.GetActiveWithRole(ctx, sc.DB(), userID)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.KindUserNotFound, "user not found", err)
		}
		return nil, lookupError(err)
	}

	entry := &models.AuditLog{
		TenantID:     tenant.ID,
		UserID:       adminID,
		Action:       models.AuditActionImpersonationIssued,
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(user.ID, 10),
		IPAddress:    origin.IPAddress,
		UserAgent:    origin.UserAgent,
		RequestID:    origin.RequestID,
		Status:       "success",
	}
	if err := s.auditor.Create(ctx, entry); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to record impersonation", err)
	}

	token, claims, err := s.verifier.Issue(models.Claims{UserID: user.ID, TenantID: &tenant.ID, Impersonation: true})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to issue credential", err)
	}

	log.Warn().
		Int64("admin_id", adminID).
		Int64("tenant_id", tenant.ID).
		Int64("user_id", user.ID).
		Msg("Impersonation credential issued")
	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Principal: tenantUser(tenant, user),
	}, nil
}

// Logout revokes claims until they expire
func (s *AuthService) Logout(ctx context.Context, claims *models.Claims) error {
	if err := s.verifier.Revoke(ctx, claims); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to revoke credential", err)
	}
	return nil
}

func tenantUser(tenant *models.Tenant, user *models.UserWithRole) *models.TenantUser {
	return &models.TenantUser{
		SubjectID:   user.ID,
		TenantID:    tenant.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		RoleName:    user.RoleName,
		Permissions: models.NewPermissionSet(user.Permissions...),
		Branding:    tenant.Branding(),
	}
}

func lookupError(err error) error {
	if apperr.Is(err, apperr.KindSchemaConnectionFailure) {
		return err
	}
	return apperr.Wrap(apperr.KindInternal, "failed to look up account", err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
