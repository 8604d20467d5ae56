package tenancy

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/auth"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/rs/zerolog/log"
)

// Outcome labels for resolved requests that did not fail.
const (
	OutcomeTenantUser = "tenant_user"
	OutcomeSuperAdmin = "super_admin"
)

// CredentialVerifier decodes a bearer credential into claims.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (*models.Claims, error)
}

// Auditor records security-relevant events.
type Auditor interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// Recorder receives the outcome of every resolution.
type Recorder interface {
	ObserveResolution(outcome string)
}

// RequestContext is what the pipeline hands to downstream handlers. Tenant
// and Conn are nil for a super admin.
type RequestContext struct {
	Claims    *models.Claims
	Principal models.Principal
	Tenant    *models.Tenant
	Conn      *database.ScopedConn
}

// Release returns the request's scoped connection, if any.
func (rc *RequestContext) Release() error {
	if rc == nil || rc.Conn == nil {
		return nil
	}
	return rc.Conn.Release()
}

// Pipeline runs the per-request stages that turn a credential into a
// RequestContext.
type Pipeline struct {
	verifier      CredentialVerifier
	resolver      *Resolver
	validator     *Validator
	scopes        *database.ScopeManager
	loader        *PrincipalLoader
	auditor       Auditor
	recorder      Recorder
	allowOverride bool
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithTenantOverride lets impersonation credentials name a tenant other than
// their own. Every accepted override is written to a.
func WithTenantOverride(a Auditor) PipelineOption {
	return func(p *Pipeline) {
		p.allowOverride = a != nil
		p.auditor = a
	}
}

// WithRecorder reports resolution outcomes to r
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// NewPipeline creates a new resolution pipeline
func NewPipeline(
	verifier CredentialVerifier,
	resolver *Resolver,
	validator *Validator,
	scopes *database.ScopeManager,
	loader *PrincipalLoader,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		verifier:  verifier,
		resolver:  resolver,
		validator: validator,
		scopes:    scopes,
		loader:    loader,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve authenticates r and, unless the caller is a super admin, binds a
// connection to the caller's tenant and loads the caller from it. On success
// the caller owns the returned context and must Release it. On failure
// nothing is left checked out.
func (p *Pipeline) Resolve(r *http.Request) (*RequestContext, error) {
	rc, err := p.resolve(r)
	if p.recorder != nil {
		p.recorder.ObserveResolution(outcome(rc, err))
	}
	return rc, err
}

func (p *Pipeline) resolve(r *http.Request) (*RequestContext, error) {
	ctx := r.Context()

	token, err := auth.ExtractToken(r)
	if err != nil {
		return nil, err
	}
	claims, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims.SuperAdmin {
		return &RequestContext{
			Claims:    claims,
			Principal: &models.SuperAdmin{SubjectID: claims.UserID},
		}, nil
	}

	candidate, err := p.resolver.Resolve(r, claims)
	if err != nil {
		return nil, err
	}
	tenantID, err := candidate.ID()
	if err != nil {
		return nil, err
	}

	override := claims.TenantID != nil && *claims.TenantID != tenantID
	if override && !p.overrideAllowed(claims) {
		log.Warn().
			Int64("user_id", claims.UserID).
			Int64("credential_tenant_id", *claims.TenantID).
			Int64("requested_tenant_id", tenantID).
			Str("source", string(candidate.Source)).
			Msg("Tenant override rejected")
		return nil, apperr.New(apperr.KindInsufficientPermission, "credential is not valid for the requested tenant")
	}

	tenant, err := p.validator.ValidateID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if override {
		if err := p.auditOverride(r, claims, tenant, candidate.Source); err != nil {
			return nil, err
		}
	}

	conn, err := p.scopes.Acquire(ctx, tenant.SchemaName)
	if err != nil {
		return nil, err
	}

	user, err := p.loader.Load(ctx, conn, tenant, claims.UserID)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &RequestContext{
		Claims:    claims,
		Principal: user,
		Tenant:    tenant,
		Conn:      conn,
	}, nil
}

func (p *Pipeline) overrideAllowed(claims *models.Claims) bool {
	return p.allowOverride && claims.Impersonation
}

func (p *Pipeline) auditOverride(r *http.Request, claims *models.Claims, tenant *models.Tenant, source Source) error {
	log.Warn().
		Int64("user_id", claims.UserID).
		Int64("credential_tenant_id", *claims.TenantID).
		Int64("tenant_id", tenant.ID).
		Str("source", string(source)).
		Msg("Tenant override accepted")

	entry := &models.AuditLog{
		TenantID:     tenant.ID,
		UserID:       claims.UserID,
		Action:       models.AuditActionTenantOverride,
		ResourceType: "tenant",
		ResourceID:   strconv.FormatInt(*claims.TenantID, 10),
		IPAddress:    r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		RequestID:    middleware.GetReqID(r.Context()),
		Status:       "success",
	}
	if err := p.auditor.Create(r.Context(), entry); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to record tenant override", err)
	}
	return nil
}

func outcome(rc *RequestContext, err error) string {
	if err != nil {
		return string(apperr.KindOf(err))
	}
	if _, ok := rc.Principal.(*models.SuperAdmin); ok {
		return OutcomeSuperAdmin
	}
	return OutcomeTenantUser
}
