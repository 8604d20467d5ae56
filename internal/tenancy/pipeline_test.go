package tenancy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/auth"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/database/dbtest"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAuditor struct {
	entries []*models.AuditLog
	err     error
}

func (a *recordingAuditor) Create(_ context.Context, entry *models.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

type recordingRecorder struct {
	outcomes []string
}

func (r *recordingRecorder) ObserveResolution(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	pipeline *Pipeline
	scopes   *database.ScopeManager
	mock     sqlmock.Sqlmock
	verifier *auth.Verifier
}

func newFixture(t *testing.T, opts ...PipelineOption) *fixture {
	t.Helper()
	scopes, mock := dbtest.NewScopeManager(t, 1, 50*time.Millisecond)
	verifier := auth.NewVerifier(auth.Config{Secret: "pipeline-secret", TTL: time.Hour})

	pipeline := NewPipeline(
		verifier,
		NewResolver(),
		NewValidator(repository.NewTenantRepository(scopes, "public")),
		scopes,
		NewPrincipalLoader(repository.NewUserRepository()),
		opts...,
	)
	return &fixture{pipeline: pipeline, scopes: scopes, mock: mock, verifier: verifier}
}

func (f *fixture) request(t *testing.T, identity models.Claims) *http.Request {
	t.Helper()
	token, _, err := f.verifier.Issue(identity)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/incidents", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func tenantID(v int64) *int64 { return &v }

func TestResolveTenantUser(t *testing.T) {
	f := newFixture(t)
	dbtest.ExpectTenant(f.mock, 7, "Acme", "tenant_acme")
	dbtest.ExpectUser(f.mock, "tenant_acme", 5, "responder", "incidents:read", "incidents:create")
	dbtest.ExpectReset(f.mock)

	rc, err := f.pipeline.Resolve(f.request(t, models.Claims{UserID: 5, TenantID: tenantID(7)}))
	require.NoError(t, err)

	user, ok := rc.Principal.(*models.TenantUser)
	require.True(t, ok)
	assert.Equal(t, int64(5), user.SubjectID)
	assert.Equal(t, int64(7), user.TenantID)
	assert.Equal(t, "responder", user.RoleName)
	assert.True(t, user.Permissions.Has("incidents:create"))
	assert.Equal(t, "Acme", user.Branding.TenantName)
	assert.Equal(t, "tenant_acme", rc.Conn.Schema())
	assert.Equal(t, 1, f.scopes.Pool().Stats().InUse)

	require.NoError(t, rc.Release())
	assert.Equal(t, 0, f.scopes.Pool().Stats().InUse)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveSuperAdminWithoutTenant(t *testing.T) {
	f := newFixture(t)

	rc, err := f.pipeline.Resolve(f.request(t, models.Claims{UserID: 1, SuperAdmin: true}))
	require.NoError(t, err)

	admin, ok := rc.Principal.(*models.SuperAdmin)
	require.True(t, ok)
	assert.Equal(t, int64(1), admin.SubjectID)
	assert.Nil(t, rc.Tenant)
	assert.Nil(t, rc.Conn)
	assert.NoError(t, rc.Release())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveSuperAdminIgnoresTenantHeader(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, models.Claims{UserID: 1, SuperAdmin: true})
	r.Header.Set(HeaderTenantID, "not-a-tenant")

	rc, err := f.pipeline.Resolve(r)
	require.NoError(t, err)
	assert.IsType(t, &models.SuperAdmin{}, rc.Principal)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveMissingCredential(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Resolve(httptest.NewRequest("GET", "/", nil))
	assert.True(t, apperr.Is(err, apperr.KindMissingCredential))
}

func TestResolveMissingTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Resolve(f.request(t, models.Claims{UserID: 5}))
	assert.True(t, apperr.Is(err, apperr.KindMissingTenantIdentifier))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveNonNumericTenant(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, models.Claims{UserID: 5})
	r.Header.Set(HeaderTenantID, "acme")

	_, err := f.pipeline.Resolve(r)
	assert.True(t, apperr.Is(err, apperr.KindTenantNotFound))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveInactiveTenant(t *testing.T) {
	f := newFixture(t)
	dbtest.ExpectNoTenant(f.mock)

	_, err := f.pipeline.Resolve(f.request(t, models.Claims{UserID: 5, TenantID: tenantID(7)}))
	assert.True(t, apperr.Is(err, apperr.KindTenantNotFound))
	assert.Equal(t, 0, f.scopes.Pool().Stats().InUse)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveInactiveUserReleasesConnection(t *testing.T) {
	f := newFixture(t)
	dbtest.ExpectTenant(f.mock, 7, "Acme", "tenant_acme")
	dbtest.ExpectNoUser(f.mock, "tenant_acme")
	dbtest.ExpectReset(f.mock)

	rc, err := f.pipeline.Resolve(f.request(t, models.Claims{UserID: 5, TenantID: tenantID(7)}))
	assert.Nil(t, rc)
	assert.True(t, apperr.Is(err, apperr.KindUserNotFound))
	assert.Equal(t, 0, f.scopes.Pool().Stats().InUse)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveTenantOverrideRejected(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, models.Claims{UserID: 5, TenantID: tenantID(3)})
	r.Header.Set(HeaderTenantID, "7")

	_, err := f.pipeline.Resolve(r)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientPermission))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveTenantOverrideNeedsImpersonationMarker(t *testing.T) {
	f := newFixture(t, WithTenantOverride(&recordingAuditor{}))
	r := f.request(t, models.Claims{UserID: 5, TenantID: tenantID(3)})
	r.Header.Set(HeaderTenantID, "7")

	_, err := f.pipeline.Resolve(r)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientPermission))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveHeaderTenantWinsWhenOverrideAllowed(t *testing.T) {
	auditor := &recordingAuditor{}
	f := newFixture(t, WithTenantOverride(auditor))

	dbtest.ExpectTenant(f.mock, 7, "Acme", "tenant_acme")
	dbtest.ExpectUser(f.mock, "tenant_acme", 5, "support", models.PermissionAll)
	dbtest.ExpectReset(f.mock)

	r := f.request(t, models.Claims{UserID: 5, TenantID: tenantID(3), Impersonation: true})
	r.Header.Set(HeaderTenantID, "7")

	rc, err := f.pipeline.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rc.Tenant.ID)
	require.NoError(t, rc.Release())

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, models.AuditActionTenantOverride, auditor.entries[0].Action)
	assert.Equal(t, int64(7), auditor.entries[0].TenantID)
	assert.Equal(t, "3", auditor.entries[0].ResourceID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveTenantOverrideAuditFailure(t *testing.T) {
	auditor := &recordingAuditor{err: errors.New("audit table locked")}
	f := newFixture(t, WithTenantOverride(auditor))
	dbtest.ExpectTenant(f.mock, 7, "Acme", "tenant_acme")

	r := f.request(t, models.Claims{UserID: 5, TenantID: tenantID(3), Impersonation: true})
	r.Header.Set(HeaderTenantID, "7")

	_, err := f.pipeline.Resolve(r)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Equal(t, 0, f.scopes.Pool().Stats().InUse)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolvePoolExhausted(t *testing.T) {
	f := newFixture(t)
	dbtest.ExpectBind(f.mock, "tenant_other")
	dbtest.ExpectReset(f.mock)

	held, err := f.scopes.Acquire(context.Background(), "tenant_other")
	require.NoError(t, err)

	_, err = f.pipeline.Resolve(f.request(t, models.Claims{UserID: 5, TenantID: tenantID(7)}))
	assert.True(t, apperr.Is(err, apperr.KindSchemaConnectionFailure))
	assert.ErrorIs(t, err, database.ErrPoolExhausted)

	require.NoError(t, held.Release())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveRecordsOutcomes(t *testing.T) {
	rec := &recordingRecorder{}
	f := newFixture(t, WithRecorder(rec))

	_, err := f.pipeline.Resolve(f.request(t, models.Claims{UserID: 1, SuperAdmin: true}))
	require.NoError(t, err)
	_, err = f.pipeline.Resolve(httptest.NewRequest("GET", "/", nil))
	require.Error(t, err)

	assert.Equal(t, []string{OutcomeSuperAdmin, string(apperr.KindMissingCredential)}, rec.outcomes)
}

func TestLoadOwnerRoleHoldsEveryPermission(t *testing.T) {
	scopes, mock := dbtest.NewScopeManager(t, 1, time.Second)
	dbtest.ExpectUser(mock, "tenant_acme", 5, "owner", models.PermissionAll)
	dbtest.ExpectReset(mock)

	sc, err := scopes.Acquire(context.Background(), "tenant_acme")
	require.NoError(t, err)
	defer sc.Release()

	tenant := &models.Tenant{ID: 7, Name: "Acme", SchemaName: "tenant_acme"}
	user, err := NewPrincipalLoader(repository.NewUserRepository()).Load(context.Background(), sc, tenant, 5)
	require.NoError(t, err)

	assert.Equal(t, "owner", user.RoleName)
	assert.Equal(t, []string{models.PermissionAll}, user.Permissions.Slice())
	assert.True(t, models.Permits(user, models.NewPermissionSet("incidents:create")))

	require.NoError(t, sc.Release())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateSubdomain(t *testing.T) {
	scopes, mock := dbtest.NewScopeManager(t, 1, time.Second)
	validator := NewValidator(repository.NewTenantRepository(scopes, "public"))

	_, err := validator.ValidateSubdomain(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.KindMissingTenantIdentifier))

	dbtest.ExpectTenant(mock, 7, "Acme", "tenant_acme")
	tenant, err := validator.ValidateSubdomain(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(7), tenant.ID)

	dbtest.ExpectNoTenant(mock)
	_, err = validator.ValidateSubdomain(context.Background(), "gone")
	assert.True(t, apperr.Is(err, apperr.KindTenantNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}
