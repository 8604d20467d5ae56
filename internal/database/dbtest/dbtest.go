// Package dbtest wires a ScopeManager over go-sqlmock for tests.
package dbtest

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
)

// NewScopeManager returns a scope manager whose pool holds at most size
// connections, backed by a fresh sqlmock database.
func NewScopeManager(t *testing.T, size int, acquireTimeout time.Duration, opts ...database.ScopeOption) (*database.ScopeManager, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := database.Open(postgres.New(postgres.Config{Conn: sqlDB}), "silent")
	require.NoError(t, err)

	pool := database.NewConnectionPool(sqlDB, database.PoolConfig{
		MaxPoolSize:    size,
		AcquireTimeout: acquireTimeout,
	})

	return database.NewScopeManager(gormDB, pool, opts...), mock
}

// ExpectBind expects the directives issued when a connection is bound to schema.
func ExpectBind(mock sqlmock.Sqlmock, schema string) {
	mock.ExpectExec(regexp.QuoteMeta(`SET search_path TO "` + schema + `"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_schema()")).
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow(schema))
}

// ExpectReset expects the directive issued when a connection is released.
func ExpectReset(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("RESET search_path")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// ExpectTenant expects an active-tenant registry lookup in the public
// partition that finds tenant id bound to schema.
func ExpectTenant(mock sqlmock.Sqlmock, id int64, name, schema string) {
	ExpectBind(mock, "public")
	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "subdomain", "schema_name", "is_active", "primary_color"}).
			AddRow(id, name, strings.ToLower(name), schema, true, "#0b5fff"))
	ExpectReset(mock)
}

// ExpectNoTenant expects a registry lookup that finds nothing.
func ExpectNoTenant(mock sqlmock.Sqlmock) {
	ExpectBind(mock, "public")
	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	ExpectReset(mock)
}

// ExpectUser binds schema and expects the active-user lookup to find id with
// the given role and permissions. The connection stays bound.
func ExpectUser(mock sqlmock.Sqlmock, schema string, id int64, role string, perms ...string) {
	ExpectBind(mock, schema)
	mock.ExpectQuery(`FROM "users" JOIN roles`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash", "role_name", "permissions"}).
			AddRow(id, "user@example.test", "Test User", "", role, "{"+strings.Join(perms, ",")+"}"))
}

// ExpectNoUser binds schema and expects the active-user lookup to find
// nothing. The connection stays bound.
func ExpectNoUser(mock sqlmock.Sqlmock, schema string) {
	ExpectBind(mock, schema)
	mock.ExpectQuery(`FROM "users" JOIN roles`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}
