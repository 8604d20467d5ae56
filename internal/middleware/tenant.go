package middleware

import (
	"context"
	"net/http"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/database"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/tenancy"
	"github.com/rs/zerolog/log"
)

type contextKey string

const requestContextKey contextKey = "tenancy"

// Resolver produces the request context for an inbound request.
type Resolver interface {
	Resolve(r *http.Request) (*tenancy.RequestContext, error)
}

// TenantContext resolves the caller and tenant, attaches them to the request
// context and releases the scoped connection once the handler returns.
func TenantContext(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, err := resolver.Resolve(r)
			if err != nil {
				logFailure(r, err)
				apperr.Write(w, err)
				return
			}
			defer func() {
				if err := rc.Release(); err != nil {
					log.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to release scoped connection")
				}
			}()

			if rc.Tenant != nil {
				setLogTenant(r.Context(), rc.Tenant.ID)
			}

			ctx := context.WithValue(r.Context(), requestContextKey, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logFailure(r *http.Request, err error) {
	event := log.Warn()
	if apperr.KindOf(err).Status() >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("kind", string(apperr.KindOf(err))).
		Msg("Request context resolution failed")
}

// GetRequestContext returns the context attached by TenantContext
func GetRequestContext(ctx context.Context) (*tenancy.RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(*tenancy.RequestContext)
	return rc, ok
}

// GetPrincipal returns the resolved caller
func GetPrincipal(ctx context.Context) (models.Principal, bool) {
	rc, ok := GetRequestContext(ctx)
	if !ok {
		return nil, false
	}
	return rc.Principal, true
}

// GetTenant returns the resolved tenant; false for super admins
func GetTenant(ctx context.Context) (*models.Tenant, bool) {
	rc, ok := GetRequestContext(ctx)
	if !ok || rc.Tenant == nil {
		return nil, false
	}
	return rc.Tenant, true
}

// GetScopedConn returns the connection bound to the tenant's schema
func GetScopedConn(ctx context.Context) (*database.ScopedConn, bool) {
	rc, ok := GetRequestContext(ctx)
	if !ok || rc.Conn == nil {
		return nil, false
	}
	return rc.Conn, true
}
