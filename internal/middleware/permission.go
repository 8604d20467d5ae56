package middleware

import (
	"net/http"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/rs/zerolog/log"
)

// RequirePermission admits callers holding any one of perms. It must run
// after TenantContext.
func RequirePermission(perms ...string) func(http.Handler) http.Handler {
	required := models.NewPermissionSet(perms...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				log.Error().Str("path", r.URL.Path).Msg("Permission gate reached without request context")
				apperr.Write(w, apperr.New(apperr.KindInternal, "internal server error"))
				return
			}

			if !models.Permits(principal, required) {
				log.Warn().
					Int64("user_id", principal.Subject()).
					Strs("required", required.Slice()).
					Str("path", r.URL.Path).
					Msg("Permission denied")
				apperr.Write(w, apperr.New(apperr.KindInsufficientPermission, "insufficient permissions"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin admits only super admins
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := GetPrincipal(r.Context())
		if _, ok := principal.(*models.SuperAdmin); !ok {
			apperr.Write(w, apperr.New(apperr.KindInsufficientPermission, "insufficient permissions"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
