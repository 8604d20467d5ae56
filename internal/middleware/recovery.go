package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/rs/zerolog/log"
)

// Recovery middleware recovers from panics
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error().
					Interface("error", err).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")

				apperr.Write(w, apperr.New(apperr.KindInternal, "internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
