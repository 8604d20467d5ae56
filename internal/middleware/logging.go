package middleware

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const logFieldsKey contextKey = "log_fields"

type logFields struct {
	tenantID int64
}

// setLogTenant lets inner middleware tag the access log line with a tenant.
func setLogTenant(ctx context.Context, id int64) {
	if f, ok := ctx.Value(logFieldsKey).(*logFields); ok {
		f.tenantID = id
	}
}

// Logging writes one access log line per request
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		fields := &logFields{}

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logFieldsKey, fields)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event = event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context()))
		if fields.tenantID != 0 {
			event = event.Int64("tenant_id", fields.tenantID)
		}
		event.Msg("Request completed")
	})
}
