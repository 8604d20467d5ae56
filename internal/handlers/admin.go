package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/middleware"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/services"
	"github.com/otcheredev/incident-desk/internal/tenancy"
	"github.com/rs/zerolog/log"
)

// AdminHandler serves operator endpoints. Routes must sit behind
// TenantContext and RequireSuperAdmin.
type AdminHandler struct {
	authService  *services.AuthService
	auditService *services.AuditService
	resolver     *tenancy.Resolver
}

func NewAdminHandler(authService *services.AuthService, auditService *services.AuditService, resolver *tenancy.Resolver) *AdminHandler {
	return &AdminHandler{
		authService:  authService,
		auditService: auditService,
		resolver:     resolver,
	}
}

type impersonationRequest struct {
	UserID int64 `json:"user_id"`
}

// IssueImpersonation issues an impersonation credential for a tenant user.
// The tenant comes from the header, query string or tenant_id body field.
func (h *AdminHandler) IssueImpersonation(w http.ResponseWriter, r *http.Request) {
	admin, ok := superAdmin(r)
	if !ok {
		apperr.Write(w, apperr.New(apperr.KindInsufficientPermission, "insufficient permissions"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	candidate, err := h.resolver.Resolve(r, nil)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	var req impersonationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}

	origin := services.RequestOrigin{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		RequestID: chimiddleware.GetReqID(r.Context()),
	}
	result, err := h.authService.Impersonate(r.Context(), admin.SubjectID, candidate, req.UserID, origin)
	if err != nil {
		if apperr.KindOf(err).Status() >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("Failed to issue impersonation credential")
		}
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ListAuditLogs retrieves a tenant's audit trail
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid tenant id", err))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.auditService.ListByTenant(r.Context(), tenantID, limit, offset)
	if err != nil {
		if apperr.KindOf(err).Status() >= http.StatusInternalServerError {
			log.Error().Err(err).Int64("tenant_id", tenantID).Msg("Failed to list audit logs")
		}
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}

func superAdmin(r *http.Request) (*models.SuperAdmin, bool) {
	principal, _ := middleware.GetPrincipal(r.Context())
	admin, ok := principal.(*models.SuperAdmin)
	return admin, ok
}
