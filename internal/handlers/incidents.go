package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/middleware"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/services"
	"github.com/rs/zerolog/log"
)

type IncidentHandler struct {
	incidentService *services.IncidentService
}

func NewIncidentHandler(incidentService *services.IncidentService) *IncidentHandler {
	return &IncidentHandler{
		incidentService: incidentService,
	}
}

var errNoTenantScope = apperr.New(apperr.KindInvalidRequest, "endpoint requires a tenant context")

// ListIncidents retrieves incidents of the caller's tenant
func (h *IncidentHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc, ok := middleware.GetScopedConn(ctx)
	if !ok {
		apperr.Write(w, errNoTenantScope)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	incidents, err := h.incidentService.List(ctx, sc.DB(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list incidents")
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, incidents)
}

// CreateIncident opens an incident in the caller's tenant
func (h *IncidentHandler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc, ok := middleware.GetScopedConn(ctx)
	if !ok {
		apperr.Write(w, errNoTenantScope)
		return
	}
	principal, _ := middleware.GetPrincipal(ctx)

	var req models.IncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}

	incident, err := h.incidentService.Create(ctx, sc.DB(), principal, &req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			log.Error().Err(err).Msg("Failed to create incident")
		}
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, incident)
}
