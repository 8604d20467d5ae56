package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/middleware"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/otcheredev/incident-desk/internal/services"
	"github.com/otcheredev/incident-desk/internal/tenancy"
)

type AuthHandler struct {
	authService *services.AuthService
	resolver    *tenancy.Resolver
}

func NewAuthHandler(authService *services.AuthService, resolver *tenancy.Resolver) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		resolver:    resolver,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeLogin(r *http.Request) (*loginRequest, error) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "email and password are required")
	}
	return &req, nil
}

// Login issues a credential for a tenant user. The tenant comes from the
// header, query string or tenant_id body field, and failing those from the
// subdomain of the request host.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	candidate, err := h.resolver.Resolve(r, nil)
	subdomain := ""
	if apperr.Is(err, apperr.KindMissingTenantIdentifier) {
		subdomain = hostSubdomain(r.Host)
	}
	if err != nil && subdomain == "" {
		apperr.Write(w, err)
		return
	}

	req, err := decodeLogin(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	var result *services.LoginResult
	if subdomain != "" {
		result, err = h.authService.LoginBySubdomain(r.Context(), subdomain, req.Email, req.Password)
	} else {
		result, err = h.authService.Login(r.Context(), candidate, req.Email, req.Password)
	}
	if err != nil {
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// hostSubdomain returns the first label of a host name with at least three
// labels, lower-cased. IP addresses have none.
func hostSubdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 || labels[0] == "" {
		return ""
	}
	return strings.ToLower(labels[0])
}

// AdminLogin issues a super admin credential
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	result, err := h.authService.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type meResponse struct {
	SuperAdmin bool             `json:"super_admin"`
	Principal  models.Principal `json:"principal"`
}

// Me returns the resolved caller
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		apperr.Write(w, apperr.New(apperr.KindInternal, "internal server error"))
		return
	}

	_, superAdmin := principal.(*models.SuperAdmin)
	writeJSON(w, http.StatusOK, meResponse{SuperAdmin: superAdmin, Principal: principal})
}

// Logout revokes the presented credential
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.GetRequestContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.New(apperr.KindInternal, "internal server error"))
		return
	}

	if err := h.authService.Logout(r.Context(), rc.Claims); err != nil {
		apperr.Write(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
