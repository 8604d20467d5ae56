package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/otcheredev/incident-desk/internal/cache"
	"github.com/otcheredev/incident-desk/internal/database"
)

const healthCheckTimeout = 2 * time.Second

type HealthHandler struct {
	pool  *database.ConnectionPool
	cache cache.Cache
}

func NewHealthHandler(pool *database.ConnectionPool, cache cache.Cache) *HealthHandler {
	return &HealthHandler{pool: pool, cache: cache}
}

type healthResponse struct {
	Status    string             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	Services  map[string]string  `json:"services"`
	Pool      database.PoolStats `json:"pool"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
		Pool:      h.pool.Stats(),
	}

	// Check database
	if err := h.pool.Ping(ctx); err != nil {
		response.Services["database"] = "unhealthy"
		response.Status = "degraded"
	} else {
		response.Services["database"] = "healthy"
	}

	// Check cache
	if err := h.cache.Ping(ctx); err != nil {
		response.Services["cache"] = "unhealthy"
		response.Status = "degraded"
	} else {
		response.Services["cache"] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
