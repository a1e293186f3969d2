package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Schema      string `json:"schema"`
}

// HealthResponse reports liveness and, when configured, datasource reachability.
type HealthResponse struct {
	Status     string `json:"status"`
	Datasource string `json:"datasource"`
}

// Datasource states reported by /health.
const (
	DatasourceOK            = "ok"
	DatasourceUnreachable   = "unreachable"
	DatasourceNotConfigured = "not_configured"
)

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg      *config.Config
	executor datasource.QueryExecutor
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. executor may be nil.
func NewHealthHandler(cfg *config.Config, executor datasource.QueryExecutor, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, executor: executor, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests. The service stays healthy when the datasource is
// down; only execution depends on it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Datasource: DatasourceNotConfigured}

	if h.executor != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		response.Datasource = DatasourceOK
		if err := h.executor.TestConnection(ctx); err != nil {
			h.logger.Warn("Datasource health check failed", zap.Error(err))
			response.Datasource = DatasourceUnreachable
		}
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "nlq2sql",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Schema:      h.cfg.Schema,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
