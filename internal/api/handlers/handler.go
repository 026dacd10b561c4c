// handler.go — APIHandler собирает доменные handlers и монтирует маршруты на chi.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/media-broker/internal/server"
)

// rootBanner — ответ GET /.
const rootBanner = "Media Upload API running"

// APIHandler — единая точка монтирования всех endpoints.
type APIHandler struct {
	auth        *AuthHandler
	authz       *AuthzHandler
	media       *MediaHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
	metrics     *server.MetricsHandler
	jwtAuth     func(http.Handler) http.Handler
}

// NewAPIHandler создаёт единый handler.
// jwtAuth защищает /media/* и /maintenance/*; /authz/media проверяет токен сам.
func NewAPIHandler(
	auth *AuthHandler,
	authz *AuthzHandler,
	media *MediaHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
	metrics *server.MetricsHandler,
	jwtAuth func(http.Handler) http.Handler,
) *APIHandler {
	return &APIHandler{
		auth:        auth,
		authz:       authz,
		media:       media,
		maintenance: maintenance,
		health:      health,
		metrics:     metrics,
		jwtAuth:     jwtAuth,
	}
}

// Mount регистрирует маршруты.
func (h *APIHandler) Mount(r chi.Router) {
	// Публичные
	r.Get("/", h.Root)
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.metrics.GetMetrics)
	r.Post("/auth/login", h.auth.Login)
	r.HandleFunc("/authz/media", h.authz.Authorize)

	// Защищённые JWT
	r.Group(func(r chi.Router) {
		r.Use(h.jwtAuth)
		r.Post("/media/upload", h.media.Upload)
		r.Get("/media/list", h.media.List)
		r.Get("/maintenance/orphans", h.maintenance.Orphans)
	})
}

// Root обрабатывает GET /.
func (h *APIHandler) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rootBanner))
}

// writeJSON записывает JSON-ответ.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
