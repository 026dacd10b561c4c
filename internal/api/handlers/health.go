// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bigkaa/media-broker/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// pingTimeout — таймаут проверки объектного хранилища.
const pingTimeout = 3 * time.Second

// ReadinessChecker — готовность реестра.
type ReadinessChecker interface {
	IsReady() bool
}

// Pinger — доступность объектного хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyHealth — состояние зависимостей из dephealth (опционально).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует /health/live и /health/ready.
type HealthHandler struct {
	reg   ReadinessChecker
	store Pinger
	deps  DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints. deps может быть nil.
func NewHealthHandler(reg ReadinessChecker, store Pinger, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{reg: reg, store: store, deps: deps}
}

// HealthLive обрабатывает GET /health/live. Зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   config.Version,
		"service":   "media-broker",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: готовность реестра, доступность объектного хранилища.
// Состояние dephealth выводится справочно и на статус не влияет.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	registryCheck := map[string]any{"status": "ok"}
	if h.reg != nil && !h.reg.IsReady() {
		registryCheck["status"] = statusFail
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	storeCheck := map[string]any{"status": "ok"}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			storeCheck["status"] = statusFail
			storeCheck["message"] = "Объектное хранилище недоступно: " + err.Error()
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	checks := map[string]any{
		"registry":     registryCheck,
		"object_store": storeCheck,
	}
	if h.deps != nil {
		checks["dependencies"] = h.deps.Health()
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   config.Version,
		"service":   "media-broker",
		"checks":    checks,
	})
}
