// maintenance.go — обработчик служебных endpoints.
package handlers

import (
	"errors"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/media-broker/internal/api/errors"
	"github.com/bigkaa/media-broker/internal/service"
)

// MaintenanceHandler — обработчик /maintenance/*.
type MaintenanceHandler struct {
	reconcile *service.ReconcileService
}

// NewMaintenanceHandler создаёт обработчик.
func NewMaintenanceHandler(reconcile *service.ReconcileService) *MaintenanceHandler {
	return &MaintenanceHandler{reconcile: reconcile}
}

type orphansResponse struct {
	Orphans     []service.Orphan `json:"orphans"`
	Count       int              `json:"count"`
	Scanned     int              `json:"scanned"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
}

// Orphans обрабатывает GET /maintenance/orphans.
// Возвращает объекты bucket без записи в реестре. 409 — если сверка уже выполняется.
func (h *MaintenanceHandler) Orphans(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconcile.FindOrphans(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrScanInProgress) {
			apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
			return
		}
		apierrors.InternalError(w, "Ошибка сверки bucket")
		return
	}

	writeJSON(w, http.StatusOK, orphansResponse{
		Orphans:     report.Orphans,
		Count:       len(report.Orphans),
		Scanned:     report.Scanned,
		StartedAt:   report.StartedAt,
		CompletedAt: report.CompletedAt,
	})
}
