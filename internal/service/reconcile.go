// reconcile.go — сверка содержимого bucket с реестром handle.
//
// Находит осиротевшие объекты: записанные в bucket, но не зарегистрированные
// (сбой регистрации после записи или записи прошлых запусков процесса).
// Только отчёт: объекты не удаляются, фонового запуска нет.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/media-broker/internal/storage/objectstore"
	"github.com/bigkaa/media-broker/internal/storage/registry"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_reconcile_runs_total",
		Help: "Общее количество запусков сверки bucket с реестром",
	})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mb_reconcile_duration_seconds",
		Help:    "Длительность сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})

	orphanedObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mb_orphaned_objects",
		Help: "Количество объектов в bucket без записи в реестре (по последней сверке)",
	})
)

// Orphan — объект без записи в реестре.
type Orphan struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// OrphanReport — результат сверки.
type OrphanReport struct {
	Orphans     []Orphan
	Scanned     int
	StartedAt   time.Time
	CompletedAt time.Time
}

// InFlightChecker сообщает, что объект по ключу ещё загружается или ждёт регистрации.
type InFlightChecker interface {
	InFlight(storageKey string) bool
}

// ReconcileService — сверка bucket с реестром по запросу.
type ReconcileService struct {
	store    objectstore.ObjectStore
	reg      registry.Registry
	inflight InFlightChecker
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
}

// NewReconcileService создаёт сервис сверки. inflight может быть nil.
func NewReconcileService(
	store objectstore.ObjectStore,
	reg registry.Registry,
	inflight InFlightChecker,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:    store,
		reg:      reg,
		inflight: inflight,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// FindOrphans листит bucket и возвращает объекты, на которые не ссылается ни одна запись.
// Объекты загрузок, ещё не дошедших до регистрации, в отчёт не попадают.
// Если сверка уже выполняется — ErrScanInProgress.
func (rs *ReconcileService) FindOrphans(ctx context.Context) (*OrphanReport, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, ErrScanInProgress
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Сверка начата", slog.String("bucket", rs.store.Bucket()))

	objects, err := rs.store.List(ctx, "")
	if err != nil {
		rs.logger.Error("Ошибка листинга bucket", slog.String("error", err.Error()))
		return nil, fmt.Errorf("листинг bucket: %w", err)
	}

	orphans := make([]Orphan, 0)
	for _, obj := range objects {
		// Сначала in-flight: загрузка снимает отметку только после регистрации
		if rs.inflight != nil && rs.inflight.InFlight(obj.Key) {
			continue
		}
		if rs.reg.HasStorageKey(obj.Key) {
			continue
		}
		orphans = append(orphans, Orphan{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}

	completedAt := time.Now().UTC()
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(completedAt.Sub(startedAt).Seconds())
	orphanedObjects.Set(float64(len(orphans)))

	rs.logger.Info("Сверка завершена",
		slog.Int("scanned", len(objects)),
		slog.Int("orphans", len(orphans)),
		slog.String("duration", completedAt.Sub(startedAt).String()),
	)

	return &OrphanReport{
		Orphans:     orphans,
		Scanned:     len(objects),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}, nil
}
