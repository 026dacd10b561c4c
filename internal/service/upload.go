// upload.go — сервис загрузки: запись в объектное хранилище и регистрация handle.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/media-broker/internal/domain/model"
	"github.com/bigkaa/media-broker/internal/storage/objectstore"
	"github.com/bigkaa/media-broker/internal/storage/registry"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mb_uploads_total",
		Help: "Общее количество загрузок по результату.",
	}, []string{"result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_upload_bytes_total",
		Help: "Общий объём успешно загруженных данных в байтах.",
	})

	registryRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mb_registry_records",
		Help: "Количество записей в реестре handle.",
	})
)

const (
	// maxIDAttempts — число попыток получить незанятый handle или storage key
	maxIDAttempts = 3
	// maxExtLen — максимальная длина расширения в storage key (без точки)
	maxExtLen = 16
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — имя файла от клиента
	OriginalFilename string
	// ContentType — MIME-тип из заголовка multipart part
	ContentType string
	// Size — объявленный размер, -1 если неизвестен
	Size int64
	// UploadedBy — sub из токена
	UploadedBy string
}

// UploadConfig — параметры UploadService.
type UploadConfig struct {
	// Максимальный размер файла в байтах
	MaxBytes int64
	// Генератор storage key (nil — UUIDGenerator)
	KeyIDs IDGenerator
	// Генератор handle (nil — UUIDGenerator)
	HandleIDs IDGenerator
	// Источник текущего времени (nil — time.Now)
	Now func() time.Time
}

// UploadService — единственный писатель реестра.
type UploadService struct {
	store     objectstore.ObjectStore
	reg       registry.Registry
	maxBytes  int64
	keyIDs    IDGenerator
	handleIDs IDGenerator
	now       func() time.Time
	logger    *slog.Logger

	// Ключи, объект которых пишется или уже записан, но ещё не зарегистрирован
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	store objectstore.ObjectStore,
	reg registry.Registry,
	cfg UploadConfig,
	logger *slog.Logger,
) *UploadService {
	s := &UploadService{
		store:     store,
		reg:       reg,
		maxBytes:  cfg.MaxBytes,
		keyIDs:    cfg.KeyIDs,
		handleIDs: cfg.HandleIDs,
		now:       cfg.Now,
		logger:    logger.With(slog.String("component", "upload_service")),
		inflight:  make(map[string]struct{}),
	}
	if s.keyIDs == nil {
		s.keyIDs = UUIDGenerator{}
	}
	if s.handleIDs == nil {
		s.handleIDs = UUIDGenerator{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// MaxBytes возвращает лимит размера файла.
func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// InFlight возвращает true, если загрузка по ключу ещё не завершилась регистрацией.
func (s *UploadService) InFlight(storageKey string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	_, ok := s.inflight[storageKey]
	return ok
}

func (s *UploadService) markInFlight(storageKey string) {
	s.inflightMu.Lock()
	s.inflight[storageKey] = struct{}{}
	s.inflightMu.Unlock()
}

func (s *UploadService) clearInFlight(storageKey string) {
	s.inflightMu.Lock()
	delete(s.inflight, storageKey)
	s.inflightMu.Unlock()
}

// Upload записывает файл в объектное хранилище и регистрирует handle.
//
// Поток:
//  1. Проверка объявленного размера
//  2. Выбор незанятого handle и storage key
//  3. Потоковая запись с инкрементальной проверкой лимита
//  4. Регистрация записи (только после подтверждённой записи)
//
// Реестр не блокируется на время записи в хранилище.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*model.MediaRecord, error) {
	if params.Reader == nil {
		return nil, ErrNoFile
	}
	if params.Size > s.maxBytes {
		uploadsTotal.WithLabelValues("too_large").Inc()
		return nil, fmt.Errorf("%w: %d байт при лимите %d", ErrPayloadTooLarge, params.Size, s.maxBytes)
	}

	originalName := sanitizeFilename(params.OriginalFilename)
	contentType := detectContentType(params.ContentType)
	createdAt := s.now().UTC()

	handle, err := s.drawHandle()
	if err != nil {
		uploadsTotal.WithLabelValues("register_error").Inc()
		return nil, err
	}
	storageKey, err := s.drawStorageKey(createdAt, originalName)
	if err != nil {
		uploadsTotal.WithLabelValues("register_error").Inc()
		return nil, err
	}

	// Снимается только после Register: сверка не должна принять объект за осиротевший
	s.markInFlight(storageKey)
	defer s.clearInFlight(storageKey)

	body := &limitedReader{r: params.Reader, remaining: s.maxBytes}
	_, err = s.store.Put(ctx, storageKey, body, params.Size, contentType)
	if err != nil {
		switch {
		case body.exceeded || errors.Is(err, ErrPayloadTooLarge):
			uploadsTotal.WithLabelValues("too_large").Inc()
			return nil, fmt.Errorf("%w: лимит %d байт", ErrPayloadTooLarge, s.maxBytes)
		case ctx.Err() != nil:
			uploadsTotal.WithLabelValues("canceled").Inc()
			s.logger.Warn("Загрузка прервана клиентом",
				slog.String("storage_key", storageKey),
				slog.String("uploaded_by", params.UploadedBy),
			)
			return nil, fmt.Errorf("загрузка прервана: %w", ctx.Err())
		default:
			uploadsTotal.WithLabelValues("storage_error").Inc()
			s.logger.Error("Ошибка записи объекта",
				slog.String("storage_key", storageKey),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: %s", ErrStorageWriteFailed, err.Error())
		}
	}

	record := &model.MediaRecord{
		Handle:       handle,
		StorageKey:   storageKey,
		OriginalName: originalName,
		SizeBytes:    body.read,
		ContentType:  contentType,
		Owner:        params.UploadedBy,
		CreatedAt:    createdAt,
	}

	if err := s.reg.Register(record); err != nil {
		uploadsTotal.WithLabelValues("register_error").Inc()
		// Объект записан, но не зарегистрирован: он осиротел
		s.logger.Error("Нарушение уникальности: объект записан, но не зарегистрирован",
			slog.String("handle", handle),
			slog.String("storage_key", storageKey),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("регистрация записи: %w", err)
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(body.read))
	registryRecords.Set(float64(s.reg.Count()))

	s.logger.Info("Файл загружен",
		slog.String("handle", handle),
		slog.String("storage_key", storageKey),
		slog.String("filename", originalName),
		slog.Int64("size", body.read),
		slog.String("uploaded_by", params.UploadedBy),
	)

	return record, nil
}

// drawHandle выбирает handle, ещё не известный реестру.
// Сокращает окно, в котором запись объекта может завершиться дубликатом при регистрации.
func (s *UploadService) drawHandle() (string, error) {
	for range maxIDAttempts {
		handle := s.handleIDs.NewID()
		if _, err := s.reg.Resolve(handle); errors.Is(err, registry.ErrNotFound) {
			return handle, nil
		}
		s.logger.Warn("Сгенерированный handle уже занят, повторная генерация")
	}
	return "", fmt.Errorf("%w: не удалось получить свободный handle", registry.ErrDuplicateHandle)
}

// drawStorageKey формирует ключ {YYYY}/{MM}/{uuid}{ext}, не занятый в реестре.
func (s *UploadService) drawStorageKey(at time.Time, filename string) (string, error) {
	ext := sanitizeExt(filename)
	for range maxIDAttempts {
		key := fmt.Sprintf("%04d/%02d/%s%s", at.Year(), int(at.Month()), s.keyIDs.NewID(), ext)
		if !s.reg.HasStorageKey(key) {
			return key, nil
		}
		s.logger.Warn("Сгенерированный storage key уже занят, повторная генерация")
	}
	return "", fmt.Errorf("%w: не удалось получить свободный storage key", registry.ErrDuplicateStorageKey)
}

// limitedReader пропускает не более remaining байт.
// При превышении возвращает ErrPayloadTooLarge и выставляет exceeded.
type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, ErrPayloadTooLarge
	}
	// Читаем на байт больше лимита, чтобы отличить "ровно лимит" от превышения
	if int64(len(p))-1 > l.remaining {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	if int64(n) > l.remaining {
		n = int(l.remaining)
		l.read += int64(n)
		l.remaining = 0
		l.exceeded = true
		return n, ErrPayloadTooLarge
	}
	l.read += int64(n)
	l.remaining -= int64(n)
	return n, err
}

// sanitizeFilename оставляет только базовое имя файла.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// sanitizeExt возвращает расширение в нижнем регистре ([a-z0-9], до 16 символов)
// или пустую строку, если расширение не подходит.
func sanitizeExt(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > maxExtLen+1 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// detectContentType определяет Content-Type из заголовка multipart part.
// Если не указан — используется application/octet-stream.
func detectContentType(contentType string) string {
	// Убираем параметры (charset и т.д.)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
