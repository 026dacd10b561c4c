// media.go — загрузка и листинг медиа-файлов.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/bigkaa/media-broker/internal/api/errors"
	"github.com/bigkaa/media-broker/internal/api/middleware"
	"github.com/bigkaa/media-broker/internal/domain/model"
	"github.com/bigkaa/media-broker/internal/service"
)

// multipartOverhead — запас на заголовки и границы multipart сверх лимита файла.
const multipartOverhead = 1 << 20

// bodyLimit — лимит тела запроса: лимит файла плюс multipartOverhead, без переполнения.
func bodyLimit(maxFile int64) int64 {
	if maxFile > math.MaxInt64-multipartOverhead {
		return math.MaxInt64
	}
	return maxFile + multipartOverhead
}

// fileField — имя поля multipart с файлом.
const fileField = "file"

// MediaHandler — обработчик /media/*.
type MediaHandler struct {
	upload  *service.UploadService
	listing *service.ListingService
	bucket  string
}

// NewMediaHandler создаёт обработчик /media/*.
func NewMediaHandler(upload *service.UploadService, listing *service.ListingService, bucket string) *MediaHandler {
	return &MediaHandler{
		upload:  upload,
		listing: listing,
		bucket:  bucket,
	}
}

// mediaResponse — представление MediaRecord в API.
type mediaResponse struct {
	Handle       string    `json:"handle"`
	StorageKey   string    `json:"storageKey"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	UploadedAt   time.Time `json:"uploadedAt"`
	UploadedBy   string    `json:"uploadedBy"`
	DownloadPath string    `json:"downloadPath"`
	Bucket       string    `json:"bucket"`
}

func (h *MediaHandler) toResponse(rec *model.MediaRecord) mediaResponse {
	return mediaResponse{
		Handle:       rec.Handle,
		StorageKey:   rec.StorageKey,
		OriginalName: rec.OriginalName,
		Size:         rec.SizeBytes,
		ContentType:  rec.ContentType,
		UploadedAt:   rec.CreatedAt,
		UploadedBy:   rec.Owner,
		DownloadPath: rec.DownloadPath(),
		Bucket:       h.bucket,
	}
}

// Upload обрабатывает POST /media/upload.
// Multipart form: file (обязательно). Файл передаётся в хранилище потоком, без буферизации.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	// Тело идёт потоком дольше MB_HTTP_READ_TIMEOUT, размер ограничивает лимит файла
	_ = http.NewResponseController(w).SetReadDeadline(time.Time{})

	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit(h.upload.MaxBytes()))

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "Поле 'file' обязательно")
			return
		}
		if err != nil {
			writeUploadError(w, err)
			return
		}
		if part.FormName() != fileField || part.FileName() == "" {
			continue
		}

		record, err := h.upload.Upload(r.Context(), service.UploadParams{
			Reader:           part,
			OriginalFilename: part.FileName(),
			ContentType:      part.Header.Get("Content-Type"),
			Size:             -1,
			UploadedBy:       subject,
		})
		_ = part.Close()
		if err != nil {
			writeUploadError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, h.toResponse(record))
		return
	}
}

// writeUploadError отображает ошибку загрузки в HTTP-ответ.
func writeUploadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrPayloadTooLarge), errors.As(err, &maxBytesErr):
		apierrors.FileTooLarge(w, "Размер файла превышает допустимый")
	case errors.Is(err, service.ErrNoFile):
		apierrors.ValidationError(w, "Поле 'file' обязательно")
	case errors.Is(err, service.ErrStorageWriteFailed):
		apierrors.StorageWriteFailed(w, "Ошибка записи в объектное хранилище")
	default:
		apierrors.InternalError(w, "Ошибка загрузки файла")
	}
}

type listResponse struct {
	Files []mediaResponse `json:"files"`
	Count int             `json:"count"`
	Total int             `json:"total"`
}

// List обрабатывает GET /media/list.
// Пагинация (опционально): limit (1..1000), offset (>= 0).
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	var params service.ListParams

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 1000 {
			apierrors.ValidationError(w, "Параметр limit должен быть от 1 до 1000")
			return
		}
		params.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный offset: %q", v))
			return
		}
		params.Offset = offset
	}

	result := h.listing.ListFor(middleware.SubjectFromContext(r.Context()), params)

	files := make([]mediaResponse, 0, len(result.Records))
	for _, rec := range result.Records {
		files = append(files, h.toResponse(rec))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Files: files,
		Count: len(files),
		Total: result.Total,
	})
}
