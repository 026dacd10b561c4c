// authz.go — GET /authz/media: авторизационный подзапрос reverse proxy.
//
// Контракт с nginx (auth_request):
//   - вход: Authorization, X-Original-Method, X-Original-Uri
//   - 200 + X-Media-* заголовки — proxy переписывает запрос к хранилищу
//   - любой другой статус — отказ
package handlers

import (
	"context"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/media-broker/internal/api/errors"
	"github.com/bigkaa/media-broker/internal/service"
)

// Заголовки подзапроса.
const (
	HeaderOriginalMethod = "X-Original-Method"
	HeaderOriginalURI    = "X-Original-Uri"

	HeaderMediaKey         = "X-Media-Key"
	HeaderMediaFilename    = "X-Media-Filename"
	HeaderMediaBucket      = "X-Media-Bucket"
	HeaderMediaContentType = "X-Media-Content-Type"
	HeaderMediaSize        = "X-Media-Size"
)

// Authorizer — решение по подзапросу.
type Authorizer interface {
	Authorize(ctx context.Context, authorization, method, originalURI string) service.AuthzResult
}

// AuthzHandler — обработчик подзапроса.
type AuthzHandler struct {
	broker Authorizer
	bucket string
}

// NewAuthzHandler создаёт обработчик подзапроса.
func NewAuthzHandler(broker Authorizer, bucket string) *AuthzHandler {
	return &AuthzHandler{broker: broker, bucket: bucket}
}

// Authorize обрабатывает /authz/media (любой метод: nginx передаёт метод исходного запроса).
func (h *AuthzHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	result := h.broker.Authorize(r.Context(),
		r.Header.Get("Authorization"),
		r.Header.Get(HeaderOriginalMethod),
		r.Header.Get(HeaderOriginalURI),
	)

	w.Header().Set("Cache-Control", "no-store")

	switch result.Outcome {
	case service.Authorized:
		rec := result.Record
		w.Header().Set(HeaderMediaKey, rec.StorageKey)
		w.Header().Set(HeaderMediaFilename, rec.OriginalName)
		w.Header().Set(HeaderMediaBucket, h.bucket)
		w.Header().Set(HeaderMediaContentType, rec.ContentType)
		w.Header().Set(HeaderMediaSize, strconv.FormatInt(rec.SizeBytes, 10))
		w.WriteHeader(http.StatusOK)
	case service.Unauthorized:
		apierrors.Unauthorized(w, "Требуется bearer-токен")
	case service.Forbidden:
		apierrors.Forbidden(w, "Доступ запрещён")
	case service.BadRequest:
		apierrors.ValidationError(w, "Ожидается путь /v1/audio/<handle>")
	case service.NotFound:
		apierrors.NotFound(w, "Объект не найден")
	default:
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
