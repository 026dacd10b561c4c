// auth.go — JWT middleware для защищённых endpoints (/media/*, /maintenance/*).
// Любой отказ в аутентификации — 401. Разделение 401/403 для подзапроса proxy
// выполняет брокер (/authz/media), этот middleware там не используется.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/media-broker/internal/api/errors"
	"github.com/bigkaa/media-broker/internal/auth"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeySubject — ключ для sub из JWT в контексте запроса.
const ContextKeySubject contextKey = "jwt_subject"

// TokenValidator — проверка bearer-токена.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*auth.Identity, error)
}

// JWTAuth — middleware аутентификации по bearer-токену.
type JWTAuth struct {
	validator TokenValidator
	logger    *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
func NewJWTAuth(validator TokenValidator, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		validator: validator,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware: проверяет токен и помещает sub в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := auth.ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				apierrors.Unauthorized(w, credentialMessage(err))
				return
			}

			id, err := j.validator.Validate(r.Context(), raw)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, credentialMessage(err))
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, id.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credentialMessage — текст ответа по виду ошибки токена.
func credentialMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return "Отсутствует bearer-токен"
	case errors.Is(err, auth.ErrExpiredCredential):
		return "Срок действия токена истёк"
	default:
		return "Невалидный токен"
	}
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если sub не найден.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}
