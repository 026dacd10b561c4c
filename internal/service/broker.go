// broker.go — ответ на авторизационный подзапрос reverse proxy (nginx auth_request).
//
// Порядок проверок фиксирован, первая неудачная завершает вызов:
//
//	токен → метод → путь → handle
//
// Вызов идемпотентен и не изменяет реестр. К объектному хранилищу брокер не обращается.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/media-broker/internal/auth"
	"github.com/bigkaa/media-broker/internal/domain/model"
	"github.com/bigkaa/media-broker/internal/storage/registry"
)

var authzDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mb_authz_decisions_total",
	Help: "Общее количество решений авторизационного подзапроса по результату.",
}, []string{"result"})

// AuthzOutcome — итог авторизационного подзапроса.
type AuthzOutcome int

const (
	// Authorized — доступ разрешён, запись найдена.
	Authorized AuthzOutcome = iota
	// Unauthorized — токен не передан.
	Unauthorized
	// Forbidden — токен невалиден или просрочен, либо метод не из списка чтения.
	Forbidden
	// BadRequest — путь не соответствует /v1/audio/<handle>.
	BadRequest
	// NotFound — handle неизвестен.
	NotFound
)

// String возвращает имя итога (используется как label метрики).
func (o AuthzOutcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// StatusCode возвращает HTTP-код, который ожидает reverse proxy.
func (o AuthzOutcome) StatusCode() int {
	switch o {
	case Authorized:
		return http.StatusOK
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// AuthzResult — результат авторизации.
type AuthzResult struct {
	Outcome AuthzOutcome
	// Record — найденная запись (только при Authorized)
	Record *model.MediaRecord
	// Subject — sub токена (пусто, если токен не прошёл проверку)
	Subject string
	// Reason — причина отказа для логов
	Reason string
}

// TokenValidator — проверка bearer-токена.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*auth.Identity, error)
}

// readMethods — методы, допустимые для чтения объекта.
var readMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// BrokerService — авторизация чтения медиа-объектов по handle.
type BrokerService struct {
	validator TokenValidator
	reg       registry.Registry
	logger    *slog.Logger
}

// NewBrokerService создаёт брокер.
func NewBrokerService(validator TokenValidator, reg registry.Registry, logger *slog.Logger) *BrokerService {
	return &BrokerService{
		validator: validator,
		reg:       reg,
		logger:    logger.With(slog.String("component", "authz_broker")),
	}
}

// Authorize решает, может ли proxy выдать объект по исходному запросу.
// authorization — значение заголовка Authorization, method/originalURI — из
// X-Original-Method и X-Original-Uri.
func (b *BrokerService) Authorize(ctx context.Context, authorization, method, originalURI string) AuthzResult {
	result := b.authorize(ctx, authorization, method, originalURI)
	authzDecisionsTotal.WithLabelValues(result.Outcome.String()).Inc()

	if result.Outcome != Authorized {
		b.logger.Debug("Доступ отклонён",
			slog.String("result", result.Outcome.String()),
			slog.String("reason", result.Reason),
			slog.String("method", method),
			slog.String("uri", originalURI),
		)
	}
	return result
}

func (b *BrokerService) authorize(ctx context.Context, authorization, method, originalURI string) AuthzResult {
	// 1. Токен
	raw, err := auth.ParseBearer(authorization)
	if err == nil {
		var id *auth.Identity
		id, err = b.validator.Validate(ctx, raw)
		if err == nil {
			return b.authorizeSubject(id.Subject, method, originalURI)
		}
	}
	if errors.Is(err, auth.ErrMissingCredential) {
		return AuthzResult{Outcome: Unauthorized, Reason: err.Error()}
	}
	return AuthzResult{Outcome: Forbidden, Reason: err.Error()}
}

func (b *BrokerService) authorizeSubject(subject, method, originalURI string) AuthzResult {
	// 2. Метод. Без X-Original-Method nginx проксирует GET
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if _, ok := readMethods[method]; !ok {
		return AuthzResult{Outcome: Forbidden, Subject: subject, Reason: "метод " + method + " не разрешён"}
	}

	// 3. Путь
	handle, ok := ParseMediaHandle(originalURI)
	if !ok {
		return AuthzResult{Outcome: BadRequest, Subject: subject, Reason: "некорректный путь"}
	}

	// 4. Handle
	record, err := b.reg.Resolve(handle)
	if err != nil {
		return AuthzResult{Outcome: NotFound, Subject: subject, Reason: err.Error()}
	}

	return AuthzResult{Outcome: Authorized, Record: record, Subject: subject}
}

// ParseMediaHandle извлекает handle из исходного URI вида /v1/audio/<handle>.
// Query string и fragment отбрасываются, handle декодируется из percent-encoding.
// Пустой handle, дополнительные сегменты пути и "/" внутри handle недопустимы.
func ParseMediaHandle(originalURI string) (string, bool) {
	p := originalURI
	if i := strings.IndexAny(p, "?#"); i != -1 {
		p = p[:i]
	}

	rest, ok := strings.CutPrefix(p, model.AudioPathPrefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}

	handle, err := url.PathUnescape(rest)
	if err != nil || handle == "" || strings.Contains(handle, "/") {
		return "", false
	}
	return handle, true
}
