// jwks.go — загрузка ключей внешнего IdP.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
)

// JWKSConfig — параметры загрузки JWKS.
type JWKSConfig struct {
	// URL JWKS endpoint
	URL string
	// Таймаут HTTP-клиента
	ClientTimeout time.Duration
	// Интервал фонового обновления ключей
	RefreshInterval time.Duration
}

// NewJWKSKeyfunc создаёт keyfunc с фоновым обновлением ключей.
// Первый запрос к JWKS не обязан быть успешным: брокер стартует и при недоступном IdP,
// токены RS256/ES256 в это время отклоняются как невалидные.
// Фоновое обновление останавливается при отмене ctx.
func NewJWKSKeyfunc(ctx context.Context, cfg JWKSConfig, logger *slog.Logger) (keyfunc.Keyfunc, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("не задан URL JWKS")
	}

	storage, err := jwkset.NewStorageFromHTTP(cfg.URL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: cfg.ClientTimeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.URL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	logger.Info("JWKS подключён", slog.String("url", cfg.URL))
	return k, nil
}
