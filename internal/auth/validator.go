// validator.go — проверка bearer-токенов.
// HS256 — токены, выданные Issuer. RS256/ES256 — токены внешнего IdP
// через JWKS (включается при заданном MB_JWKS_URL).
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Identity — идентичность, извлечённая из валидного токена.
type Identity struct {
	// Subject — claim sub
	Subject string
	// ExpiresAt — claim exp
	ExpiresAt time.Time
}

// ValidatorConfig — параметры Validator.
type ValidatorConfig struct {
	// Секрет HMAC для токенов HS256
	Secret []byte
	// Допустимое отклонение времени
	Leeway time.Duration
	// Ключи внешнего IdP (nil — только HS256)
	JWKS keyfunc.Keyfunc
	// Кэш проверенных токенов (nil — без кэша)
	Cache *TokenCache
	// Источник текущего времени (nil — time.Now)
	Now func() time.Time
}

// Validator — проверка подписи и срока действия токенов. Побочных эффектов нет.
type Validator struct {
	secret  []byte
	leeway  time.Duration
	jwks    keyfunc.Keyfunc
	cache   *TokenCache
	now     func() time.Time
	methods []string
	logger  *slog.Logger
}

// NewValidator создаёт Validator.
func NewValidator(cfg ValidatorConfig, logger *slog.Logger) *Validator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	methods := []string{jwt.SigningMethodHS256.Alg()}
	if cfg.JWKS != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg())
	}

	return &Validator{
		secret:  cfg.Secret,
		leeway:  cfg.Leeway,
		jwks:    cfg.JWKS,
		cache:   cfg.Cache,
		now:     now,
		methods: methods,
		logger:  logger.With(slog.String("component", "token_validator")),
	}
}

// Validate проверяет токен и возвращает идентичность.
// Ошибки: ErrMissingCredential, ErrInvalidCredential, ErrExpiredCredential.
func (v *Validator) Validate(ctx context.Context, rawToken string) (*Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrMissingCredential
	}

	cacheKey := ""
	if v.cache != nil {
		cacheKey = tokenDigest(rawToken)
		if id, ok := v.cache.Get(cacheKey); ok {
			if v.now().Before(id.ExpiresAt.Add(v.leeway)) {
				return &id, nil
			}
			v.cache.Remove(cacheKey)
			return nil, ErrExpiredCredential
		}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, v.keyFunc(ctx),
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		v.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredential, err.Error())
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidCredential)
	}

	id := Identity{
		Subject:   subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	if v.cache != nil {
		v.cache.Add(cacheKey, id)
	}

	return &id, nil
}

// keyFunc выбирает ключ проверки по алгоритму токена.
func (v *Validator) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return v.secret, nil
		}
		if v.jwks == nil {
			return nil, fmt.Errorf("алгоритм %s не поддерживается без JWKS", token.Method.Alg())
		}
		return v.jwks.KeyfuncCtx(ctx)(token)
	}
}

// ParseBearer извлекает токен из значения заголовка Authorization.
// Отсутствующий заголовок или пустой токен — ErrMissingCredential,
// схема, отличная от Bearer, — ErrInvalidCredential.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: ожидается Bearer <token>", ErrInvalidCredential)
	}
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMissingCredential
	}

	return strings.TrimSpace(parts[1]), nil
}

// tokenDigest — ключ кэша: SHA-256 от токена, сам токен в памяти не хранится.
func tokenDigest(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
