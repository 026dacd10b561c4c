// issuer.go — выдача access-токенов по фиксированному правилу входа.
package auth

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims — claims выдаваемого токена.
// sub — идентичность пользователя, username дублирует его для совместимости клиентов.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Token — выданный токен и его срок действия.
type Token struct {
	// Value — подписанная строка JWT
	Value string
	// IssuedAt — время выдачи
	IssuedAt time.Time
	// ExpiresAt — время истечения (IssuedAt + TTL)
	ExpiresAt time.Time
	// TTL — время жизни токена
	TTL time.Duration
}

// IssuerConfig — параметры Issuer.
type IssuerConfig struct {
	// Секрет HMAC (тот же, что у Validator)
	Secret []byte
	// Время жизни токена
	TTL time.Duration
	// Пароль демо-входа в открытом виде (игнорируется, если задан PasswordHash)
	Password string
	// bcrypt-хэш пароля демо-входа
	PasswordHash string
	// Стоимость bcrypt при хэшировании Password (0 — bcrypt.DefaultCost)
	BcryptCost int
	// Источник текущего времени (nil — time.Now)
	Now func() time.Time
}

// Issuer — выдаёт подписанные токены после проверки учётных данных.
// Фиксированное правило: любой непустой username и пароль, совпадающий с настроенным.
type Issuer struct {
	secret       []byte
	ttl          time.Duration
	passwordHash []byte
	now          func() time.Time
	logger       *slog.Logger
}

// NewIssuer создаёт Issuer. Пароль в открытом виде хэшируется bcrypt один раз при старте.
func NewIssuer(cfg IssuerConfig, logger *slog.Logger) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("не задан секрет подписи токенов")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("время жизни токена должно быть положительным")
	}

	var hash []byte
	switch {
	case cfg.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("некорректный bcrypt-хэш пароля: %w", err)
		}
		hash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		cost := cfg.BcryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(cfg.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("хэширование пароля: %w", err)
		}
	default:
		return nil, fmt.Errorf("не задан пароль демо-входа")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		secret:       cfg.Secret,
		ttl:          cfg.TTL,
		passwordHash: hash,
		now:          now,
		logger:       logger.With(slog.String("component", "issuer")),
	}, nil
}

// TTL возвращает время жизни выдаваемых токенов.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue проверяет учётные данные и выдаёт токен с sub = username.
// Пустой username или password — ErrCredentialsRequired, несовпадение — ErrInvalidCredentials.
func (i *Issuer) Issue(username, password string) (*Token, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	if err := bcrypt.CompareHashAndPassword(i.passwordHash, []byte(password)); err != nil {
		i.logger.Debug("Неверный пароль", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("подпись токена: %w", err)
	}

	i.logger.Info("Токен выдан",
		slog.String("username", username),
		slog.Time("expires_at", expiresAt),
	)

	return &Token{
		Value:     signed,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		TTL:       i.ttl,
	}, nil
}

// FormatTTL возвращает TTL в компактном виде: 24h, 90m, 45s.
func FormatTTL(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return d.String()
	}
}
