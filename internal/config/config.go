// Пакет config — загрузка и валидация конфигурации Media Broker
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые значения MB_STORAGE_BACKEND.
const (
	// BackendS3 — S3-совместимое хранилище (MinIO, AWS S3)
	BackendS3 = "s3"
	// BackendMemory — in-memory хранилище внутри процесса (только для разработки)
	BackendMemory = "memory"
)

// MaxUploadBytesLimit — верхняя граница MB_MAX_UPLOAD_BYTES: максимальный размер объекта S3 (5 TiB).
const MaxUploadBytesLimit = 5 << 40

// minPartSize — минимальный размер части multipart upload в S3.
const minPartSize = 5 << 20

// Config содержит все параметры конфигурации Media Broker.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения запроса (на загрузку файла не распространяется)
	HTTPReadTimeout time.Duration
	// Таймаут чтения заголовков запроса
	HTTPReadHeaderTimeout time.Duration
	// Таймаут записи HTTP-сервера (0 — без ограничения, загрузки идут потоком)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- Токены ---

	// Секрет HMAC для подписи выдаваемых токенов (HS256)
	JWTSecret string
	// Время жизни выдаваемого токена
	TokenTTL time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Пароль демо-входа (любое непустое имя пользователя)
	DemoPassword string
	// bcrypt-хэш пароля демо-входа, имеет приоритет над DemoPassword
	DemoPasswordHash string
	// URL JWKS внешнего IdP (опционально, включает RS256/ES256)
	JWKSUrl string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Размер кэша проверенных токенов (0 — кэш выключен)
	TokenCacheSize int
	// Время жизни записи в кэше проверенных токенов
	TokenCacheTTL time.Duration

	// --- Объектное хранилище ---

	// Тип хранилища: s3 или memory
	StorageBackend string
	// Хост S3
	S3Endpoint string
	// Порт S3
	S3Port int
	// Использовать TLS при подключении к S3
	S3UseSSL bool
	// Ключ доступа S3
	S3AccessKey string
	// Секретный ключ S3
	S3SecretKey string
	// Имя bucket
	S3Bucket string
	// Регион S3 (опционально)
	S3Region string
	// Размер части multipart upload для потоковой загрузки
	S3PartSize uint64

	// Максимальный размер загружаемого файла в байтах
	MaxUploadBytes int64

	// --- topologymetrics ---

	// Имя вершины графа текущего приложения
	ServiceID string
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Не проверять TLS-сертификаты зависимостей (self-signed в dev-среде)
	DephealthTLSSkipVerify bool
}

// S3Address возвращает адрес S3 в формате host:port.
func (c *Config) S3Address() string {
	return fmt.Sprintf("%s:%d", c.S3Endpoint, c.S3Port)
}

// S3URL возвращает базовый URL S3 (для health-проверок).
func (c *Config) S3URL() string {
	scheme := "http"
	if c.S3UseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.S3Address()
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MB_PORT — порт HTTP-сервера (по умолчанию 3000)
	cfg.Port, err = getEnvInt("MB_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("MB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// MB_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MB_LOG_LEVEL: %w", err)
	}

	// MB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("MB_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MB_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPReadHeaderTimeout, err = getEnvDuration("MB_HTTP_READ_HEADER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MB_HTTP_READ_HEADER_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("MB_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("MB_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("MB_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MB_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("MB_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MB_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Токены ---

	// MB_JWT_SECRET — обязательный
	cfg.JWTSecret, err = getEnvRequired("MB_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 8 {
		return nil, fmt.Errorf("MB_JWT_SECRET: секрет должен содержать не менее 8 символов")
	}

	// MB_TOKEN_TTL — время жизни токена (по умолчанию 24h)
	cfg.TokenTTL, err = getEnvDuration("MB_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MB_TOKEN_TTL: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("MB_TOKEN_TTL: значение должно быть положительным")
	}

	cfg.JWTLeeway, err = getEnvDuration("MB_JWT_LEEWAY", 0)
	if err != nil {
		return nil, fmt.Errorf("MB_JWT_LEEWAY: %w", err)
	}

	cfg.DemoPassword = getEnvDefault("MB_DEMO_PASSWORD", "demo123")
	cfg.DemoPasswordHash = getEnvDefault("MB_DEMO_PASSWORD_HASH", "")

	// MB_JWKS_URL — внешний IdP (опционально)
	cfg.JWKSUrl = getEnvDefault("MB_JWKS_URL", "")
	cfg.JWKSRefreshInterval, err = getEnvDuration("MB_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MB_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("MB_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MB_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.TokenCacheSize, err = getEnvInt("MB_TOKEN_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("MB_TOKEN_CACHE_SIZE: %w", err)
	}
	if cfg.TokenCacheSize < 0 {
		return nil, fmt.Errorf("MB_TOKEN_CACHE_SIZE: значение не может быть отрицательным")
	}
	cfg.TokenCacheTTL, err = getEnvDuration("MB_TOKEN_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MB_TOKEN_CACHE_TTL: %w", err)
	}

	// --- Объектное хранилище ---

	cfg.StorageBackend = getEnvDefault("MB_STORAGE_BACKEND", BackendS3)
	if cfg.StorageBackend != BackendS3 && cfg.StorageBackend != BackendMemory {
		return nil, fmt.Errorf("MB_STORAGE_BACKEND: недопустимое значение %q, допустимые: s3, memory", cfg.StorageBackend)
	}

	cfg.S3Endpoint = getEnvDefault("MB_S3_ENDPOINT", "minio")
	cfg.S3Port, err = getEnvInt("MB_S3_PORT", 9000)
	if err != nil {
		return nil, fmt.Errorf("MB_S3_PORT: %w", err)
	}
	cfg.S3UseSSL, err = getEnvBool("MB_S3_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("MB_S3_USE_SSL: %w", err)
	}
	cfg.S3AccessKey = getEnvDefault("MB_S3_ACCESS_KEY", "minioadmin")
	cfg.S3SecretKey = getEnvDefault("MB_S3_SECRET_KEY", "minioadmin")
	cfg.S3Bucket = getEnvDefault("MB_S3_BUCKET", "tasama-recordings")
	cfg.S3Region = getEnvDefault("MB_S3_REGION", "")

	partSize, err := getEnvInt64("MB_S3_PART_SIZE", 16<<20)
	if err != nil {
		return nil, fmt.Errorf("MB_S3_PART_SIZE: %w", err)
	}
	if partSize < minPartSize {
		return nil, fmt.Errorf("MB_S3_PART_SIZE: значение %d меньше минимума S3 (%d)", partSize, minPartSize)
	}
	cfg.S3PartSize = uint64(partSize)

	// MB_MAX_UPLOAD_BYTES — максимальный размер файла (по умолчанию 1 GB)
	cfg.MaxUploadBytes, err = getEnvInt64("MB_MAX_UPLOAD_BYTES", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("MB_MAX_UPLOAD_BYTES: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MB_MAX_UPLOAD_BYTES: значение должно быть положительным")
	}
	if cfg.MaxUploadBytes > MaxUploadBytesLimit {
		return nil, fmt.Errorf("MB_MAX_UPLOAD_BYTES: значение %d больше максимума %d", cfg.MaxUploadBytes, int64(MaxUploadBytesLimit))
	}

	// --- topologymetrics ---

	cfg.ServiceID = getEnvDefault("MB_SERVICE_ID", "media-broker")
	cfg.DephealthGroup = getEnvDefault("MB_DEPHEALTH_GROUP", "media")
	cfg.DephealthCheckInterval, err = getEnvDuration("MB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthTLSSkipVerify, err = getEnvBool("MB_DEPHEALTH_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("MB_DEPHEALTH_TLS_SKIP_VERIFY: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
