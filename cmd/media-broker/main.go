// Точка входа Media Broker — выдача токенов, загрузка медиа в S3
// и авторизационные подзапросы reverse proxy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/media-broker/internal/api/handlers"
	"github.com/bigkaa/media-broker/internal/api/middleware"
	"github.com/bigkaa/media-broker/internal/auth"
	"github.com/bigkaa/media-broker/internal/config"
	"github.com/bigkaa/media-broker/internal/server"
	"github.com/bigkaa/media-broker/internal/service"
	"github.com/bigkaa/media-broker/internal/storage/objectstore"
	"github.com/bigkaa/media-broker/internal/storage/registry"
)

// bucketInitTimeout — таймаут проверки и создания bucket при старте.
const bucketInitTimeout = 30 * time.Second

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Media Broker запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.String("bucket", cfg.S3Bucket),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Media Broker остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Объектное хранилище
	store, err := newObjectStore(cfg, logger)
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, bucketInitTimeout)
	err = store.EnsureBucket(initCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("инициализация bucket %s: %w", store.Bucket(), err)
	}

	// 2. Реестр handle
	reg := registry.New(logger)

	// 3. Токены
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:       []byte(cfg.JWTSecret),
		TTL:          cfg.TokenTTL,
		Password:     cfg.DemoPassword,
		PasswordHash: cfg.DemoPasswordHash,
	}, logger)
	if err != nil {
		return fmt.Errorf("инициализация issuer: %w", err)
	}

	var jwks keyfunc.Keyfunc
	if cfg.JWKSUrl != "" {
		jwks, err = auth.NewJWKSKeyfunc(ctx, auth.JWKSConfig{
			URL:             cfg.JWKSUrl,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
		}, logger)
		if err != nil {
			return fmt.Errorf("инициализация JWKS: %w", err)
		}
	}

	validator := auth.NewValidator(auth.ValidatorConfig{
		Secret: []byte(cfg.JWTSecret),
		Leeway: cfg.JWTLeeway,
		JWKS:   jwks,
		Cache:  auth.NewTokenCache(cfg.TokenCacheSize, cfg.TokenCacheTTL),
	}, logger)

	// 4. Сервисы
	uploadSvc := service.NewUploadService(store, reg, service.UploadConfig{MaxBytes: cfg.MaxUploadBytes}, logger)
	brokerSvc := service.NewBrokerService(validator, reg, logger)
	listingSvc := service.NewListingService(reg)
	reconcileSvc := service.NewReconcileService(store, reg, uploadSvc, logger)

	// 5. topologymetrics — мониторинг зависимостей (только для S3)
	var deps handlers.DependencyHealth
	var dephealthSvc *service.DephealthService
	if cfg.StorageBackend == config.BackendS3 {
		dephealthSvc, err = service.NewDephealthService(service.DephealthConfig{
			ServiceID:     cfg.ServiceID,
			Group:         cfg.DephealthGroup,
			S3URL:         cfg.S3URL(),
			JWKSURL:       cfg.JWKSUrl,
			CheckInterval: cfg.DephealthCheckInterval,
			TLSSkipVerify: cfg.DephealthTLSSkipVerify,
		}, logger)
		if err != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
			dephealthSvc = nil
		} else {
			deps = dephealthSvc
		}
	}

	// 6. Handlers
	metricsHandler := server.NewMetricsHandler()
	jwtAuth := middleware.NewJWTAuth(validator, logger)

	apiHandler := handlers.NewAPIHandler(
		handlers.NewAuthHandler(issuer),
		handlers.NewAuthzHandler(brokerSvc, store.Bucket()),
		handlers.NewMediaHandler(uploadSvc, listingSvc, store.Bucket()),
		handlers.NewMaintenanceHandler(reconcileSvc),
		handlers.NewHealthHandler(reg, store, deps),
		metricsHandler,
		jwtAuth.Middleware(),
	)

	// 7. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
	)

	g, gctx := errgroup.WithContext(ctx)

	if dephealthSvc != nil {
		if err := dephealthSvc.Start(gctx); err != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("s3_url", cfg.S3URL()),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			g.Go(func() error {
				<-gctx.Done()
				dephealthSvc.Stop()
				return nil
			})
		}
	}

	g.Go(func() error {
		return srv.Run(gctx)
	})

	return g.Wait()
}

// newObjectStore создаёт хранилище по MB_STORAGE_BACKEND.
func newObjectStore(cfg *config.Config, logger *slog.Logger) (objectstore.ObjectStore, error) {
	if cfg.StorageBackend == config.BackendMemory {
		logger.Warn("Используется in-memory хранилище: объекты теряются при перезапуске")
		return objectstore.NewMemoryStore(cfg.S3Bucket), nil
	}

	store, err := objectstore.NewS3Store(objectstore.S3Config{
		Endpoint:  cfg.S3Address(),
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		PartSize:  cfg.S3PartSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("инициализация S3: %w", err)
	}
	return store, nil
}
