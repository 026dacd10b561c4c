// s3.go — реализация ObjectStore поверх S3-совместимого хранилища (minio-go).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config — параметры подключения к S3.
type S3Config struct {
	// Адрес в формате host:port
	Endpoint string
	// Ключ доступа
	AccessKey string
	// Секретный ключ
	SecretKey string
	// Использовать TLS
	UseSSL bool
	// Имя bucket
	Bucket string
	// Регион (опционально)
	Region string
	// Размер части multipart upload при неизвестном размере объекта.
	// Определяет объём буфера на одну загрузку.
	PartSize uint64
}

// S3Store — объектное хранилище на базе minio-go.
type S3Store struct {
	client   *minio.Client
	bucket   string
	region   string
	partSize uint64
	logger   *slog.Logger
}

// NewS3Store создаёт клиент S3. Сетевых запросов не выполняет.
func NewS3Store(cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("не задан адрес S3")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("не задано имя bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("создание S3-клиента: %w", err)
	}

	return &S3Store{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		partSize: cfg.PartSize,
		logger:   logger.With(slog.String("component", "s3_store")),
	}, nil
}

// Bucket возвращает имя bucket.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// EnsureBucket проверяет наличие bucket и создаёт его при отсутствии.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("проверка bucket %s: %w", s.bucket, err)
	}
	if exists {
		s.logger.Info("Bucket уже существует", slog.String("bucket", s.bucket))
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		// Bucket мог быть создан параллельно другим экземпляром
		if exists, existsErr := s.client.BucketExists(ctx, s.bucket); existsErr == nil && exists {
			return nil
		}
		return fmt.Errorf("создание bucket %s: %w", s.bucket, err)
	}

	s.logger.Info("Bucket создан", slog.String("bucket", s.bucket))
	return nil
}

// Put записывает объект. При size = -1 minio-go выполняет multipart upload
// частями по partSize, не буферизуя объект целиком.
func (s *S3Store) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (ObjectInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}
	if size < 0 {
		opts.PartSize = s.partSize
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("запись объекта %s: %w", key, err)
	}

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  contentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// List возвращает объекты bucket с префиксом prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var result []ObjectInfo

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("листинг bucket %s: %w", s.bucket, obj.Err)
		}
		result = append(result, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}

	return result, nil
}

// Ping проверяет доступность S3 запросом наличия bucket.
func (s *S3Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("S3 недоступен: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s не существует", s.bucket)
	}
	return nil
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ ObjectStore = (*S3Store)(nil)
