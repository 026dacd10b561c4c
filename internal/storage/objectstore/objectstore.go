// Пакет objectstore — доступ к объектному хранилищу (put-object, list-objects).
// Реализации: S3Store (S3-совместимое хранилище через minio-go)
// и MemoryStore (in-memory, для разработки и тестов).
package objectstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo — сведения о сохранённом объекте.
type ObjectInfo struct {
	// Key — ключ объекта в bucket
	Key string
	// Size — размер объекта в байтах
	Size int64
	// ContentType — MIME-тип объекта
	ContentType string
	// ETag — ETag, возвращённый хранилищем
	ETag string
	// LastModified — время последнего изменения
	LastModified time.Time
}

// ObjectStore — интерфейс объектного хранилища.
type ObjectStore interface {
	// Put записывает данные из reader под ключом key.
	// size = -1, если размер заранее неизвестен (потоковая загрузка).
	// Возвращает ошибку, если запись не подтверждена хранилищем.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (ObjectInfo, error)
	// List возвращает все объекты с указанным префиксом (рекурсивно).
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// EnsureBucket создаёт bucket, если он не существует.
	EnsureBucket(ctx context.Context) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	// Bucket возвращает имя bucket.
	Bucket() string
}
