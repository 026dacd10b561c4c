// memory.go — in-memory реализация ObjectStore.
// Используется при MB_STORAGE_BACKEND=memory и в тестах.
package objectstore

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // ETag в стиле S3, не для безопасности
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryObject — объект, хранящийся в памяти.
type memoryObject struct {
	data        []byte
	contentType string
	etag        string
	modTime     time.Time
}

// MemoryStore — потокобезопасное хранилище объектов в памяти процесса.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
	putErr  error
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		objects: make(map[string]memoryObject),
	}
}

// Bucket возвращает имя bucket.
func (m *MemoryStore) Bucket() string {
	return m.bucket
}

// EnsureBucket ничего не делает: bucket существует всегда.
func (m *MemoryStore) EnsureBucket(context.Context) error {
	return nil
}

// Ping всегда успешен.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// SetPutError задаёт ошибку, которую будут возвращать последующие Put.
// nil снимает сбой.
func (m *MemoryStore) SetPutError(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

// Put читает reader целиком и сохраняет объект.
// Объект не сохраняется, если чтение прервано или контекст отменён.
func (m *MemoryStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (ObjectInfo, error) {
	m.mu.RLock()
	putErr := m.putErr
	m.mu.RUnlock()
	if putErr != nil {
		return ObjectInfo{}, fmt.Errorf("запись объекта %s: %w", key, putErr)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("чтение данных объекта %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, fmt.Errorf("запись объекта %s прервана: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return ObjectInfo{}, fmt.Errorf("запись объекта %s: получено %d байт, ожидалось %d", key, len(data), size)
	}

	sum := md5.Sum(data) //nolint:gosec
	obj := memoryObject{
		data:        data,
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		modTime:     time.Now().UTC(),
	}

	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()

	return ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  contentType,
		ETag:         obj.etag,
		LastModified: obj.modTime,
	}, nil
}

// List возвращает объекты с префиксом, отсортированные по ключу.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result = append(result, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			ETag:         obj.etag,
			LastModified: obj.modTime,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// Get возвращает содержимое и Content-Type объекта.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(obj.data), obj.contentType, true
}

// Len возвращает количество объектов.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ ObjectStore = (*MemoryStore)(nil)
