// Пакет registry — потокобезопасный in-memory реестр handle → MediaRecord.
//
// Реестр append-only: записи только добавляются и читаются,
// после регистрации не изменяются и не удаляются.
// Не персистентный: содержимое живёт до перезапуска процесса.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/media-broker/internal/domain/model"
)

var (
	// ErrNotFound — handle не зарегистрирован.
	ErrNotFound = errors.New("handle не найден")
	// ErrDuplicateHandle — handle уже зарегистрирован (нарушение уникальности генерации).
	ErrDuplicateHandle = errors.New("handle уже зарегистрирован")
	// ErrDuplicateStorageKey — storage key уже привязан к другому handle.
	ErrDuplicateStorageKey = errors.New("storage key уже зарегистрирован")
)

// Registry — абстракция реестра, не зависящая от способа хранения.
// Позволяет заменить in-memory реализацию на durable KV без изменения вызывающего кода.
type Registry interface {
	// Register добавляет запись под record.Handle.
	Register(record *model.MediaRecord) error
	// Resolve возвращает запись по handle или ErrNotFound.
	Resolve(handle string) (*model.MediaRecord, error)
	// List возвращает снимок всех записей в порядке добавления.
	List() []*model.MediaRecord
	// HasStorageKey проверяет, ссылается ли какая-либо запись на ключ.
	HasStorageKey(key string) bool
	// Count возвращает количество записей.
	Count() int
}

// MemoryRegistry — реализация Registry на map + срезе.
// Использует sync.RWMutex: чтения конкурентны, запись эксклюзивна.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records []*model.MediaRecord // порядок добавления
	byKey   map[string]int       // handle → индекс в records
	keys    map[string]struct{}  // множество storage key
	logger  *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		byKey:  make(map[string]int),
		keys:   make(map[string]struct{}),
		logger: logger.With(slog.String("component", "registry")),
	}
}

// Register добавляет запись. Запись копируется, внешние изменения
// исходной структуры не влияют на реестр.
func (r *MemoryRegistry) Register(record *model.MediaRecord) error {
	if record == nil || record.Handle == "" {
		return fmt.Errorf("регистрация: пустой handle")
	}

	copied := *record

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[copied.Handle]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandle, copied.Handle)
	}
	if _, ok := r.keys[copied.StorageKey]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStorageKey, copied.StorageKey)
	}

	r.records = append(r.records, &copied)
	r.byKey[copied.Handle] = len(r.records) - 1
	r.keys[copied.StorageKey] = struct{}{}

	r.logger.Debug("Запись зарегистрирована",
		slog.String("handle", copied.Handle),
		slog.Int("records", len(r.records)),
	)

	return nil
}

// Resolve возвращает копию записи по handle.
func (r *MemoryRegistry) Resolve(handle string) (*model.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byKey[handle]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *r.records[i]
	return &copied, nil
}

// List возвращает снимок записей в порядке добавления.
func (r *MemoryRegistry) List() []*model.MediaRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.MediaRecord, 0, len(r.records))
	for _, rec := range r.records {
		copied := *rec
		result = append(result, &copied)
	}
	return result
}

// HasStorageKey проверяет наличие записи с указанным storage key.
func (r *MemoryRegistry) HasStorageKey(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[key]
	return ok
}

// Count возвращает количество записей в реестре.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// IsReady всегда true: in-memory реестр готов сразу после создания.
func (r *MemoryRegistry) IsReady() bool {
	return true
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ Registry = (*MemoryRegistry)(nil)
