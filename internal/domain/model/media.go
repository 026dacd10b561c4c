// Пакет model — доменные модели Media Broker.
package model

import "time"

// AudioPathPrefix — префикс публичного пути к медиа-объекту.
// Константа совместимости: на неё опирается конфигурация reverse proxy.
const AudioPathPrefix = "/v1/audio/"

// MediaRecord — запись о сохранённом объекте.
// Создаётся один раз при загрузке и после регистрации не изменяется.
type MediaRecord struct {
	// Handle — публичный непрозрачный идентификатор (UUID v4).
	// Не связан со StorageKey и не выводится из содержимого или имени файла.
	Handle string `json:"handle"`

	// StorageKey — ключ объекта в bucket.
	// Формат: {YYYY}/{MM}/{uuid}{ext}
	StorageKey string `json:"storageKey"`

	// OriginalName — исходное имя файла при загрузке
	OriginalName string `json:"originalName"`

	// SizeBytes — размер объекта в байтах
	SizeBytes int64 `json:"size"`

	// ContentType — MIME-тип, указанный при загрузке
	ContentType string `json:"contentType"`

	// Owner — sub из токена загрузившего пользователя
	Owner string `json:"uploadedBy"`

	// CreatedAt — время загрузки (UTC)
	CreatedAt time.Time `json:"uploadedAt"`
}

// DownloadPath возвращает публичный путь к объекту для reverse proxy.
func (r *MediaRecord) DownloadPath() string {
	return AudioPathPrefix + r.Handle
}
