// Пакет service — бизнес-логика Media Broker: загрузка, авторизация
// доступа к объектам, листинг и сверка bucket с реестром.
package service

import "errors"

var (
	// ErrPayloadTooLarge — размер загрузки превышает MB_MAX_UPLOAD_BYTES.
	ErrPayloadTooLarge = errors.New("размер файла превышает допустимый")
	// ErrStorageWriteFailed — запись в объектное хранилище не подтверждена.
	ErrStorageWriteFailed = errors.New("ошибка записи в объектное хранилище")
	// ErrNoFile — в запросе нет файла.
	ErrNoFile = errors.New("файл не передан")
	// ErrScanInProgress — сверка уже выполняется.
	ErrScanInProgress = errors.New("сверка уже выполняется")
)
