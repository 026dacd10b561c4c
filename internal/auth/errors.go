// Пакет auth — выдача и проверка bearer-токенов (JWT).
//
// Issuer проверяет пару username/password по фиксированному правилу
// и подписывает токен HS256. Validator проверяет подпись и срок действия
// и извлекает sub. Токены stateless: серверных сессий и отзыва нет.
package auth

import "errors"

var (
	// ErrMissingCredential — токен не передан.
	ErrMissingCredential = errors.New("токен не передан")
	// ErrInvalidCredential — подпись не прошла проверку или токен некорректен.
	ErrInvalidCredential = errors.New("невалидный токен")
	// ErrExpiredCredential — срок действия токена истёк.
	ErrExpiredCredential = errors.New("срок действия токена истёк")
	// ErrInvalidCredentials — неверная пара username/password.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrCredentialsRequired — username или password не переданы.
	ErrCredentialsRequired = errors.New("требуются username и password")
)
