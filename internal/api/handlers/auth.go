// auth.go — POST /auth/login: выдача токена по фиксированному правилу входа.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/media-broker/internal/api/errors"
	"github.com/bigkaa/media-broker/internal/auth"
)

// maxLoginBody — ограничение тела запроса входа.
const maxLoginBody = 64 << 10

// TokenIssuer — выдача токенов.
type TokenIssuer interface {
	Issue(username, password string) (*auth.Token, error)
}

// AuthHandler — обработчик входа.
type AuthHandler struct {
	issuer TokenIssuer
}

// NewAuthHandler создаёт обработчик входа.
func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn string    `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login обрабатывает POST /auth/login.
// 400 — тело некорректно или нет username/password, 401 — неверные учётные данные.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: ожидается JSON {username, password}")
		return
	}

	token, err := h.issuer.Issue(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrCredentialsRequired):
			apierrors.ValidationError(w, "Требуются username и password")
		case errors.Is(err, auth.ErrInvalidCredentials):
			apierrors.Unauthorized(w, "Неверные учётные данные")
		default:
			apierrors.InternalError(w, "Ошибка выдачи токена")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token.Value,
		ExpiresIn: auth.FormatTTL(token.TTL),
		ExpiresAt: token.ExpiresAt,
	})
}
