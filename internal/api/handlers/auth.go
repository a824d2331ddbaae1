// auth.go — выдача JWT-токенов доступа по паролю домохозяйства.
// Два пароля — две роли: пароль просмотра даёт member, пароль
// администратора даёт admin. Токены подписываются HS256.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/arturkryukov/lifearchive/internal/api/errors"
	"github.com/arturkryukov/lifearchive/internal/api/middleware"
	"github.com/arturkryukov/lifearchive/internal/config"
)

// AuthHandler — обработчик выдачи токенов.
type AuthHandler struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewAuthHandler создаёт обработчик выдачи токенов.
func NewAuthHandler(cfg *config.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "auth_handler")),
	}
}

// tokenRequest — тело запроса выдачи токена.
type tokenRequest struct {
	Password string `json:"password"`
}

// tokenResponse — тело ответа с выданным токеном.
type tokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken обрабатывает POST /api/v1/auth/token.
// Сравнение паролей — константное по времени.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: ожидается JSON с полем password")
		return
	}
	if req.Password == "" {
		apierrors.ValidationError(w, "Поле password обязательно")
		return
	}

	// Оба сравнения выполняются всегда, чтобы не выдавать таймингом,
	// какой из паролей оказался ближе
	isAdmin := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) == 1
	isMember := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.ViewPassword)) == 1

	var role string
	switch {
	case isAdmin:
		role = middleware.RoleAdmin
	case isMember:
		role = middleware.RoleMember
	default:
		h.logger.Warn("Неудачная попытка входа",
			slog.String("remote_addr", r.RemoteAddr),
		)
		apierrors.Unauthorized(w, "Неверный пароль")
		return
	}

	now := time.Now().UTC()
	expiresAt := now.Add(h.cfg.TokenTTL)

	claims := &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   role,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "lifearchive",
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.AuthSecret))
	if err != nil {
		h.logger.Error("Ошибка подписи токена", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось выдать токен")
		return
	}

	h.logger.Info("Токен выдан",
		slog.String("role", role),
		slog.String("remote_addr", r.RemoteAddr),
	)

	respondJSON(w, http.StatusOK, tokenResponse{
		Token:     signed,
		Role:      role,
		ExpiresAt: expiresAt,
	})
}
