package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arturkryukov/lifearchive/internal/api/middleware"
	"github.com/arturkryukov/lifearchive/internal/config"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func authConfig() *config.Config {
	return &config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		ViewPassword:  "view-password",
		AdminPassword: "admin-password",
		TokenTTL:      2 * time.Hour,
	}
}

// issueToken отправляет запрос выдачи токена с указанным телом.
func issueToken(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewAuthHandler(authConfig(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)
	return rec
}

// TestIssueToken_MemberRole проверяет выдачу токена с ролью member.
func TestIssueToken_MemberRole(t *testing.T) {
	rec := issueToken(t, `{"password":"view-password"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("некорректный JSON ответа: %v", err)
	}
	if resp.Role != middleware.RoleMember {
		t.Errorf("ожидалась роль member, получена %s", resp.Role)
	}
	if resp.Token == "" {
		t.Fatal("токен не должен быть пустым")
	}

	// Токен валидируется секретом сервера
	claims := &middleware.Claims{}
	_, err := jwt.ParseWithClaims(resp.Token, claims,
		func(_ *jwt.Token) (any, error) { return []byte(authConfig().AuthSecret), nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		t.Fatalf("выданный токен не прошёл валидацию: %v", err)
	}
	if claims.Role != middleware.RoleMember {
		t.Errorf("ожидалась роль member в claims, получена %s", claims.Role)
	}
	if claims.ExpiresAt == nil {
		t.Error("exp должен быть заполнен")
	}
}

// TestIssueToken_AdminRole проверяет выдачу токена с ролью admin.
func TestIssueToken_AdminRole(t *testing.T) {
	rec := issueToken(t, `{"password":"admin-password"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("некорректный JSON ответа: %v", err)
	}
	if resp.Role != middleware.RoleAdmin {
		t.Errorf("ожидалась роль admin, получена %s", resp.Role)
	}
}

// TestIssueToken_WrongPassword проверяет отказ для неверного пароля.
func TestIssueToken_WrongPassword(t *testing.T) {
	rec := issueToken(t, `{"password":"guess"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestIssueToken_BadRequest проверяет отказ для некорректного тела.
func TestIssueToken_BadRequest(t *testing.T) {
	for _, body := range []string{"", "{", `{"password":""}`} {
		rec := issueToken(t, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("тело %q: ожидался статус 400, получен %d", body, rec.Code)
		}
	}
}
