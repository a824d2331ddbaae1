// Пакет config — загрузка и валидация конфигурации Life Archive
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Life Archive.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корневая директория данных (documents/, images/, videos/,
	// deleted_for_review/ создаются внутри неё)
	DataDir string
	// Директория staging для загружаемых файлов.
	// Должна быть на одном томе с DataDir для атомарного rename.
	UploadDir string
	// Директория WAL-журнала операций
	WALDir string
	// Путь к файлу базы данных SQLite
	DBPath string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Второй язык ключевых слов классификатора (de, ru)
	KeywordLang string
	// Секрет для подписи HMAC JWT-токенов
	AuthSecret string
	// Пароль доступа на просмотр (роль member)
	ViewPassword string
	// Пароль администратора (роль admin)
	AdminPassword string
	// Срок жизни выданного токена
	TokenTTL time.Duration
	// Интервал фоновой очистки завершённых WAL-записей
	JanitorInterval time.Duration
	// Возраст завершённых WAL-записей, после которого они удаляются
	WALRetention time.Duration
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// LA_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("LA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("LA_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("LA_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// LA_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("LA_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// LA_UPLOAD_DIR — staging загрузок (по умолчанию <DataDir>/uploads)
	cfg.UploadDir = getEnvDefault("LA_UPLOAD_DIR", filepath.Join(cfg.DataDir, "uploads"))

	// LA_WAL_DIR — директория WAL (по умолчанию <DataDir>/wal)
	cfg.WALDir = getEnvDefault("LA_WAL_DIR", filepath.Join(cfg.DataDir, "wal"))

	// LA_DB_PATH — файл SQLite (по умолчанию <DataDir>/database/life.db)
	cfg.DBPath = getEnvDefault("LA_DB_PATH", filepath.Join(cfg.DataDir, "database", "life.db"))

	// LA_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 100 MB)
	maxUploadSize, err := getEnvInt64("LA_MAX_UPLOAD_SIZE", 104857600)
	if err != nil {
		return nil, fmt.Errorf("LA_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUploadSize <= 0 {
		return nil, fmt.Errorf("LA_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}
	cfg.MaxUploadSize = maxUploadSize

	// LA_KEYWORD_LANG — второй язык ключевых слов (по умолчанию de)
	cfg.KeywordLang = getEnvDefault("LA_KEYWORD_LANG", "de")
	if cfg.KeywordLang != "de" && cfg.KeywordLang != "ru" {
		return nil, fmt.Errorf("LA_KEYWORD_LANG: недопустимое значение %q, допустимые: de, ru", cfg.KeywordLang)
	}

	// LA_AUTH_SECRET — обязательный, минимум 32 байта
	cfg.AuthSecret, err = getEnvRequired("LA_AUTH_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.AuthSecret) < 32 {
		return nil, fmt.Errorf("LA_AUTH_SECRET: длина %d меньше минимальной (32 байта)", len(cfg.AuthSecret))
	}

	// LA_VIEW_PASSWORD — обязательный
	cfg.ViewPassword, err = getEnvRequired("LA_VIEW_PASSWORD")
	if err != nil {
		return nil, err
	}

	// LA_ADMIN_PASSWORD — обязательный
	cfg.AdminPassword, err = getEnvRequired("LA_ADMIN_PASSWORD")
	if err != nil {
		return nil, err
	}
	if cfg.AdminPassword == cfg.ViewPassword {
		return nil, fmt.Errorf("LA_ADMIN_PASSWORD: должен отличаться от LA_VIEW_PASSWORD")
	}

	// LA_TOKEN_TTL — срок жизни токена (по умолчанию 2h)
	cfg.TokenTTL, err = getEnvDuration("LA_TOKEN_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("LA_TOKEN_TTL: %w", err)
	}

	// LA_JANITOR_INTERVAL — интервал очистки WAL (по умолчанию 1h)
	cfg.JanitorInterval, err = getEnvDuration("LA_JANITOR_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("LA_JANITOR_INTERVAL: %w", err)
	}

	// LA_WAL_RETENTION — срок хранения завершённых WAL-записей (по умолчанию 24h)
	cfg.WALRetention, err = getEnvDuration("LA_WAL_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("LA_WAL_RETENTION: %w", err)
	}

	// LA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LA_LOG_LEVEL: %w", err)
	}

	// LA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("LA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// LA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("LA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
