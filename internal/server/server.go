// Пакет server — HTTP-сервер Life Archive с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/lifearchive/internal/api/handlers"
	"github.com/arturkryukov/lifearchive/internal/api/middleware"
	"github.com/arturkryukov/lifearchive/internal/config"
)

// Handlers — набор обработчиков, монтируемых в роутер.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Files  *handlers.FilesHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

// Server — HTTP-сервер Life Archive.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, auth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Публичные endpoints — без аутентификации
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Post("/api/v1/auth/token", h.Auth.IssueToken)

	// Защищённые endpoints
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware())

		// Роль member: просмотр, загрузка, мягкое удаление
		r.Post("/api/v1/files/upload", h.Files.Upload)
		r.Get("/api/v1/files", h.Files.List)
		r.Get("/api/v1/files/search", h.Files.Search)
		r.Get("/api/v1/files/{id}", h.Files.Get)
		r.Get("/api/v1/files/{id}/download", h.Files.Download)
		r.Put("/api/v1/files/{id}/metadata", h.Files.UpdateMetadata)
		r.Delete("/api/v1/files/{id}", h.Files.Delete)

		// Роль admin: восстановление, карантин, сверка, статистика
		r.Group(func(ra chi.Router) {
			ra.Use(middleware.RequireRole(middleware.RoleAdmin))

			ra.Get("/api/v1/files/deleted", h.Files.ListDeleted)
			ra.Post("/api/v1/files/{id}/restore", h.Files.Restore)
			ra.Get("/api/v1/admin/stats", h.Admin.Stats)
			ra.Post("/api/v1/maintenance/scan", h.Admin.Scan)
			ra.Post("/api/v1/maintenance/orphans/delete", h.Admin.DeleteOrphan)
			ra.Post("/api/v1/maintenance/orphans/readmit", h.Admin.ReadmitOrphan)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// LA_SHUTDOWN_TIMEOUT.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
