// Точка входа Life Archive — домашнего файлового архива с каталогом.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/arturkryukov/lifearchive/internal/api/handlers"
	"github.com/arturkryukov/lifearchive/internal/api/middleware"
	"github.com/arturkryukov/lifearchive/internal/catalog"
	"github.com/arturkryukov/lifearchive/internal/classify"
	"github.com/arturkryukov/lifearchive/internal/config"
	"github.com/arturkryukov/lifearchive/internal/server"
	"github.com/arturkryukov/lifearchive/internal/service"
	"github.com/arturkryukov/lifearchive/internal/storage/layout"
	"github.com/arturkryukov/lifearchive/internal/storage/wal"
)

// catalogCacheSize — размер LRU-кэша записей каталога.
const catalogCacheSize = 1024

// catalogCacheTTL — время жизни записи в кэше.
const catalogCacheTTL = 5 * time.Minute

func main() {
	// .env — удобство локального запуска; отсутствие файла не ошибка
	_ = godotenv.Load()

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Life Archive запускается",
		slog.String("version", config.Version),
		slog.String("data_dir", cfg.DataDir),
		slog.Int("port", cfg.Port),
	)

	// --- Инициализация компонентов ---

	// 1. Менеджер размещения: корень данных, корзины, карантин
	lay, err := layout.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации размещения", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. WAL-журнал операций
	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации журнала", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Pending-записи после рестарта — свидетельства прерванных операций.
	// Журнал их не чинит сам: пути докладываются администратору,
	// фактическое состояние дисков выясняет сверка.
	pending, err := walEngine.Pending()
	if err != nil {
		logger.Error("Ошибка чтения журнала", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for _, entry := range pending {
		logger.Warn("Обнаружена прерванная операция — требуется сверка",
			slog.String("tx_id", entry.TransactionID),
			slog.String("operation", string(entry.Operation)),
			slog.String("record_id", entry.RecordID),
			slog.String("source_path", entry.SourcePath),
			slog.String("target_path", entry.TargetPath),
		)
	}

	// 3. База данных: миграции + подключение
	if err := catalog.Migrate(cfg.DBPath, logger); err != nil {
		logger.Error("Ошибка миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := catalog.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("Ошибка открытия базы данных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	repo := catalog.NewCachedFileRepository(
		catalog.NewFileRepository(db),
		catalogCacheSize,
		catalogCacheTTL,
	)

	// 4. Классификатор категорий
	rules := classify.NewRuleSet(cfg.KeywordLang)

	// 5. Сервисы
	ingestSvc := service.NewIngestService(repo, lay, walEngine, rules, nil, logger)
	lifecycleSvc := service.NewLifecycleService(repo, lay, walEngine, rules, logger)
	reconcileSvc := service.NewReconcileService(repo, lay, walEngine, rules, logger)

	// 6. Фоновая уборка журнала
	janitorSvc := service.NewJanitorService(walEngine, cfg.JanitorInterval, cfg.WALRetention, logger)
	janitorSvc.Start(ctx)

	// 7. Handlers
	h := server.Handlers{
		Auth:   handlers.NewAuthHandler(cfg, logger),
		Files:  handlers.NewFilesHandler(cfg, ingestSvc, lifecycleSvc, repo, logger),
		Admin:  handlers.NewAdminHandler(repo, reconcileSvc, logger),
		Health: handlers.NewHealthHandler(cfg.DataDir, cfg.WALDir, catalog.NewReadinessChecker(db)),
	}

	// 8. JWT middleware
	jwtAuth := middleware.NewJWTAuth(cfg.AuthSecret, 30*time.Second, logger)

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, jwtAuth)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	janitorSvc.Stop()

	logger.Info("Life Archive остановлен")
}
