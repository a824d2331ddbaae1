package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/arturkryukov/lifearchive/internal/catalog"
	"github.com/arturkryukov/lifearchive/internal/classify"
	"github.com/arturkryukov/lifearchive/internal/storage/layout"
	"github.com/arturkryukov/lifearchive/internal/storage/wal"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testEnv — полное окружение сервисов над временными директориями
// и реальной базой SQLite.
type testEnv struct {
	repo      catalog.FileRepository
	lay       *layout.Layout
	walEngine *wal.WAL
	rules     *classify.RuleSet
	ingest    *IngestService
	lifecycle *LifecycleService
	reconcile *ReconcileService
	uploadDir string
}

// newTestEnv собирает окружение в temp-директории теста.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()
	root := t.TempDir()

	lay, err := layout.New(filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("ошибка создания размещения: %v", err)
	}

	walEngine, err := wal.New(filepath.Join(root, "wal"), logger)
	if err != nil {
		t.Fatalf("ошибка создания журнала: %v", err)
	}

	dbPath := filepath.Join(root, "catalog.db")
	if err := catalog.Migrate(dbPath, logger); err != nil {
		t.Fatalf("ошибка применения миграций: %v", err)
	}
	db, err := catalog.Open(context.Background(), dbPath, logger)
	if err != nil {
		t.Fatalf("ошибка открытия базы данных: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := catalog.NewFileRepository(db)
	rules := classify.NewRuleSet("de")

	uploadDir := filepath.Join(root, "uploads")
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		t.Fatalf("ошибка создания директории загрузок: %v", err)
	}

	return &testEnv{
		repo:      repo,
		lay:       lay,
		walEngine: walEngine,
		rules:     rules,
		ingest:    NewIngestService(repo, lay, walEngine, rules, nil, logger),
		lifecycle: NewLifecycleService(repo, lay, walEngine, rules, logger),
		reconcile: NewReconcileService(repo, lay, walEngine, rules, logger),
		uploadDir: uploadDir,
	}
}

// stage создаёт staged-файл в директории загрузок.
func (e *testEnv) stage(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(e.uploadDir, name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("не удалось создать staged-файл: %v", err)
	}
	return path
}
