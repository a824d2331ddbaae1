package wal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // подавляем debug/info/warn в тестах
	}))
}

// TestNew_CreatesDirectory проверяет, что New создаёт директорию журнала.
func TestNew_CreatesDirectory(t *testing.T) {
	walDir := filepath.Join(t.TempDir(), "wal")

	w, err := New(walDir, testLogger())
	if err != nil {
		t.Fatalf("ожидалось успешное создание журнала, получена ошибка: %v", err)
	}

	if w.Dir() != walDir {
		t.Errorf("ожидался путь %s, получен %s", walDir, w.Dir())
	}

	info, err := os.Stat(walDir)
	if err != nil {
		t.Fatalf("директория журнала не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь журнала не является директорией")
	}
}

// TestBegin проверяет создание pending-записи.
func TestBegin(t *testing.T) {
	w, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания журнала: %v", err)
	}

	entry, err := w.Begin(OpIngest, "rec-1", "/staging/a.pdf")
	if err != nil {
		t.Fatalf("ошибка создания записи: %v", err)
	}

	if entry.TransactionID == "" {
		t.Error("TransactionID не должен быть пустым")
	}
	if entry.Operation != OpIngest {
		t.Errorf("ожидалась операция %s, получена %s", OpIngest, entry.Operation)
	}
	if entry.Status != StatusPending {
		t.Errorf("ожидался статус %s, получен %s", StatusPending, entry.Status)
	}
	if entry.SourcePath != "/staging/a.pdf" {
		t.Errorf("ожидался source_path /staging/a.pdf, получен %s", entry.SourcePath)
	}

	// Файл записи существует на диске
	if _, err := os.Stat(filepath.Join(w.Dir(), walFileName(entry.TransactionID))); err != nil {
		t.Errorf("файл записи не создан: %v", err)
	}
}

// TestSetTarget проверяет дозапись целевого пути.
func TestSetTarget(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	entry, err := w.Begin(OpIngest, "rec-1", "/staging/a.pdf")
	if err != nil {
		t.Fatalf("ошибка создания записи: %v", err)
	}

	if err := w.SetTarget(entry.TransactionID, "/data/documents/a.pdf"); err != nil {
		t.Fatalf("ошибка дозаписи целевого пути: %v", err)
	}

	got, err := w.Get(entry.TransactionID)
	if err != nil {
		t.Fatalf("ошибка чтения записи: %v", err)
	}
	if got.TargetPath != "/data/documents/a.pdf" {
		t.Errorf("ожидался target_path /data/documents/a.pdf, получен %s", got.TargetPath)
	}
	if got.Status != StatusPending {
		t.Errorf("статус не должен меняться, получен %s", got.Status)
	}
}

// TestCommit проверяет перевод записи в committed.
func TestCommit(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	entry, _ := w.Begin(OpSoftDelete, "rec-2", "/data/documents/a.pdf")
	if err := w.Commit(entry.TransactionID); err != nil {
		t.Fatalf("ошибка коммита: %v", err)
	}

	got, err := w.Get(entry.TransactionID)
	if err != nil {
		t.Fatalf("ошибка чтения записи: %v", err)
	}
	if got.Status != StatusCommitted {
		t.Errorf("ожидался статус %s, получен %s", StatusCommitted, got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt должен быть заполнен")
	}
}

// TestCommit_Twice проверяет отказ повторного коммита.
func TestCommit_Twice(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	entry, _ := w.Begin(OpIngest, "rec-3", "")
	if err := w.Commit(entry.TransactionID); err != nil {
		t.Fatalf("ошибка коммита: %v", err)
	}
	if err := w.Commit(entry.TransactionID); err == nil {
		t.Fatal("ожидалась ошибка повторного коммита")
	}
}

// TestRollback проверяет откат записи.
func TestRollback(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	entry, _ := w.Begin(OpRestore, "rec-4", "/quarantine/x.pdf")
	if err := w.Rollback(entry.TransactionID); err != nil {
		t.Fatalf("ошибка отката: %v", err)
	}

	got, _ := w.Get(entry.TransactionID)
	if got.Status != StatusRolledBack {
		t.Errorf("ожидался статус %s, получен %s", StatusRolledBack, got.Status)
	}
}

// TestPending проверяет обнаружение незавершённых записей.
func TestPending(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	p1, _ := w.Begin(OpIngest, "rec-a", "")
	committed, _ := w.Begin(OpIngest, "rec-b", "")
	_ = w.Commit(committed.TransactionID)
	rolled, _ := w.Begin(OpSoftDelete, "rec-c", "")
	_ = w.Rollback(rolled.TransactionID)

	pending, err := w.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения pending-записей: %v", err)
	}

	if len(pending) != 1 {
		t.Fatalf("ожидалась 1 pending-запись, получено %d", len(pending))
	}
	if pending[0].TransactionID != p1.TransactionID {
		t.Errorf("ожидалась запись %s, получена %s", p1.TransactionID, pending[0].TransactionID)
	}
}

// TestCleanFinished проверяет уборку завершённых записей.
func TestCleanFinished(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	pending, _ := w.Begin(OpIngest, "rec-a", "")
	committed, _ := w.Begin(OpIngest, "rec-b", "")
	_ = w.Commit(committed.TransactionID)
	rolled, _ := w.Begin(OpSoftDelete, "rec-c", "")
	_ = w.Rollback(rolled.TransactionID)

	// maxAge 0 — все завершённые записи старше порога
	cleaned, err := w.CleanFinished(0)
	if err != nil {
		t.Fatalf("ошибка уборки: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("ожидалось 2 удалённые записи, получено %d", cleaned)
	}

	// Pending-запись не тронута
	if _, err := w.Get(pending.TransactionID); err != nil {
		t.Errorf("pending-запись не должна удаляться: %v", err)
	}
	if _, err := w.Get(committed.TransactionID); err == nil {
		t.Error("committed-запись должна быть удалена")
	}
}

// TestCleanFinished_KeepsRecent проверяет, что свежие записи не удаляются.
func TestCleanFinished_KeepsRecent(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	committed, _ := w.Begin(OpIngest, "rec-b", "")
	_ = w.Commit(committed.TransactionID)

	cleaned, err := w.CleanFinished(time.Hour)
	if err != nil {
		t.Fatalf("ошибка уборки: %v", err)
	}
	if cleaned != 0 {
		t.Errorf("свежая запись не должна удаляться, удалено %d", cleaned)
	}
}

// TestGet_Missing проверяет ошибку для несуществующей записи.
func TestGet_Missing(t *testing.T) {
	w, _ := New(t.TempDir(), testLogger())

	if _, err := w.Get("no-such-tx"); err == nil {
		t.Fatal("ожидалась ошибка для несуществующей записи")
	}
}
