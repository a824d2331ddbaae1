package service

import (
	"context"
	"testing"
	"time"

	"github.com/arturkryukov/lifearchive/internal/storage/wal"
)

// TestJanitor_RunOnce проверяет уборку завершённых записей журнала.
func TestJanitor_RunOnce(t *testing.T) {
	env := newTestEnv(t)

	pending, _ := env.walEngine.Begin(wal.OpIngest, "rec-a", "")
	committed, _ := env.walEngine.Begin(wal.OpIngest, "rec-b", "")
	if err := env.walEngine.Commit(committed.TransactionID); err != nil {
		t.Fatalf("ошибка коммита: %v", err)
	}

	janitor := NewJanitorService(env.walEngine, time.Hour, 0, testLogger())
	cleaned := janitor.RunOnce()
	if cleaned != 1 {
		t.Errorf("ожидалась 1 удалённая запись, получено %d", cleaned)
	}

	// Pending-запись не тронута
	if _, err := env.walEngine.Get(pending.TransactionID); err != nil {
		t.Errorf("pending-запись не должна удаляться: %v", err)
	}
}

// TestJanitor_KeepsRecent проверяет, что свежие записи переживают уборку.
func TestJanitor_KeepsRecent(t *testing.T) {
	env := newTestEnv(t)

	committed, _ := env.walEngine.Begin(wal.OpIngest, "rec-b", "")
	if err := env.walEngine.Commit(committed.TransactionID); err != nil {
		t.Fatalf("ошибка коммита: %v", err)
	}

	janitor := NewJanitorService(env.walEngine, time.Hour, 24*time.Hour, testLogger())
	if cleaned := janitor.RunOnce(); cleaned != 0 {
		t.Errorf("свежая запись не должна удаляться, удалено %d", cleaned)
	}
}

// TestJanitor_StartStop проверяет запуск и остановку фоновой горутины.
func TestJanitor_StartStop(t *testing.T) {
	env := newTestEnv(t)

	janitor := NewJanitorService(env.walEngine, 10*time.Millisecond, 0, testLogger())
	janitor.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	janitor.Stop()
}
