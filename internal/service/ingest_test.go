package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/lifearchive/internal/catalog"
	"github.com/arturkryukov/lifearchive/internal/domain/model"
)

// TestIngest_Success проверяет полный поток приёма файла.
func TestIngest_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staged := env.stage(t, "upload-1", []byte("annual report"))
	record, err := env.ingest.Ingest(ctx, IngestParams{
		StagedPath:   staged,
		OriginalName: "Invoice_2025.pdf",
		Description:  "счёт за электричество",
		Tags:         []string{"Strom", "2025"},
	})
	if err != nil {
		t.Fatalf("ошибка приёма: %v", err)
	}

	// Ключевое слово invoice относит файл в documents/financial
	if record.Category() != "documents/financial" {
		t.Errorf("ожидалась категория documents/financial, получена %s", record.Category())
	}
	if record.State != model.StateActive {
		t.Errorf("ожидалось состояние active, получено %s", record.State)
	}
	if record.ByteSize != int64(len("annual report")) {
		t.Errorf("неверный размер: %d", record.ByteSize)
	}

	// Staged-файл перемещён в директорию категории
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("staged-файл должен быть перемещён")
	}
	if _, err := os.Stat(record.StoragePath); err != nil {
		t.Errorf("файл отсутствует в директории категории: %v", err)
	}
	wantDir := filepath.Join(env.lay.DataDir(), "documents", "financial")
	if filepath.Dir(record.StoragePath) != wantDir {
		t.Errorf("ожидалась директория %s, получена %s", wantDir, filepath.Dir(record.StoragePath))
	}

	// Запись в каталоге, с нормализованными тегами
	got, err := env.repo.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("запись не найдена в каталоге: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "2025" || got.Tags[1] != "strom" {
		t.Errorf("неожиданные теги: %v", got.Tags)
	}

	// WAL-запись закоммичена, pending-записей нет
	pending, err := env.walEngine.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("после успешного приёма не должно быть pending-записей, найдено %d", len(pending))
	}
}

// TestIngest_Duplicate проверяет отклонение дубликата по содержимому.
func TestIngest_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	content := []byte("same bytes")
	first := env.stage(t, "upload-1", content)
	winner, err := env.ingest.Ingest(ctx, IngestParams{StagedPath: first, OriginalName: "a.pdf"})
	if err != nil {
		t.Fatalf("ошибка первого приёма: %v", err)
	}

	second := env.stage(t, "upload-2", content)
	_, err = env.ingest.Ingest(ctx, IngestParams{StagedPath: second, OriginalName: "copy_of_a.pdf"})

	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("ожидалась DuplicateError, получена: %v", err)
	}
	if dup.Existing.ID != winner.ID {
		t.Errorf("ожидалась запись-победитель %s, получена %s", winner.ID, dup.Existing.ID)
	}

	// Staged-копия дубликата удалена
	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Error("staged-файл дубликата должен быть удалён")
	}
	// Оригинал на месте
	if _, err := os.Stat(winner.StoragePath); err != nil {
		t.Errorf("оригинал пропал: %v", err)
	}
}

// TestIngest_TitleDefault проверяет заголовок по умолчанию.
func TestIngest_TitleDefault(t *testing.T) {
	env := newTestEnv(t)

	staged := env.stage(t, "upload-1", []byte("x"))
	record, err := env.ingest.Ingest(context.Background(), IngestParams{
		StagedPath:   staged,
		OriginalName: "notes.txt",
	})
	if err != nil {
		t.Fatalf("ошибка приёма: %v", err)
	}
	if record.Meta.Title != "notes.txt" {
		t.Errorf("ожидался заголовок notes.txt, получен %s", record.Meta.Title)
	}
}

// TestIngest_MissingStaged проверяет ошибку для отсутствующего staged-файла.
func TestIngest_MissingStaged(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ingest.Ingest(context.Background(), IngestParams{
		StagedPath:   filepath.Join(env.uploadDir, "no-such-file"),
		OriginalName: "ghost.pdf",
	})
	if err == nil {
		t.Fatal("ожидалась ошибка для отсутствующего staged-файла")
	}
}

// racingRepo — репозиторий, имитирующий гонку приёма: перед первым
// Create вставляет соперника с тем же checksum, так что оптимистичная
// проверка дубликата проходит, а вставка упирается в ограничение.
type racingRepo struct {
	catalog.FileRepository
	rival *model.FileRecord
	once  sync.Once
	err   error
}

func (r *racingRepo) Create(ctx context.Context, f *model.FileRecord) error {
	r.once.Do(func() {
		r.err = r.FileRepository.Create(ctx, r.rival)
	})
	if r.err != nil {
		return r.err
	}
	return r.FileRepository.Create(ctx, f)
}

// TestIngest_DuplicateRace проверяет проигравшего в гонке приёма:
// оптимистичная проверка чиста, запись падает на ограничении каталога,
// размещённая копия убирается, побеждает запись соперника.
func TestIngest_DuplicateRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	content := []byte("raced bytes")
	rival := &model.FileRecord{
		ID:           uuid.NewString(),
		OriginalName: "rival.pdf",
		StoragePath:  filepath.Join(env.lay.DataDir(), "documents", "personal", "rival.pdf"),
		MediaType:    "application/pdf",
		ByteSize:     int64(len(content)),
		Checksum:     fmt.Sprintf("%x", sha256.Sum256(content)),
		State:        model.StateActive,
		IngestedAt:   time.Now().UTC(),
		Meta: &model.FileMetadata{
			Title:    "rival.pdf",
			Category: "documents/personal",
		},
	}

	repo := &racingRepo{FileRepository: env.repo, rival: rival}
	svc := NewIngestService(repo, env.lay, env.walEngine, env.rules, nil, testLogger())

	staged := env.stage(t, "upload-1", content)
	_, err := svc.Ingest(ctx, IngestParams{StagedPath: staged, OriginalName: "loser.pdf"})

	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("ожидалась DuplicateError, получена: %v", err)
	}
	if dup.Existing.ID != rival.ID {
		t.Errorf("ожидалась запись-победитель %s, получена %s", rival.ID, dup.Existing.ID)
	}

	// Размещённая копия проигравшего убрана с диска
	loserPath := filepath.Join(env.lay.DataDir(), "documents", "personal", "loser.pdf")
	if _, err := os.Stat(loserPath); !os.IsNotExist(err) {
		t.Error("копия проигравшего должна быть удалена")
	}

	// WAL-запись проигравшего откатана
	pending, err := env.walEngine.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("после отката не должно быть pending-записей, найдено %d", len(pending))
	}
}

// renameTransformer — тестовый коллаборатор: переписывает содержимое.
type renameTransformer struct {
	content []byte
}

func (tr renameTransformer) Transform(_ context.Context, stagedPath, _ string) (string, bool, error) {
	if err := os.WriteFile(stagedPath, tr.content, 0o600); err != nil {
		return "", false, err
	}
	return stagedPath, true, nil
}

// TestIngest_TransformerChangesContent проверяет, что checksum
// вычисляется по итоговым байтам после преобразования.
func TestIngest_TransformerChangesContent(t *testing.T) {
	env := newTestEnv(t)
	svc := NewIngestService(env.repo, env.lay, env.walEngine, env.rules,
		renameTransformer{content: []byte("transformed")}, testLogger())

	staged := env.stage(t, "upload-1", []byte("original"))
	record, err := svc.Ingest(context.Background(), IngestParams{
		StagedPath:   staged,
		OriginalName: "photo.jpg",
	})
	if err != nil {
		t.Fatalf("ошибка приёма: %v", err)
	}

	data, err := os.ReadFile(record.StoragePath)
	if err != nil {
		t.Fatalf("файл отсутствует: %v", err)
	}
	if string(data) != "transformed" {
		t.Errorf("ожидалось преобразованное содержимое, получено %q", data)
	}
	if record.ByteSize != int64(len("transformed")) {
		t.Errorf("размер должен считаться по итоговым байтам: %d", record.ByteSize)
	}
}
