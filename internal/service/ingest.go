// Пакет service — бизнес-логика Life Archive.
// ingest.go — сервис приёма файлов в архив с WAL-транзакциями.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/lifearchive/internal/catalog"
	"github.com/arturkryukov/lifearchive/internal/classify"
	"github.com/arturkryukov/lifearchive/internal/domain/model"
	"github.com/arturkryukov/lifearchive/internal/identity"
	"github.com/arturkryukov/lifearchive/internal/storage/layout"
	"github.com/arturkryukov/lifearchive/internal/storage/wal"
)

// Prometheus-метрики операций архива.
var (
	// OperationsTotal — количество операций по типу и результату.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "la_operations_total",
		Help: "Общее количество операций архива",
	}, []string{"operation", "status"})

	// ingestBytesTotal — объём принятых данных.
	ingestBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "la_ingest_bytes_total",
		Help: "Общий объём принятых файлов в байтах",
	})

	// duplicatesTotal — количество отклонённых дубликатов.
	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "la_ingest_duplicates_total",
		Help: "Общее количество отклонённых дубликатов",
	})
)

// Transformer — внешний коллаборатор, преобразующий staged-файл до
// идентификации (сжатие изображений, перекодирование видео).
// Возвращает путь результата (может совпадать с исходным) и признак,
// было ли содержимое изменено.
type Transformer interface {
	Transform(ctx context.Context, stagedPath, mediaHint string) (string, bool, error)
}

// NopTransformer — коллаборатор по умолчанию: содержимое не меняется.
type NopTransformer struct{}

// Transform возвращает исходный путь без изменений.
func (NopTransformer) Transform(_ context.Context, stagedPath, _ string) (string, bool, error) {
	return stagedPath, false, nil
}

// DuplicateError — содержимое уже есть в каталоге. Несёт существующую
// активную запись-«победителя».
type DuplicateError struct {
	Existing *model.FileRecord
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("дубликат содержимого: активная запись %s", e.Existing.ID)
}

// IngestParams — параметры приёма файла.
type IngestParams struct {
	// StagedPath — путь staged-файла в директории загрузок
	StagedPath string
	// OriginalName — имя файла, указанное при загрузке
	OriginalName string
	// Title — заголовок (по умолчанию — оригинальное имя)
	Title string
	// Description — описание (опционально)
	Description string
	// Keywords — ключевые слова свободным текстом (опционально)
	Keywords string
	// Tags — теги (опционально)
	Tags []string
}

// IngestService — сервис приёма файлов.
type IngestService struct {
	repo        catalog.FileRepository
	lay         *layout.Layout
	walEngine   *wal.WAL
	rules       *classify.RuleSet
	transformer Transformer
	logger      *slog.Logger
}

// NewIngestService создаёт сервис приёма файлов.
func NewIngestService(
	repo catalog.FileRepository,
	lay *layout.Layout,
	walEngine *wal.WAL,
	rules *classify.RuleSet,
	transformer Transformer,
	logger *slog.Logger,
) *IngestService {
	if transformer == nil {
		transformer = NopTransformer{}
	}
	return &IngestService{
		repo:        repo,
		lay:         lay,
		walEngine:   walEngine,
		rules:       rules,
		transformer: transformer,
		logger:      logger.With(slog.String("component", "ingest_service")),
	}
}

// Ingest принимает staged-файл в архив.
//
// Поток:
//  1. Transformer (опциональное преобразование содержимого)
//  2. Идентификация (SHA-256 + MIME)
//  3. Проверка дубликата по checksum среди активных записей
//  4. Классификация категории
//  5. WAL Begin
//  6. Размещение в директории категории
//  7. Запись каталога (files + metadata + tags одной транзакцией)
//  8. WAL Commit
//
// При дубликате staged-файл удаляется, возвращается DuplicateError с
// записью-«победителем». При ошибке после размещения файл возвращается
// на staged-путь + WAL Rollback — диск и каталог остаются согласованы.
func (s *IngestService) Ingest(ctx context.Context, params IngestParams) (*model.FileRecord, error) {
	// 1. Преобразование содержимого внешним коллаборатором
	stagedPath, transformed, err := s.transformer.Transform(ctx, params.StagedPath, params.OriginalName)
	if err != nil {
		OperationsTotal.WithLabelValues("ingest", "error").Inc()
		return nil, fmt.Errorf("ошибка преобразования файла: %w", err)
	}

	// 2. Идентификация: checksum вычисляется по итоговым байтам
	ident, err := identity.Identify(stagedPath)
	if err != nil {
		OperationsTotal.WithLabelValues("ingest", "error").Inc()
		return nil, fmt.Errorf("ошибка идентификации файла: %w", err)
	}

	// 3. Проверка дубликата
	existing, err := s.repo.FindActiveByChecksum(ctx, ident.Checksum)
	if err == nil {
		_ = os.Remove(stagedPath)
		duplicatesTotal.Inc()
		OperationsTotal.WithLabelValues("ingest", "duplicate").Inc()
		s.logger.Info("Дубликат отклонён",
			slog.String("checksum", ident.Checksum),
			slog.String("existing_id", existing.ID),
			slog.String("filename", params.OriginalName),
		)
		return nil, &DuplicateError{Existing: existing}
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		OperationsTotal.WithLabelValues("ingest", "error").Inc()
		return nil, fmt.Errorf("ошибка проверки дубликата: %w", err)
	}

	// 4. Классификация
	category := s.rules.Classify(params.OriginalName, ident.MediaType)

	recordID := uuid.New().String()

	// 5. WAL Begin
	walEntry, err := s.walEngine.Begin(wal.OpIngest, recordID, stagedPath)
	if err != nil {
		OperationsTotal.WithLabelValues("ingest", "error").Inc()
		return nil, fmt.Errorf("ошибка журнала операций: %w", err)
	}

	// 6. Размещение в директории категории
	finalPath, err := s.lay.Place(stagedPath, category, params.OriginalName)
	if err != nil {
		s.rollback(walEntry.TransactionID)
		OperationsTotal.WithLabelValues("ingest", "error").Inc()
		return nil, err
	}

	if err := s.walEngine.SetTarget(walEntry.TransactionID, finalPath); err != nil {
		s.logger.Warn("Не удалось дописать целевой путь в журнал",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	// 7. Запись каталога
	title := params.Title
	if title == "" {
		title = params.OriginalName
	}

	record := &model.FileRecord{
		ID:           recordID,
		OriginalName: params.OriginalName,
		StoragePath:  finalPath,
		MediaType:    ident.MediaType,
		ByteSize:     ident.Size,
		Checksum:     ident.Checksum,
		State:        model.StateActive,
		IngestedAt:   time.Now().UTC(),
		Meta: &model.FileMetadata{
			Title:       title,
			Description: params.Description,
			Keywords:    params.Keywords,
			Category:    category,
		},
		Tags: model.NormalizeTags(params.Tags),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, catalog.ErrDuplicate) {
			// Гонка: параллельный приём того же содержимого успел раньше.
			// Размещённая копия удаляется, побеждает запись из каталога.
			_ = os.Remove(finalPath)
			s.rollback(walEntry.TransactionID)
			duplicatesTotal.Inc()
			OperationsTotal.WithLabelValues("ingest", "duplicate").Inc()

			winner, findErr := s.repo.FindActiveByChecksum(ctx, ident.Checksum)
			if findErr != nil {
				return nil, fmt.Errorf("дубликат содержимого, запись-победитель не найдена: %w", findErr)
			}
			return nil, &DuplicateError{Existing: winner}
		}

		// Каталог не принял запись — возвращаем файл на staged-путь,
		// чтобы не оставить на диске неучтённую копию.
		if mvErr := moveBack(finalPath, stagedPath); mvErr != nil {
			s.logger.Error("Не удалось вернуть файл в staging",
				slog.String("path", finalPath),
				slog.String("error", mvErr.Error()),
			)
		}
		s.rollback(walEntry.TransactionID)
		OperationsTotal.WithLabelValues("ingest", "error").Inc()
		return nil, fmt.Errorf("ошибка записи в каталог: %w", err)
	}

	// 8. WAL Commit — данные записаны, коммит best effort
	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита журнала (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
	}

	OperationsTotal.WithLabelValues("ingest", "success").Inc()
	ingestBytesTotal.Add(float64(ident.Size))

	s.logger.Info("Файл принят в архив",
		slog.String("record_id", recordID),
		slog.String("filename", params.OriginalName),
		slog.String("category", category),
		slog.Int64("size", ident.Size),
		slog.String("checksum", ident.Checksum),
		slog.Bool("transformed", transformed),
	)

	return record, nil
}

// rollback откатывает WAL-запись, ошибки логируются.
func (s *IngestService) rollback(txID string) {
	if err := s.walEngine.Rollback(txID); err != nil {
		s.logger.Error("Ошибка отката журнала",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// moveBack возвращает файл на исходный путь после неудачной операции.
func moveBack(from, to string) error {
	if from == to {
		return nil
	}
	return os.Rename(from, to)
}
