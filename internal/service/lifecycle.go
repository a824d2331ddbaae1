// lifecycle.go — сервис жизненного цикла записей: мягкое удаление,
// восстановление из карантина, правка метаданных.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/lifearchive/internal/catalog"
	"github.com/arturkryukov/lifearchive/internal/classify"
	"github.com/arturkryukov/lifearchive/internal/domain/model"
	"github.com/arturkryukov/lifearchive/internal/storage/layout"
	"github.com/arturkryukov/lifearchive/internal/storage/wal"
)

// LifecycleService — операции над существующими записями каталога.
type LifecycleService struct {
	repo      catalog.FileRepository
	lay       *layout.Layout
	walEngine *wal.WAL
	rules     *classify.RuleSet
	logger    *slog.Logger
}

// NewLifecycleService создаёт сервис жизненного цикла.
func NewLifecycleService(
	repo catalog.FileRepository,
	lay *layout.Layout,
	walEngine *wal.WAL,
	rules *classify.RuleSet,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		repo:      repo,
		lay:       lay,
		walEngine: walEngine,
		rules:     rules,
		logger:    logger.With(slog.String("component", "lifecycle_service")),
	}
}

// SoftDelete мягко удаляет активную запись: файл перемещается в
// карантин deleted_for_review, запись переводится в deleted.
// Содержимое не уничтожается; checksum освобождается для повторного приёма.
//
// При ошибке каталога файл возвращается из карантина обратно —
// диск и каталог остаются согласованы.
func (s *LifecycleService) SoftDelete(ctx context.Context, id string) (*model.FileRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.IsActive() {
		return nil, fmt.Errorf("%w: запись %s уже удалена", catalog.ErrNotFound, id)
	}

	walEntry, err := s.walEngine.Begin(wal.OpSoftDelete, id, record.StoragePath)
	if err != nil {
		OperationsTotal.WithLabelValues("soft_delete", "error").Inc()
		return nil, fmt.Errorf("ошибка журнала операций: %w", err)
	}

	quarantinePath, err := s.lay.Quarantine(record.StoragePath, id)
	if err != nil {
		s.rollbackWAL(walEntry.TransactionID)
		OperationsTotal.WithLabelValues("soft_delete", "error").Inc()
		return nil, err
	}

	if err := s.walEngine.SetTarget(walEntry.TransactionID, quarantinePath); err != nil {
		s.logger.Warn("Не удалось дописать целевой путь в журнал",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	deletedAt := time.Now().UTC()
	if err := s.repo.SoftDelete(ctx, id, quarantinePath, deletedAt); err != nil {
		// Каталог не обновился — возвращаем файл в живую директорию
		if mvErr := moveBack(quarantinePath, record.StoragePath); mvErr != nil {
			s.logger.Error("Не удалось вернуть файл из карантина",
				slog.String("path", quarantinePath),
				slog.String("error", mvErr.Error()),
			)
		}
		s.rollbackWAL(walEntry.TransactionID)
		OperationsTotal.WithLabelValues("soft_delete", "error").Inc()
		return nil, err
	}

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита журнала (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	OperationsTotal.WithLabelValues("soft_delete", "success").Inc()
	s.logger.Info("Запись мягко удалена",
		slog.String("record_id", id),
		slog.String("quarantine_path", quarantinePath),
	)

	record.State = model.StateDeleted
	record.StoragePath = quarantinePath
	record.DeletedAt = &deletedAt
	return record, nil
}

// Restore восстанавливает мягко удалённую запись: файл возвращается
// из карантина в директорию категории (категория выводится заново
// классификатором), запись переводится в active.
//
// Если за время карантина то же содержимое было принято заново,
// восстановление отклоняется с DuplicateError.
func (s *LifecycleService) Restore(ctx context.Context, id string) (*model.FileRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.State != model.StateDeleted {
		return nil, fmt.Errorf("%w: запись %s не удалена", catalog.ErrNotFound, id)
	}

	// Активная копия того же содержимого блокирует восстановление
	if winner, err := s.repo.FindActiveByChecksum(ctx, record.Checksum); err == nil {
		OperationsTotal.WithLabelValues("restore", "duplicate").Inc()
		return nil, &DuplicateError{Existing: winner}
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("ошибка проверки дубликата: %w", err)
	}

	category := s.rules.Classify(record.OriginalName, record.MediaType)

	walEntry, err := s.walEngine.Begin(wal.OpRestore, id, record.StoragePath)
	if err != nil {
		OperationsTotal.WithLabelValues("restore", "error").Inc()
		return nil, fmt.Errorf("ошибка журнала операций: %w", err)
	}

	restoredPath, err := s.lay.Restore(record.StoragePath, category, id)
	if err != nil {
		s.rollbackWAL(walEntry.TransactionID)
		OperationsTotal.WithLabelValues("restore", "error").Inc()
		return nil, err
	}

	if err := s.walEngine.SetTarget(walEntry.TransactionID, restoredPath); err != nil {
		s.logger.Warn("Не удалось дописать целевой путь в журнал",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.repo.Restore(ctx, id, restoredPath, category); err != nil {
		if mvErr := moveBack(restoredPath, record.StoragePath); mvErr != nil {
			s.logger.Error("Не удалось вернуть файл в карантин",
				slog.String("path", restoredPath),
				slog.String("error", mvErr.Error()),
			)
		}
		s.rollbackWAL(walEntry.TransactionID)
		OperationsTotal.WithLabelValues("restore", "error").Inc()
		return nil, err
	}

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита журнала (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	OperationsTotal.WithLabelValues("restore", "success").Inc()
	s.logger.Info("Запись восстановлена",
		slog.String("record_id", id),
		slog.String("restored_path", restoredPath),
		slog.String("category", category),
	)

	record.State = model.StateActive
	record.StoragePath = restoredPath
	record.DeletedAt = nil
	if record.Meta != nil {
		record.Meta.Category = category
	}
	return record, nil
}

// UpdateMetadata обновляет пользовательские метаданные и теги записи.
// Категория и идентификационные поля не меняются.
func (s *LifecycleService) UpdateMetadata(ctx context.Context, id string, meta *model.FileMetadata, tags []string) (*model.FileRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := &model.FileMetadata{
		Title:         meta.Title,
		Description:   meta.Description,
		Keywords:      meta.Keywords,
		Category:      record.Category(),
		ExtractedText: meta.ExtractedText,
	}
	if updated.Title == "" {
		updated.Title = record.OriginalName
	}

	if err := s.repo.UpdateMetadata(ctx, id, updated, tags); err != nil {
		return nil, err
	}

	s.logger.Info("Метаданные обновлены", slog.String("record_id", id))
	return s.repo.GetByID(ctx, id)
}

// rollbackWAL откатывает WAL-запись, ошибки логируются.
func (s *LifecycleService) rollbackWAL(txID string) {
	if err := s.walEngine.Rollback(txID); err != nil {
		s.logger.Error("Ошибка отката журнала",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}
