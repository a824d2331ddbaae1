// reconcile.go — сервис сверки (Reconciliation) диска и каталога.
//
// Сверка сравнивает содержимое живых категорийных директорий с
// записями каталога и обнаруживает:
//   - orphan: файл на диске без записи в каталоге
//   - dangling: активная запись, файл которой отсутствует на диске
//
// Сверка только читает и докладывает; починка — явные операции
// администратора: удаление орфана либо его повторный приём в каталог.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
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

// Prometheus-метрики сверки.
var (
	// reconcileRunsTotal — количество запусков сверки.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "la_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "la_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения сверки.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "la_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ErrScanInProgress — сверка уже выполняется.
var ErrScanInProgress = errors.New("сверка уже выполняется")

// skipSuffixes — служебные файлы, не считающиеся орфанами.
var skipSuffixes = []string{".tmp", ".db", ".backup", ".tar.gz", ".wal.json"}

// IssueType — тип обнаруженной проблемы.
type IssueType string

const (
	// IssueOrphan — файл на диске без записи в каталоге
	IssueOrphan IssueType = "orphan"
	// IssueDangling — активная запись без файла на диске
	IssueDangling IssueType = "dangling"
)

// Issue — одна обнаруженная проблема.
type Issue struct {
	Type IssueType `json:"type"`
	// Path — путь файла на диске (для orphan) либо отсутствующий путь записи
	Path string `json:"path"`
	// RecordID — идентификатор записи (только для dangling)
	RecordID string `json:"record_id,omitempty"`
	// Description — человекочитаемое описание
	Description string `json:"description"`
}

// ConsistencyReport — результат одного прогона сверки.
type ConsistencyReport struct {
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	FilesOnDisk  int       `json:"files_on_disk"`
	KnownRecords int       `json:"known_records"`
	Issues       []Issue   `json:"issues"`
	// ScanErrors — директории, которые не удалось прочитать.
	// Нечитаемая директория не прерывает сверку, но и не даёт
	// считать её содержимое согласованным.
	ScanErrors []string `json:"scan_errors,omitempty"`
}

// ReconcileService — сервис сверки диска и каталога.
type ReconcileService struct {
	repo      catalog.FileRepository
	lay       *layout.Layout
	walEngine *wal.WAL
	rules     *classify.RuleSet
	logger    *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	repo catalog.FileRepository,
	lay *layout.Layout,
	walEngine *wal.WAL,
	rules *classify.RuleSet,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		repo:      repo,
		lay:       lay,
		walEngine: walEngine,
		rules:     rules,
		logger:    logger.With(slog.String("component", "reconcile")),
	}
}

// Scan выполняет один прогон сверки.
// Потокобезопасен: параллельный запуск возвращает ErrScanInProgress.
func (rs *ReconcileService) Scan(ctx context.Context) (*ConsistencyReport, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, ErrScanInProgress
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Сверка начата")

	report := &ConsistencyReport{StartedAt: startedAt}

	known, err := rs.repo.KnownPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения путей каталога: %w", err)
	}
	report.KnownRecords = len(known)

	// 1. Орфаны: файлы в живых директориях без записи в каталоге
	onDisk := rs.walkBuckets(report)
	report.FilesOnDisk = len(onDisk)

	for _, path := range onDisk {
		if _, ok := known[path]; !ok {
			report.Issues = append(report.Issues, Issue{
				Type:        IssueOrphan,
				Path:        path,
				Description: "Файл на диске без записи в каталоге",
			})
		}
	}

	// 2. Dangling: активные записи, файлов которых нет на диске
	active := model.StateActive
	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		records, err := rs.repo.List(ctx, catalog.FileListFilters{State: &active}, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения активных записей: %w", err)
		}
		for _, r := range records {
			if _, statErr := os.Lstat(r.StoragePath); statErr != nil {
				report.Issues = append(report.Issues, Issue{
					Type:        IssueDangling,
					Path:        r.StoragePath,
					RecordID:    r.ID,
					Description: "Активная запись без файла на диске",
				})
			}
		}
		if len(records) < pageSize {
			break
		}
	}

	report.CompletedAt = time.Now().UTC()
	duration := report.CompletedAt.Sub(startedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}

	rs.logger.Info("Сверка завершена",
		slog.Int("files_on_disk", report.FilesOnDisk),
		slog.Int("known_records", report.KnownRecords),
		slog.Int("issues", len(report.Issues)),
		slog.Duration("duration", duration),
	)

	return report, nil
}

// walkBuckets собирает пути всех файлов в живых категорийных
// директориях. Скрытые и служебные файлы пропускаются. Ошибка чтения
// отдельной директории записывается в отчёт и не прерывает обход.
func (rs *ReconcileService) walkBuckets(report *ConsistencyReport) []string {
	var paths []string

	for _, root := range rs.lay.BucketRoots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				report.ScanErrors = append(report.ScanErrors, path)
				rs.logger.Warn("Ошибка обхода директории",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			name := d.Name()
			if strings.HasPrefix(name, ".") {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			for _, suffix := range skipSuffixes {
				if strings.HasSuffix(name, suffix) {
					return nil
				}
			}

			paths = append(paths, path)
			return nil
		})
		if err != nil {
			report.ScanErrors = append(report.ScanErrors, root)
		}
	}

	return paths
}

// DeleteOrphan удаляет орфан с диска. Путь обязан лежать под живым
// корнем категорий и не числиться в каталоге — запись каталога
// удалить этой операцией нельзя.
func (rs *ReconcileService) DeleteOrphan(ctx context.Context, path string) error {
	if !rs.lay.UnderBucketRoots(path) {
		return fmt.Errorf("%w: путь %s вне живых директорий архива", layout.ErrStorage, path)
	}

	known, err := rs.repo.KnownPaths(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения путей каталога: %w", err)
	}
	if id, ok := known[path]; ok {
		return fmt.Errorf("%w: путь %s принадлежит записи %s", layout.ErrStorage, path, id)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("ошибка удаления орфана %s: %w", path, err)
	}

	OperationsTotal.WithLabelValues("orphan_delete", "success").Inc()
	rs.logger.Info("Орфан удалён", slog.String("path", path))
	return nil
}

// ReadmitOrphan принимает орфан в каталог как новую запись.
// Если активная запись с таким содержимым уже есть — DuplicateError
// (файл остаётся на месте, решение за администратором). Если файл
// лежит не в той директории, куда его относит классификатор, он
// перемещается.
func (rs *ReconcileService) ReadmitOrphan(ctx context.Context, path string) (*model.FileRecord, error) {
	if !rs.lay.UnderBucketRoots(path) {
		return nil, fmt.Errorf("%w: путь %s вне живых директорий архива", layout.ErrStorage, path)
	}

	known, err := rs.repo.KnownPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения путей каталога: %w", err)
	}
	if id, ok := known[path]; ok {
		return nil, fmt.Errorf("%w: путь %s уже принадлежит записи %s", layout.ErrStorage, path, id)
	}

	ident, err := identity.Identify(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка идентификации орфана: %w", err)
	}

	if winner, err := rs.repo.FindActiveByChecksum(ctx, ident.Checksum); err == nil {
		return nil, &DuplicateError{Existing: winner}
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("ошибка проверки дубликата: %w", err)
	}

	originalName := filepath.Base(path)
	category := rs.rules.Classify(originalName, ident.MediaType)

	recordID := uuid.New().String()

	walEntry, err := rs.walEngine.Begin(wal.OpReadmit, recordID, path)
	if err != nil {
		return nil, fmt.Errorf("ошибка журнала операций: %w", err)
	}

	// Перемещаем только если орфан лежит не в своей категории
	finalPath := path
	categoryDir, err := rs.lay.CategoryDir(category)
	if err != nil {
		rs.rollbackWAL(walEntry.TransactionID)
		return nil, err
	}
	if filepath.Dir(path) != categoryDir {
		finalPath, err = rs.lay.Place(path, category, originalName)
		if err != nil {
			rs.rollbackWAL(walEntry.TransactionID)
			return nil, err
		}
	}

	if err := rs.walEngine.SetTarget(walEntry.TransactionID, finalPath); err != nil {
		rs.logger.Warn("Не удалось дописать целевой путь в журнал",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	record := &model.FileRecord{
		ID:           recordID,
		OriginalName: originalName,
		StoragePath:  finalPath,
		MediaType:    ident.MediaType,
		ByteSize:     ident.Size,
		Checksum:     ident.Checksum,
		State:        model.StateActive,
		IngestedAt:   time.Now().UTC(),
		Meta: &model.FileMetadata{
			Title:    originalName,
			Category: category,
		},
	}

	if err := rs.repo.Create(ctx, record); err != nil {
		if mvErr := moveBack(finalPath, path); mvErr != nil {
			rs.logger.Error("Не удалось вернуть орфан на исходный путь",
				slog.String("path", finalPath),
				slog.String("error", mvErr.Error()),
			)
		}
		rs.rollbackWAL(walEntry.TransactionID)
		return nil, fmt.Errorf("ошибка записи в каталог: %w", err)
	}

	if err := rs.walEngine.Commit(walEntry.TransactionID); err != nil {
		rs.logger.Error("Ошибка коммита журнала (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	OperationsTotal.WithLabelValues("orphan_readmit", "success").Inc()
	rs.logger.Info("Орфан принят в каталог",
		slog.String("record_id", recordID),
		slog.String("path", finalPath),
		slog.String("category", category),
	)

	return record, nil
}

// rollbackWAL откатывает WAL-запись, ошибки логируются.
func (rs *ReconcileService) rollbackWAL(txID string) {
	if err := rs.walEngine.Rollback(txID); err != nil {
		rs.logger.Error("Ошибка отката журнала",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}
