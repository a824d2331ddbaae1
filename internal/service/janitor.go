// janitor.go — фоновая уборка журнала операций.
//
// Janitor периодически удаляет завершённые (committed/rolled_back)
// WAL-записи старше срока хранения. Pending-записи не трогаются
// никогда — они свидетельства прерванных операций и разбираются
// администратором.
//
// Запускается как горутина с периодическим тикером (LA_JANITOR_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/lifearchive/internal/storage/wal"
)

// Prometheus-метрики уборки.
var (
	// janitorRunsTotal — количество запусков уборки.
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "la_janitor_runs_total",
		Help: "Общее количество запусков уборки журнала",
	})

	// janitorEntriesCleanedTotal — количество удалённых WAL-записей.
	janitorEntriesCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "la_janitor_entries_cleaned_total",
		Help: "Общее количество удалённых завершённых WAL-записей",
	})
)

// JanitorService — фоновая уборка завершённых WAL-записей.
type JanitorService struct {
	walEngine *wal.WAL
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewJanitorService создаёт сервис уборки.
func NewJanitorService(
	walEngine *wal.WAL,
	interval time.Duration,
	retention time.Duration,
	logger *slog.Logger,
) *JanitorService {
	return &JanitorService{
		walEngine: walEngine,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину уборки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (j *JanitorService) Start(ctx context.Context) {
	jCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	go j.run(jCtx)

	j.logger.Info("Уборка журнала запущена",
		slog.String("interval", j.interval.String()),
		slog.String("retention", j.retention.String()),
	)
}

// Stop останавливает фоновый процесс уборки.
func (j *JanitorService) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.logger.Info("Уборка журнала остановлена")
}

// run — основной цикл фоновой горутины.
func (j *JanitorService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	j.RunOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл уборки. Возвращает количество
// удалённых записей.
func (j *JanitorService) RunOnce() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	cleaned, err := j.walEngine.CleanFinished(j.retention)
	if err != nil {
		j.logger.Error("Ошибка уборки журнала",
			slog.String("error", err.Error()),
		)
		return 0
	}

	janitorRunsTotal.Inc()
	janitorEntriesCleanedTotal.Add(float64(cleaned))

	if cleaned > 0 {
		j.logger.Info("Журнал убран",
			slog.Int("cleaned", cleaned),
		)
	}
	return cleaned
}
