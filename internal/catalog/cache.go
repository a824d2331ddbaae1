package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/lifearchive/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "la_catalog_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей каталога.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "la_catalog_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей каталога.",
	})
)

// CachedFileRepository — read-through LRU-кэш поверх FileRepository.
// Кэшируются только одиночные выборки GetByID; записи с TTL,
// мутации инвалидируют кэш по ID.
type CachedFileRepository struct {
	FileRepository
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewCachedFileRepository оборачивает репозиторий LRU-кэшем.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewCachedFileRepository(inner FileRepository, maxSize int, ttl time.Duration) *CachedFileRepository {
	return &CachedFileRepository{
		FileRepository: inner,
		cache:          expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl),
	}
}

// GetByID возвращает запись из кэша либо из репозитория.
func (c *CachedFileRepository) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	if f, ok := c.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return f, nil
	}
	cacheMissesTotal.Inc()

	f, err := c.FileRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, f)
	return f, nil
}

// SoftDelete инвалидирует кэш и делегирует репозиторию.
func (c *CachedFileRepository) SoftDelete(ctx context.Context, id, quarantinePath string, deletedAt time.Time) error {
	c.cache.Remove(id)
	return c.FileRepository.SoftDelete(ctx, id, quarantinePath, deletedAt)
}

// Restore инвалидирует кэш и делегирует репозиторию.
func (c *CachedFileRepository) Restore(ctx context.Context, id, restoredPath, category string) error {
	c.cache.Remove(id)
	return c.FileRepository.Restore(ctx, id, restoredPath, category)
}

// UpdateMetadata инвалидирует кэш и делегирует репозиторию.
func (c *CachedFileRepository) UpdateMetadata(ctx context.Context, id string, meta *model.FileMetadata, tags []string) error {
	c.cache.Remove(id)
	return c.FileRepository.UpdateMetadata(ctx, id, meta, tags)
}
