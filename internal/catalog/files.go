package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/arturkryukov/lifearchive/internal/domain/model"
)

// FileRepository — интерфейс доступа к записям каталога.
type FileRepository interface {
	// Create создаёт запись файла вместе с метаданными и тегами
	// одной транзакцией.
	Create(ctx context.Context, f *model.FileRecord) error
	// GetByID возвращает запись по UUID вместе с метаданными и тегами.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// FindActiveByChecksum возвращает активную запись с данным checksum.
	FindActiveByChecksum(ctx context.Context, checksum string) (*model.FileRecord, error)
	// List возвращает записи с фильтрацией, сортировка по времени приёма.
	List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*model.FileRecord, error)
	// Count возвращает количество записей с фильтрацией.
	Count(ctx context.Context, filters FileListFilters) (int, error)
	// Search ищет активные записи по подстроке в имени, заголовке,
	// описании, ключевых словах, извлечённом тексте и именах тегов.
	Search(ctx context.Context, query string, limit, offset int) ([]*model.FileRecord, error)
	// SoftDelete переводит активную запись в deleted и сохраняет
	// карантинный путь.
	SoftDelete(ctx context.Context, id, quarantinePath string, deletedAt time.Time) error
	// Restore переводит deleted-запись обратно в active, обновляет
	// путь и категорию.
	Restore(ctx context.Context, id, restoredPath, category string) error
	// UpdateMetadata обновляет пользовательские метаданные и теги.
	UpdateMetadata(ctx context.Context, id string, meta *model.FileMetadata, tags []string) error
	// KnownPaths возвращает отображение storage_path → id для всех записей.
	KnownPaths(ctx context.Context) (map[string]string, error)
	// CountsByState возвращает количество записей по состояниям.
	CountsByState(ctx context.Context) (active, deleted int, err error)
	// StatsByCategory возвращает агрегаты по категориям активных записей.
	StatsByCategory(ctx context.Context) ([]CategoryStat, error)
}

// FileListFilters — фильтры для списка записей.
type FileListFilters struct {
	// State — фильтр по состоянию (active/deleted)
	State *model.LifecycleState
	// Category — точное совпадение категории
	Category *string
	// CategoryPrefix — префикс категории (корзина, например "documents")
	CategoryPrefix *string
	// Tag — имя тега
	Tag *string
}

// CategoryStat — агрегат по одной категории.
type CategoryStat struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Bytes    int64  `json:"bytes"`
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	db *sql.DB
	tx *TxRunner
}

// NewFileRepository создаёт репозиторий каталога.
func NewFileRepository(db *sql.DB) FileRepository {
	return &fileRepo{db: db, tx: NewTxRunner(db)}
}

// fileColumns — общий SELECT-список записи с метаданными.
const fileColumns = `
	f.id, f.original_name, f.storage_path, f.media_type, f.byte_size,
	f.checksum, f.state, f.ingested_at, f.deleted_at,
	m.title, m.description, m.keywords, m.category, m.extracted_text`

const fileFrom = `
	FROM files f
	JOIN metadata m ON m.file_id = f.id`

func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	if f.Meta == nil {
		return fmt.Errorf("запись %s без метаданных", f.ID)
	}

	err := r.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO files (id, original_name, storage_path, media_type, byte_size,
				checksum, state, ingested_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.OriginalName, f.StoragePath, f.MediaType, f.ByteSize,
			f.Checksum, f.State, f.IngestedAt, f.DeletedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO metadata (file_id, title, description, keywords, category, extracted_text)
			VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, f.Meta.Title, f.Meta.Description, f.Meta.Keywords,
			f.Meta.Category, f.Meta.ExtractedText,
		)
		if err != nil {
			return err
		}

		return attachTags(ctx, tx, f.ID, f.Tags)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: активная запись с таким содержимым или путём уже есть", ErrDuplicate)
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := `SELECT` + fileColumns + fileFrom + ` WHERE f.id = ?`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}

	if err := r.loadTags(ctx, []*model.FileRecord{f}); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *fileRepo) FindActiveByChecksum(ctx context.Context, checksum string) (*model.FileRecord, error) {
	query := `SELECT` + fileColumns + fileFrom + ` WHERE f.checksum = ? AND f.state = 'active'`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, checksum))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по checksum: %w", err)
	}

	if err := r.loadTags(ctx, []*model.FileRecord{f}); err != nil {
		return nil, err
	}
	return f, nil
}

// buildFileWhere строит WHERE-условие и аргументы для фильтрации записей.
func buildFileWhere(filters FileListFilters) (string, []any) {
	var conditions []string
	var args []any

	if filters.State != nil {
		conditions = append(conditions, "f.state = ?")
		args = append(args, *filters.State)
	}
	if filters.Category != nil {
		conditions = append(conditions, "m.category = ?")
		args = append(args, *filters.Category)
	}
	if filters.CategoryPrefix != nil {
		conditions = append(conditions, "m.category LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(*filters.CategoryPrefix)+"%")
	}
	if filters.Tag != nil {
		conditions = append(conditions,
			"f.id IN (SELECT ft.file_id FROM file_tags ft JOIN tags t ON t.id = ft.tag_id WHERE t.name = ?)")
		args = append(args, *filters.Tag)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *fileRepo) List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*model.FileRecord, error) {
	where, args := buildFileWhere(filters)

	query := `SELECT` + fileColumns + fileFrom + where +
		` ORDER BY f.ingested_at DESC, f.id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return r.queryFiles(ctx, query, args...)
}

func (r *fileRepo) Count(ctx context.Context, filters FileListFilters) (int, error) {
	where, args := buildFileWhere(filters)
	query := `SELECT COUNT(*)` + fileFrom + where

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return count, nil
}

func (r *fileRepo) Search(ctx context.Context, q string, limit, offset int) ([]*model.FileRecord, error) {
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"

	// Имена тегов хранятся в нижнем регистре, lower() не нужен
	query := `SELECT` + fileColumns + fileFrom + `
		WHERE f.state = 'active' AND (
			lower(f.original_name) LIKE ? ESCAPE '\' OR
			lower(m.title) LIKE ? ESCAPE '\' OR
			lower(m.description) LIKE ? ESCAPE '\' OR
			lower(m.keywords) LIKE ? ESCAPE '\' OR
			lower(m.extracted_text) LIKE ? ESCAPE '\' OR
			f.id IN (
				SELECT ft.file_id FROM file_tags ft
				JOIN tags t ON t.id = ft.tag_id
				WHERE t.name LIKE ? ESCAPE '\'
			)
		)
		ORDER BY f.ingested_at DESC, f.id
		LIMIT ? OFFSET ?`

	return r.queryFiles(ctx, query, pattern, pattern, pattern, pattern, pattern, pattern, limit, offset)
}

func (r *fileRepo) SoftDelete(ctx context.Context, id, quarantinePath string, deletedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE files
		SET state = 'deleted', storage_path = ?, deleted_at = ?
		WHERE id = ? AND state = 'active'`,
		quarantinePath, deletedAt, id,
	)
	if err != nil {
		return fmt.Errorf("ошибка мягкого удаления: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка мягкого удаления: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) Restore(ctx context.Context, id, restoredPath, category string) error {
	err := r.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE files
			SET state = 'active', storage_path = ?, deleted_at = NULL
			WHERE id = ? AND state = 'deleted'`,
			restoredPath, id,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `UPDATE metadata SET category = ? WHERE file_id = ?`, category, id)
		return err
	})
	if err != nil {
		if err == ErrNotFound {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			// Пока запись лежала в карантине, её содержимое приняли заново
			return fmt.Errorf("%w: активная запись с таким содержимым уже есть", ErrDuplicate)
		}
		return fmt.Errorf("ошибка восстановления: %w", err)
	}
	return nil
}

func (r *fileRepo) UpdateMetadata(ctx context.Context, id string, meta *model.FileMetadata, tags []string) error {
	err := r.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE metadata
			SET title = ?, description = ?, keywords = ?, extracted_text = ?
			WHERE file_id = ?`,
			meta.Title, meta.Description, meta.Keywords, meta.ExtractedText, id,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = ?`, id); err != nil {
			return err
		}
		return attachTags(ctx, tx, id, tags)
	})
	if err != nil {
		if err == ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления метаданных: %w", err)
	}
	return nil
}

func (r *fileRepo) KnownPaths(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT storage_path, id FROM files`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения путей каталога: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]string)
	for rows.Next() {
		var path, id string
		if err := rows.Scan(&path, &id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пути: %w", err)
		}
		paths[path] = id
	}
	return paths, rows.Err()
}

func (r *fileRepo) CountsByState(ctx context.Context) (active, deleted int, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM files GROUP BY state`)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта по состояниям: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return 0, 0, fmt.Errorf("ошибка сканирования: %w", err)
		}
		switch model.LifecycleState(state) {
		case model.StateActive:
			active = count
		case model.StateDeleted:
			deleted = count
		}
	}
	return active, deleted, rows.Err()
}

func (r *fileRepo) StatsByCategory(ctx context.Context) ([]CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.category, COUNT(*), COALESCE(SUM(f.byte_size), 0)
		FROM files f
		JOIN metadata m ON m.file_id = f.id
		WHERE f.state = 'active'
		GROUP BY m.category
		ORDER BY m.category`)
	if err != nil {
		return nil, fmt.Errorf("ошибка агрегации по категориям: %w", err)
	}
	defer rows.Close()

	var stats []CategoryStat
	for rows.Next() {
		var s CategoryStat
		if err := rows.Scan(&s.Category, &s.Count, &s.Bytes); err != nil {
			return nil, fmt.Errorf("ошибка сканирования агрегата: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// queryFiles выполняет запрос списка записей и догружает теги.
func (r *fileRepo) queryFiles(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadTags(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// rowScanner — общий интерфейс *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFile читает одну запись из строки результата.
func scanFile(row rowScanner) (*model.FileRecord, error) {
	f := &model.FileRecord{Meta: &model.FileMetadata{}}
	var deletedAt sql.NullTime

	err := row.Scan(
		&f.ID, &f.OriginalName, &f.StoragePath, &f.MediaType, &f.ByteSize,
		&f.Checksum, &f.State, &f.IngestedAt, &deletedAt,
		&f.Meta.Title, &f.Meta.Description, &f.Meta.Keywords,
		&f.Meta.Category, &f.Meta.ExtractedText,
	)
	if err != nil {
		return nil, err
	}

	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	return f, nil
}

// loadTags догружает теги для набора записей одним запросом.
func (r *fileRepo) loadTags(ctx context.Context, files []*model.FileRecord) error {
	if len(files) == 0 {
		return nil
	}

	byID := make(map[string]*model.FileRecord, len(files))
	placeholders := make([]string, 0, len(files))
	args := make([]any, 0, len(files))
	for _, f := range files {
		byID[f.ID] = f
		placeholders = append(placeholders, "?")
		args = append(args, f.ID)
	}

	query := fmt.Sprintf(`
		SELECT ft.file_id, t.name
		FROM file_tags ft
		JOIN tags t ON t.id = ft.tag_id
		WHERE ft.file_id IN (%s)
		ORDER BY t.name`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ошибка получения тегов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileID, name string
		if err := rows.Scan(&fileID, &name); err != nil {
			return fmt.Errorf("ошибка сканирования тега: %w", err)
		}
		if f, ok := byID[fileID]; ok {
			f.Tags = append(f.Tags, name)
		}
	}
	return rows.Err()
}

// attachTags создаёт недостающие теги и связывает их с записью.
// Имена нормализуются (нижний регистр, без дубликатов).
func attachTags(ctx context.Context, tx *sql.Tx, fileID string, tags []string) error {
	for _, name := range model.NormalizeTags(tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return err
		}

		var tagID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_tags (file_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			fileID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// escapeLike экранирует спецсимволы LIKE-шаблона.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
