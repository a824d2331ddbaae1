// Пакет model — доменные модели Life Archive.
// FileRecord — запись каталога о загруженном файле, FileMetadata —
// производные и пользовательские метаданные (хранятся отдельной таблицей).
package model

import (
	"strings"
	"time"
)

// LifecycleState — состояние жизненного цикла файла в каталоге.
type LifecycleState string

const (
	// StateActive — файл доступен, лежит в живой категорийной директории
	StateActive LifecycleState = "active"
	// StateDeleted — мягко удалён, файл перемещён в карантин deleted_for_review
	StateDeleted LifecycleState = "deleted"
)

// FileRecord — запись каталога (Ingestion Ledger) об одном файле.
// Checksum уникален среди active записей: инвариант «не более одной
// активной копии содержимого» обеспечивается частичным уникальным
// индексом в SQLite.
type FileRecord struct {
	// ID — уникальный идентификатор записи (UUID v4), неизменяемый
	ID string `json:"id"`

	// OriginalName — имя файла, указанное при загрузке
	OriginalName string `json:"original_name"`

	// StoragePath — абсолютный путь к текущему местоположению файла.
	// Меняется при soft delete (карантин) и restore (обратно в категорию).
	StoragePath string `json:"storage_path"`

	// MediaType — MIME-классификация содержимого
	MediaType string `json:"media_type"`

	// ByteSize — размер файла на момент приёма
	ByteSize int64 `json:"byte_size"`

	// Checksum — SHA-256 содержимого, lowercase hex
	Checksum string `json:"checksum"`

	// State — текущее состояние жизненного цикла
	State LifecycleState `json:"state"`

	// IngestedAt — время приёма файла (UTC)
	IngestedAt time.Time `json:"ingested_at"`

	// DeletedAt — время мягкого удаления (UTC). nil для active записей.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Meta — метаданные файла (ноль или одна запись)
	Meta *FileMetadata `json:"metadata,omitempty"`

	// Tags — имена тегов (нижний регистр, без дубликатов)
	Tags []string `json:"tags,omitempty"`
}

// FileMetadata — метаданные файла. Category денормализована сюда
// для быстрых выборок при просмотре по категориям.
type FileMetadata struct {
	// Title — заголовок, по умолчанию оригинальное имя файла
	Title string `json:"title"`

	// Description — описание (опционально)
	Description string `json:"description,omitempty"`

	// Keywords — ключевые слова свободным текстом (опционально)
	Keywords string `json:"keywords,omitempty"`

	// Category — категория хранения вида «documents/financial»,
	// вычисляется классификатором при приёме
	Category string `json:"category"`

	// ExtractedText — текст, извлечённый внешним OCR-коллаборатором
	// (опционально; ядро его не вычисляет)
	ExtractedText string `json:"extracted_text,omitempty"`
}

// IsActive проверяет, что запись в активном состоянии.
func (r *FileRecord) IsActive() bool {
	return r.State == StateActive
}

// Category возвращает категорию хранения или пустую строку,
// если метаданные отсутствуют.
func (r *FileRecord) Category() string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta.Category
}

// NormalizeTags приводит имена тегов к нижнему регистру, обрезает
// пробелы и удаляет дубликаты с сохранением порядка.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var result []string
	for _, t := range tags {
		name := strings.ToLower(strings.TrimSpace(t))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	return result
}
