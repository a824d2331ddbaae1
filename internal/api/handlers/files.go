// files.go — HTTP handlers файловых операций: приём, список, поиск,
// карточка, скачивание, правка метаданных, мягкое удаление, восстановление.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/arturkryukov/lifearchive/internal/api/errors"
	"github.com/arturkryukov/lifearchive/internal/catalog"
	"github.com/arturkryukov/lifearchive/internal/config"
	"github.com/arturkryukov/lifearchive/internal/domain/model"
	"github.com/arturkryukov/lifearchive/internal/service"
	"github.com/arturkryukov/lifearchive/internal/storage/layout"
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	cfg          *config.Config
	ingestSvc    *service.IngestService
	lifecycleSvc *service.LifecycleService
	repo         catalog.FileRepository
	logger       *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	cfg *config.Config,
	ingestSvc *service.IngestService,
	lifecycleSvc *service.LifecycleService,
	repo catalog.FileRepository,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		cfg:          cfg,
		ingestSvc:    ingestSvc,
		lifecycleSvc: lifecycleSvc,
		repo:         repo,
		logger:       logger.With(slog.String("component", "files_handler")),
	}
}

// listResponse — обёртка списка записей с пагинацией.
type listResponse struct {
	Items  []*model.FileRecord `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// Upload обрабатывает POST /api/v1/files/upload.
// Multipart form: file (обязательно), title, description, keywords,
// tags (опционально, JSON-массив строк).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Запас 1 MB на multipart-заголовки и текстовые поля
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %d байт", h.cfg.MaxUploadSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		apierrors.ValidationError(w, "Имя файла обязательно")
		return
	}
	if header.Size > h.cfg.MaxUploadSize {
		apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", header.Size, h.cfg.MaxUploadSize))
		return
	}

	var tags []string
	if tagsJSON := r.FormValue("tags"); tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный формат тегов: %s", err.Error()))
			return
		}
	}

	// Сохраняем поток в staging-директорию; дальше работает приём
	stagedPath, err := h.stage(file)
	if err != nil {
		h.logger.Error("Ошибка записи в staging", slog.String("error", err.Error()))
		apierrors.StorageError(w, "Не удалось сохранить загружаемый файл")
		return
	}

	record, err := h.ingestSvc.Ingest(r.Context(), service.IngestParams{
		StagedPath:   stagedPath,
		OriginalName: header.Filename,
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		Keywords:     r.FormValue("keywords"),
		Tags:         tags,
	})
	if err != nil {
		// Дубликат сервис убирает сам; при остальных ошибках
		// staged-файл остаётся на месте — это единственная копия
		// данных пользователя, убирает её оператор.
		var dupErr *service.DuplicateError
		if !errors.As(err, &dupErr) {
			h.logger.Warn("Приём не завершён, staged-файл оставлен для разбора",
				slog.String("staged_path", stagedPath),
				slog.String("filename", header.Filename),
			)
		}
		h.writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, record)
}

// stage записывает поток загрузки во временный файл staging-директории.
func (h *FilesHandler) stage(src io.Reader) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadDir, 0o750); err != nil {
		return "", err
	}

	stagedPath := filepath.Join(h.cfg.UploadDir, uuid.New().String()+".upload")
	dst, err := os.Create(stagedPath)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(stagedPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(stagedPath)
		return "", err
	}
	return stagedPath, nil
}

// List обрабатывает GET /api/v1/files.
// Пагинация: limit, offset. Фильтры: category, bucket, tag.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, errMsg := parsePagination(r)
	if errMsg != "" {
		apierrors.ValidationError(w, errMsg)
		return
	}

	active := model.StateActive
	filters := catalog.FileListFilters{State: &active}

	if category := r.URL.Query().Get("category"); category != "" {
		filters.Category = &category
	}
	if bucket := r.URL.Query().Get("bucket"); bucket != "" {
		prefix := bucket + "/"
		filters.CategoryPrefix = &prefix
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		tagLower := strings.ToLower(tag)
		filters.Tag = &tagLower
	}

	items, err := h.repo.List(r.Context(), filters, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список записей")
		return
	}

	total, err := h.repo.Count(r.Context(), filters)
	if err != nil {
		h.logger.Error("Ошибка подсчёта записей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список записей")
		return
	}

	if items == nil {
		items = []*model.FileRecord{}
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// ListDeleted обрабатывает GET /api/v1/files/deleted (только admin).
func (h *FilesHandler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	limit, offset, errMsg := parsePagination(r)
	if errMsg != "" {
		apierrors.ValidationError(w, errMsg)
		return
	}

	deleted := model.StateDeleted
	filters := catalog.FileListFilters{State: &deleted}

	items, err := h.repo.List(r.Context(), filters, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения удалённых записей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список записей")
		return
	}

	total, err := h.repo.Count(r.Context(), filters)
	if err != nil {
		h.logger.Error("Ошибка подсчёта удалённых записей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось получить список записей")
		return
	}

	if items == nil {
		items = []*model.FileRecord{}
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// Search обрабатывает GET /api/v1/files/search?q=...
func (h *FilesHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		apierrors.ValidationError(w, "Параметр q обязателен")
		return
	}

	limit, offset, errMsg := parsePagination(r)
	if errMsg != "" {
		apierrors.ValidationError(w, errMsg)
		return
	}

	items, err := h.repo.Search(r.Context(), q, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка поиска", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось выполнить поиск")
		return
	}

	if items == nil {
		items = []*model.FileRecord{}
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items), Limit: limit, Offset: offset})
}

// Get обрабатывает GET /api/v1/files/{id}.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// Download обрабатывает GET /api/v1/files/{id}/download.
// Отдаёт содержимое активной записи с оригинальным именем.
// http.ServeFile даёт Range requests и ETag бесплатно.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !record.IsActive() {
		apierrors.NotFound(w, "Запись удалена")
		return
	}

	w.Header().Set("Content-Type", record.MediaType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", layout.SanitizeName(record.OriginalName)))
	http.ServeFile(w, r, record.StoragePath)
}

// metadataRequest — тело запроса правки метаданных.
type metadataRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Keywords      string   `json:"keywords"`
	ExtractedText string   `json:"extracted_text"`
	Tags          []string `json:"tags"`
}

// UpdateMetadata обрабатывает PUT /api/v1/files/{id}/metadata.
func (h *FilesHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	var req metadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	record, err := h.lifecycleSvc.UpdateMetadata(r.Context(), id, &model.FileMetadata{
		Title:         req.Title,
		Description:   req.Description,
		Keywords:      req.Keywords,
		ExtractedText: req.ExtractedText,
	}, req.Tags)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// Delete обрабатывает DELETE /api/v1/files/{id} — мягкое удаление.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	record, err := h.lifecycleSvc.SoftDelete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// Restore обрабатывает POST /api/v1/files/{id}/restore (только admin).
func (h *FilesHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	record, err := h.lifecycleSvc.Restore(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// recordID извлекает и валидирует UUID записи из пути.
func recordID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор записи")
		return "", false
	}
	return id, true
}

// writeServiceError переводит ошибки сервисного слоя в HTTP-ответы.
func (h *FilesHandler) writeServiceError(w http.ResponseWriter, err error) {
	var dupErr *service.DuplicateError
	switch {
	case errors.As(err, &dupErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    apierrors.CodeDuplicateFile,
				"message": "Содержимое уже есть в каталоге",
			},
			"existing": dupErr.Existing,
		})
	case errors.Is(err, catalog.ErrNotFound):
		apierrors.NotFound(w, "Запись не найдена")
	case errors.Is(err, layout.ErrStorage):
		h.logger.Error("Ошибка размещения", slog.String("error", err.Error()))
		apierrors.StorageError(w, "Ошибка размещения файла на диске")
	default:
		h.logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
