// admin.go — административные endpoints: статистика архива, сверка
// диска с каталогом, работа с орфанами (только роль admin).
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/arturkryukov/lifearchive/internal/api/errors"
	"github.com/arturkryukov/lifearchive/internal/catalog"
	"github.com/arturkryukov/lifearchive/internal/domain/model"
	"github.com/arturkryukov/lifearchive/internal/service"
	"github.com/arturkryukov/lifearchive/internal/storage/layout"
)

// AdminHandler — обработчик административных endpoints.
type AdminHandler struct {
	repo         catalog.FileRepository
	reconcileSvc *service.ReconcileService
	logger       *slog.Logger
}

// NewAdminHandler создаёт обработчик административных endpoints.
func NewAdminHandler(
	repo catalog.FileRepository,
	reconcileSvc *service.ReconcileService,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		repo:         repo,
		reconcileSvc: reconcileSvc,
		logger:       logger.With(slog.String("component", "admin_handler")),
	}
}

// statsResponse — сводная статистика архива.
type statsResponse struct {
	ActiveFiles  int                    `json:"active_files"`
	DeletedFiles int                    `json:"deleted_files"`
	TotalBytes   int64                  `json:"total_bytes"`
	Categories   []catalog.CategoryStat `json:"categories"`
	// RecentUploads — последние принятые активные записи
	RecentUploads []*model.FileRecord `json:"recent_uploads"`
}

// recentUploadsLimit — количество последних загрузок в статистике.
const recentUploadsLimit = 10

// Stats обрабатывает GET /api/v1/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	active, deleted, err := h.repo.CountsByState(r.Context())
	if err != nil {
		h.logger.Error("Ошибка подсчёта записей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось собрать статистику")
		return
	}

	categories, err := h.repo.StatsByCategory(r.Context())
	if err != nil {
		h.logger.Error("Ошибка агрегации по категориям", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось собрать статистику")
		return
	}

	activeState := model.StateActive
	recent, err := h.repo.List(r.Context(),
		catalog.FileListFilters{State: &activeState}, recentUploadsLimit, 0)
	if err != nil {
		h.logger.Error("Ошибка получения последних загрузок", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось собрать статистику")
		return
	}

	var totalBytes int64
	for _, c := range categories {
		totalBytes += c.Bytes
	}
	if categories == nil {
		categories = []catalog.CategoryStat{}
	}
	if recent == nil {
		recent = []*model.FileRecord{}
	}

	respondJSON(w, http.StatusOK, statsResponse{
		ActiveFiles:   active,
		DeletedFiles:  deleted,
		TotalBytes:    totalBytes,
		Categories:    categories,
		RecentUploads: recent,
	})
}

// Scan обрабатывает POST /api/v1/maintenance/scan — запуск сверки.
func (h *AdminHandler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconcileSvc.Scan(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrScanInProgress) {
			apierrors.ScanInProgress(w, "Сверка уже выполняется")
			return
		}
		h.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось выполнить сверку")
		return
	}

	if report.Issues == nil {
		report.Issues = []service.Issue{}
	}
	respondJSON(w, http.StatusOK, report)
}

// orphanRequest — тело запроса операции над орфаном.
type orphanRequest struct {
	Path string `json:"path"`
}

// DeleteOrphan обрабатывает POST /api/v1/maintenance/orphans/delete.
func (h *AdminHandler) DeleteOrphan(w http.ResponseWriter, r *http.Request) {
	var req orphanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		apierrors.ValidationError(w, "Ожидается JSON с полем path")
		return
	}

	if err := h.reconcileSvc.DeleteOrphan(r.Context(), req.Path); err != nil {
		h.writeReconcileError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"path":   req.Path,
	})
}

// ReadmitOrphan обрабатывает POST /api/v1/maintenance/orphans/readmit.
func (h *AdminHandler) ReadmitOrphan(w http.ResponseWriter, r *http.Request) {
	var req orphanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		apierrors.ValidationError(w, "Ожидается JSON с полем path")
		return
	}

	record, err := h.reconcileSvc.ReadmitOrphan(r.Context(), req.Path)
	if err != nil {
		h.writeReconcileError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, record)
}

// writeReconcileError переводит ошибки сверки в HTTP-ответы.
func (h *AdminHandler) writeReconcileError(w http.ResponseWriter, err error) {
	var dupErr *service.DuplicateError
	switch {
	case errors.As(err, &dupErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    apierrors.CodeDuplicateFile,
				"message": "Содержимое орфана уже есть в каталоге",
			},
			"existing": dupErr.Existing,
		})
	case errors.Is(err, layout.ErrStorage):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		apierrors.NotFound(w, "Запись не найдена")
	default:
		h.logger.Error("Ошибка операции над орфаном", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
