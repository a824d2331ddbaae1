// Пакет handlers — HTTP-обработчики API Life Archive.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// respondJSON сериализует payload в JSON-ответ с указанным статусом.
func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// parsePagination читает limit/offset из query-параметров.
// Возвращает значения по умолчанию (50, 0) при отсутствии.
func parsePagination(r *http.Request) (limit, offset int, errMsg string) {
	limit = 50
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			return 0, 0, "Параметр limit должен быть от 1 до 1000"
		}
		limit = n
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, "Параметр offset не может быть отрицательным"
		}
		offset = n
	}

	return limit, offset, ""
}
