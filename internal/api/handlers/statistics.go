// statistics.go — обработчик /api/v1/statistics.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/ToshikSoni/ResearchWeb/internal/api/errors"
)

// GetStatistics — GET /api/v1/statistics.
// Возвращает счётчики каталога для вызывающего.
// Результат кэшируется per-caller с TTL.
func (h *APIHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	stats, err := h.stats.Get(r.Context(), caller)
	if err != nil {
		h.logger.Error("Ошибка подсчёта статистики", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка подсчёта статистики")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
