// handler.go — основной обработчик API каталога статей.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ToshikSoni/ResearchWeb/internal/api/middleware"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/visibility"
	"github.com/ToshikSoni/ResearchWeb/internal/service"
	"github.com/ToshikSoni/ResearchWeb/internal/storage/attachstore"
)

// APIHandler — основной обработчик API каталога.
type APIHandler struct {
	health      *HealthHandler
	papers      *service.PaperService
	workflow    *service.WorkflowService
	stats       *service.StatisticsService
	attachments *attachstore.Store
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	papers *service.PaperService,
	workflow *service.WorkflowService,
	stats *service.StatisticsService,
	attachments *attachstore.Store,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		papers:      papers,
		workflow:    workflow,
		stats:       stats,
		attachments: attachments,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- DTO ---

// paperResponse — представление статьи в ответах API.
// Библиографические поля разворачиваются на верхний уровень.
type paperResponse struct {
	ID string `json:"id"`
	model.PaperSnapshot
	Status    string `json:"status,omitempty"`
	OwnerID   string `json:"owner_id"`
	OwnerName string `json:"owner_name,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	CanEdit   bool   `json:"can_edit"`
	CanDelete bool   `json:"can_delete"`
}

// mapPaper преобразует PaperItem в ответ API.
// Статус скрывается, если дескриптор не разрешает его показ.
func mapPaper(item service.PaperItem) paperResponse {
	resp := paperResponse{
		ID:            item.Paper.ID,
		PaperSnapshot: item.Paper.Snapshot,
		OwnerID:       item.Paper.OwnerID,
		OwnerName:     item.Paper.OwnerName,
		CreatedAt:     item.Paper.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     item.Paper.UpdatedAt.UTC().Format(time.RFC3339),
		CanEdit:       item.Descriptor.CanEdit,
		CanDelete:     item.Descriptor.CanDelete,
	}
	if item.Descriptor.ShowStatus {
		resp.Status = item.Paper.Status
	}
	return resp
}

// requestResponse — представление запроса на изменение в ответах API.
type requestResponse struct {
	ID            string              `json:"id"`
	Kind          string              `json:"kind"`
	TargetPaperID *string             `json:"target_paper_id,omitempty"`
	Proposed      model.PaperSnapshot `json:"proposed"`
	SubmitterID   string              `json:"submitter_id"`
	SubmitterName string              `json:"submitter_name,omitempty"`
	Status        string              `json:"status"`
	AdminComment  *string             `json:"admin_comment,omitempty"`
	DecidedBy     *string             `json:"decided_by,omitempty"`
	CreatedAt     string              `json:"created_at"`
	DecidedAt     *string             `json:"decided_at,omitempty"`
}

func mapRequest(req *model.ApprovalRequest) requestResponse {
	resp := requestResponse{
		ID:            req.ID,
		Kind:          req.Kind,
		TargetPaperID: req.TargetPaperID,
		Proposed:      req.Proposed,
		SubmitterID:   req.SubmitterID,
		SubmitterName: req.SubmitterName,
		Status:        req.Status,
		AdminComment:  req.AdminComment,
		DecidedBy:     req.DecidedBy,
		CreatedAt:     req.CreatedAt.UTC().Format(time.RFC3339),
	}
	if req.DecidedAt != nil {
		decidedAt := req.DecidedAt.UTC().Format(time.RFC3339)
		resp.DecidedAt = &decidedAt
	}
	return resp
}

// listResponse — обёртка списка с пагинацией.
type listResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationParams извлекает и нормализует limit/offset из query.
func paginationParams(q url.Values) (int, int) {
	limit := 100
	offset := 0

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

// optionalString возвращает указатель на непустое значение query-параметра.
func optionalString(q url.Values, key string) *string {
	if v := q.Get(key); v != "" {
		return &v
	}
	return nil
}

// callerFromContext извлекает вызывающего из claims контекста.
// Возвращает (caller, false), если аутентификация не пройдена.
func callerFromContext(r *http.Request) (visibility.Caller, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return visibility.Caller{}, false
	}
	return claims.Caller(), true
}
