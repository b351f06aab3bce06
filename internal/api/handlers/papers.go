// papers.go — обработчики /api/v1/papers endpoints.
// Чтение каталога, подача заявок на добавление и изменение,
// административное удаление, скачивание PDF-вложений.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/ToshikSoni/ResearchWeb/internal/api/errors"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/visibility"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
	"github.com/ToshikSoni/ResearchWeb/internal/service"
	"github.com/ToshikSoni/ResearchWeb/internal/storage/attachstore"
)

// ListPapers — GET /api/v1/papers.
// Возвращает статьи в пределах видимости вызывающего.
// view=catalog (по умолчанию) — общий каталог, view=mine — статьи вызывающего.
func (h *APIHandler) ListPapers(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	q := r.URL.Query()
	view := visibility.ViewCatalog
	if v := q.Get("view"); v != "" {
		var err error
		view, err = visibility.ParseView(v)
		if err != nil {
			apierrors.ValidationError(w, "Некорректный view: допустимы catalog и mine")
			return
		}
	}

	filters := repository.PaperListFilters{
		Search:  optionalString(q, "search"),
		Author:  optionalString(q, "author"),
		Journal: optionalString(q, "journal"),
		Keyword: optionalString(q, "keyword"),
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр year должен быть числом")
			return
		}
		filters.Year = &year
	}

	limit, offset := paginationParams(q)

	items, total, err := h.papers.List(r.Context(), caller, view, filters, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка статей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения списка статей")
		return
	}

	responses := make([]paperResponse, 0, len(items))
	for _, it := range items {
		responses = append(responses, mapPaper(it))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:  responses,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetPaper — GET /api/v1/papers/{paperID}.
// Невидимая вызывающему статья неотличима от несуществующей.
func (h *APIHandler) GetPaper(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	paperID := chi.URLParam(r, "paperID")
	item, err := h.papers.Get(r.Context(), caller, paperID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Статья не найдена")
			return
		}
		h.logger.Error("Ошибка получения статьи", slog.String("paper_id", paperID), slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статьи")
		return
	}

	writeJSON(w, http.StatusOK, mapPaper(*item))
}

// ProposeCreatePaper — POST /api/v1/papers.
// Создаёт запрос на добавление статьи. Принимает application/json
// со снимком статьи или multipart/form-data с полем paper (JSON)
// и опциональным PDF-файлом file.
// Статья появится в каталоге только после одобрения.
func (h *APIHandler) ProposeCreatePaper(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	snap, ok := h.parseSnapshot(w, r)
	if !ok {
		return
	}

	req, err := h.workflow.SubmitCreate(r.Context(), caller, snap)
	if err != nil {
		h.writeWorkflowError(w, err, "Ошибка создания запроса")
		return
	}

	writeJSON(w, http.StatusAccepted, mapRequest(req))
}

// ProposeUpdatePaper — PUT /api/v1/papers/{paperID}.
// Создаёт запрос на изменение статьи. Формат тела как у POST.
// Изменение применится к каталогу только после одобрения.
func (h *APIHandler) ProposeUpdatePaper(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	snap, ok := h.parseSnapshot(w, r)
	if !ok {
		return
	}

	paperID := chi.URLParam(r, "paperID")
	req, err := h.workflow.SubmitUpdate(r.Context(), caller, paperID, snap)
	if err != nil {
		h.writeWorkflowError(w, err, "Ошибка создания запроса")
		return
	}

	writeJSON(w, http.StatusAccepted, mapRequest(req))
}

// DeletePaper — DELETE /api/v1/papers/{paperID}.
// Удаляет статью из каталога (только admin). Pending-запросы на
// статью отклоняются автоматически.
func (h *APIHandler) DeletePaper(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	paperID := chi.URLParam(r, "paperID")
	if err := h.papers.Delete(r.Context(), caller, paperID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Статья не найдена")
		case errors.Is(err, service.ErrForbidden):
			apierrors.Forbidden(w, "Удаление доступно только администратору")
		default:
			h.logger.Error("Ошибка удаления статьи", slog.String("paper_id", paperID), slog.String("error", err.Error()))
			apierrors.InternalError(w, "Ошибка удаления статьи")
		}
		return
	}

	h.stats.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// DownloadPaperPDF — GET /api/v1/papers/{paperID}/pdf.
// Отдаёт PDF-вложение статьи. Видимость статьи проверяется
// так же, как при чтении метаданных.
func (h *APIHandler) DownloadPaperPDF(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r)
	if !ok {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	paperID := chi.URLParam(r, "paperID")
	item, err := h.papers.Get(r.Context(), caller, paperID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Статья не найдена")
			return
		}
		h.logger.Error("Ошибка получения статьи", slog.String("paper_id", paperID), slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статьи")
		return
	}

	if item.Paper.Snapshot.AttachmentID == nil {
		apierrors.NotFound(w, "У статьи нет PDF-вложения")
		return
	}

	f, size, err := h.attachments.Open(*item.Paper.Snapshot.AttachmentID)
	if err != nil {
		h.logger.Error("Ошибка открытия вложения",
			slog.String("paper_id", paperID),
			slog.String("attachment_id", *item.Paper.Snapshot.AttachmentID),
			slog.String("error", err.Error()),
		)
		apierrors.NotFound(w, "Вложение не найдено")
		return
	}
	defer f.Close()

	filename := sanitizeFilename(item.Paper.Snapshot.Title) + ".pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	http.ServeContent(w, r, filename, item.Paper.UpdatedAt, f)
}

// parseSnapshot извлекает снимок статьи из тела запроса.
// Поддерживает application/json и multipart/form-data
// (поле paper — JSON снимка, поле file — опциональный PDF).
// При ошибке пишет ответ и возвращает ok=false.
func (h *APIHandler) parseSnapshot(w http.ResponseWriter, r *http.Request) (model.PaperSnapshot, bool) {
	var snap model.PaperSnapshot

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		apierrors.ValidationError(w, "Некорректный Content-Type")
		return snap, false
	}

	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
			return snap, false
		}
		if !h.validateAttachmentRef(w, &snap) {
			return snap, false
		}
		return snap, true
	}

	// multipart: лимит тела с запасом на метаданные
	if err := r.ParseMultipartForm(h.attachments.MaxBytes() + 1<<20); err != nil {
		apierrors.ValidationError(w, "Ошибка разбора multipart: "+err.Error())
		return snap, false
	}

	paperJSON := r.FormValue("paper")
	if paperJSON == "" {
		apierrors.ValidationError(w, "Поле paper (JSON) обязательно")
		return snap, false
	}
	if err := json.Unmarshal([]byte(paperJSON), &snap); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в поле paper: "+err.Error())
		return snap, false
	}
	if !h.validateAttachmentRef(w, &snap) {
		return snap, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return snap, true
		}
		apierrors.ValidationError(w, "Ошибка чтения файла: "+err.Error())
		return snap, false
	}
	defer file.Close()

	result, err := h.attachments.Save(file)
	if err != nil {
		switch {
		case errors.Is(err, attachstore.ErrNotPDF):
			apierrors.ValidationError(w, "Допустимы только PDF-файлы")
		case errors.Is(err, attachstore.ErrTooLarge):
			apierrors.ValidationError(w, "Файл превышает допустимый размер")
		default:
			h.logger.Error("Ошибка сохранения вложения", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Ошибка сохранения вложения")
		}
		return snap, false
	}

	snap.AttachmentID = &result.AttachmentID
	return snap, true
}

// validateAttachmentRef проверяет клиентскую ссылку на вложение.
// Допустимы только UUID вложений, реально существующих в хранилище:
// произвольная строка дошла бы до реестра и сорвала бы одобрение.
func (h *APIHandler) validateAttachmentRef(w http.ResponseWriter, snap *model.PaperSnapshot) bool {
	if snap.AttachmentID == nil {
		return true
	}
	if _, err := uuid.Parse(*snap.AttachmentID); err != nil {
		apierrors.ValidationError(w, "attachment_id не является корректным UUID")
		return false
	}
	if !h.attachments.Exists(*snap.AttachmentID) {
		apierrors.ValidationError(w, "Вложение "+*snap.AttachmentID+" не найдено")
		return false
	}
	return true
}

// writeWorkflowError маппит ошибки сервисного слоя на HTTP-ответы.
func (h *APIHandler) writeWorkflowError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Статья не найдена")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Недостаточно прав")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		apierrors.InvalidState(w, err.Error())
	default:
		h.logger.Error(logMsg, slog.String("error", err.Error()))
		apierrors.InternalError(w, logMsg)
	}
}

// sanitizeFilename убирает из имени файла символы, небезопасные
// для заголовка Content-Disposition.
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		return "paper"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	return name
}
