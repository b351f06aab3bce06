// workflow.go — движок согласования изменений каталога.
// Все мутации библиографических данных проходят через запросы:
// податель создаёт pending-запрос, админ принимает решение,
// одобрение материализует изменение в каталоге.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/visibility"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
)

// TxManager — запуск репозиторных операций в одной транзакции.
// Реализуется repository.TxRunner; в тестах подменяется фейком.
type TxManager interface {
	InTx(ctx context.Context, fn func(papers repository.PaperRepository, requests repository.ApprovalRequestRepository) error) error
}

// WorkflowService — сервис запросов на изменение каталога.
type WorkflowService struct {
	tx          TxManager
	paperRepo   repository.PaperRepository
	requestRepo repository.ApprovalRequestRepository
	logger      *slog.Logger
	// now — источник времени, подменяется в тестах
	now func() time.Time
}

// NewWorkflowService создаёт сервис запросов.
func NewWorkflowService(
	tx TxManager,
	paperRepo repository.PaperRepository,
	requestRepo repository.ApprovalRequestRepository,
	logger *slog.Logger,
) *WorkflowService {
	return &WorkflowService{
		tx:          tx,
		paperRepo:   paperRepo,
		requestRepo: requestRepo,
		logger:      logger.With(slog.String("component", "workflow_service")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitCreate создаёт запрос на добавление новой статьи в каталог.
// Статья появится в каталоге только после решения админа.
func (s *WorkflowService) SubmitCreate(ctx context.Context, caller visibility.Caller, snap model.PaperSnapshot) (*model.ApprovalRequest, error) {
	if err := snap.Validate(s.now()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	req := &model.ApprovalRequest{
		ID:            uuid.New().String(),
		Kind:          model.RequestKindCreate,
		Proposed:      snap,
		SubmitterID:   caller.ID,
		SubmitterName: caller.Name,
		Status:        model.RequestStatusPending,
	}

	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	s.logger.Info("Запрос на добавление статьи создан",
		slog.String("request_id", req.ID),
		slog.String("submitter_id", caller.ID),
		slog.String("title", snap.Title),
	)

	return req, nil
}

// SubmitUpdate создаёт запрос на изменение существующей статьи.
// Цель должна быть approved-статьёй подателя (админ может предлагать
// изменение любой статьи). На одну цель допускается не более одного
// pending-запроса.
func (s *WorkflowService) SubmitUpdate(ctx context.Context, caller visibility.Caller, paperID string, snap model.PaperSnapshot) (*model.ApprovalRequest, error) {
	if err := snap.Validate(s.now()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	target, err := s.paperRepo.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение целевой статьи: %w", err)
	}

	if !visibility.CanSee(caller, target) {
		return nil, ErrNotFound
	}
	if !caller.IsAdmin() && target.OwnerID != caller.ID {
		return nil, ErrForbidden
	}
	if target.Status != model.PaperStatusApproved {
		return nil, fmt.Errorf("%w: изменять можно только approved-статьи", ErrConflict)
	}

	req := &model.ApprovalRequest{
		ID:            uuid.New().String(),
		Kind:          model.RequestKindUpdate,
		TargetPaperID: &paperID,
		Proposed:      snap,
		SubmitterID:   caller.ID,
		SubmitterName: caller.Name,
		Status:        model.RequestStatusPending,
	}

	// Уникальность pending-запроса на цель гарантирует частичный
	// уникальный индекс; гонка двух подателей разрешается в БД.
	if err := s.requestRepo.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: на статью уже есть нерассмотренный запрос", ErrConflict)
		}
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	s.logger.Info("Запрос на изменение статьи создан",
		slog.String("request_id", req.ID),
		slog.String("target_paper_id", paperID),
		slog.String("submitter_id", caller.ID),
	)

	return req, nil
}

// Decide принимает решение по pending-запросу и материализует его
// эффект в каталоге. Решение и мутация каталога выполняются в одной
// транзакции; повторное решение по тому же запросу отвергается CAS-ом.
func (s *WorkflowService) Decide(ctx context.Context, caller visibility.Caller, requestID, decision, comment string) (*model.ApprovalRequest, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if !model.IsValidDecision(decision) {
		return nil, fmt.Errorf("%w: недопустимое решение %q", ErrValidation, decision)
	}

	status := model.RequestStatusApproved
	if decision == model.DecisionReject {
		status = model.RequestStatusRejected
	}
	decidedAt := s.now()

	var result *model.ApprovalRequest
	err := s.tx.InTx(ctx, func(papers repository.PaperRepository, requests repository.ApprovalRequestRepository) error {
		req, err := requests.GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("получение запроса: %w", err)
		}

		won, err := requests.Decide(ctx, requestID, status, caller.ID, comment, decidedAt)
		if err != nil {
			return fmt.Errorf("решение по запросу: %w", err)
		}
		if !won {
			// Запрос существует, но уже не pending: решение принято ранее
			return ErrInvalidState
		}

		switch {
		case req.Kind == model.RequestKindCreate:
			// Материализуем статью и при отклонении: податель видит
			// её в "моих статьях" со статусом rejected
			paperStatus := model.PaperStatusApproved
			if status == model.RequestStatusRejected {
				paperStatus = model.PaperStatusRejected
			}
			p := &model.Paper{
				ID:        uuid.New().String(),
				Snapshot:  req.Proposed,
				Status:    model.PaperStatusPending,
				OwnerID:   req.SubmitterID,
				OwnerName: req.SubmitterName,
			}
			if err := papers.Insert(ctx, p); err != nil {
				return fmt.Errorf("материализация статьи: %w", err)
			}
			if err := papers.SetStatus(ctx, p.ID, paperStatus); err != nil {
				return fmt.Errorf("установка статуса статьи: %w", err)
			}
		case status == model.RequestStatusApproved:
			// Одобренный update: применяем снимок к целевой статье
			if req.TargetPaperID == nil {
				return fmt.Errorf("update-запрос %s без целевой статьи", requestID)
			}
			if err := papers.ApplyUpdate(ctx, *req.TargetPaperID, req.Proposed); err != nil {
				return fmt.Errorf("применение изменения: %w", err)
			}
		}
		// Отклонённый update: целевая статья остаётся неизменной

		req.Status = status
		req.DecidedBy = &caller.ID
		req.DecidedAt = &decidedAt
		if comment != "" {
			req.AdminComment = &comment
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Решение по запросу принято",
		slog.String("request_id", requestID),
		slog.String("decision", decision),
		slog.String("decided_by", caller.ID),
	)

	return result, nil
}

// ListRequests возвращает список запросов с фильтрацией и пагинацией.
// Податель видит только собственные запросы, админ — все.
func (s *WorkflowService) ListRequests(ctx context.Context, caller visibility.Caller, filters repository.RequestListFilters, limit, offset int) ([]*model.ApprovalRequest, int, error) {
	if filters.Status != nil && !model.IsValidRequestStatus(*filters.Status) {
		return nil, 0, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, *filters.Status)
	}
	if !caller.IsAdmin() {
		filters.SubmitterID = &caller.ID
	}

	reqs, err := s.requestRepo.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка запросов: %w", err)
	}

	total, err := s.requestRepo.Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт запросов: %w", err)
	}

	return reqs, total, nil
}

// GetRequest возвращает запрос по ID.
// Податель видит только собственные запросы.
func (s *WorkflowService) GetRequest(ctx context.Context, caller visibility.Caller, requestID string) (*model.ApprovalRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение запроса: %w", err)
	}

	if !caller.IsAdmin() && req.SubmitterID != caller.ID {
		// Чужие запросы не раскрываем даже фактом существования
		return nil, ErrNotFound
	}

	return req, nil
}
