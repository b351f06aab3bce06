// papers.go — сервис каталога статей.
// Чтение каталога через scope видимости вызывающего,
// административное удаление с отклонением pending-запросов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/visibility"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
)

// AttachmentDeleter — удаление вложения с диска.
// Реализуется attachstore.Store.
type AttachmentDeleter interface {
	Delete(attachmentID string) error
}

// PaperItem — статья вместе с дескриптором допустимых действий
// вызывающего.
type PaperItem struct {
	Paper      *model.Paper
	Descriptor visibility.Descriptor
}

// PaperService — сервис каталога статей.
type PaperService struct {
	tx          TxManager
	paperRepo   repository.PaperRepository
	requestRepo repository.ApprovalRequestRepository
	attachments AttachmentDeleter
	logger      *slog.Logger
	now         func() time.Time
}

// NewPaperService создаёт сервис каталога.
func NewPaperService(
	tx TxManager,
	paperRepo repository.PaperRepository,
	requestRepo repository.ApprovalRequestRepository,
	attachments AttachmentDeleter,
	logger *slog.Logger,
) *PaperService {
	return &PaperService{
		tx:          tx,
		paperRepo:   paperRepo,
		requestRepo: requestRepo,
		attachments: attachments,
		logger:      logger.With(slog.String("component", "paper_service")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List возвращает статьи с фильтрацией и пагинацией внутри scope
// видимости вызывающего: каталог для подателя — только approved,
// "мои статьи" — все статусы владельца, админ видит всё.
func (s *PaperService) List(ctx context.Context, caller visibility.Caller, view visibility.View, filters repository.PaperListFilters, limit, offset int) ([]PaperItem, int, error) {
	scope := visibility.Resolve(caller, view)
	filters.Statuses = scope.Statuses
	filters.OwnerID = scope.OwnerID

	papers, err := s.paperRepo.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка статей: %w", err)
	}

	total, err := s.paperRepo.Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт статей: %w", err)
	}

	items := make([]PaperItem, 0, len(papers))
	for _, p := range papers {
		d, err := s.describe(ctx, caller, p)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, PaperItem{Paper: p, Descriptor: d})
	}

	return items, total, nil
}

// Get возвращает статью по ID в пределах видимости вызывающего.
// Невидимая статья неотличима от несуществующей.
func (s *PaperService) Get(ctx context.Context, caller visibility.Caller, paperID string) (*PaperItem, error) {
	p, err := s.paperRepo.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение статьи: %w", err)
	}

	if !visibility.CanSee(caller, p) {
		return nil, ErrNotFound
	}

	d, err := s.describe(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	return &PaperItem{Paper: p, Descriptor: d}, nil
}

// Delete удаляет статью из каталога (только админ).
// Pending-запросы на статью отклоняются в той же транзакции,
// терминальные запросы сохраняются для аудита. Вложение
// удаляется с диска best-effort после коммита.
func (s *PaperService) Delete(ctx context.Context, caller visibility.Caller, paperID string) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}

	var attachmentID *string
	err := s.tx.InTx(ctx, func(papers repository.PaperRepository, requests repository.ApprovalRequestRepository) error {
		p, err := papers.GetByID(ctx, paperID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("получение статьи: %w", err)
		}
		attachmentID = p.Snapshot.AttachmentID

		rejected, err := requests.RejectPendingForTarget(ctx, paperID, caller.ID, "целевая статья удалена", s.now())
		if err != nil {
			return fmt.Errorf("отклонение pending-запросов: %w", err)
		}
		if rejected > 0 {
			s.logger.Info("Pending-запросы на удаляемую статью отклонены",
				slog.String("paper_id", paperID),
				slog.Int("count", rejected),
			)
		}

		if err := papers.Delete(ctx, paperID); err != nil {
			return fmt.Errorf("удаление статьи: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if attachmentID != nil {
		if err := s.attachments.Delete(*attachmentID); err != nil {
			s.logger.Warn("Не удалось удалить вложение статьи",
				slog.String("paper_id", paperID),
				slog.String("attachment_id", *attachmentID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("Статья удалена",
		slog.String("paper_id", paperID),
		slog.String("deleted_by", caller.ID),
	)

	return nil
}

// describe строит дескриптор допустимых действий вызывающего
// над статьёй. Проверка pending-запроса выполняется только там,
// где она влияет на результат.
func (s *PaperService) describe(ctx context.Context, caller visibility.Caller, p *model.Paper) (visibility.Descriptor, error) {
	hasPending := false
	if p.Status == model.PaperStatusApproved && (caller.IsAdmin() || p.OwnerID == caller.ID) {
		var err error
		hasPending, err = s.requestRepo.HasPendingForTarget(ctx, p.ID)
		if err != nil {
			return visibility.Descriptor{}, fmt.Errorf("проверка pending-запроса: %w", err)
		}
	}
	return visibility.DescriptorFor(caller, p, hasPending), nil
}
