package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/visibility"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
)

// paperEnv — связка фейков и PaperService.
type paperEnv struct {
	papers      *fakePaperRepo
	requests    *fakeRequestRepo
	attachments *fakeAttachments
	svc         *PaperService
}

func newPaperEnv() *paperEnv {
	papers := newFakePaperRepo()
	requests := newFakeRequestRepo()
	attachments := &fakeAttachments{}
	tx := &fakeTx{papers: papers, requests: requests}
	svc := NewPaperService(tx, papers, requests, attachments, slog.Default())
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	return &paperEnv{papers: papers, requests: requests, attachments: attachments, svc: svc}
}

// seed наполняет каталог: approved статья подателя, rejected статья
// подателя, approved статья второго подателя.
func (e *paperEnv) seed(t *testing.T) (approved, rejected, foreign *model.Paper) {
	t.Helper()
	ctx := context.Background()

	approved = &model.Paper{
		ID: "p-approved", Snapshot: validSnapshot(),
		Status: model.PaperStatusApproved, OwnerID: submitter.ID, OwnerName: submitter.Name,
	}
	rejected = &model.Paper{
		ID: "p-rejected", Snapshot: validSnapshot(),
		Status: model.PaperStatusRejected, OwnerID: submitter.ID, OwnerName: submitter.Name,
	}
	foreign = &model.Paper{
		ID: "p-foreign", Snapshot: validSnapshot(),
		Status: model.PaperStatusApproved, OwnerID: submitter2.ID, OwnerName: submitter2.Name,
	}
	for _, p := range []*model.Paper{approved, rejected, foreign} {
		if err := e.papers.Insert(ctx, p); err != nil {
			t.Fatalf("Insert ошибка: %v", err)
		}
	}
	return approved, rejected, foreign
}

func TestPaperList_CatalogScope(t *testing.T) {
	env := newPaperEnv()
	env.seed(t)
	ctx := context.Background()

	// Каталог подателя: только approved (2 статьи, включая чужую)
	items, total, err := env.svc.List(ctx, submitter, visibility.ViewCatalog, repository.PaperListFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("List ошибка: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("каталог подателя: %d статей, ожидалось 2", total)
	}
	for _, it := range items {
		if it.Paper.Status != model.PaperStatusApproved {
			t.Errorf("в каталоге подателя статья со статусом %q", it.Paper.Status)
		}
	}

	// Админ видит все статусы
	_, total, err = env.svc.List(ctx, admin, visibility.ViewCatalog, repository.PaperListFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("List ошибка: %v", err)
	}
	if total != 3 {
		t.Errorf("каталог админа: %d статей, ожидалось 3", total)
	}
}

func TestPaperList_MineScope(t *testing.T) {
	env := newPaperEnv()
	env.seed(t)

	// "Мои статьи": все статусы владельца, включая rejected
	items, total, err := env.svc.List(context.Background(), submitter, visibility.ViewMine, repository.PaperListFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("List ошибка: %v", err)
	}
	if total != 2 {
		t.Errorf("мои статьи: %d, ожидалось 2", total)
	}
	for _, it := range items {
		if it.Paper.OwnerID != submitter.ID {
			t.Error("в 'моих статьях' чужая статья")
		}
		if !it.Descriptor.ShowStatus {
			t.Error("в 'моих статьях' статус должен показываться")
		}
	}
}

func TestPaperGet_Visibility(t *testing.T) {
	env := newPaperEnv()
	approved, rejectedPaper, _ := env.seed(t)
	ctx := context.Background()

	// Владелец видит собственную rejected-статью
	if _, err := env.svc.Get(ctx, submitter, rejectedPaper.ID); err != nil {
		t.Errorf("Get(владелец, rejected) = %v", err)
	}

	// Чужая rejected-статья неотличима от несуществующей
	if _, err := env.svc.Get(ctx, submitter2, rejectedPaper.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(чужая rejected) = %v, ожидался ErrNotFound", err)
	}

	// Approved-статья видна всем
	if _, err := env.svc.Get(ctx, submitter2, approved.ID); err != nil {
		t.Errorf("Get(approved) = %v", err)
	}

	// Неизвестный ID
	if _, err := env.svc.Get(ctx, admin, "нет-такой"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) = %v, ожидался ErrNotFound", err)
	}
}

func TestPaperGet_Descriptor(t *testing.T) {
	env := newPaperEnv()
	approved, _, _ := env.seed(t)
	ctx := context.Background()

	// Владелец approved-статьи без pending-запроса может редактировать
	item, err := env.svc.Get(ctx, submitter, approved.ID)
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if !item.Descriptor.CanEdit {
		t.Error("CanEdit = false для владельца без pending-запроса")
	}
	if item.Descriptor.CanDelete {
		t.Error("CanDelete = true для подателя")
	}

	// Pending-запрос на статью блокирует повторное редактирование
	env.requests.Create(ctx, &model.ApprovalRequest{
		ID: "req-1", Kind: model.RequestKindUpdate, TargetPaperID: &approved.ID,
		Proposed: validSnapshot(), SubmitterID: submitter.ID, Status: model.RequestStatusPending,
	})
	item, err = env.svc.Get(ctx, submitter, approved.ID)
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if item.Descriptor.CanEdit {
		t.Error("CanEdit = true при наличии pending-запроса")
	}

	// Админ может удалять
	item, err = env.svc.Get(ctx, admin, approved.ID)
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if !item.Descriptor.CanDelete {
		t.Error("CanDelete = false для админа")
	}
}

func TestPaperDelete(t *testing.T) {
	env := newPaperEnv()
	ctx := context.Background()

	attachID := "attach-1"
	p := &model.Paper{
		ID: "p-1", Snapshot: validSnapshot(),
		Status: model.PaperStatusApproved, OwnerID: submitter.ID,
	}
	p.Snapshot.AttachmentID = &attachID
	env.papers.Insert(ctx, p)

	// Pending-запрос на удаляемую статью
	env.requests.Create(ctx, &model.ApprovalRequest{
		ID: "req-1", Kind: model.RequestKindUpdate, TargetPaperID: &p.ID,
		Proposed: validSnapshot(), SubmitterID: submitter.ID, Status: model.RequestStatusPending,
	})

	// Податель не может удалять
	if err := env.svc.Delete(ctx, submitter, p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Delete(податель) = %v, ожидался ErrForbidden", err)
	}

	if err := env.svc.Delete(ctx, admin, p.ID); err != nil {
		t.Fatalf("Delete(админ) ошибка: %v", err)
	}

	// Статья удалена
	if _, err := env.papers.GetByID(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Error("статья осталась после удаления")
	}

	// Pending-запрос отклонён, сохранён для аудита
	req, err := env.requests.GetByID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByID ошибка: %v", err)
	}
	if req.Status != model.RequestStatusRejected {
		t.Errorf("статус запроса = %q, ожидался rejected", req.Status)
	}
	if req.DecidedBy == nil || *req.DecidedBy != admin.ID {
		t.Error("DecidedBy должен быть ID удаляющего админа")
	}

	// Вложение удалено best-effort
	if len(env.attachments.deleted) != 1 || env.attachments.deleted[0] != attachID {
		t.Errorf("удалённые вложения = %v, ожидался [%s]", env.attachments.deleted, attachID)
	}

	// Повторное удаление
	if err := env.svc.Delete(ctx, admin, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete = %v, ожидался ErrNotFound", err)
	}
}
