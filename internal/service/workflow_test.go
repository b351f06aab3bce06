package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/rbac"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/visibility"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
)

var (
	submitter  = visibility.Caller{ID: "user-1", Name: "Alice Lee", Role: rbac.RoleSubmitter}
	submitter2 = visibility.Caller{ID: "user-2", Name: "Bob Chen", Role: rbac.RoleSubmitter}
	admin      = visibility.Caller{ID: "admin-1", Name: "Carol Diaz", Role: rbac.RoleAdmin}
)

// testEnv — связка фейков и сервисов для unit-тестов.
type testEnv struct {
	papers   *fakePaperRepo
	requests *fakeRequestRepo
	workflow *WorkflowService
}

func newTestEnv() *testEnv {
	papers := newFakePaperRepo()
	requests := newFakeRequestRepo()
	tx := &fakeTx{papers: papers, requests: requests}
	wf := NewWorkflowService(tx, papers, requests, slog.Default())
	wf.now = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	return &testEnv{papers: papers, requests: requests, workflow: wf}
}

func validSnapshot() model.PaperSnapshot {
	return model.PaperSnapshot{
		Title:    "Graph Theory Basics",
		Authors:  []string{"A. Lee"},
		Year:     2021,
		Journal:  "Journal of Discrete Mathematics",
		Abstract: "An introduction to graphs.",
		Keywords: []string{"graphs"},
	}
}

// approvedPaper добавляет approved-статью в фейковый каталог.
func (e *testEnv) approvedPaper(t *testing.T, owner visibility.Caller) *model.Paper {
	t.Helper()
	p := &model.Paper{
		ID:        "paper-" + owner.ID,
		Snapshot:  validSnapshot(),
		Status:    model.PaperStatusApproved,
		OwnerID:   owner.ID,
		OwnerName: owner.Name,
	}
	if err := e.papers.Insert(context.Background(), p); err != nil {
		t.Fatalf("Insert ошибка: %v", err)
	}
	return p
}

// --- SubmitCreate ---

func TestSubmitCreate(t *testing.T) {
	env := newTestEnv()

	req, err := env.workflow.SubmitCreate(context.Background(), submitter, validSnapshot())
	if err != nil {
		t.Fatalf("SubmitCreate ошибка: %v", err)
	}

	if req.Status != model.RequestStatusPending {
		t.Errorf("Status = %q, ожидался pending", req.Status)
	}
	if req.Kind != model.RequestKindCreate {
		t.Errorf("Kind = %q, ожидался create", req.Kind)
	}
	if req.TargetPaperID != nil {
		t.Error("TargetPaperID должен быть nil для create-запроса")
	}
	if req.SubmitterID != submitter.ID || req.SubmitterName != submitter.Name {
		t.Errorf("податель = %s/%s, ожидался %s/%s", req.SubmitterID, req.SubmitterName, submitter.ID, submitter.Name)
	}

	// Каталог не изменён до решения
	if n, _ := env.papers.Count(context.Background(), repository.PaperListFilters{}); n != 0 {
		t.Errorf("в каталоге %d статей до решения, ожидалось 0", n)
	}
}

func TestSubmitCreate_Validation(t *testing.T) {
	env := newTestEnv()

	cases := []struct {
		name string
		mod  func(*model.PaperSnapshot)
	}{
		{"пустой title", func(s *model.PaperSnapshot) { s.Title = "" }},
		{"пустые авторы", func(s *model.PaperSnapshot) { s.Authors = nil }},
		{"год до 1900", func(s *model.PaperSnapshot) { s.Year = 1899 }},
		{"год в будущем", func(s *model.PaperSnapshot) { s.Year = 2030 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := validSnapshot()
			tc.mod(&snap)
			if _, err := env.workflow.SubmitCreate(context.Background(), submitter, snap); !errors.Is(err, ErrValidation) {
				t.Errorf("SubmitCreate = %v, ожидался ErrValidation", err)
			}
		})
	}
}

// --- SubmitUpdate ---

func TestSubmitUpdate(t *testing.T) {
	env := newTestEnv()
	p := env.approvedPaper(t, submitter)

	snap := validSnapshot()
	snap.Abstract = "A revised abstract."

	req, err := env.workflow.SubmitUpdate(context.Background(), submitter, p.ID, snap)
	if err != nil {
		t.Fatalf("SubmitUpdate ошибка: %v", err)
	}
	if req.TargetPaperID == nil || *req.TargetPaperID != p.ID {
		t.Error("TargetPaperID должен указывать на целевую статью")
	}

	// Статья не изменена до решения
	got, _ := env.papers.GetByID(context.Background(), p.ID)
	if got.Snapshot.Abstract != "An introduction to graphs." {
		t.Error("статья изменена до решения по запросу")
	}
}

func TestSubmitUpdate_Errors(t *testing.T) {
	env := newTestEnv()
	p := env.approvedPaper(t, submitter)

	// Неизвестная цель
	if _, err := env.workflow.SubmitUpdate(context.Background(), submitter, "нет-такой", validSnapshot()); !errors.Is(err, ErrNotFound) {
		t.Errorf("SubmitUpdate(unknown) = %v, ожидался ErrNotFound", err)
	}

	// Чужая статья
	if _, err := env.workflow.SubmitUpdate(context.Background(), submitter2, p.ID, validSnapshot()); !errors.Is(err, ErrForbidden) {
		t.Errorf("SubmitUpdate(чужая) = %v, ожидался ErrForbidden", err)
	}

	// Не approved цель
	rejected := &model.Paper{
		ID: "paper-rejected", Snapshot: validSnapshot(),
		Status: model.PaperStatusRejected, OwnerID: submitter.ID,
	}
	env.papers.Insert(context.Background(), rejected)
	if _, err := env.workflow.SubmitUpdate(context.Background(), submitter, rejected.ID, validSnapshot()); !errors.Is(err, ErrConflict) {
		t.Errorf("SubmitUpdate(rejected цель) = %v, ожидался ErrConflict", err)
	}

	// Второй pending-запрос на ту же цель
	if _, err := env.workflow.SubmitUpdate(context.Background(), submitter, p.ID, validSnapshot()); err != nil {
		t.Fatalf("первый SubmitUpdate ошибка: %v", err)
	}
	if _, err := env.workflow.SubmitUpdate(context.Background(), submitter, p.ID, validSnapshot()); !errors.Is(err, ErrConflict) {
		t.Errorf("второй SubmitUpdate = %v, ожидался ErrConflict", err)
	}
}

// --- Decide ---

func TestDecide_ApproveCreate(t *testing.T) {
	env := newTestEnv()
	snap := validSnapshot()

	req, err := env.workflow.SubmitCreate(context.Background(), submitter, snap)
	if err != nil {
		t.Fatalf("SubmitCreate ошибка: %v", err)
	}

	decided, err := env.workflow.Decide(context.Background(), admin, req.ID, model.DecisionApprove, "")
	if err != nil {
		t.Fatalf("Decide ошибка: %v", err)
	}
	if decided.Status != model.RequestStatusApproved {
		t.Errorf("Status = %q, ожидался approved", decided.Status)
	}
	if decided.DecidedBy == nil || *decided.DecidedBy != admin.ID {
		t.Error("DecidedBy должен быть ID админа")
	}

	// Статья материализована с точным содержимым снимка
	papers, _ := env.papers.List(context.Background(), repository.PaperListFilters{}, 10, 0)
	if len(papers) != 1 {
		t.Fatalf("материализовано %d статей, ожидалась 1", len(papers))
	}
	p := papers[0]
	if p.Status != model.PaperStatusApproved {
		t.Errorf("статус статьи = %q, ожидался approved", p.Status)
	}
	if p.OwnerID != submitter.ID || p.OwnerName != submitter.Name {
		t.Errorf("владелец = %s/%s, ожидался податель", p.OwnerID, p.OwnerName)
	}
	if p.Snapshot.Title != snap.Title || p.Snapshot.Year != snap.Year || p.Snapshot.Abstract != snap.Abstract {
		t.Error("содержимое статьи не совпадает с предложенным снимком")
	}
}

func TestDecide_RejectCreate(t *testing.T) {
	env := newTestEnv()

	req, _ := env.workflow.SubmitCreate(context.Background(), submitter, validSnapshot())

	decided, err := env.workflow.Decide(context.Background(), admin, req.ID, model.DecisionReject, "duplicate of existing entry")
	if err != nil {
		t.Fatalf("Decide ошибка: %v", err)
	}
	if decided.AdminComment == nil || *decided.AdminComment != "duplicate of existing entry" {
		t.Error("AdminComment не сохранён")
	}

	// Отклонённая заявка материализует rejected-статью для владельца
	papers, _ := env.papers.List(context.Background(), repository.PaperListFilters{}, 10, 0)
	if len(papers) != 1 || papers[0].Status != model.PaperStatusRejected {
		t.Fatal("ожидалась одна rejected-статья")
	}
	if papers[0].OwnerID != submitter.ID {
		t.Error("rejected-статья должна принадлежать подателю")
	}
}

func TestDecide_RejectWithoutComment(t *testing.T) {
	env := newTestEnv()
	req, _ := env.workflow.SubmitCreate(context.Background(), submitter, validSnapshot())

	// Комментарий при решении опционален, в том числе при отклонении
	decided, err := env.workflow.Decide(context.Background(), admin, req.ID, model.DecisionReject, "")
	if err != nil {
		t.Fatalf("Decide(reject без комментария) ошибка: %v", err)
	}
	if decided.Status != model.RequestStatusRejected {
		t.Errorf("Status = %q, ожидался rejected", decided.Status)
	}
	if decided.AdminComment != nil {
		t.Errorf("AdminComment = %q, ожидался nil", *decided.AdminComment)
	}

	stored, err := env.workflow.GetRequest(context.Background(), admin, req.ID)
	if err != nil {
		t.Fatalf("GetRequest ошибка: %v", err)
	}
	if stored.AdminComment != nil {
		t.Errorf("сохранённый AdminComment = %q, ожидался nil", *stored.AdminComment)
	}
}

func TestDecide_ApproveUpdate(t *testing.T) {
	env := newTestEnv()
	p := env.approvedPaper(t, submitter)
	before, _ := env.papers.GetByID(context.Background(), p.ID)

	snap := validSnapshot()
	snap.Abstract = "A revised abstract."
	snap.Pages = "1-42"
	req, _ := env.workflow.SubmitUpdate(context.Background(), submitter, p.ID, snap)

	if _, err := env.workflow.Decide(context.Background(), admin, req.ID, model.DecisionApprove, ""); err != nil {
		t.Fatalf("Decide ошибка: %v", err)
	}

	got, _ := env.papers.GetByID(context.Background(), p.ID)
	if got.Snapshot.Abstract != "A revised abstract." || got.Snapshot.Pages != "1-42" {
		t.Error("снимок не применён к целевой статье")
	}
	if got.OwnerID != before.OwnerID || !got.CreatedAt.Equal(before.CreatedAt) {
		t.Error("владелец и created_at должны быть неизменны")
	}
}

func TestDecide_RejectUpdateLeavesTargetIntact(t *testing.T) {
	env := newTestEnv()
	p := env.approvedPaper(t, submitter)

	snap := validSnapshot()
	snap.Abstract = "A revised abstract."
	req, _ := env.workflow.SubmitUpdate(context.Background(), submitter, p.ID, snap)

	if _, err := env.workflow.Decide(context.Background(), admin, req.ID, model.DecisionReject, "недостаточно обоснования"); err != nil {
		t.Fatalf("Decide ошибка: %v", err)
	}

	got, _ := env.papers.GetByID(context.Background(), p.ID)
	if got.Snapshot.Abstract != "An introduction to graphs." {
		t.Error("целевая статья изменена отклонённым запросом")
	}
	if got.Status != model.PaperStatusApproved {
		t.Errorf("статус цели = %q, ожидался approved", got.Status)
	}

	// Цель снова доступна для нового запроса
	if _, err := env.workflow.SubmitUpdate(context.Background(), submitter, p.ID, snap); err != nil {
		t.Errorf("SubmitUpdate после отклонения: %v", err)
	}
}

func TestDecide_Twice(t *testing.T) {
	env := newTestEnv()
	req, _ := env.workflow.SubmitCreate(context.Background(), submitter, validSnapshot())

	if _, err := env.workflow.Decide(context.Background(), admin, req.ID, model.DecisionApprove, ""); err != nil {
		t.Fatalf("первое Decide ошибка: %v", err)
	}
	if _, err := env.workflow.Decide(context.Background(), admin, req.ID, model.DecisionReject, "поздно"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("повторное Decide = %v, ожидался ErrInvalidState", err)
	}

	// Эффект первого решения сохранён, второй статьи нет
	if n, _ := env.papers.Count(context.Background(), repository.PaperListFilters{}); n != 1 {
		t.Errorf("в каталоге %d статей, ожидалась 1", n)
	}
}

func TestDecide_Errors(t *testing.T) {
	env := newTestEnv()
	req, _ := env.workflow.SubmitCreate(context.Background(), submitter, validSnapshot())

	// Не админ
	if _, err := env.workflow.Decide(context.Background(), submitter, req.ID, model.DecisionApprove, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("Decide(податель) = %v, ожидался ErrForbidden", err)
	}

	// Неизвестный запрос
	if _, err := env.workflow.Decide(context.Background(), admin, "нет-такого", model.DecisionApprove, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Decide(unknown) = %v, ожидался ErrNotFound", err)
	}

	// Недопустимое решение
	if _, err := env.workflow.Decide(context.Background(), admin, req.ID, "maybe", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Decide(maybe) = %v, ожидался ErrValidation", err)
	}
}

// --- ListRequests / GetRequest ---

func TestListRequests_SubmitterScope(t *testing.T) {
	env := newTestEnv()
	env.workflow.SubmitCreate(context.Background(), submitter, validSnapshot())
	env.workflow.SubmitCreate(context.Background(), submitter2, validSnapshot())

	// Податель видит только свои запросы
	reqs, total, err := env.workflow.ListRequests(context.Background(), submitter, repository.RequestListFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("ListRequests ошибка: %v", err)
	}
	if total != 1 || len(reqs) != 1 || reqs[0].SubmitterID != submitter.ID {
		t.Errorf("податель видит %d запросов, ожидался только собственный", total)
	}

	// Админ видит все
	_, total, err = env.workflow.ListRequests(context.Background(), admin, repository.RequestListFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("ListRequests ошибка: %v", err)
	}
	if total != 2 {
		t.Errorf("админ видит %d запросов, ожидалось 2", total)
	}

	// Недопустимый статус фильтра
	bad := "unknown"
	if _, _, err := env.workflow.ListRequests(context.Background(), admin, repository.RequestListFilters{Status: &bad}, 10, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("ListRequests(bad status) = %v, ожидался ErrValidation", err)
	}
}

func TestGetRequest_ForeignHidden(t *testing.T) {
	env := newTestEnv()
	req, _ := env.workflow.SubmitCreate(context.Background(), submitter, validSnapshot())

	// Чужой запрос неотличим от несуществующего
	if _, err := env.workflow.GetRequest(context.Background(), submitter2, req.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRequest(чужой) = %v, ожидался ErrNotFound", err)
	}

	// Владелец и админ видят запрос
	if _, err := env.workflow.GetRequest(context.Background(), submitter, req.ID); err != nil {
		t.Errorf("GetRequest(владелец) = %v", err)
	}
	if _, err := env.workflow.GetRequest(context.Background(), admin, req.ID); err != nil {
		t.Errorf("GetRequest(админ) = %v", err)
	}
}
