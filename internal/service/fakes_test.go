package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
)

// --- In-memory фейки репозиториев для unit-тестов ---

// fakePaperRepo — in-memory реализация PaperRepository.
type fakePaperRepo struct {
	papers map[string]*model.Paper
	seq    int
}

func newFakePaperRepo() *fakePaperRepo {
	return &fakePaperRepo{papers: make(map[string]*model.Paper)}
}

func (f *fakePaperRepo) Insert(_ context.Context, p *model.Paper) error {
	f.seq++
	cp := *p
	cp.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, f.seq, time.UTC)
	cp.UpdatedAt = cp.CreatedAt
	f.papers[p.ID] = &cp
	p.CreatedAt = cp.CreatedAt
	p.UpdatedAt = cp.UpdatedAt
	return nil
}

func (f *fakePaperRepo) GetByID(_ context.Context, id string) (*model.Paper, error) {
	p, ok := f.papers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaperRepo) matches(p *model.Paper, filters repository.PaperListFilters) bool {
	if len(filters.Statuses) > 0 {
		ok := false
		for _, s := range filters.Statuses {
			if p.Status == s {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if filters.OwnerID != nil && p.OwnerID != *filters.OwnerID {
		return false
	}
	if filters.Year != nil && p.Snapshot.Year != *filters.Year {
		return false
	}
	if filters.Search != nil {
		s := strings.ToLower(*filters.Search)
		hay := strings.ToLower(p.Snapshot.Title + " " + strings.Join(p.Snapshot.Authors, " ") + " " + p.Snapshot.Abstract)
		if !strings.Contains(hay, s) {
			return false
		}
	}
	return true
}

func (f *fakePaperRepo) List(_ context.Context, filters repository.PaperListFilters, limit, offset int) ([]*model.Paper, error) {
	var out []*model.Paper
	for _, p := range f.papers {
		if f.matches(p, filters) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePaperRepo) Count(_ context.Context, filters repository.PaperListFilters) (int, error) {
	n := 0
	for _, p := range f.papers {
		if f.matches(p, filters) {
			n++
		}
	}
	return n, nil
}

func (f *fakePaperRepo) ApplyUpdate(_ context.Context, id string, snap model.PaperSnapshot) error {
	p, ok := f.papers[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Snapshot = snap
	p.UpdatedAt = p.UpdatedAt.Add(time.Second)
	return nil
}

func (f *fakePaperRepo) SetStatus(_ context.Context, id, status string) error {
	p, ok := f.papers[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	return nil
}

func (f *fakePaperRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.papers[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.papers, id)
	return nil
}

func (f *fakePaperRepo) CountByYear(_ context.Context) ([]model.YearCount, error) {
	counts := make(map[int]int)
	for _, p := range f.papers {
		if p.Status == model.PaperStatusApproved {
			counts[p.Snapshot.Year]++
		}
	}
	var out []model.YearCount
	for y, c := range counts {
		out = append(out, model.YearCount{Year: y, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

// fakeRequestRepo — in-memory реализация ApprovalRequestRepository.
// Повторяет семантику частичного уникального индекса pending-запросов
// и CAS-решения.
type fakeRequestRepo struct {
	requests map[string]*model.ApprovalRequest
	seq      int
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*model.ApprovalRequest)}
}

func (f *fakeRequestRepo) Create(_ context.Context, req *model.ApprovalRequest) error {
	if req.TargetPaperID != nil && req.Status == model.RequestStatusPending {
		for _, r := range f.requests {
			if r.TargetPaperID != nil && *r.TargetPaperID == *req.TargetPaperID && r.Status == model.RequestStatusPending {
				return repository.ErrConflict
			}
		}
	}
	f.seq++
	cp := *req
	cp.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, f.seq, time.UTC)
	f.requests[req.ID] = &cp
	req.CreatedAt = cp.CreatedAt
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id string) (*model.ApprovalRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRequestRepo) matches(r *model.ApprovalRequest, filters repository.RequestListFilters) bool {
	if filters.Status != nil && r.Status != *filters.Status {
		return false
	}
	if filters.SubmitterID != nil && r.SubmitterID != *filters.SubmitterID {
		return false
	}
	if filters.TargetPaperID != nil && (r.TargetPaperID == nil || *r.TargetPaperID != *filters.TargetPaperID) {
		return false
	}
	return true
}

func (f *fakeRequestRepo) List(_ context.Context, filters repository.RequestListFilters, limit, offset int) ([]*model.ApprovalRequest, error) {
	var out []*model.ApprovalRequest
	for _, r := range f.requests {
		if f.matches(r, filters) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRequestRepo) Count(_ context.Context, filters repository.RequestListFilters) (int, error) {
	n := 0
	for _, r := range f.requests {
		if f.matches(r, filters) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRequestRepo) Decide(_ context.Context, id, status, adminID, comment string, decidedAt time.Time) (bool, error) {
	r, ok := f.requests[id]
	if !ok || r.Status != model.RequestStatusPending {
		return false, nil
	}
	r.Status = status
	r.DecidedBy = &adminID
	if comment != "" {
		r.AdminComment = &comment
	}
	r.DecidedAt = &decidedAt
	return true, nil
}

func (f *fakeRequestRepo) HasPendingForTarget(_ context.Context, paperID string) (bool, error) {
	for _, r := range f.requests {
		if r.TargetPaperID != nil && *r.TargetPaperID == paperID && r.Status == model.RequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRequestRepo) RejectPendingForTarget(_ context.Context, paperID, adminID, comment string, decidedAt time.Time) (int, error) {
	n := 0
	for _, r := range f.requests {
		if r.TargetPaperID != nil && *r.TargetPaperID == paperID && r.Status == model.RequestStatusPending {
			r.Status = model.RequestStatusRejected
			r.DecidedBy = &adminID
			r.AdminComment = &comment
			r.DecidedAt = &decidedAt
			n++
		}
	}
	return n, nil
}

// fakeTx — TxManager без настоящей транзакции: передаёт фейковые
// репозитории напрямую.
type fakeTx struct {
	papers   *fakePaperRepo
	requests *fakeRequestRepo
}

func (f *fakeTx) InTx(_ context.Context, fn func(papers repository.PaperRepository, requests repository.ApprovalRequestRepository) error) error {
	return fn(f.papers, f.requests)
}

// fakeAttachments — AttachmentDeleter с учётом удалённых ID.
type fakeAttachments struct {
	deleted []string
}

func (f *fakeAttachments) Delete(attachmentID string) error {
	f.deleted = append(f.deleted, attachmentID)
	return nil
}
