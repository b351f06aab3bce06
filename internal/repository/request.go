package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
)

// ApprovalRequestRepository — интерфейс Request Ledger (таблица approval_requests).
type ApprovalRequestRepository interface {
	// Create добавляет новый pending-запрос.
	// Нарушение уникальности pending-запроса на цель → ErrConflict.
	Create(ctx context.Context, req *model.ApprovalRequest) error
	// GetByID возвращает запрос по UUID.
	GetByID(ctx context.Context, id string) (*model.ApprovalRequest, error)
	// List возвращает запросы с фильтрацией, отсортированные по created_at DESC.
	List(ctx context.Context, filters RequestListFilters, limit, offset int) ([]*model.ApprovalRequest, error)
	// Count возвращает количество запросов с фильтрацией.
	Count(ctx context.Context, filters RequestListFilters) (int, error)
	// Decide атомарно переводит pending-запрос в терминальный статус (CAS).
	// Возвращает false, если запрос не был pending (решение уже принято).
	Decide(ctx context.Context, id, status, adminID, comment string, decidedAt time.Time) (bool, error)
	// HasPendingForTarget сообщает, существует ли pending-запрос на целевую статью.
	HasPendingForTarget(ctx context.Context, paperID string) (bool, error)
	// RejectPendingForTarget отклоняет все pending-запросы на целевую статью.
	// Используется при административном удалении статьи. Возвращает
	// количество отклонённых запросов.
	RejectPendingForTarget(ctx context.Context, paperID, adminID, comment string, decidedAt time.Time) (int, error)
}

// RequestListFilters — фильтры списка запросов.
type RequestListFilters struct {
	// Status — фильтр по статусу запроса
	Status *string
	// SubmitterID — фильтр по подателю (для представления "мои запросы")
	SubmitterID *string
	// TargetPaperID — фильтр по целевой статье
	TargetPaperID *string
}

// requestRepo — реализация ApprovalRequestRepository.
type requestRepo struct {
	db DBTX
}

// NewApprovalRequestRepository создаёт репозиторий запросов на одобрение.
func NewApprovalRequestRepository(db DBTX) ApprovalRequestRepository {
	return &requestRepo{db: db}
}

// requestColumns — список колонок approval_requests в порядке сканирования.
const requestColumns = `id, kind, target_paper_id, proposed, submitter_id, submitter_name,
	status, admin_comment, decided_by, created_at, decided_at`

// scanRequest читает одну строку approval_requests.
func scanRequest(row pgx.Row) (*model.ApprovalRequest, error) {
	req := &model.ApprovalRequest{}
	err := row.Scan(
		&req.ID, &req.Kind, &req.TargetPaperID, &req.Proposed,
		&req.SubmitterID, &req.SubmitterName, &req.Status,
		&req.AdminComment, &req.DecidedBy, &req.CreatedAt, &req.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requestRepo) Create(ctx context.Context, req *model.ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests (id, kind, target_paper_id, proposed,
			submitter_id, submitter_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		req.ID, req.Kind, req.TargetPaperID, req.Proposed,
		req.SubmitterID, req.SubmitterName, req.Status,
	).Scan(&req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: на эту статью уже существует pending-запрос", ErrConflict)
		}
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	return nil
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_requests WHERE id = $1`, requestColumns)

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения запроса: %w", err)
	}
	return req, nil
}

// buildRequestWhere строит WHERE-условие и аргументы для фильтрации запросов.
func buildRequestWhere(filters RequestListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filters.Status)
		argNum++
	}
	if filters.SubmitterID != nil {
		conditions = append(conditions, fmt.Sprintf("submitter_id = $%d", argNum))
		args = append(args, *filters.SubmitterID)
		argNum++
	}
	if filters.TargetPaperID != nil {
		conditions = append(conditions, fmt.Sprintf("target_paper_id = $%d", argNum))
		args = append(args, *filters.TargetPaperID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *requestRepo) List(ctx context.Context, filters RequestListFilters, limit, offset int) ([]*model.ApprovalRequest, error) {
	where, args := buildRequestWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM approval_requests
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, requestColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка запросов: %w", err)
	}
	defer rows.Close()

	var result []*model.ApprovalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования запроса: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (r *requestRepo) Count(ctx context.Context, filters RequestListFilters) (int, error) {
	where, args := buildRequestWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM approval_requests %s`, where)

	var count int
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта запросов: %w", err)
	}
	return count, nil
}

// Decide выполняет compare-and-swap: переход возможен только из pending.
// При конкурентном двойном решении ровно один UPDATE затронет строку.
// Пустой комментарий сохраняется как NULL, а не как пустая строка.
func (r *requestRepo) Decide(ctx context.Context, id, status, adminID, comment string, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE approval_requests
		SET status = $2, decided_by = $3, admin_comment = NULLIF($4, ''), decided_at = $5
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, id, status, adminID, comment, decidedAt)
	if err != nil {
		return false, fmt.Errorf("ошибка решения по запросу: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *requestRepo) HasPendingForTarget(ctx context.Context, paperID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM approval_requests
			WHERE target_paper_id = $1 AND status = 'pending'
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, paperID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки pending-запроса: %w", err)
	}
	return exists, nil
}

func (r *requestRepo) RejectPendingForTarget(ctx context.Context, paperID, adminID, comment string, decidedAt time.Time) (int, error) {
	query := `
		UPDATE approval_requests
		SET status = 'rejected', decided_by = $2, admin_comment = $3, decided_at = $4
		WHERE target_paper_id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, paperID, adminID, comment, decidedAt)
	if err != nil {
		return 0, fmt.Errorf("ошибка отклонения pending-запросов: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
