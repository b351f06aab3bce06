package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
)

// PaperRepository — интерфейс Paper Store (таблица papers).
// Insert и ApplyUpdate — единственные писатели библиографического
// содержимого; вызываются только Workflow-движком при одобрении.
type PaperRepository interface {
	// Insert создаёт новую статью с указанным статусом.
	Insert(ctx context.Context, p *model.Paper) error
	// GetByID возвращает статью по UUID.
	GetByID(ctx context.Context, id string) (*model.Paper, error)
	// List возвращает статьи с фильтрацией, отсортированные по created_at DESC.
	List(ctx context.Context, filters PaperListFilters, limit, offset int) ([]*model.Paper, error)
	// Count возвращает количество статей с фильтрацией.
	Count(ctx context.Context, filters PaperListFilters) (int, error)
	// ApplyUpdate заменяет библиографические поля и вложение статьи.
	// id, owner, created_at неизменны; updated_at продвигается.
	ApplyUpdate(ctx context.Context, id string, snap model.PaperSnapshot) error
	// SetStatus изменяет статус статьи.
	SetStatus(ctx context.Context, id, status string) error
	// Delete безусловно удаляет статью.
	Delete(ctx context.Context, id string) error
	// CountByYear возвращает количество approved-статей по годам (по возрастанию года).
	CountByYear(ctx context.Context) ([]model.YearCount, error)
}

// PaperListFilters — фильтры списка статей.
// Statuses и OwnerID заполняются Visibility Resolver-ом,
// остальные поля — пользовательские критерии поиска.
type PaperListFilters struct {
	// Search — подстрока в title, authors или abstract
	Search *string
	// Year — точное совпадение года
	Year *int
	// Author — подстрока в списке авторов
	Author *string
	// Journal — подстрока в названии журнала
	Journal *string
	// Keyword — подстрока в ключевых словах
	Keyword *string
	// Statuses — допустимые статусы (nil — все)
	Statuses []string
	// OwnerID — ограничение по владельцу
	OwnerID *string
}

// paperRepo — реализация PaperRepository.
type paperRepo struct {
	db DBTX
}

// NewPaperRepository создаёт репозиторий статей.
func NewPaperRepository(db DBTX) PaperRepository {
	return &paperRepo{db: db}
}

// paperColumns — список колонок papers в порядке сканирования.
const paperColumns = `id, title, authors, year, month, journal, volume, number, pages,
	publisher, doi, isbn, issn, url, abstract, keywords, note, attachment_id,
	status, owner_id, owner_name, created_at, updated_at`

// scanPaper читает одну строку papers.
func scanPaper(row pgx.Row) (*model.Paper, error) {
	p := &model.Paper{}
	s := &p.Snapshot
	err := row.Scan(
		&p.ID, &s.Title, &s.Authors, &s.Year, &s.Month, &s.Journal, &s.Volume,
		&s.Number, &s.Pages, &s.Publisher, &s.DOI, &s.ISBN, &s.ISSN, &s.URL,
		&s.Abstract, &s.Keywords, &s.Note, &s.AttachmentID,
		&p.Status, &p.OwnerID, &p.OwnerName, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paperRepo) Insert(ctx context.Context, p *model.Paper) error {
	query := `
		INSERT INTO papers (id, title, authors, year, month, journal, volume, number,
			pages, publisher, doi, isbn, issn, url, abstract, keywords, note,
			attachment_id, status, owner_id, owner_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21)
		RETURNING created_at, updated_at`

	s := &p.Snapshot
	keywords := s.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	err := r.db.QueryRow(ctx, query,
		p.ID, s.Title, s.Authors, s.Year, s.Month, s.Journal, s.Volume, s.Number,
		s.Pages, s.Publisher, s.DOI, s.ISBN, s.ISSN, s.URL, s.Abstract, keywords,
		s.Note, s.AttachmentID, p.Status, p.OwnerID, p.OwnerName,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: статья с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка вставки статьи: %w", err)
	}
	return nil
}

func (r *paperRepo) GetByID(ctx context.Context, id string) (*model.Paper, error) {
	query := fmt.Sprintf(`SELECT %s FROM papers WHERE id = $1`, paperColumns)

	p, err := scanPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения статьи: %w", err)
	}
	return p, nil
}

// buildPaperWhere строит WHERE-условие и аргументы для фильтрации статей.
func buildPaperWhere(filters PaperListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.Search != nil {
		pattern := "%" + *filters.Search + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(title ILIKE $%d OR array_to_string(authors, ', ') ILIKE $%d OR abstract ILIKE $%d)",
			argNum, argNum, argNum))
		args = append(args, pattern)
		argNum++
	}
	if filters.Year != nil {
		conditions = append(conditions, fmt.Sprintf("year = $%d", argNum))
		args = append(args, *filters.Year)
		argNum++
	}
	if filters.Author != nil {
		conditions = append(conditions, fmt.Sprintf("array_to_string(authors, ', ') ILIKE $%d", argNum))
		args = append(args, "%"+*filters.Author+"%")
		argNum++
	}
	if filters.Journal != nil {
		conditions = append(conditions, fmt.Sprintf("journal ILIKE $%d", argNum))
		args = append(args, "%"+*filters.Journal+"%")
		argNum++
	}
	if filters.Keyword != nil {
		conditions = append(conditions, fmt.Sprintf("array_to_string(keywords, ', ') ILIKE $%d", argNum))
		args = append(args, "%"+*filters.Keyword+"%")
		argNum++
	}
	if len(filters.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argNum))
		args = append(args, filters.Statuses)
		argNum++
	}
	if filters.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argNum))
		args = append(args, *filters.OwnerID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *paperRepo) List(ctx context.Context, filters PaperListFilters, limit, offset int) ([]*model.Paper, error) {
	where, args := buildPaperWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM papers
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, paperColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка статей: %w", err)
	}
	defer rows.Close()

	var result []*model.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования статьи: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *paperRepo) Count(ctx context.Context, filters PaperListFilters) (int, error) {
	where, args := buildPaperWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM papers %s`, where)

	var count int
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта статей: %w", err)
	}
	return count, nil
}

func (r *paperRepo) ApplyUpdate(ctx context.Context, id string, snap model.PaperSnapshot) error {
	query := `
		UPDATE papers
		SET title = $2, authors = $3, year = $4, month = $5, journal = $6,
			volume = $7, number = $8, pages = $9, publisher = $10, doi = $11,
			isbn = $12, issn = $13, url = $14, abstract = $15, keywords = $16,
			note = $17, attachment_id = $18, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	keywords := snap.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	var discard any
	err := r.db.QueryRow(ctx, query,
		id, snap.Title, snap.Authors, snap.Year, snap.Month, snap.Journal,
		snap.Volume, snap.Number, snap.Pages, snap.Publisher, snap.DOI,
		snap.ISBN, snap.ISSN, snap.URL, snap.Abstract, keywords, snap.Note,
		snap.AttachmentID,
	).Scan(&discard)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка применения изменений статьи: %w", err)
	}
	return nil
}

func (r *paperRepo) SetStatus(ctx context.Context, id, status string) error {
	query := `UPDATE papers SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("ошибка изменения статуса статьи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *paperRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM papers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления статьи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *paperRepo) CountByYear(ctx context.Context) ([]model.YearCount, error) {
	query := `
		SELECT year, COUNT(*)
		FROM papers
		WHERE status = 'approved'
		GROUP BY year
		ORDER BY year`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта статей по годам: %w", err)
	}
	defer rows.Close()

	var result []model.YearCount
	for rows.Next() {
		var yc model.YearCount
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики по годам: %w", err)
		}
		result = append(result, yc)
	}
	return result, rows.Err()
}
