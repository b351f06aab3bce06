// Пакет model — доменные модели ResearchWeb.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Статусы статьи в каталоге.
const (
	// PaperStatusPending — статья ожидает первого решения администратора.
	PaperStatusPending = "pending"
	// PaperStatusApproved — статья одобрена и видна в публичном каталоге.
	PaperStatusApproved = "approved"
	// PaperStatusRejected — статья отклонена, видна только владельцу и администраторам.
	PaperStatusRejected = "rejected"
)

// Границы допустимого года публикации.
const minPaperYear = 1900

// Paper — запись каталога научных статей.
// Хранится в таблице papers. Библиографические поля изменяются
// исключительно Workflow-движком при одобрении запроса.
type Paper struct {
	// ID — UUID статьи
	ID string
	// Snapshot — библиографические поля и ссылка на вложение
	Snapshot PaperSnapshot
	// Status — статус (pending, approved, rejected)
	Status string
	// OwnerID — идентификатор подателя, создавшего статью
	OwnerID string
	// OwnerName — кэшированное отображаемое имя владельца
	OwnerName string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего одобренного изменения
	UpdatedAt time.Time
}

// PaperSnapshot — полный набор предлагаемых библиографических полей.
// Вложен в Paper и в поле proposed запроса на одобрение (JSONB).
type PaperSnapshot struct {
	// Title — название статьи (обязательно)
	Title string `json:"title"`
	// Authors — упорядоченный список авторов (обязательно, непустой)
	Authors []string `json:"authors"`
	// Year — год публикации (1900..текущий+1)
	Year int `json:"year"`
	// Month — месяц публикации (опционально)
	Month string `json:"month,omitempty"`
	// Journal — название журнала
	Journal string `json:"journal,omitempty"`
	// Volume — том
	Volume string `json:"volume,omitempty"`
	// Number — номер выпуска
	Number string `json:"number,omitempty"`
	// Pages — диапазон страниц
	Pages string `json:"pages,omitempty"`
	// Publisher — издатель
	Publisher string `json:"publisher,omitempty"`
	// DOI — цифровой идентификатор объекта
	DOI string `json:"doi,omitempty"`
	// ISBN — международный книжный номер
	ISBN string `json:"isbn,omitempty"`
	// ISSN — международный номер периодического издания
	ISSN string `json:"issn,omitempty"`
	// URL — ссылка на публикацию
	URL string `json:"url,omitempty"`
	// Abstract — аннотация
	Abstract string `json:"abstract,omitempty"`
	// Keywords — ключевые слова
	Keywords []string `json:"keywords,omitempty"`
	// Note — произвольная заметка
	Note string `json:"note,omitempty"`
	// AttachmentID — UUID PDF-вложения в Attachment Store (опционально)
	AttachmentID *string `json:"attachment_id,omitempty"`
}

// Validate проверяет обязательные поля и допустимые диапазоны snapshot.
// now используется для верхней границы года (текущий год + 1).
func (s *PaperSnapshot) Validate(now time.Time) error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("поле title обязательно")
	}
	if len(s.Authors) == 0 {
		return fmt.Errorf("поле authors обязательно и не может быть пустым")
	}
	for _, a := range s.Authors {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("имя автора не может быть пустым")
		}
	}
	maxYear := now.Year() + 1
	if s.Year < minPaperYear || s.Year > maxYear {
		return fmt.Errorf("год %d вне допустимого диапазона %d-%d", s.Year, minPaperYear, maxYear)
	}
	if s.AttachmentID != nil {
		if _, err := uuid.Parse(*s.AttachmentID); err != nil {
			return fmt.Errorf("attachment_id не является корректным UUID")
		}
	}
	return nil
}

// IsValidPaperStatus проверяет, является ли строка допустимым статусом статьи.
func IsValidPaperStatus(status string) bool {
	switch status {
	case PaperStatusPending, PaperStatusApproved, PaperStatusRejected:
		return true
	}
	return false
}
