// Пакет visibility — Visibility Resolver.
// Определяет, какие строки Paper Store может видеть вызывающий
// в запрошенном представлении, и какие действия ему доступны.
// Решение о правке здесь — подсказка для клиента; авторитетная
// проверка выполняется Workflow-движком при подаче запроса.
package visibility

import (
	"fmt"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/rbac"
)

// Caller — идентичность вызывающего, извлечённая из JWT.
// Прокидывается явным аргументом через все операции ядра —
// никакого глобального состояния сессии.
type Caller struct {
	// ID — стабильный идентификатор субъекта (sub из JWT)
	ID string
	// Name — отображаемое имя (preferred_username)
	Name string
	// Role — роль из rbac (admin, submitter)
	Role string
}

// IsAdmin сообщает, обладает ли вызывающий административными правами.
func (c Caller) IsAdmin() bool {
	return c.Role == rbac.RoleAdmin
}

// View — запрошенное представление каталога.
type View string

const (
	// ViewCatalog — публичный каталог (для submitter — только approved).
	ViewCatalog View = "catalog"
	// ViewMine — собственные статьи вызывающего, любой статус.
	ViewMine View = "mine"
)

// ParseView разбирает строку представления. Пустая строка — каталог.
func ParseView(s string) (View, error) {
	switch s {
	case "", string(ViewCatalog):
		return ViewCatalog, nil
	case string(ViewMine):
		return ViewMine, nil
	}
	return "", fmt.Errorf("неизвестное представление %q, допустимые: catalog, mine", s)
}

// Scope — ограничения на выборку Paper Store, выведенные из роли и представления.
type Scope struct {
	// Statuses — допустимые статусы статей (nil — без ограничения)
	Statuses []string
	// OwnerID — ограничение по владельцу (nil — без ограничения)
	OwnerID *string
}

// Resolve вычисляет Scope для вызывающего и представления.
// Admin в каталоге видит все строки независимо от статуса.
// Submitter в каталоге видит только approved (независимо от владельца).
// Представление mine — все строки вызывающего независимо от статуса.
func Resolve(caller Caller, view View) Scope {
	if view == ViewMine {
		owner := caller.ID
		return Scope{OwnerID: &owner}
	}
	if caller.IsAdmin() {
		return Scope{}
	}
	return Scope{Statuses: []string{model.PaperStatusApproved}}
}

// CanSee сообщает, вправе ли вызывающий видеть конкретную статью.
// Approved статьи видны всем; остальные — владельцу и администраторам.
func CanSee(caller Caller, p *model.Paper) bool {
	if p.Status == model.PaperStatusApproved {
		return true
	}
	return caller.IsAdmin() || p.OwnerID == caller.ID
}

// Descriptor — возможности вызывающего по конкретной статье.
// Вычисляется один раз Resolver-ом и передаётся в сериализацию,
// вместо разрозненных булевых флагов.
type Descriptor struct {
	// CanEdit — доступна ли подача запроса на изменение
	CanEdit bool `json:"can_edit"`
	// CanDelete — доступно ли немедленное удаление (только admin)
	CanDelete bool `json:"can_delete"`
	// ShowStatus — показывать ли статус статьи вызывающему
	ShowStatus bool `json:"show_status"`
}

// DescriptorFor вычисляет Descriptor для пары (вызывающий, статья).
// hasPendingUpdate — существует ли pending-запрос, нацеленный на статью.
// Правка предлагается только владельцу approved-статьи без открытого
// pending-запроса, чтобы действие клиента 1:1 отображалось на легальный
// вызов SubmitUpdate.
func DescriptorFor(caller Caller, p *model.Paper, hasPendingUpdate bool) Descriptor {
	return Descriptor{
		CanEdit:    p.OwnerID == caller.ID && p.Status == model.PaperStatusApproved && !hasPendingUpdate,
		CanDelete:  caller.IsAdmin(),
		ShowStatus: caller.IsAdmin() || p.OwnerID == caller.ID,
	}
}
