package model

import "time"

// Виды запросов на одобрение.
const (
	// RequestKindCreate — предложение добавить новую статью.
	RequestKindCreate = "create"
	// RequestKindUpdate — предложение изменить существующую статью.
	RequestKindUpdate = "update"
)

// Статусы запроса на одобрение.
// Терминальные статусы (approved, rejected) не допускают дальнейших переходов.
const (
	// RequestStatusPending — запрос ожидает решения администратора.
	RequestStatusPending = "pending"
	// RequestStatusApproved — запрос одобрен (терминальный).
	RequestStatusApproved = "approved"
	// RequestStatusRejected — запрос отклонён (терминальный).
	RequestStatusRejected = "rejected"
)

// Действия администратора над запросом.
const (
	// DecisionApprove — одобрить запрос.
	DecisionApprove = "approve"
	// DecisionReject — отклонить запрос.
	DecisionReject = "reject"
)

// ApprovalRequest — предложенное изменение каталога, ожидающее решения.
// Хранится в таблице approval_requests. После решения запись никогда
// не изменяется и хранится бессрочно для аудита.
type ApprovalRequest struct {
	// ID — UUID запроса
	ID string
	// Kind — вид запроса (create, update)
	Kind string
	// TargetPaperID — UUID целевой статьи (nil для create;
	// становится nil при удалении целевой статьи администратором)
	TargetPaperID *string
	// Proposed — полный snapshot желаемого состояния статьи
	Proposed PaperSnapshot
	// SubmitterID — идентификатор подателя
	SubmitterID string
	// SubmitterName — кэшированное отображаемое имя подателя
	SubmitterName string
	// Status — статус запроса (pending, approved, rejected)
	Status string
	// AdminComment — комментарий администратора (устанавливается только при решении)
	AdminComment *string
	// DecidedBy — идентификатор решившего администратора
	DecidedBy *string
	// CreatedAt — время подачи запроса
	CreatedAt time.Time
	// DecidedAt — время решения (nil для pending)
	DecidedAt *time.Time
}

// IsTerminal сообщает, находится ли запрос в терминальном статусе.
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status == RequestStatusApproved || r.Status == RequestStatusRejected
}

// IsValidRequestStatus проверяет, является ли строка допустимым статусом запроса.
func IsValidRequestStatus(status string) bool {
	switch status {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// IsValidDecision проверяет, является ли строка допустимым действием администратора.
func IsValidDecision(action string) bool {
	return action == DecisionApprove || action == DecisionReject
}
