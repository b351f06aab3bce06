package model

// YearCount — количество approved-статей за один год.
type YearCount struct {
	// Year — год публикации
	Year int `json:"year"`
	// Count — количество статей
	Count int `json:"count"`
}

// Statistics — агрегированные счётчики для дашборда.
// Чистый read-only потребитель Paper Store и Request Ledger.
type Statistics struct {
	// TotalPapers — approved-статей в каталоге
	TotalPapers int `json:"total_papers"`
	// PendingPapers — собственных нерассмотренных запросов вызывающего
	PendingPapers int `json:"pending_papers"`
	// PapersThisYear — approved-статей текущего года
	PapersThisYear int `json:"papers_this_year"`
	// MyPapersCount — статей, принадлежащих вызывающему
	MyPapersCount int `json:"my_papers_count"`
	// PendingApprovals — pending-запросов (admin — все, submitter — собственные)
	PendingApprovals int `json:"pending_approvals"`
	// PapersByYear — распределение approved-статей по годам
	PapersByYear []YearCount `json:"papers_by_year"`
}
