// statistics.go — сервис агрегированной статистики каталога.
// Счётчики зависят от вызывающего, поэтому кэшируются per-caller
// в LRU-кэше с TTL (hashicorp/golang-lru/v2/expirable).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ToshikSoni/ResearchWeb/internal/domain/model"
	"github.com/ToshikSoni/ResearchWeb/internal/domain/visibility"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
)

// Prometheus-метрики кэша статистики.
var (
	statsCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rw_stats_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш статистики.",
	})
	statsCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rw_stats_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша статистики.",
	})
)

// StatisticsService — подсчёт статистики каталога с кэшированием.
type StatisticsService struct {
	paperRepo   repository.PaperRepository
	requestRepo repository.ApprovalRequestRepository
	cache       *expirable.LRU[string, *model.Statistics]
	logger      *slog.Logger
	now         func() time.Time
}

// NewStatisticsService создаёт сервис статистики.
// maxSize — максимальное количество записей в кэше (по одной на вызывающего),
// ttl — время жизни записи после добавления.
func NewStatisticsService(
	paperRepo repository.PaperRepository,
	requestRepo repository.ApprovalRequestRepository,
	maxSize int,
	ttl time.Duration,
	logger *slog.Logger,
) *StatisticsService {
	return &StatisticsService{
		paperRepo:   paperRepo,
		requestRepo: requestRepo,
		cache:       expirable.NewLRU[string, *model.Statistics](maxSize, nil, ttl),
		logger:      logger.With(slog.String("component", "statistics_service")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает статистику каталога для вызывающего.
// Каталожные счётчики общие, "мои" счётчики зависят от вызывающего,
// поэтому ключ кэша включает ID и роль.
func (s *StatisticsService) Get(ctx context.Context, caller visibility.Caller) (*model.Statistics, error) {
	key := caller.ID + ":" + caller.Role
	if cached, ok := s.cache.Get(key); ok {
		statsCacheHitsTotal.Inc()
		return cached, nil
	}
	statsCacheMissesTotal.Inc()

	stats, err := s.compute(ctx, caller)
	if err != nil {
		return nil, err
	}

	s.cache.Add(key, stats)
	return stats, nil
}

// compute собирает статистику из репозиториев.
func (s *StatisticsService) compute(ctx context.Context, caller visibility.Caller) (*model.Statistics, error) {
	approved := []string{model.PaperStatusApproved}

	total, err := s.paperRepo.Count(ctx, repository.PaperListFilters{Statuses: approved})
	if err != nil {
		return nil, fmt.Errorf("подсчёт статей каталога: %w", err)
	}

	year := s.now().Year()
	thisYear, err := s.paperRepo.Count(ctx, repository.PaperListFilters{Statuses: approved, Year: &year})
	if err != nil {
		return nil, fmt.Errorf("подсчёт статей текущего года: %w", err)
	}

	mine, err := s.paperRepo.Count(ctx, repository.PaperListFilters{OwnerID: &caller.ID})
	if err != nil {
		return nil, fmt.Errorf("подсчёт статей вызывающего: %w", err)
	}

	// Податель видит только собственные pending-запросы,
	// админ — размер общей очереди на рассмотрение
	pending := model.RequestStatusPending
	pendingFilters := repository.RequestListFilters{Status: &pending}
	myPendingFilters := pendingFilters
	myPendingFilters.SubmitterID = &caller.ID

	myPending, err := s.requestRepo.Count(ctx, myPendingFilters)
	if err != nil {
		return nil, fmt.Errorf("подсчёт pending-запросов вызывающего: %w", err)
	}

	queue := myPending
	if caller.IsAdmin() {
		queue, err = s.requestRepo.Count(ctx, pendingFilters)
		if err != nil {
			return nil, fmt.Errorf("подсчёт очереди запросов: %w", err)
		}
	}

	byYear, err := s.paperRepo.CountByYear(ctx)
	if err != nil {
		return nil, fmt.Errorf("распределение по годам: %w", err)
	}

	return &model.Statistics{
		TotalPapers:      total,
		PendingPapers:    myPending,
		PapersThisYear:   thisYear,
		MyPapersCount:    mine,
		PendingApprovals: queue,
		PapersByYear:     byYear,
	}, nil
}

// Invalidate сбрасывает кэш статистики.
// Вызывается после решений по запросам и удаления статей.
func (s *StatisticsService) Invalidate() {
	s.cache.Purge()
}
