// Точка входа ResearchWeb — каталог научных статей с премодерацией.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует хранилище вложений, сервисный слой и API handlers,
// запускает HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/ToshikSoni/ResearchWeb/internal/api/handlers"
	"github.com/ToshikSoni/ResearchWeb/internal/api/middleware"
	"github.com/ToshikSoni/ResearchWeb/internal/config"
	"github.com/ToshikSoni/ResearchWeb/internal/database"
	"github.com/ToshikSoni/ResearchWeb/internal/repository"
	"github.com/ToshikSoni/ResearchWeb/internal/server"
	"github.com/ToshikSoni/ResearchWeb/internal/service"
	"github.com/ToshikSoni/ResearchWeb/internal/storage/attachstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("ResearchWeb запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Хранилище PDF-вложений
	attachStore, err := attachstore.New(cfg.AttachmentDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища вложений",
			slog.String("dir", cfg.AttachmentDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Хранилище вложений готово",
		slog.String("dir", attachStore.DataDir()),
		slog.Int64("max_upload_bytes", cfg.MaxUploadBytes),
	)

	// 6. Repositories
	paperRepo := repository.NewPaperRepository(pool)
	requestRepo := repository.NewApprovalRequestRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 7. Services
	workflowSvc := service.NewWorkflowService(txRunner, paperRepo, requestRepo, logger)
	paperSvc := service.NewPaperService(txRunner, paperRepo, requestRepo, attachStore, logger)
	statsSvc := service.NewStatisticsService(
		paperRepo, requestRepo,
		cfg.StatsCacheSize, cfg.StatsCacheTTL,
		logger,
	)

	// 8. Readiness checkers (PostgreSQL + IdP JWKS)
	pgChecker := database.NewReadinessChecker(pool)
	idpChecker := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, 5*time.Second)
	healthHandler := handlers.NewHealthHandler(pgChecker, idpChecker)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		paperSvc,
		workflowSvc,
		statsSvc,
		attachStore,
		logger,
	)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. Создание и запуск HTTP-сервера.
	// Probes и /metrics доступны без JWT.
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("ResearchWeb остановлен")
}
