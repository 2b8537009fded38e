// main.go — точка входа Collab Module.
// Порядок инициализации: config → logger → PostgreSQL (+миграции) →
// репозитории → сервисы → dephealth → handlers → middleware → HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/collab-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/collab-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/collab-module/internal/config"
	"github.com/bigkaa/goartstore/collab-module/internal/database"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
	"github.com/bigkaa/goartstore/collab-module/internal/server"
	"github.com/bigkaa/goartstore/collab-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Collab Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// 3. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка применения миграций", slog.String("error", err.Error()))
		log.Fatalf("Миграции не применены: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		log.Fatalf("PostgreSQL недоступен: %v", err)
	}
	defer pool.Close()

	// 4. Репозитории
	revRepo := repository.NewRevisionRepository(pool)
	refRepo := repository.NewRefRepository(pool)
	sceneRepo := repository.NewSceneRepository(pool)
	permRepo := repository.NewPermissionRepository(pool)
	issueRepo := repository.NewIssueRepository(pool)

	// 5. Сервисы
	cache := service.NewRevisionCache(cfg.CacheSize, cfg.CacheTTL)
	resolver := service.NewResolverService(revRepo, cache, logger)
	filter := service.NewFilterService(revRepo, logger)
	federation := service.NewFederationService(resolver, refRepo, cfg.DefaultBranch, cfg.FederationMaxDepth, logger)
	issueService := service.NewIssueService(issueRepo, sceneRepo, permRepo,
		resolver, filter, federation, cfg.DefaultBranch, logger)
	bcfService := service.NewBCFService(issueService, logger)

	// 6. Dephealth — мониторинг зависимостей (PostgreSQL)
	if cfg.DephealthEnabled {
		sqlDB := stdlib.OpenDBFromPool(pool)
		dephealthService, err := service.NewDephealthService(
			"collab-module",
			cfg.DephealthGroup,
			sqlDB,
			cfg.DatabaseDSN(),
			cfg.DephealthCheckInterval,
			cfg.DephealthIsEntry,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка инициализации dephealth", slog.String("error", err.Error()))
			log.Fatalf("Dephealth не инициализирован: %v", err)
		}
		if err := dephealthService.Start(ctx); err != nil {
			logger.Error("Ошибка запуска dephealth", slog.String("error", err.Error()))
			log.Fatalf("Dephealth не запущен: %v", err)
		}
		defer dephealthService.Stop()
	}

	// 7. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))
	apiHandler := handlers.NewAPIHandler(healthHandler, issueService, bcfService, logger)

	// 8. Middleware: логирование → метрики → аутентификация.
	// Health и метрики доступны без токена.
	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
	}

	var authMW func(http.Handler) http.Handler
	if cfg.JWTEnabled {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWKSCACert,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка инициализации JWT middleware", slog.String("error", err.Error()))
			log.Fatalf("JWT middleware не инициализирован: %v", err)
		}
		defer jwtAuth.Close()
		authMW = jwtAuth.Middleware()
	} else {
		logger.Warn("JWT отключён — имя пользователя берётся из X-Remote-User")
		authMW = middleware.PassthroughAuth()
	}
	middlewares = append(middlewares,
		server.AuthWithExclusions(authMW, "/health/", "/metrics"))

	// 9. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Collab Module остановлен")
}
