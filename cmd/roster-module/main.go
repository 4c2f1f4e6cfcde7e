// main.go — точка входа Roster Module: конфигурация, логгер, локальная
// реплика, клиент реестра, сервисный слой, HTTP-сервер. Первичная
// синхронизация запускается в фоне, сервер поднимается сразу.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/electoreg/roster-module/internal/api/handlers"
	"github.com/electoreg/roster-module/internal/api/middleware"
	"github.com/electoreg/roster-module/internal/cachestore"
	"github.com/electoreg/roster-module/internal/config"
	"github.com/electoreg/roster-module/internal/kvstore"
	"github.com/electoreg/roster-module/internal/registry"
	"github.com/electoreg/roster-module/internal/server"
	"github.com/electoreg/roster-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Roster Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("registry_url", cfg.RegistryURL),
	)

	// 3. Локальная реплика: kvstore (SQLite) + cachestore
	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o750); err != nil {
		log.Fatalf("Ошибка создания каталога реплики: %v", err)
	}
	kv, err := kvstore.Open(cfg.CachePath, cfg.CacheMaxBytes, logger)
	if err != nil {
		log.Fatalf("Ошибка открытия хранилища реплики: %v", err)
	}
	defer func() { _ = kv.Close() }()
	replica := cachestore.New(kv, cfg.CacheTTL, cfg.CacheMaxRecords, cfg.CacheChunkSize, logger)

	// 4. Клиент удалённого реестра
	registryClient, err := registry.New(cfg.RegistryURL, cfg.RegistryCACertPath, cfg.RegistryTimeout, logger)
	if err != nil {
		log.Fatalf("Ошибка создания клиента реестра: %v", err)
	}

	// 5. Сервисный слой: сессия, синхронизация, поиск
	session, err := service.NewSession(cfg.QueryCacheSize)
	if err != nil {
		log.Fatalf("Ошибка создания сессии: %v", err)
	}
	syncSvc := service.NewSyncService(registryClient, replica, session, service.SyncConfig{
		PageSize:       cfg.PageSize,
		BatchSize:      cfg.BatchSize,
		BatchPause:     cfg.BatchPause,
		FullDedupEvery: cfg.FullDedupEvery,
		RetryBackoff:   cfg.RetryBackoff,
	}, logger)
	searchSvc := service.NewSearchService(session, registryClient, cfg.SearchResultLimit, logger)
	defer searchSvc.Stop()

	// 6. Мониторинг зависимостей (topologymetrics)
	deps, err := service.NewDephealthService(
		"roster-module",
		cfg.DephealthGroup,
		cfg.RegistryURL,
		cfg.RegistryHealthPath,
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if err != nil {
		log.Fatalf("Ошибка инициализации мониторинга зависимостей: %v", err)
	}
	if err := deps.Start(context.Background()); err != nil {
		log.Fatalf("Ошибка запуска мониторинга зависимостей: %v", err)
	}
	defer deps.Stop()

	// 7. Обработчики API
	healthHandler := handlers.NewHealthHandler(registryReadiness{deps: deps}, session)
	apiHandler := handlers.NewAPIHandler(healthHandler, session, syncSvc, searchSvc, logger)

	// 8. Middleware: request id → метрики → логирование → JWT (опционально)
	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWKSCACertPath,
			cfg.JWTIssuer,
			cfg.AdminGroups,
			cfg.ReadonlyGroups,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			log.Fatalf("Ошибка инициализации JWT middleware: %v", err)
		}
		defer jwtAuth.Close()
		middlewares = append(middlewares, jwtAuth.Middleware())
		logger.Info("JWT-аутентификация включена", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		logger.Warn("JWT-аутентификация выключена (RM_JWKS_URL не задан)")
	}

	// 9. Первичная синхронизация в фоне: сервер не ждёт реестр
	go func() {
		if err := syncSvc.Sync(context.Background()); err != nil {
			logger.Error("Первичная синхронизация завершилась ошибкой",
				slog.String("error", err.Error()),
			)
		}
	}()

	// 10. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Roster Module остановлен")
}

// registryReadiness — адаптер состояния dephealth к readiness probe.
type registryReadiness struct {
	deps *service.DephealthService
}

// CheckReady возвращает состояние удалённого реестра по данным
// периодических проверок dephealth.
func (r registryReadiness) CheckReady() (status, message string) {
	if r.deps.Health()["registry"] {
		return "ok", ""
	}
	return "fail", "удалённый реестр недоступен"
}
