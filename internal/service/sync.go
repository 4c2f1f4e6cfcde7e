// sync.go — оркестратор синхронизации: читает локальную реплику либо
// выкачивает реестр постранично, пакетами с параллельными запросами,
// с fallback-стратегиями пагинации и терпимостью к потере отдельных страниц.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/electoreg/roster-module/internal/dedup"
	"github.com/electoreg/roster-module/internal/domain/model"
	"github.com/electoreg/roster-module/internal/registry"
)

// RegistryClient — клиент удалённого реестра.
type RegistryClient interface {
	FetchPage(ctx context.Context, page, limit int) (registry.Page, error)
	FetchSkip(ctx context.Context, skip, limit int) (registry.Page, error)
	FetchPlain(ctx context.Context) (registry.Page, error)
	Search(ctx context.Context, query string) ([]model.Record, error)
}

// ReplicaStore — персистентная локальная реплика реестра.
type ReplicaStore interface {
	Read(ctx context.Context) ([]model.Record, int, bool)
	Write(ctx context.Context, records []model.Record, reportedTotal int) error
	Clear(ctx context.Context) error
}

// Prometheus-метрики синхронизации.
var (
	syncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_syncs_total",
		Help: "Количество синхронизаций по результату.",
	}, []string{"result"})
	syncPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_sync_pages_total",
		Help: "Количество загруженных страниц по способу получения.",
	}, []string{"result"})
	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_sync_duration_seconds",
		Help:    "Длительность полной синхронизации.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})
)

// SyncConfig — параметры оркестратора.
type SyncConfig struct {
	// PageSize — размер страницы реестра
	PageSize int
	// BatchSize — количество параллельных запросов в пакете
	BatchSize int
	// BatchPause — пауза между пакетами (снижение нагрузки на реестр)
	BatchPause time.Duration
	// FullDedupEvery — полный проход дедупликации каждые N принятых страниц
	FullDedupEvery int
	// RetryBackoff — пауза перед единственной автоматической повторной
	// попыткой после отказа первой страницы
	RetryBackoff time.Duration
}

// SyncService — сервис синхронизации набора записей с реестром.
type SyncService struct {
	client  RegistryClient
	replica ReplicaStore
	session *Session
	cfg     SyncConfig
	logger  *slog.Logger

	// syncMu — не более одной синхронизации одновременно
	syncMu sync.Mutex
}

// NewSyncService создаёт сервис синхронизации.
func NewSyncService(client RegistryClient, replica ReplicaStore, session *Session, cfg SyncConfig, logger *slog.Logger) *SyncService {
	return &SyncService{
		client:  client,
		replica: replica,
		session: session,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "sync")),
	}
}

// Sync выполняет полный цикл синхронизации: сначала попытка чтения
// локальной реплики, при её отсутствии — постраничная загрузка из реестра.
// Конкурентные вызовы сериализуются.
func (s *SyncService) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.run(ctx, 0)
}

// Retry — операторская команда повторной синхронизации после ошибки.
func (s *SyncService) Retry(ctx context.Context) error {
	return s.Sync(ctx)
}

// ClearCache — операторская команда очистки: реплика удаляется целиком,
// сессия сбрасывается в исходное состояние.
func (s *SyncService) ClearCache(ctx context.Context) error {
	if err := s.replica.Clear(ctx); err != nil {
		return err
	}
	s.session.Reset()
	s.logger.Info("Локальная реплика очищена, сессия сброшена")
	return nil
}

// run — одна попытка синхронизации. attempt=0 — первая (читает реплику и
// имеет право на одну автоматическую повторную попытку), attempt=1 — повтор.
func (s *SyncService) run(ctx context.Context, attempt int) error {
	syncID := uuid.NewString()
	log := s.logger.With(slog.String("sync_id", syncID))
	start := time.Now()

	if attempt == 0 {
		if records, total, ok := s.replica.Read(ctx); ok {
			s.session.ReplaceAll(records, total)
			s.session.ClearError()
			s.session.MarkSynced()
			syncsTotal.WithLabelValues("cache_hit").Inc()
			log.Info("Синхронизация из локальной реплики",
				slog.Int("records", len(records)),
				slog.Int("reported_total", total),
			)
			return nil
		}
	}

	s.session.SetLoading(true)
	defer s.session.SetLoading(false)
	s.session.ClearError()

	log.Info("Начата загрузка реестра",
		slog.Int("page_size", s.cfg.PageSize),
		slog.Int("batch_size", s.cfg.BatchSize),
	)

	// Первая страница: пагинация по номеру, затем запрос без параметров
	first, err := s.client.FetchPage(ctx, 1, s.cfg.PageSize)
	if err != nil {
		log.Warn("Первая страница не получена, пробуем запрос без параметров",
			slog.String("error", err.Error()),
		)
		first, err = s.client.FetchPlain(ctx)
	}
	if err != nil {
		if attempt == 0 {
			log.Warn("Реестр недоступен, повторная попытка после паузы",
				slog.Duration("backoff", s.cfg.RetryBackoff),
				slog.String("error", err.Error()),
			)
			s.session.SetRetrying(true)
			select {
			case <-time.After(s.cfg.RetryBackoff):
			case <-ctx.Done():
				s.session.SetRetrying(false)
				return ctx.Err()
			}
			s.session.SetRetrying(false)
			return s.run(ctx, 1)
		}
		s.session.SetError("Не удалось загрузить реестр избирателей")
		syncsTotal.WithLabelValues("error").Inc()
		log.Error("Синхронизация завершилась ошибкой", slog.String("error", err.Error()))
		return fmt.Errorf("загрузка первой страницы: %w", err)
	}

	total := first.ReportedTotal
	firstRecords := dedup.Records(first.Records)
	s.session.ReplaceAll(firstRecords, total)
	syncPagesTotal.WithLabelValues("ok").Inc()

	failedPages := 0
	totalPages := 0
	if s.cfg.PageSize > 0 && total > 0 {
		totalPages = (total + s.cfg.PageSize - 1) / s.cfg.PageSize
	}
	// Ответ без параметров мог вернуть реестр целиком — догружать нечего
	if len(first.Records) >= total {
		totalPages = 1
	}

	// Остальные страницы пакетами параллельных запросов; результаты
	// принимаются строго в порядке возрастания номеров страниц
	pagesSinceDedup := 0
	for batchStart := 2; batchStart <= totalPages; batchStart += s.cfg.BatchSize {
		batchEnd := batchStart + s.cfg.BatchSize - 1
		if batchEnd > totalPages {
			batchEnd = totalPages
		}

		// Страница может быть успешной и при этом пустой, поэтому
		// успех отслеживается явно, а не по nil-срезу
		type pageResult struct {
			records []model.Record
			ok      bool
		}
		results := make([]pageResult, batchEnd-batchStart+1)
		g, gctx := errgroup.WithContext(ctx)
		for i := range results {
			i := i
			pageNo := batchStart + i
			g.Go(func() error {
				records, ok := s.fetchPageWithFallback(gctx, pageNo, log)
				if ok {
					results[i] = pageResult{records: dedup.Records(records), ok: true}
				}
				// Отказ страницы не отменяет соседей по пакету
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, res := range results {
			if !res.ok {
				failedPages++
				continue
			}
			s.session.Append(res.records)
			pagesSinceDedup++
		}

		if s.cfg.FullDedupEvery > 0 && pagesSinceDedup >= s.cfg.FullDedupEvery {
			removed := s.session.DedupNow()
			pagesSinceDedup = 0
			if removed > 0 {
				log.Debug("Промежуточная дедупликация", slog.Int("removed", removed))
			}
		}

		if batchEnd < totalPages && s.cfg.BatchPause > 0 {
			select {
			case <-time.After(s.cfg.BatchPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Финальный полный проход перед публикацией
	removed := s.session.DedupNow()
	final := s.session.Snapshot()

	if len(final) < total {
		log.Warn("Синхронизация завершена с недобором записей",
			slog.Int("records", len(final)),
			slog.Int("reported_total", total),
			slog.Int("failed_pages", failedPages),
		)
	}

	// Отказ сохранения реплики не фатален: набор в памяти уже опубликован
	if err := s.replica.Write(ctx, final, total); err != nil {
		log.Warn("Не удалось сохранить локальную реплику", slog.String("error", err.Error()))
	}

	s.session.MarkSynced()
	syncsTotal.WithLabelValues("ok").Inc()
	syncDuration.Observe(time.Since(start).Seconds())
	log.Info("Синхронизация завершена",
		slog.Int("records", len(final)),
		slog.Int("reported_total", total),
		slog.Int("failed_pages", failedPages),
		slog.Int("dedup_removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// fetchPageWithFallback загружает страницу: сначала пагинация по номеру,
// при отказе — skip-пагинация. Двойной отказ означает потерю страницы.
func (s *SyncService) fetchPageWithFallback(ctx context.Context, pageNo int, log *slog.Logger) ([]model.Record, bool) {
	page, err := s.client.FetchPage(ctx, pageNo, s.cfg.PageSize)
	if err == nil {
		syncPagesTotal.WithLabelValues("ok").Inc()
		return page.Records, true
	}

	skip := (pageNo - 1) * s.cfg.PageSize
	page, skipErr := s.client.FetchSkip(ctx, skip, s.cfg.PageSize)
	if skipErr == nil {
		log.Debug("Страница получена через skip-пагинацию",
			slog.Int("page", pageNo),
			slog.String("page_error", err.Error()),
		)
		syncPagesTotal.WithLabelValues("fallback").Inc()
		return page.Records, true
	}

	log.Warn("Страница потеряна: оба способа пагинации отказали",
		slog.Int("page", pageNo),
		slog.String("page_error", err.Error()),
		slog.String("skip_error", skipErr.Error()),
	)
	syncPagesTotal.WithLabelValues("failed").Inc()
	return nil, false
}
