// handler.go — основной обработчик API Roster Module.
// Объединяет health и бизнес-обработчики, делегируя запросы
// в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/electoreg/roster-module/internal/api/middleware"
	"github.com/electoreg/roster-module/internal/service"
)

// APIHandler — основной обработчик API Roster Module.
type APIHandler struct {
	health  *HealthHandler
	session *service.Session
	syncSvc *service.SyncService
	search  *service.SearchService
	logger  *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	session *service.Session,
	syncSvc *service.SyncService,
	search *service.SearchService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:  health,
		session: session,
		syncSvc: syncSvc,
		search:  search,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// requestSubject возвращает субъект запроса для аудита команд
// ("anonymous", если аутентификация выключена).
func requestSubject(r *http.Request) string {
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		return subject
	}
	return "anonymous"
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit, offset int, hasLimit bool) (limitVal, offsetVal int) {
	l := 100
	if hasLimit {
		l = limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}
	o := offset
	if o < 0 {
		o = 0
	}
	return l, o
}
