// health.go — обработчики health endpoints Roster Module.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (удалённый реестр и состояние набора)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/electoreg/roster-module/internal/config"
	"github.com/electoreg/roster-module/internal/service"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	registryChecker ReadinessChecker
	session         *service.Session
	promHandler     http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// registryChecker — проверка удалённого реестра (может быть nil —
// readiness вернёт "fail" по этой зависимости).
func NewHealthHandler(registryChecker ReadinessChecker, session *service.Session) *HealthHandler {
	return &HealthHandler{
		registryChecker: registryChecker,
		session:         session,
		promHandler:     promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Registry healthCheckResult `json:"registry"`
		Roster   healthCheckResult `json:"roster"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "roster-module",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — readiness probe. Проверяет удалённый реестр и наличие
// набора записей. Пустой набор при доступном реестре — degraded, не fail:
// сервис способен отвечать, но синхронизация ещё не прошла.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "roster-module",
	}

	if h.registryChecker != nil {
		regStatus, regMsg := h.registryChecker.CheckReady()
		resp.Checks.Registry = healthCheckResult{Status: regStatus, Message: regMsg}
	} else {
		resp.Checks.Registry = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	resp.Checks.Roster = h.rosterCheck()

	resp.Status = overallStatus(resp.Checks.Registry.Status, resp.Checks.Roster.Status)

	// Недоступный реестр при уже загруженном наборе — деградация, не отказ:
	// поиск продолжает работать по данным в памяти
	if resp.Status == statusFail && h.session.Len() > 0 {
		resp.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == statusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// rosterCheck — состояние набора записей в памяти.
func (h *HealthHandler) rosterCheck() healthCheckResult {
	st := h.session.State()
	switch {
	case st.ErrorMessage != "":
		return healthCheckResult{Status: statusDegraded, Message: st.ErrorMessage}
	case st.Loading:
		return healthCheckResult{Status: statusDegraded, Message: "идёт синхронизация"}
	case st.RecordCount == 0:
		return healthCheckResult{Status: statusDegraded, Message: "набор записей пуст"}
	default:
		return healthCheckResult{Status: "ok"}
	}
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Константы статусов health check.
const (
	statusFail     = "fail"
	statusDegraded = "degraded"
)

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return "ok"
}
