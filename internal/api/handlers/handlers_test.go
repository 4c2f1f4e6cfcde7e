package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/electoreg/roster-module/internal/domain/model"
	"github.com/electoreg/roster-module/internal/registry"
	"github.com/electoreg/roster-module/internal/service"
)

// stubRegistry — заглушка клиента реестра: сеть всегда недоступна.
type stubRegistry struct{}

func (stubRegistry) FetchPage(context.Context, int, int) (registry.Page, error) {
	return registry.Page{}, errors.New("недоступен")
}
func (stubRegistry) FetchSkip(context.Context, int, int) (registry.Page, error) {
	return registry.Page{}, errors.New("недоступен")
}
func (stubRegistry) FetchPlain(context.Context) (registry.Page, error) {
	return registry.Page{}, errors.New("недоступен")
}
func (stubRegistry) Search(context.Context, string) ([]model.Record, error) {
	return nil, errors.New("недоступен")
}

// stubChecker — заглушка readiness checker.
type stubChecker struct{ status, message string }

func (c stubChecker) CheckReady() (string, string) { return c.status, c.message }

// stubReplica — заглушка реплики: всегда промах.
type stubReplica struct{}

func (stubReplica) Read(context.Context) ([]model.Record, int, bool) { return nil, 0, false }
func (stubReplica) Write(context.Context, []model.Record, int) error { return nil }
func (stubReplica) Clear(context.Context) error                      { return nil }

// newTestHandler собирает APIHandler с набором записей в памяти.
func newTestHandler(t *testing.T, records []model.Record) (*APIHandler, *service.Session) {
	t.Helper()
	session, err := service.NewSession(50)
	if err != nil {
		t.Fatalf("создание сессии: %v", err)
	}
	session.ReplaceAll(records, len(records))

	logger := slog.Default()
	syncSvc := service.NewSyncService(stubRegistry{}, stubReplica{}, session, service.SyncConfig{
		PageSize: 10, BatchSize: 3, FullDedupEvery: 5,
	}, logger)
	searchSvc := service.NewSearchService(session, stubRegistry{}, 5000, logger)
	t.Cleanup(searchSvc.Stop)

	health := NewHealthHandler(stubChecker{status: "ok"}, session)
	return NewAPIHandler(health, session, syncSvc, searchSvc, logger), session
}

func testRecords() []model.Record {
	return []model.Record{
		{InternalID: "1", IdentityNumber: "ABC1234567", Name: "Иван", Surname: "Петров", Phone: "79001112233"},
		{InternalID: "2", IdentityNumber: "ABC7654321", Name: "Пётр", Surname: "Иванов", Phone: "79001110000"},
		{InternalID: "3", IdentityNumber: "XYZ0001234", Name: "Анна", Surname: "Петрова", Phone: "79005556677"},
	}
}

// TestGetState проверяет выдачу состояния сессии.
func TestGetState(t *testing.T) {
	h, session := newTestHandler(t, testRecords())
	session.SetSearching("Иван", service.ModeName)

	rec := httptest.NewRecorder()
	h.GetState(rec, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var resp struct {
		RecordCount int `json:"record_count"`
		TotalCount  int `json:"total_count"`
		Search      struct {
			Query     string `json:"query"`
			Searching bool   `json:"is_searching"`
		} `json:"search"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.RecordCount != 3 || resp.TotalCount != 3 {
		t.Errorf("record_count=%d total_count=%d, ожидалось 3 и 3", resp.RecordCount, resp.TotalCount)
	}
	if resp.Search.Query != "Иван" || !resp.Search.Searching {
		t.Errorf("состояние поиска не отражено: %+v", resp.Search)
	}
}

// TestGetRecords проверяет постраничный просмотр набора.
func TestGetRecords(t *testing.T) {
	h, _ := newTestHandler(t, testRecords())

	rec := httptest.NewRecorder()
	h.GetRecords(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records?limit=2&offset=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var resp struct {
		Items   []model.Record `json:"items"`
		Total   int            `json:"total"`
		HasMore bool           `json:"has_more"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].InternalID != "2" {
		t.Errorf("страница неверна: %d записей", len(resp.Items))
	}
	if resp.Total != 3 || resp.HasMore {
		t.Errorf("total=%d has_more=%v, ожидалось 3 и false", resp.Total, resp.HasMore)
	}

	// Некорректный limit — 400
	rec = httptest.NewRecorder()
	h.GetRecords(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400", rec.Code)
	}

	// Offset за пределами набора — пустая страница, не ошибка
	rec = httptest.NewRecorder()
	h.GetRecords(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records?offset=100", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидался 200", rec.Code)
	}
}

// TestPostSearch проверяет немедленный поиск через API.
func TestPostSearch(t *testing.T) {
	h, _ := newTestHandler(t, testRecords())

	body := strings.NewReader(`{"query": "Петров", "mode": "name"}`)
	rec := httptest.NewRecorder()
	h.PostSearch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var resp struct {
		Results     []model.Record `json:"results"`
		Suggestions []model.Record `json:"suggestions"`
		Source      string         `json:"source"`
		Total       int            `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Total != 2 || resp.Source != "local" {
		t.Errorf("total=%d source=%q, ожидалось 2 и local", resp.Total, resp.Source)
	}
	if len(resp.Suggestions) == 0 {
		t.Error("подсказки отсутствуют")
	}
}

// TestPostSearch_Validation проверяет валидацию тела запроса.
func TestPostSearch_Validation(t *testing.T) {
	h, _ := newTestHandler(t, testRecords())

	// Некорректный JSON
	rec := httptest.NewRecorder()
	h.PostSearch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{обрублено`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный JSON: статус = %d, ожидался 400", rec.Code)
	}

	// Неизвестный режим
	rec = httptest.NewRecorder()
	h.PostSearch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"ab","mode":"fuzzy"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("неизвестный режим: статус = %d, ожидался 400", rec.Code)
	}

	// Короткий запрос — пустой результат, не ошибка
	rec = httptest.NewRecorder()
	h.PostSearch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"a"}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("короткий запрос: статус = %d, ожидался 200", rec.Code)
	}
}

// TestPostQueryAndResults проверяет отложенную оценку: 202 на постановку,
// публикация читается через search-results.
func TestPostQueryAndResults(t *testing.T) {
	h, session := newTestHandler(t, testRecords())

	rec := httptest.NewRecorder()
	h.PostQuery(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"Анна","mode":"name"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("статус = %d, ожидался 202", rec.Code)
	}

	st := session.SearchState()
	if st.Query != "Анна" || !st.Searching {
		t.Errorf("запрос не зафиксирован: %+v", st)
	}

	rec = httptest.NewRecorder()
	h.GetSearchResults(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search-results", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидался 200", rec.Code)
	}
}

// TestPostFilter проверяет фильтрацию через API.
func TestPostFilter(t *testing.T) {
	h, _ := newTestHandler(t, testRecords())

	rec := httptest.NewRecorder()
	h.PostFilter(rec, httptest.NewRequest(http.MethodPost, "/api/v1/filter", strings.NewReader(`{"kind":"surname","value":"петров"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, ожидался 1", resp.Total)
	}

	// Неизвестный вид фильтра — 400
	rec = httptest.NewRecorder()
	h.PostFilter(rec, httptest.NewRequest(http.MethodPost, "/api/v1/filter", strings.NewReader(`{"kind":"район","value":"х"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400", rec.Code)
	}

	// Пустое value — 400
	rec = httptest.NewRecorder()
	h.PostFilter(rec, httptest.NewRequest(http.MethodPost, "/api/v1/filter", strings.NewReader(`{"kind":"surname","value":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400", rec.Code)
	}
}

// TestPostDedup проверяет команду принудительной дедупликации.
func TestPostDedup(t *testing.T) {
	records := append(testRecords(), model.Record{InternalID: "1", Name: "Дубликат"})
	h, session := newTestHandler(t, records)

	rec := httptest.NewRecorder()
	h.PostDedup(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dedup", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp["removed"] != 1 || resp["remaining"] != 3 {
		t.Errorf("removed=%d remaining=%d, ожидалось 1 и 3", resp["removed"], resp["remaining"])
	}
	if session.Len() != 3 {
		t.Errorf("в наборе %d записей, ожидалось 3", session.Len())
	}
}

// TestDeleteCache проверяет команду очистки кэша.
func TestDeleteCache(t *testing.T) {
	h, session := newTestHandler(t, testRecords())

	rec := httptest.NewRecorder()
	h.DeleteCache(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if session.Len() != 0 {
		t.Error("сессия не сброшена после очистки кэша")
	}
}

// TestHealthLive проверяет liveness probe.
func TestHealthLive(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидался 200", rec.Code)
	}
}

// TestHealthReady проверяет readiness probe: пустой набор — degraded (200),
// недоступный реестр при пустом наборе — fail (503), недоступный реестр
// при загруженном наборе — деградация (200).
func TestHealthReady(t *testing.T) {
	readyStatus := func(t *testing.T, checker ReadinessChecker, records []model.Record) (int, string) {
		t.Helper()
		session, err := service.NewSession(50)
		if err != nil {
			t.Fatalf("создание сессии: %v", err)
		}
		session.ReplaceAll(records, len(records))
		health := NewHealthHandler(checker, session)

		rec := httptest.NewRecorder()
		health.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		var resp struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		return rec.Code, resp.Status
	}

	if code, status := readyStatus(t, stubChecker{status: "ok"}, nil); code != http.StatusOK || status != "degraded" {
		t.Errorf("пустой набор: code=%d status=%q, ожидалось 200/degraded", code, status)
	}
	if code, status := readyStatus(t, stubChecker{status: "fail", message: "недоступен"}, nil); code != http.StatusServiceUnavailable || status != "fail" {
		t.Errorf("реестр недоступен: code=%d status=%q, ожидалось 503/fail", code, status)
	}
	if code, status := readyStatus(t, stubChecker{status: "fail", message: "недоступен"}, testRecords()); code != http.StatusOK || status != "degraded" {
		t.Errorf("реестр недоступен при загруженном наборе: code=%d status=%q, ожидалось 200/degraded", code, status)
	}
	if code, status := readyStatus(t, stubChecker{status: "ok"}, testRecords()); code != http.StatusOK || status != "ok" {
		t.Errorf("всё доступно: code=%d status=%q, ожидалось 200/ok", code, status)
	}
}
