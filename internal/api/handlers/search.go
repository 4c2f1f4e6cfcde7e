// search.go — обработчики поиска: немедленный поиск, отложенный запрос
// с debounce, чтение опубликованных результатов и фильтры.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/electoreg/roster-module/internal/api/errors"
	"github.com/electoreg/roster-module/internal/domain/model"
	"github.com/electoreg/roster-module/internal/service"
)

// searchRequest — тело POST /api/v1/search и POST /api/v1/query.
type searchRequest struct {
	Query string `json:"query"`
	// Mode — режим поиска: all (по умолчанию), identityNumber, phone, name
	Mode string `json:"mode,omitempty"`
}

// searchResponse — результат немедленного поиска.
type searchResponse struct {
	Results     []model.Record `json:"results"`
	Suggestions []model.Record `json:"suggestions"`
	// Source — происхождение результатов: local или remote
	Source string `json:"source"`
	Total  int    `json:"total"`
}

// decodeSearchRequest разбирает и валидирует тело поискового запроса.
func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (searchRequest, service.SearchMode, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return req, "", false
	}
	mode, ok := service.ParseMode(req.Mode)
	if !ok {
		apierrors.ValidationError(w, "Неизвестный режим поиска: "+req.Mode)
		return req, "", false
	}
	return req, mode, true
}

// PostSearch — POST /api/v1/search.
// Немедленная оценка запроса без debounce. Короткие запросы дают
// пустой результат, не ошибку.
// Авторизация: admin/readonly либо roster:read — на уровне middleware.
func (h *APIHandler) PostSearch(w http.ResponseWriter, r *http.Request) {
	req, mode, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	results, suggestions, source := h.search.Search(r.Context(), req.Query, mode)
	if results == nil {
		results = []model.Record{}
	}
	if suggestions == nil {
		suggestions = []model.Record{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:     results,
		Suggestions: suggestions,
		Source:      source,
		Total:       len(results),
	})
}

// PostQuery — POST /api/v1/query.
// Фиксирует запрос оператора и планирует его отложенную оценку.
// Результаты публикуются асинхронно и читаются через
// GET /api/v1/search-results. Возвращает 202 Accepted.
func (h *APIHandler) PostQuery(w http.ResponseWriter, r *http.Request) {
	req, mode, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	h.search.SetQuery(req.Query, mode)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "scheduled",
		"query":  req.Query,
	})
}

// GetSearchResults — GET /api/v1/search-results.
// Возвращает последнее опубликованное состояние debounce-поиска.
func (h *APIHandler) GetSearchResults(w http.ResponseWriter, _ *http.Request) {
	st := h.session.SearchState()
	if st.Results == nil {
		st.Results = []model.Record{}
	}
	if st.Suggestions == nil {
		st.Suggestions = []model.Record{}
	}
	writeJSON(w, http.StatusOK, st)
}

// filterRequest — тело POST /api/v1/filter.
type filterRequest struct {
	// Kind — вид фильтра: polling_center, surname, address
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// filterResponse — результат фильтрации.
type filterResponse struct {
	Items []model.Record `json:"items"`
	Total int            `json:"total"`
}

// PostFilter — POST /api/v1/filter.
// Фильтрация набора по участку, фамилии или адресу.
func (h *APIHandler) PostFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Value == "" {
		apierrors.ValidationError(w, "Поле value обязательно")
		return
	}

	items, err := h.search.Filter(service.FilterKind(req.Kind), req.Value)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if items == nil {
		items = []model.Record{}
	}
	writeJSON(w, http.StatusOK, filterResponse{Items: items, Total: len(items)})
}
