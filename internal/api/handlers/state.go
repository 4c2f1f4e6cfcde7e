// state.go — наблюдаемое состояние сервиса для operator-facing клиентов.
package handlers

import (
	"net/http"

	"github.com/electoreg/roster-module/internal/service"
)

// stateResponse — агрегированное состояние синхронизации и поиска.
type stateResponse struct {
	service.State
	Search service.SearchState `json:"search"`
}

// GetState — GET /api/v1/state.
// Возвращает состояние сессии: флаги загрузки, счётчики, ошибка,
// время последней синхронизации и состояние debounce-поиска.
func (h *APIHandler) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		State:  h.session.State(),
		Search: h.session.SearchState(),
	})
}
