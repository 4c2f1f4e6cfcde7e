// records.go — постраничный доступ к набору записей в памяти.
package handlers

import (
	"net/http"
	"strconv"

	apierrors "github.com/electoreg/roster-module/internal/api/errors"
	"github.com/electoreg/roster-module/internal/domain/model"
)

// recordsResponse — страница набора записей.
type recordsResponse struct {
	Items []model.Record `json:"items"`
	// Total — размер набора в памяти
	Total int `json:"total"`
	// ReportedTotal — заявленное реестром общее количество
	ReportedTotal int  `json:"reported_total"`
	Limit         int  `json:"limit"`
	Offset        int  `json:"offset"`
	HasMore       bool `json:"has_more"`
}

// GetRecords — GET /api/v1/records?limit=&offset=.
// Постраничный просмотр текущего набора в порядке набора.
func (h *APIHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, hasLimit := 0, false
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр limit должен быть целым числом")
			return
		}
		limit, hasLimit = v, true
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр offset должен быть целым числом")
			return
		}
		offset = v
	}
	limit, offset = paginationDefaults(limit, offset, hasLimit)

	records := h.session.Snapshot()
	total := len(records)

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items := records[start:end]
	if items == nil {
		items = []model.Record{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{
		Items:         items,
		Total:         total,
		ReportedTotal: h.session.ReportedTotal(),
		Limit:         limit,
		Offset:        offset,
		HasMore:       end < total,
	})
}
