// commands.go — операторские команды: повторная синхронизация,
// очистка кэша, принудительная дедупликация.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/electoreg/roster-module/internal/api/errors"
)

// PostSyncRetry — POST /api/v1/sync/retry.
// Запускает повторную синхронизацию в фоне; конкурентные запуски
// сериализуются сервисом. Возвращает 202 Accepted.
// Авторизация: admin либо roster:write — на уровне middleware.
func (h *APIHandler) PostSyncRetry(w http.ResponseWriter, r *http.Request) {
	subject := requestSubject(r)
	h.logger.Info("Команда повторной синхронизации",
		slog.String("subject", subject),
	)

	go func() {
		if err := h.syncSvc.Retry(context.Background()); err != nil {
			h.logger.Error("Повторная синхронизация завершилась ошибкой",
				slog.String("error", err.Error()),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// DeleteCache — DELETE /api/v1/cache.
// Удаляет локальную реплику целиком и сбрасывает сессию.
func (h *APIHandler) DeleteCache(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Команда очистки кэша",
		slog.String("subject", requestSubject(r)),
	)

	if err := h.syncSvc.ClearCache(r.Context()); err != nil {
		h.logger.Error("Очистка кэша не удалась", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось очистить локальную реплику")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// PostDedup — POST /api/v1/dedup.
// Принудительный полный проход дедупликации по набору в памяти.
func (h *APIHandler) PostDedup(w http.ResponseWriter, r *http.Request) {
	removed := h.session.DedupNow()
	h.logger.Info("Команда дедупликации",
		slog.String("subject", requestSubject(r)),
		slog.Int("removed", removed),
	)
	writeJSON(w, http.StatusOK, map[string]int{
		"removed":   removed,
		"remaining": h.session.Len(),
	})
}
