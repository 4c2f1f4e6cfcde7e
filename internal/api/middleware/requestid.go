// requestid.go — middleware присвоения идентификатора запроса.
// Входящий X-Request-Id уважается (трассировка через API Gateway),
// отсутствующий — генерируется.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// ContextKeyRequestID — идентификатор запроса в контексте.
	ContextKeyRequestID contextKey = "request_id"
	// HeaderRequestID — HTTP-заголовок идентификатора запроса.
	HeaderRequestID = "X-Request-Id"
)

// RequestID возвращает middleware, обеспечивающий каждому запросу
// идентификатор: из входящего заголовка либо сгенерированный UUID.
// Идентификатор помещается в контекст и в заголовок ответа.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			ctx := context.WithValue(r.Context(), ContextKeyRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext извлекает идентификатор запроса из контекста.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}
