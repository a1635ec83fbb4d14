package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Recover turns a handler panic into a JSON 500 and logs it.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					cid := GetCorrelationID(r.Context())
					logger.Error("panic in handler",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"correlation_id", cid,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"success":        false,
						"message":        "internal server error",
						"correlation_id": cid,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
