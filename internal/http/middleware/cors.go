package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

// CORS lets dashboards on the listed origins watch command state and post
// completions on behalf of an operator.
func CORS(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id", "Location"},
		AllowCredentials: allowCredentials,
		MaxAge:           int((5 * time.Minute).Seconds()),
	})
}
