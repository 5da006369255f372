package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS returns a middleware that allows the configured origins. A "*" entry
// allows any origin, mirroring the frontend's development setup.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allow := OriginAllowed(allowedOrigins)
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return allow(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}

// OriginAllowed is the origin policy shared by CORS and the WebSocket upgrader.
func OriginAllowed(allowedOrigins []string) func(origin string) bool {
	return func(origin string) bool {
		origin = strings.TrimRight(origin, "/")
		for _, allowed := range allowedOrigins {
			if allowed == "*" || strings.TrimRight(allowed, "/") == origin {
				return true
			}
		}
		return false
	}
}
