package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/smartspark/backend/internal/handler/chat"
	"github.com/zhouzirui/smartspark/backend/internal/handler/health"
	"github.com/zhouzirui/smartspark/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/smartspark/backend/internal/middleware"
	chatService "github.com/zhouzirui/smartspark/backend/internal/service/chat"
	"github.com/zhouzirui/smartspark/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, readiness health.ReadinessChecker, allowedOrigins []string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	healthHandler := health.New(readiness)
	chatHandler := chat.New(chatSvc, log)
	wsHandler := ws.New(chatSvc, middlewarePkg.OriginAllowed(allowedOrigins), log)

	r.Get("/", healthHandler.HandleRoot)

	r.Route("/api", func(api chi.Router) {
		healthHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
