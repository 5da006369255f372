package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/smartspark/backend/pkg/utils"
)

// RootMessage is the liveness marker served at GET /.
const RootMessage = "SmartSpark API is running!"

// ReadinessChecker reports whether dependencies are usable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Handler serves liveness and readiness probes.
type Handler struct {
	svc ReadinessChecker
}

// New creates a probe handler.
func New(svc ReadinessChecker) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /health and /ready on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
}

// HandleRoot answers the root liveness marker.
func (h *Handler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, utils.MessageResponse{Message: RootMessage})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Ready(ctx); err != nil {
		utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"detail": err.Error(),
		})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
