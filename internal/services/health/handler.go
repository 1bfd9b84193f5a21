package health

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"catastro-backend/internal/shared/server/respond"
)

// Handler exposes the health and config endpoints.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes wires GET /health and GET /config.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.health)
	rg.GET("/config", h.settings)
}

func (h *Handler) health(c *gin.Context) {
	respond.OK(c, h.Svc.Status())
}

func (h *Handler) settings(c *gin.Context) {
	settings, err := h.Svc.Settings()
	if err != nil {
		if errors.Is(err, ErrConfigUnavailable) {
			respond.Error(c, http.StatusInternalServerError, "configuration", "Configuración no disponible", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		return
	}
	respond.OK(c, settings)
}
