package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/res"
)

// SettingsStore чтение и сохранение настроек страницы оплаты
type SettingsStore interface {
	Get(ctx context.Context) (*domain.CheckoutSettings, error)
	Upsert(ctx context.Context, in domain.CheckoutSettings, updatedBy string) (*domain.CheckoutSettings, error)
}

// SettingsHandler обрабатывает настройки страницы оформления
type SettingsHandler struct {
	settings SettingsStore
	log      *logger.Logger
}

// NewSettingsHandler создает новый экземпляр SettingsHandler.
func NewSettingsHandler(settings SettingsStore, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, log: log.Named("settings")}
}

// Get GET /api/checkout-settings и GET /api/admin/checkout-settings
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, settings, http.StatusOK)
}

// Upsert POST /api/admin/checkout-settings
func (h *SettingsHandler) Upsert(c *gin.Context) {
	input, ok := decodeBody[domain.CheckoutSettings](c, h.log)
	if !ok {
		return
	}

	saved, err := h.settings.Upsert(c.Request.Context(), input, actor(c))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, saved, http.StatusOK)
}
