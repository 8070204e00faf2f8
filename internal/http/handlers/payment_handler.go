package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/services"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/res"
)

// IntentCreator создает кампанию и платежный объект Stripe
type IntentCreator interface {
	CreateIntent(ctx context.Context, in services.CreateIntentInput) (*services.CreateIntentOutput, error)
}

// PaymentHandler обрабатывает оформление пожертвований
type PaymentHandler struct {
	checkout IntentCreator
	log      *logger.Logger
}

// NewPaymentHandler создает новый экземпляр PaymentHandler.
func NewPaymentHandler(checkout IntentCreator, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkout,
		log:      log.Named("payments"),
	}
}

// CreateIntent обрабатывает POST /api/payments/create-intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	input, ok := decodeBody[services.CreateIntentInput](c, h.log)
	if !ok {
		return
	}
	input.IdempotencyKey = c.GetHeader("Idempotency-Key")

	output, err := h.checkout.CreateIntent(c.Request.Context(), input)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	h.log.Infow("Payment intent created", "campaignId", output.CampaignID, "customerId", output.CustomerID)
	res.JsonResponse(c.Writer, output, http.StatusOK)
}
