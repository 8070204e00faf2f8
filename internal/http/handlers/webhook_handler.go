package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/stripe"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/res"
	stripego "github.com/stripe/stripe-go/v78"
)

const (
	// Ограничение на размер тела запроса вебхука (Stripe рекомендует ~65kb)
	maxRequestBodySize = int64(65536)

	signatureHeader = "Stripe-Signature"
)

// WebhookProcessor применяет проверенное событие Stripe к локальному состоянию
type WebhookProcessor interface {
	HandleEvent(ctx context.Context, event stripego.Event) (domain.WebhookOutcome, error)
}

// WebhookHandler обрабатывает входящие вебхуки от Stripe.
type WebhookHandler struct {
	processor     WebhookProcessor
	webhookSecret string
	log           *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(webhookSecret string, processor WebhookProcessor, log *logger.Logger) (*WebhookHandler, error) {
	if webhookSecret == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	return &WebhookHandler{
		processor:     processor,
		webhookSecret: webhookSecret,
		log:           log.Named("webhook"),
	}, nil
}

// HandleStripeWebhook POST /api/webhooks/stripe
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Тело читаем один раз: подпись считается по сырым байтам
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()
	if err != nil {
		h.log.Warnw("Failed to read webhook request body", "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Cannot read request body"}, http.StatusBadRequest)
		c.Abort()
		return
	}

	sig := c.GetHeader(signatureHeader)
	if sig == "" {
		h.log.Warnw("Missing Stripe-Signature header")
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Invalid signature"}, http.StatusBadRequest)
		c.Abort()
		return
	}

	event, err := stripe.VerifyEvent(payload, sig, h.webhookSecret)
	if err != nil {
		h.log.Warnw("Webhook signature verification failed", "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Invalid signature"}, http.StatusBadRequest)
		c.Abort()
		return
	}

	outcome, err := h.processor.HandleEvent(c.Request.Context(), event)
	if err != nil {
		h.log.Errorw("Webhook processing failed", "eventId", event.ID, "eventType", event.Type, "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: internalErrorMessage}, http.StatusInternalServerError)
		c.Abort()
		return
	}

	status := http.StatusOK
	if outcome == domain.WebhookOutcomeUnmatched {
		status = http.StatusAccepted
	}
	res.JsonResponse(c.Writer, res.Received{Received: true}, status)
}
