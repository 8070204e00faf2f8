package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/stripe/stripe-go/v78"
)

const (
	errorTypeAPIConnection stripe.ErrorType = "api_connection_error"

	serviceName = "stripe"
)

// IsRetryable проверяет, является ли ошибка Stripe подходящей для повторной попытки
func IsRetryable(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if stripeErr.Type == errorTypeAPIConnection {
			return true
		}
		// 501 не retryable
		if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented {
			return true
		}
	}
	return false
}

// retryingClient повторяет временные ошибки Stripe с экспоненциальной задержкой
type retryingClient struct {
	next       Client
	log        *logger.Logger
	newBackOff func() backoff.BackOff
}

// NewRetryingClient оборачивает Client повторными попытками
func NewRetryingClient(next Client, maxElapsed time.Duration, log *logger.Logger) Client {
	return &retryingClient{
		next: next,
		log:  log,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 300 * time.Millisecond
			bo.MaxInterval = 5 * time.Second
			bo.MaxElapsedTime = maxElapsed
			return bo
		},
	}
}

func (c *retryingClient) do(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			c.log.Warnw("Retryable Stripe error occurred, retrying", "operation", operation, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		return domain.NewExternalServiceError(serviceName, operation, IsRetryable(err), err)
	}
	return nil
}

func (c *retryingClient) FindOrCreateCustomer(ctx context.Context, input CustomerInput) (string, error) {
	var id string
	err := c.do(ctx, "FindOrCreateCustomer", func() (err error) {
		id, err = c.next.FindOrCreateCustomer(ctx, input)
		return err
	})
	return id, err
}

func (c *retryingClient) FindOrCreateMonthlyPrice(ctx context.Context, productID string, amount int64, currency string) (string, error) {
	var id string
	err := c.do(ctx, "FindOrCreateMonthlyPrice", func() (err error) {
		id, err = c.next.FindOrCreateMonthlyPrice(ctx, productID, amount, currency)
		return err
	})
	return id, err
}

func (c *retryingClient) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string, idempotencyKey string) (*SubscriptionResult, error) {
	var res *SubscriptionResult
	err := c.do(ctx, "CreateSubscription", func() (err error) {
		res, err = c.next.CreateSubscription(ctx, customerID, priceID, metadata, idempotencyKey)
		return err
	})
	return res, err
}

func (c *retryingClient) CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (*PaymentIntentResult, error) {
	var res *PaymentIntentResult
	err := c.do(ctx, "CreatePaymentIntent", func() (err error) {
		res, err = c.next.CreatePaymentIntent(ctx, input)
		return err
	})
	return res, err
}

func (c *retryingClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return c.do(ctx, "CancelSubscription", func() error {
		return c.next.CancelSubscription(ctx, subscriptionID)
	})
}

func (c *retryingClient) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	return c.do(ctx, "CancelPaymentIntent", func() error {
		return c.next.CancelPaymentIntent(ctx, paymentIntentID)
	})
}
