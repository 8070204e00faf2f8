package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// Ключ метаданных для связи Stripe Customer с email партнера
	metadataPartnerEmailKey = "partner_email"

	recurringIntervalMonth = "month"
)

var customerKeyNamespace = uuid.MustParse("3b8e4f0a-9c21-5d7e-8a46-c1f2e0d9b573")

// customerIdempotencyKey строится из email и всех полей запроса:
// Stripe отвергает повтор ключа с другими параметрами.
func customerIdempotencyKey(email string, input CustomerInput) string {
	parts := []string{email, input.Name, input.Phone}
	if a := input.Address; a != nil {
		parts = append(parts, a.Line1, a.Line2, a.City, a.PostalCode, a.State, a.Country)
	}
	return "customer-" + uuid.NewSHA1(customerKeyNamespace, []byte(strings.Join(parts, "\x00"))).String()
}

// CustomerInput данные партнера для создания клиента Stripe
type CustomerInput struct {
	Email   string
	Name    string
	Phone   string
	Address *domain.Address
}

// SubscriptionResult результат создания подписки
type SubscriptionResult struct {
	ID               string
	Status           string
	ClientSecret     string
	PaymentIntentID  string
	CurrentPeriodEnd time.Time
}

// PaymentIntentInput параметры разового платежа
type PaymentIntentInput struct {
	CustomerID     string
	Amount         int64
	Currency       string
	ReceiptEmail   string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntentResult результат создания payment intent
type PaymentIntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// FindOrCreateCustomer ищет клиента по email, если не находит - создает нового.
	FindOrCreateCustomer(ctx context.Context, input CustomerInput) (string, error)

	// FindOrCreateMonthlyPrice возвращает активную ежемесячную цену продукта
	// с указанной суммой и валютой, создавая ее при необходимости.
	FindOrCreateMonthlyPrice(ctx context.Context, productID string, amount int64, currency string) (string, error)

	// CreateSubscription создает подписку в состоянии default_incomplete.
	// Client secret берется из payment intent последнего счета.
	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string, idempotencyKey string) (*SubscriptionResult, error)

	// CreatePaymentIntent создает разовый платеж с автоматическим выбором способа оплаты.
	CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (*PaymentIntentResult, error)

	// CancelSubscription отменяет подписку в Stripe.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// CancelPaymentIntent отменяет неоплаченный payment intent.
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) error
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey string, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeClient{
		client: sc,
		log:    log,
	}
}

// FindOrCreateCustomer ищет клиента по email, если не находит - создает нового.
func (sc *stripeClient) FindOrCreateCustomer(ctx context.Context, input CustomerInput) (string, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	customers := sc.client.Customers.List(listParams)
	if customers.Next() {
		cus := customers.Customer()
		sc.log.Infow("Found existing Stripe customer", "stripeCustomerID", cus.ID)
		return cus.ID, nil
	}
	if err := customers.Err(); err != nil {
		logStripeError(sc.log, "ListCustomers", err)
		return "", fmt.Errorf("stripe: failed to list customers: %w", err)
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(input.Name),
	}
	if input.Phone != "" {
		params.Phone = stripe.String(input.Phone)
	}
	if a := input.Address; a != nil {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(a.Line1),
			Line2:      stripe.String(a.Line2),
			City:       stripe.String(a.City),
			PostalCode: stripe.String(a.PostalCode),
			State:      stripe.String(a.State),
			Country:    stripe.String(a.Country),
		}
	}
	params.AddMetadata(metadataPartnerEmailKey, email)
	params.Context = ctx
	// повтор после сетевой ошибки вернет того же клиента, а не создаст второго
	params.IdempotencyKey = stripe.String(customerIdempotencyKey(email, input))

	cus, err := sc.client.Customers.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID)
	return cus.ID, nil
}

// FindOrCreateMonthlyPrice ищет подходящую цену продукта или создает новую.
func (sc *stripeClient) FindOrCreateMonthlyPrice(ctx context.Context, productID string, amount int64, currency string) (string, error) {
	currency = strings.ToLower(currency)

	listParams := &stripe.PriceListParams{
		Product:  stripe.String(productID),
		Currency: stripe.String(currency),
		Active:   stripe.Bool(true),
		Type:     stripe.String(string(stripe.PriceTypeRecurring)),
	}
	listParams.Context = ctx

	prices := sc.client.Prices.List(listParams)
	for prices.Next() {
		p := prices.Price()
		if p.UnitAmount == amount && p.Recurring != nil &&
			p.Recurring.Interval == stripe.PriceRecurringIntervalMonth && p.Recurring.IntervalCount <= 1 {
			sc.log.Debugw("Reusing Stripe price", "priceID", p.ID, "productID", productID)
			return p.ID, nil
		}
	}
	if err := prices.Err(); err != nil {
		logStripeError(sc.log, "ListPrices", err)
		return "", fmt.Errorf("stripe: failed to list prices: %w", err)
	}

	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(amount),
		Currency:   stripe.String(currency),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(recurringIntervalMonth),
		},
	}
	params.Context = ctx

	price, err := sc.client.Prices.New(params)
	if err != nil {
		logStripeError(sc.log, "CreatePrice", err)
		return "", fmt.Errorf("stripe: failed to create price: %w", err)
	}

	sc.log.Infow("Stripe price created", "priceID", price.ID, "productID", productID, "amount", amount, "currency", currency)
	return price.ID, nil
}

// CreateSubscription создает подписку в Stripe для указанного клиента и цены.
func (sc *stripeClient) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string, idempotencyKey string) (*SubscriptionResult, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(priceID),
			},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	subscription, err := sc.client.Subscriptions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateSubscription", err)
		return nil, fmt.Errorf("stripe: failed to create subscription: %w", err)
	}

	sc.log.Infow("Stripe subscription created", "stripeSubscriptionID", subscription.ID, "status", string(subscription.Status))

	result := &SubscriptionResult{
		ID:               subscription.ID,
		Status:           string(subscription.Status),
		CurrentPeriodEnd: time.Unix(subscription.CurrentPeriodEnd, 0).UTC(),
	}
	if subscription.LatestInvoice != nil && subscription.LatestInvoice.PaymentIntent != nil {
		result.ClientSecret = subscription.LatestInvoice.PaymentIntent.ClientSecret
		result.PaymentIntentID = subscription.LatestInvoice.PaymentIntent.ID
	} else {
		sc.log.Warnw("No payment intent or client secret found in created subscription", "stripeSubscriptionID", subscription.ID, "status", string(subscription.Status))
	}
	return result, nil
}

// CreatePaymentIntent создает разовый платеж.
func (sc *stripeClient) CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (*PaymentIntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(input.Amount),
		Currency: stripe.String(strings.ToLower(input.Currency)),
		Customer: stripe.String(input.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if input.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(input.ReceiptEmail)
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := sc.client.PaymentIntents.New(params)
	if err != nil {
		logStripeError(sc.log, "CreatePaymentIntent", err)
		return nil, fmt.Errorf("stripe: failed to create payment intent: %w", err)
	}

	sc.log.Infow("Stripe payment intent created", "paymentIntentID", pi.ID, "amount", input.Amount, "currency", input.Currency)
	return &PaymentIntentResult{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// CancelSubscription отменяет подписку в Stripe немедленно.
func (sc *stripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := sc.client.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		if isResourceMissing(err) {
			sc.log.Warnw("Attempted to cancel already canceled/missing Stripe subscription", "stripeSubscriptionID", subscriptionID)
			return nil
		}
		logStripeError(sc.log, "CancelSubscription", err)
		return fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	sc.log.Infow("Stripe subscription canceled", "stripeSubscriptionID", subscriptionID)
	return nil
}

// CancelPaymentIntent отменяет payment intent.
func (sc *stripeClient) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	_, err := sc.client.PaymentIntents.Cancel(paymentIntentID, params)
	if err != nil {
		if isResourceMissing(err) {
			sc.log.Warnw("Attempted to cancel missing payment intent", "paymentIntentID", paymentIntentID)
			return nil
		}
		logStripeError(sc.log, "CancelPaymentIntent", err)
		return fmt.Errorf("stripe: failed to cancel payment intent: %w", err)
	}

	sc.log.Infow("Stripe payment intent canceled", "paymentIntentID", paymentIntentID)
	return nil
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
