package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/internal/repository/memory"
	"github.com/loveworld-europe/donations/internal/stripe"
	"github.com/loveworld-europe/donations/pkg/logger"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeStripe имитирует Stripe API в памяти
type fakeStripe struct {
	mu sync.Mutex

	customers        map[string]string
	createdPrices    []string
	subscriptions    []string
	paymentIntents   []string
	cancelledSubs    []string
	cancelledIntents []string
	metadata         []map[string]string

	// ответы по ключу идемпотентности, как их хранит Stripe
	subsByKey    map[string]*stripe.SubscriptionResult
	intentsByKey map[string]*stripe.PaymentIntentResult

	periodEnd       time.Time
	subscriptionErr error
	cancelErr       error
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{
		customers:    map[string]string{},
		subsByKey:    map[string]*stripe.SubscriptionResult{},
		intentsByKey: map[string]*stripe.PaymentIntentResult{},
		periodEnd:    testNow.AddDate(0, 1, 0),
	}
}

func (f *fakeStripe) FindOrCreateCustomer(_ context.Context, in stripe.CustomerInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.customers[in.Email]; ok {
		return id, nil
	}
	id := fmt.Sprintf("cus_%d", len(f.customers)+1)
	f.customers[in.Email] = id
	return id, nil
}

func (f *fakeStripe) FindOrCreateMonthlyPrice(_ context.Context, productID string, amount int64, currency string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("price_%s_%d_%s", productID, amount, currency)
	f.createdPrices = append(f.createdPrices, id)
	return id, nil
}

func (f *fakeStripe) CreateSubscription(_ context.Context, customerID, priceID string, metadata map[string]string, idempotencyKey string) (*stripe.SubscriptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscriptionErr != nil {
		return nil, f.subscriptionErr
	}
	if prev, ok := f.subsByKey[idempotencyKey]; ok {
		return prev, nil
	}
	id := fmt.Sprintf("sub_%d", len(f.subscriptions)+1)
	f.subscriptions = append(f.subscriptions, id)
	f.metadata = append(f.metadata, metadata)
	result := &stripe.SubscriptionResult{
		ID:               id,
		Status:           "incomplete",
		ClientSecret:     id + "_secret",
		PaymentIntentID:  "pi_" + id,
		CurrentPeriodEnd: f.periodEnd,
	}
	f.subsByKey[idempotencyKey] = result
	return result, nil
}

func (f *fakeStripe) CreatePaymentIntent(_ context.Context, in stripe.PaymentIntentInput) (*stripe.PaymentIntentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.intentsByKey[in.IdempotencyKey]; ok {
		return prev, nil
	}
	id := fmt.Sprintf("pi_%d", len(f.paymentIntents)+1)
	f.paymentIntents = append(f.paymentIntents, id)
	f.metadata = append(f.metadata, in.Metadata)
	result := &stripe.PaymentIntentResult{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}
	f.intentsByKey[in.IdempotencyKey] = result
	return result, nil
}

// expireKeys забывает сохраненные ответы, как Stripe через 24 часа
func (f *fakeStripe) expireKeys() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subsByKey = map[string]*stripe.SubscriptionResult{}
	f.intentsByKey = map[string]*stripe.PaymentIntentResult{}
}

func (f *fakeStripe) CancelSubscription(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelledSubs = append(f.cancelledSubs, subscriptionID)
	return nil
}

func (f *fakeStripe) CancelPaymentIntent(_ context.Context, paymentIntentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledIntents = append(f.cancelledIntents, paymentIntentID)
	return nil
}

// fakeNotifier запоминает отправленные письма
type fakeNotifier struct {
	mu            sync.Mutex
	welcome       []email.WelcomeEmail
	confirmations []email.PaymentConfirmation
	failures      []email.PaymentFailed
	reports       []email.ImpactReport
}

func (n *fakeNotifier) SendWelcomeEmail(_ context.Context, in email.WelcomeEmail) email.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcome = append(n.welcome, in)
	return email.Result{Success: true, Message: "sent"}
}

func (n *fakeNotifier) SendPaymentConfirmation(_ context.Context, in email.PaymentConfirmation) email.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, in)
	return email.Result{Success: true, Message: "sent"}
}

func (n *fakeNotifier) SendPaymentFailed(_ context.Context, in email.PaymentFailed) email.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, in)
	return email.Result{Success: true, Message: "sent"}
}

func (n *fakeNotifier) SendMonthlyImpactReport(_ context.Context, in email.ImpactReport) email.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, in)
	return email.Result{Success: true, Message: "sent", MessageID: "msg_1"}
}

type publishedEvent struct {
	Topic   string
	Key     string
	Payload any
}

// fakePublisher запоминает опубликованные события
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}

// testEnv собирает сервисы поверх хранилища в памяти
type testEnv struct {
	mem        *memory.Store
	repos      repository.Store
	stripe     *fakeStripe
	notifier   *fakeNotifier
	publisher  *fakePublisher
	clock      *clock.FakeClock
	background *Background
	log        *logger.Logger
}

func newTestEnv(t *testing.T, f memory.Fixtures) *testEnv {
	t.Helper()
	log := logger.NewNop()
	mem := memory.NewStore(log)
	mem.Seed(f)
	return &testEnv{
		mem:        mem,
		repos:      mem.Repositories(),
		stripe:     newFakeStripe(),
		notifier:   &fakeNotifier{},
		publisher:  &fakePublisher{},
		clock:      clock.NewFakeClock(testNow),
		background: NewBackground(log),
		log:        log,
	}
}

func (e *testEnv) checkout() *CheckoutService {
	settings := NewCheckoutSettingsService(e.repos.CheckoutSettings, e.clock, e.log)
	return NewCheckoutService(CheckoutConfig{
		ProductIDs: map[domain.CampaignType]string{
			domain.CampaignTypeAdoptLanguage:      "prod_adopt",
			domain.CampaignTypeSponsorTranslation: "prod_sponsor",
			domain.CampaignTypeGeneralDonation:    "prod_general",
		},
	}, e.repos, settings, e.stripe, e.notifier, e.publisher, metrics.NewNop(), e.clock, e.background, e.log)
}

func (e *testEnv) webhooks() *WebhookService {
	s := NewWebhookService(e.repos, e.notifier, e.publisher, metrics.NewNop(), e.clock, e.background, e.log)
	s.lookupBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, lookupAttempts-1)
	}
	return s
}

func (e *testEnv) expiry() *ExpiryService {
	return NewExpiryService(e.repos.Campaigns, e.publisher, metrics.NewNop(), e.clock, e.background, e.log)
}

func (e *testEnv) campaigns() *CampaignService {
	return NewCampaignService(e.repos, e.stripe, e.notifier, e.publisher, e.clock, e.background, e.log)
}

func language(id string, status domain.AdoptionStatus) domain.Language {
	return domain.Language{ID: id, Name: "Language " + id, AdoptionStatus: status}
}

func partner(id, mail string) domain.Partner {
	return domain.Partner{ID: id, Email: mail, FirstName: "Grace", LastName: "Adeyemi"}
}

func activeAdoption(id, languageID string, next time.Time) domain.Campaign {
	return domain.Campaign{
		ID:              id,
		Type:            domain.CampaignTypeAdoptLanguage,
		PartnerID:       "partner_1",
		LanguageID:      languageID,
		MonthlyAmount:   15000,
		Currency:        "GBP",
		Status:          domain.CampaignStatusActive,
		StartDate:       next.AddDate(0, 0, -30),
		NextBillingDate: &next,
	}
}

func sponsorship(id, languageID string, next time.Time) domain.Campaign {
	c := activeAdoption(id, languageID, next)
	c.Type = domain.CampaignTypeSponsorTranslation
	c.MonthlyAmount = 5000
	return c
}

func subscribed(c domain.Campaign, subscriptionID string) domain.Campaign {
	c.StripeSubscriptionID = &subscriptionID
	return c
}

// failingCampaigns подменяет отдельные методы репозитория кампаний
type failingCampaigns struct {
	repository.CampaignRepository

	hideAdoption bool
	completeErr  map[string]error
	listErr      error
	lookupErr    error
	lookups      int
	// recordErrOnce возвращается первым вызовом RecordInvoicePayment
	recordErrOnce error
}

func (f *failingCampaigns) RecordInvoicePayment(ctx context.Context, p *domain.Payment, status domain.CampaignStatus, next *time.Time) error {
	if err := f.recordErrOnce; err != nil {
		f.recordErrOnce = nil
		return err
	}
	return f.CampaignRepository.RecordInvoicePayment(ctx, p, status, next)
}

func (f *failingCampaigns) HasActiveAdoption(ctx context.Context, languageID string) (bool, error) {
	if f.hideAdoption {
		return false, nil
	}
	return f.CampaignRepository.HasActiveAdoption(ctx, languageID)
}

func (f *failingCampaigns) Complete(ctx context.Context, id string, at time.Time) (repository.LanguageRelease, error) {
	if err, ok := f.completeErr[id]; ok {
		return repository.LanguageRelease{}, err
	}
	return f.CampaignRepository.Complete(ctx, id, at)
}

func (f *failingCampaigns) ListExpiredOneTimeAdoptions(ctx context.Context, before time.Time) ([]domain.CampaignDetails, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.CampaignRepository.ListExpiredOneTimeAdoptions(ctx, before)
}

func (f *failingCampaigns) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*domain.Campaign, error) {
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.CampaignRepository.GetByStripeSubscriptionID(ctx, subscriptionID)
}

var errStorage = errors.New("connection refused")
