package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/internal/stripe"
	"github.com/loveworld-europe/donations/pkg/logger"

	stripego "github.com/stripe/stripe-go/v78"
)

const (
	lookupAttempts        = 3
	lookupInitialInterval = 200 * time.Millisecond
)

// WebhookService применяет события Stripe к кампаниям и платежам
type WebhookService struct {
	store      repository.Store
	notifier   Notifier
	publisher  kafka.Publisher
	metrics    metrics.DonationMetrics
	clock      clock.Clock
	background *Background
	log        *logger.Logger

	// lookupBackOff задержки между попытками найти кампанию
	lookupBackOff func() backoff.BackOff
}

// NewWebhookService конструктор сервиса
func NewWebhookService(
	store repository.Store,
	notifier Notifier,
	publisher kafka.Publisher,
	m metrics.DonationMetrics,
	clk clock.Clock,
	background *Background,
	log *logger.Logger,
) *WebhookService {
	return &WebhookService{
		store:      store,
		notifier:   notifier,
		publisher:  publisher,
		metrics:    m,
		clock:      clk,
		background: background,
		log:        log,
		lookupBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = lookupInitialInterval
			bo.MaxElapsedTime = 0
			return backoff.WithMaxRetries(bo, lookupAttempts-1)
		},
	}
}

// HandleEvent обрабатывает проверенное событие.
// Событие записывается в журнал только после успешной обработки,
// поэтому ошибка означает, что Stripe повторит доставку.
func (s *WebhookService) HandleEvent(ctx context.Context, event stripego.Event) (domain.WebhookOutcome, error) {
	eventType := string(event.Type)
	log := s.log.With("eventId", event.ID, "eventType", eventType)
	receivedAt := s.clock.Now().UTC()

	seen, err := s.store.WebhookEvents.Exists(ctx, event.ID)
	if err != nil {
		log.Errorw("Failed to check webhook ledger", "error", err)
		return "", internalError("check webhook ledger", err)
	}
	if seen {
		log.Infow("Webhook event already processed")
		s.metrics.IncWebhookEvent(eventType, string(domain.WebhookOutcomeDuplicate))
		return domain.WebhookOutcomeDuplicate, nil
	}

	outcome, err := s.dispatch(ctx, log, event)
	if err != nil {
		log.Errorw("Webhook event processing failed", "error", err)
		s.metrics.IncWebhookEvent(eventType, "error")
		return "", err
	}
	s.metrics.IncWebhookEvent(eventType, string(outcome))

	if outcome == domain.WebhookOutcomeUnmatched {
		// без записи в журнал: повторная доставка после появления кампании будет обработана
		return outcome, nil
	}

	err = s.store.WebhookEvents.Record(ctx, &domain.WebhookEvent{
		ID:          event.ID,
		Type:        eventType,
		Outcome:     outcome,
		ReceivedAt:  receivedAt,
		ProcessedAt: s.clock.Now().UTC(),
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicate) {
		log.Errorw("Failed to record webhook event", "error", err)
		return "", internalError("record webhook event", err)
	}

	log.Infow("Webhook event handled", "outcome", outcome)
	return outcome, nil
}

func (s *WebhookService) dispatch(ctx context.Context, log *logger.Logger, event stripego.Event) (domain.WebhookOutcome, error) {
	switch string(event.Type) {
	case stripe.EventInvoicePaymentSucceeded:
		var inv stripego.Invoice
		if err := decodeObject(event, &inv); err != nil {
			return "", err
		}
		return s.handleInvoiceSucceeded(ctx, log, event.ID, &inv)

	case stripe.EventInvoicePaymentFailed:
		var inv stripego.Invoice
		if err := decodeObject(event, &inv); err != nil {
			return "", err
		}
		return s.handleInvoiceFailed(ctx, log, event.ID, &inv)

	case stripe.EventSubscriptionCreated:
		log.Debugw("Subscription created event, campaign is saved at checkout")
		return domain.WebhookOutcomeIgnored, nil

	case stripe.EventSubscriptionUpdated:
		var sub stripego.Subscription
		if err := decodeObject(event, &sub); err != nil {
			return "", err
		}
		return s.handleSubscriptionUpdated(ctx, log, &sub)

	case stripe.EventSubscriptionDeleted:
		var sub stripego.Subscription
		if err := decodeObject(event, &sub); err != nil {
			return "", err
		}
		return s.handleSubscriptionDeleted(ctx, log, &sub)

	case stripe.EventPaymentIntentSucceeded:
		var pi stripego.PaymentIntent
		if err := decodeObject(event, &pi); err != nil {
			return "", err
		}
		return s.handlePaymentIntentSucceeded(ctx, log, event.ID, &pi)
	}

	log.Infow("Unhandled webhook event type")
	return domain.WebhookOutcomeIgnored, nil
}

func decodeObject(event stripego.Event, target any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("event %s has no data object", event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, target); err != nil {
		return fmt.Errorf("decode %s object: %w", event.Type, err)
	}
	return nil
}

func (s *WebhookService) handleInvoiceSucceeded(ctx context.Context, log *logger.Logger, eventID string, inv *stripego.Invoice) (domain.WebhookOutcome, error) {
	subscriptionID := invoiceSubscriptionID(inv)
	if subscriptionID == "" {
		log.Infow("Invoice is not linked to a subscription", "invoiceId", inv.ID)
		return domain.WebhookOutcomeIgnored, nil
	}

	campaign, err := s.findCampaign(ctx, log, func(ctx context.Context) (*domain.Campaign, error) {
		return s.store.Campaigns.GetByStripeSubscriptionID(ctx, subscriptionID)
	})
	if errors.Is(err, domain.ErrCampaignNotFound) {
		log.Errorw("No campaign for paid invoice", "subscriptionId", subscriptionID, "invoiceId", inv.ID)
		return domain.WebhookOutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	payment := &domain.Payment{
		CampaignID:            campaign.ID,
		PartnerID:             campaign.PartnerID,
		Amount:                inv.AmountPaid,
		Currency:              strings.ToUpper(string(inv.Currency)),
		Status:                domain.PaymentStatusSucceeded,
		StripeInvoiceID:       strPtr(inv.ID),
		StripePaymentIntentID: strPtr(invoicePaymentIntentID(inv)),
		PaymentDate:           s.clock.Now().UTC(),
	}
	next := nextBillingDate(inv)
	status := campaign.Status
	if status == domain.CampaignStatusActive || status == domain.CampaignStatusPaused {
		status = domain.CampaignStatusActive
	} else {
		log.Warnw("Payment received for closed campaign, status kept", "campaignId", campaign.ID, "status", status)
	}

	// платеж и биллинг кампании пишутся одной транзакцией
	err = s.store.Campaigns.RecordInvoicePayment(ctx, payment, status, next)
	if errors.Is(err, repository.ErrStateConflict) {
		log.Errorw("Campaign not reactivated, language is adopted by another campaign",
			"campaignId", campaign.ID, "languageId", campaign.LanguageID)
		err = s.store.Campaigns.RecordInvoicePayment(ctx, payment, campaign.Status, next)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		log.Infow("Payment for invoice already recorded", "invoiceId", inv.ID, "campaignId", campaign.ID)
		return domain.WebhookOutcomeProcessed, nil
	}
	if err != nil {
		return "", internalError("record invoice payment", err)
	}

	s.metrics.IncPayment(string(payment.Status), payment.Currency)
	s.metrics.ObservePaymentAmount(payment.Amount, payment.Currency, string(payment.Status))
	log.Infow("Invoice payment recorded", "campaignId", campaign.ID, "paymentId", payment.ID, "amount", payment.Amount)

	s.notifyPayment(ctx, log, campaign, payment, next)
	publish(s.background, s.publisher, s.log, kafka.TopicPaymentSucceeded, campaign.ID, paymentEvent(*payment, eventID))
	return domain.WebhookOutcomeProcessed, nil
}

func (s *WebhookService) handleInvoiceFailed(ctx context.Context, log *logger.Logger, eventID string, inv *stripego.Invoice) (domain.WebhookOutcome, error) {
	subscriptionID := invoiceSubscriptionID(inv)
	if subscriptionID == "" {
		log.Infow("Invoice is not linked to a subscription", "invoiceId", inv.ID)
		return domain.WebhookOutcomeIgnored, nil
	}

	campaign, err := s.findCampaign(ctx, log, func(ctx context.Context) (*domain.Campaign, error) {
		return s.store.Campaigns.GetByStripeSubscriptionID(ctx, subscriptionID)
	})
	if errors.Is(err, domain.ErrCampaignNotFound) {
		log.Errorw("No campaign for failed invoice", "subscriptionId", subscriptionID, "invoiceId", inv.ID)
		return domain.WebhookOutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	reason := invoiceFailureReason(inv)
	payment := &domain.Payment{
		CampaignID:            campaign.ID,
		PartnerID:             campaign.PartnerID,
		Amount:                inv.AmountDue,
		Currency:              strings.ToUpper(string(inv.Currency)),
		Status:                domain.PaymentStatusFailed,
		StripeInvoiceID:       strPtr(inv.ID),
		StripePaymentIntentID: strPtr(invoicePaymentIntentID(inv)),
		PaymentDate:           s.clock.Now().UTC(),
		FailureReason:         &reason,
	}
	if err := s.store.Payments.Create(ctx, payment); err != nil {
		return "", internalError("record failed payment", err)
	}

	s.metrics.IncPayment(string(payment.Status), payment.Currency)
	s.metrics.ObservePaymentAmount(payment.Amount, payment.Currency, string(payment.Status))
	log.Warnw("Invoice payment failed", "campaignId", campaign.ID, "paymentId", payment.ID, "reason", reason)

	s.notifyPayment(ctx, log, campaign, payment, nil)
	publish(s.background, s.publisher, s.log, kafka.TopicPaymentFailed, campaign.ID, paymentEvent(*payment, eventID))
	return domain.WebhookOutcomeProcessed, nil
}

func (s *WebhookService) handleSubscriptionUpdated(ctx context.Context, log *logger.Logger, sub *stripego.Subscription) (domain.WebhookOutcome, error) {
	campaign, err := s.findCampaign(ctx, log, func(ctx context.Context) (*domain.Campaign, error) {
		return s.store.Campaigns.GetByStripeSubscriptionID(ctx, sub.ID)
	})
	if errors.Is(err, domain.ErrCampaignNotFound) {
		log.Errorw("No campaign for updated subscription", "subscriptionId", sub.ID)
		return domain.WebhookOutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	status, known := MapSubscriptionStatus(string(sub.Status))
	if known && status == domain.CampaignStatusCancelled {
		if campaign.Status == domain.CampaignStatusCancelled {
			return domain.WebhookOutcomeProcessed, nil
		}
		return s.cancelCampaign(ctx, log, campaign)
	}

	closed := campaign.Status == domain.CampaignStatusCancelled || campaign.Status == domain.CampaignStatusCompleted
	if !known || closed {
		status = campaign.Status
	}

	var next *time.Time
	if sub.CurrentPeriodEnd > 0 {
		next = timePtr(time.Unix(sub.CurrentPeriodEnd, 0).UTC())
	}

	err = s.store.Campaigns.UpdateBilling(ctx, campaign.ID, status, next)
	if errors.Is(err, repository.ErrDuplicate) {
		// язык уже усыновлен другой активной кампанией
		log.Errorw("Campaign cannot be reactivated, language adopted by another campaign", "campaignId", campaign.ID)
		return domain.WebhookOutcomeProcessed, nil
	}
	if err != nil {
		return "", internalError("update campaign billing", err)
	}

	log.Infow("Campaign updated from subscription",
		"campaignId", campaign.ID,
		"stripeStatus", sub.Status,
		"status", status,
	)
	return domain.WebhookOutcomeProcessed, nil
}

func (s *WebhookService) handleSubscriptionDeleted(ctx context.Context, log *logger.Logger, sub *stripego.Subscription) (domain.WebhookOutcome, error) {
	campaign, err := s.findCampaign(ctx, log, func(ctx context.Context) (*domain.Campaign, error) {
		return s.store.Campaigns.GetByStripeSubscriptionID(ctx, sub.ID)
	})
	if errors.Is(err, domain.ErrCampaignNotFound) {
		log.Errorw("No campaign for deleted subscription", "subscriptionId", sub.ID)
		return domain.WebhookOutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}
	return s.cancelCampaign(ctx, log, campaign)
}

func (s *WebhookService) cancelCampaign(ctx context.Context, log *logger.Logger, campaign *domain.Campaign) (domain.WebhookOutcome, error) {
	now := s.clock.Now().UTC()
	release, err := s.store.Campaigns.Cancel(ctx, campaign.ID, now)
	if err != nil {
		return "", internalError("cancel campaign", err)
	}

	log.Infow("Campaign cancelled from subscription",
		"campaignId", campaign.ID,
		"languageReleased", release.Released,
		"otherActive", release.OtherActive,
	)

	cancelled := *campaign
	cancelled.Status = domain.CampaignStatusCancelled
	cancelled.EndDate = &now
	ev := campaignEvent(cancelled, now)
	ev.LanguageAction = languageAction(campaign, release)
	publish(s.background, s.publisher, s.log, kafka.TopicCampaignCancelled, campaign.ID, ev)
	return domain.WebhookOutcomeProcessed, nil
}

func (s *WebhookService) handlePaymentIntentSucceeded(ctx context.Context, log *logger.Logger, eventID string, pi *stripego.PaymentIntent) (domain.WebhookOutcome, error) {
	if pi.Invoice != nil && pi.Invoice.ID != "" {
		log.Debugw("Payment intent belongs to an invoice, handled by invoice events", "paymentIntentId", pi.ID)
		return domain.WebhookOutcomeIgnored, nil
	}

	campaignID := pi.Metadata[MetadataCampaignID]
	campaign, err := s.findCampaign(ctx, log, func(ctx context.Context) (*domain.Campaign, error) {
		if campaignID != "" {
			return s.store.Campaigns.GetByID(ctx, campaignID)
		}
		return s.store.Campaigns.GetByStripePaymentIntentID(ctx, pi.ID)
	})
	if errors.Is(err, domain.ErrCampaignNotFound) {
		log.Errorw("No campaign for payment intent", "paymentIntentId", pi.ID, "campaignId", campaignID)
		return domain.WebhookOutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	payment := &domain.Payment{
		CampaignID:            campaign.ID,
		PartnerID:             campaign.PartnerID,
		Amount:                amount,
		Currency:              strings.ToUpper(string(pi.Currency)),
		Status:                domain.PaymentStatusSucceeded,
		StripePaymentIntentID: strPtr(pi.ID),
		PaymentDate:           s.clock.Now().UTC(),
	}
	err = s.store.Payments.Create(ctx, payment)
	if errors.Is(err, repository.ErrDuplicate) {
		log.Infow("Payment for payment intent already recorded", "paymentIntentId", pi.ID)
		return domain.WebhookOutcomeProcessed, nil
	}
	if err != nil {
		return "", internalError("record payment", err)
	}

	s.metrics.IncPayment(string(payment.Status), payment.Currency)
	s.metrics.ObservePaymentAmount(payment.Amount, payment.Currency, string(payment.Status))
	log.Infow("One-time payment recorded", "campaignId", campaign.ID, "paymentId", payment.ID)

	s.notifyPayment(ctx, log, campaign, payment, nil)
	publish(s.background, s.publisher, s.log, kafka.TopicPaymentSucceeded, campaign.ID, paymentEvent(*payment, eventID))
	return domain.WebhookOutcomeProcessed, nil
}

// findCampaign повторяет поиск кампании, пока запись может быть еще не видна.
// Исчерпание попыток дает domain.ErrCampaignNotFound.
func (s *WebhookService) findCampaign(ctx context.Context, log *logger.Logger, get func(ctx context.Context) (*domain.Campaign, error)) (*domain.Campaign, error) {
	var campaign *domain.Campaign
	attempt := 0
	op := func() error {
		attempt++
		c, err := get(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			log.Debugw("Campaign not found yet", "attempt", attempt)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		campaign = c
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(s.lookupBackOff(), ctx))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, internalError("load campaign", err)
	}
	return campaign, nil
}

// notifyPayment отправляет письмо о платеже в фоне
func (s *WebhookService) notifyPayment(ctx context.Context, log *logger.Logger, campaign *domain.Campaign, payment *domain.Payment, next *time.Time) {
	partner, err := s.store.Partners.GetByID(ctx, campaign.PartnerID)
	if err != nil {
		log.Warnw("Partner not loaded, payment email skipped", "partnerId", campaign.PartnerID, "error", err)
		return
	}
	languageName := ""
	if language, err := s.store.Languages.GetByID(ctx, campaign.LanguageID); err == nil {
		languageName = language.Name
	}

	recipient := email.Recipient{PartnerID: partner.ID, Email: partner.Email, FirstName: partner.FirstName}
	if payment.Status == domain.PaymentStatusFailed {
		msg := email.PaymentFailed{
			Recipient:    recipient,
			LanguageName: languageName,
			Amount:       payment.Amount,
			Currency:     payment.Currency,
			Reason:       *payment.FailureReason,
		}
		s.background.Go("payment failed email", func(ctx context.Context) {
			s.notifier.SendPaymentFailed(ctx, msg)
		})
		return
	}

	reference := payment.ID
	if payment.StripeInvoiceID != nil {
		reference = *payment.StripeInvoiceID
	}
	msg := email.PaymentConfirmation{
		Recipient:       recipient,
		LanguageName:    languageName,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		PaymentDate:     payment.PaymentDate,
		Reference:       reference,
		NextBillingDate: next,
	}
	s.background.Go("payment confirmation email", func(ctx context.Context) {
		s.notifier.SendPaymentConfirmation(ctx, msg)
	})
}

// MapSubscriptionStatus переводит статус подписки Stripe в статус кампании.
// Второй результат false для статусов, которые не меняют кампанию.
func MapSubscriptionStatus(status string) (domain.CampaignStatus, bool) {
	switch status {
	case "active":
		return domain.CampaignStatusActive, true
	case "paused":
		return domain.CampaignStatusPaused, true
	case "canceled", "incomplete_expired", "unpaid":
		return domain.CampaignStatusCancelled, true
	}
	return "", false
}

// nextBillingDate - period_end счета. Без него берется самый поздний конец периода строк.
func nextBillingDate(inv *stripego.Invoice) *time.Time {
	end := inv.PeriodEnd
	if end <= 0 && inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Period != nil && line.Period.End > end {
				end = line.Period.End
			}
		}
	}
	if end <= 0 {
		return nil
	}
	return timePtr(time.Unix(end, 0).UTC())
}

// invoiceFailureReason - "Payment failed" с уточнением из last_payment_error,
// если Stripe развернул payment intent в событии
func invoiceFailureReason(inv *stripego.Invoice) string {
	if inv.PaymentIntent != nil && inv.PaymentIntent.LastPaymentError != nil && inv.PaymentIntent.LastPaymentError.Msg != "" {
		return domain.DefaultFailureReason + ": " + inv.PaymentIntent.LastPaymentError.Msg
	}
	return domain.DefaultFailureReason
}

func invoiceSubscriptionID(inv *stripego.Invoice) string {
	if inv.Subscription == nil {
		return ""
	}
	return inv.Subscription.ID
}

func invoicePaymentIntentID(inv *stripego.Invoice) string {
	if inv.PaymentIntent == nil {
		return ""
	}
	return inv.PaymentIntent.ID
}

// languageAction описывает, что стало с языком после закрытия кампании
func languageAction(c *domain.Campaign, release repository.LanguageRelease) string {
	switch {
	case !c.IsAdoption():
		return ""
	case release.Released:
		return string(ActionReleased)
	}
	return string(ActionStillAdopted)
}
