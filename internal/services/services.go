package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/req"
)

// backgroundTimeout ограничивает фоновые задачи (письма, события)
const backgroundTimeout = 30 * time.Second

// Notifier отправляет письма партнерам. Реализуется email.Service.
type Notifier interface {
	SendWelcomeEmail(ctx context.Context, in email.WelcomeEmail) email.Result
	SendPaymentConfirmation(ctx context.Context, in email.PaymentConfirmation) email.Result
	SendPaymentFailed(ctx context.Context, in email.PaymentFailed) email.Result
	SendMonthlyImpactReport(ctx context.Context, in email.ImpactReport) email.Result
}

// Background запускает задачи, не влияющие на ответ клиенту,
// и позволяет дождаться их при остановке сервиса.
type Background struct {
	wg  sync.WaitGroup
	log *logger.Logger
}

// NewBackground создает пул фоновых задач
func NewBackground(log *logger.Logger) *Background {
	return &Background{log: log}
}

// Go выполняет fn в отдельной горутине с собственным контекстом.
// Контекст запроса не передается: задача переживает ответ.
func (b *Background) Go(name string, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Errorw("Background task panicked", "task", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait ждет завершения всех запущенных задач
func (b *Background) Wait() {
	b.wg.Wait()
}

// publish отправляет событие в фоне. Ошибка только логируется.
func publish(bg *Background, pub kafka.Publisher, log *logger.Logger, topic, key string, payload any) {
	bg.Go("publish "+topic, func(ctx context.Context) {
		if err := pub.Publish(ctx, topic, key, payload); err != nil {
			log.Errorw("Failed to publish event", "topic", topic, "key", key, "error", err)
		}
	})
}

func campaignEvent(c domain.Campaign, at time.Time) kafka.CampaignEvent {
	return kafka.CampaignEvent{
		CampaignID:      c.ID,
		Type:            string(c.Type),
		Status:          string(c.Status),
		PartnerID:       c.PartnerID,
		LanguageID:      c.LanguageID,
		Amount:          c.MonthlyAmount,
		Currency:        c.Currency,
		Recurring:       !c.IsOneTime(),
		NextBillingDate: c.NextBillingDate,
		OccurredAt:      at,
	}
}

func paymentEvent(p domain.Payment, stripeEventID string) kafka.PaymentEvent {
	ev := kafka.PaymentEvent{
		PaymentID:     p.ID,
		CampaignID:    p.CampaignID,
		PartnerID:     p.PartnerID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		StripeEventID: stripeEventID,
		OccurredAt:    p.PaymentDate,
	}
	if p.FailureReason != nil {
		ev.FailureReason = *p.FailureReason
	}
	if p.StripeInvoiceID != nil {
		ev.StripeInvoiceID = *p.StripeInvoiceID
	}
	return ev
}

// validationErrors переводит ошибку валидатора в domain.ValidationErrors
func validationErrors(err error) domain.ValidationErrors {
	var errs domain.ValidationErrors
	for _, d := range req.Details(err) {
		errs.Add(d.Field, d.Message)
	}
	if !errs.HasErrors() && err != nil {
		errs.Add("body", err.Error())
	}
	return errs
}

// internalError оборачивает ошибку хранилища с указанием операции
func internalError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
