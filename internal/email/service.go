package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// Типы писем (метка метрик)
const (
	TypeWelcome             = "welcome"
	TypePaymentConfirmation = "payment_confirmation"
	TypePaymentFailed       = "payment_failed"
	TypeImpactReport        = "impact_report"

	dateLayout = "2 January 2006"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Result итог отправки. Ошибки доставки не возвращаются вызывающему.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
}

// Recipient получатель письма
type Recipient struct {
	PartnerID string
	Email     string
	FirstName string
}

// WelcomeEmail данные приветственного письма после оформления кампании
type WelcomeEmail struct {
	Recipient
	CampaignType    domain.CampaignType
	LanguageName    string
	Amount          int64
	Currency        string
	Recurring       bool
	NextBillingDate *time.Time
}

// PaymentConfirmation данные письма об успешном платеже
type PaymentConfirmation struct {
	Recipient
	LanguageName    string
	Amount          int64
	Currency        string
	PaymentDate     time.Time
	Reference       string
	NextBillingDate *time.Time
}

// PaymentFailed данные письма о неуспешном списании
type PaymentFailed struct {
	Recipient
	LanguageName string
	Amount       int64
	Currency     string
	Reason       string
}

// ImpactCampaign строка отчета по одной кампании
type ImpactCampaign struct {
	LanguageName string
	Type         domain.CampaignType
	Amount       int64
	Currency     string
}

// ImpactReport ежемесячный отчет партнеру
type ImpactReport struct {
	Recipient
	Period       string
	Campaigns    []ImpactCampaign
	TotalGiven   int64
	Currency     string
	PaymentCount int
}

// Service отправляет письма партнерам и ведет журнал communications
type Service struct {
	sender    Sender
	comms     repository.CommunicationRepository
	metrics   metrics.DonationMetrics
	clock     clock.Clock
	portalURL string
	log       *logger.Logger
}

// NewService создает сервис уведомлений
func NewService(sender Sender, comms repository.CommunicationRepository, m metrics.DonationMetrics, clk clock.Clock, portalURL string, log *logger.Logger) *Service {
	return &Service{
		sender:    sender,
		comms:     comms,
		metrics:   m,
		clock:     clk,
		portalURL: portalURL,
		log:       log,
	}
}

type layout struct {
	Subject   string
	PortalURL string
	FirstName string
}

func (s *Service) layout(subject string, r Recipient) layout {
	name := r.FirstName
	if name == "" {
		name = "Partner"
	}
	return layout{Subject: subject, PortalURL: s.portalURL, FirstName: name}
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// SendWelcomeEmail отправляет приветственное письмо
func (s *Service) SendWelcomeEmail(ctx context.Context, in WelcomeEmail) Result {
	subject := "Welcome to the Loveworld Europe family"
	if in.CampaignType == domain.CampaignTypeAdoptLanguage {
		subject = fmt.Sprintf("Thank you for adopting %s", in.LanguageName)
	}
	data := struct {
		layout
		CampaignType    string
		LanguageName    string
		Amount          string
		Recurring       bool
		NextBillingDate string
	}{
		layout:          s.layout(subject, in.Recipient),
		CampaignType:    string(in.CampaignType),
		LanguageName:    in.LanguageName,
		Amount:          FormatAmount(in.Amount, in.Currency),
		Recurring:       in.Recurring,
		NextBillingDate: formatDate(in.NextBillingDate),
	}
	return s.deliver(ctx, TypeWelcome, "welcome.html", in.Recipient, subject, data)
}

// SendPaymentConfirmation отправляет подтверждение платежа
func (s *Service) SendPaymentConfirmation(ctx context.Context, in PaymentConfirmation) Result {
	subject := fmt.Sprintf("Payment received: %s", FormatAmount(in.Amount, in.Currency))
	data := struct {
		layout
		LanguageName    string
		Amount          string
		PaymentDate     string
		Reference       string
		NextBillingDate string
	}{
		layout:          s.layout(subject, in.Recipient),
		LanguageName:    in.LanguageName,
		Amount:          FormatAmount(in.Amount, in.Currency),
		PaymentDate:     formatDate(&in.PaymentDate),
		Reference:       in.Reference,
		NextBillingDate: formatDate(in.NextBillingDate),
	}
	return s.deliver(ctx, TypePaymentConfirmation, "payment_confirmation.html", in.Recipient, subject, data)
}

// SendPaymentFailed уведомляет о неуспешном списании
func (s *Service) SendPaymentFailed(ctx context.Context, in PaymentFailed) Result {
	subject := "We could not process your payment"
	reason := in.Reason
	if reason == "" {
		reason = domain.DefaultFailureReason
	}
	data := struct {
		layout
		LanguageName string
		Amount       string
		Reason       string
	}{
		layout:       s.layout(subject, in.Recipient),
		LanguageName: in.LanguageName,
		Amount:       FormatAmount(in.Amount, in.Currency),
		Reason:       reason,
	}
	return s.deliver(ctx, TypePaymentFailed, "payment_failed.html", in.Recipient, subject, data)
}

// SendMonthlyImpactReport отправляет ежемесячный отчет
func (s *Service) SendMonthlyImpactReport(ctx context.Context, in ImpactReport) Result {
	subject := fmt.Sprintf("Your impact in %s", in.Period)

	type row struct {
		LanguageName string
		Kind         string
		Amount       string
	}
	rows := make([]row, 0, len(in.Campaigns))
	for _, c := range in.Campaigns {
		rows = append(rows, row{
			LanguageName: c.LanguageName,
			Kind:         campaignKind(c.Type),
			Amount:       FormatAmount(c.Amount, c.Currency),
		})
	}
	data := struct {
		layout
		Period       string
		Campaigns    []row
		TotalGiven   string
		PaymentCount int
	}{
		layout:       s.layout(subject, in.Recipient),
		Period:       in.Period,
		Campaigns:    rows,
		TotalGiven:   FormatAmount(in.TotalGiven, in.Currency),
		PaymentCount: in.PaymentCount,
	}
	return s.deliver(ctx, TypeImpactReport, "impact_report.html", in.Recipient, subject, data)
}

func campaignKind(t domain.CampaignType) string {
	switch t {
	case domain.CampaignTypeAdoptLanguage:
		return "Language adoption"
	case domain.CampaignTypeSponsorTranslation:
		return "Translation sponsorship"
	default:
		return "Donation"
	}
}

// deliver рендерит шаблон, отправляет письмо и пишет запись в журнал.
// Любая ошибка превращается в Result{Success: false}.
func (s *Service) deliver(ctx context.Context, emailType, tmpl string, r Recipient, subject string, data any) Result {
	log := s.log.With("emailType", emailType, "partnerID", r.PartnerID)

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		log.Errorw("Failed to render email template", "error", err)
		return s.record(ctx, log, emailType, r, subject, "", err)
	}

	messageID, err := s.sender.Send(ctx, Message{
		To:      r.Email,
		ToName:  r.FirstName,
		Subject: subject,
		HTML:    body.String(),
	})
	if err != nil {
		log.Errorw("Failed to send email", "error", err)
		return s.record(ctx, log, emailType, r, subject, body.String(), err)
	}

	res := s.record(ctx, log, emailType, r, subject, body.String(), nil)
	res.MessageID = messageID
	return res
}

func (s *Service) record(ctx context.Context, log *logger.Logger, emailType string, r Recipient, subject, content string, sendErr error) Result {
	s.metrics.IncEmail(emailType, sendErr == nil)

	c := &domain.Communication{
		PartnerID: r.PartnerID,
		Type:      domain.CommunicationTypeEmail,
		Subject:   subject,
		Content:   content,
		SentAt:    s.clock.Now(),
		Status:    domain.CommunicationStatusSent,
	}
	if sendErr != nil {
		msg := sendErr.Error()
		c.Status = domain.CommunicationStatusFailed
		c.Error = &msg
	}
	if err := s.comms.Create(ctx, c); err != nil {
		log.Warnw("Failed to log communication", "error", err)
	}

	if sendErr != nil {
		return Result{Success: false, Message: sendErr.Error()}
	}
	log.Infow("Email sent")
	return Result{Success: true, Message: "Email sent"}
}
