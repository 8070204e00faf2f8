package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/internal/stripe"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/req"
)

// Ключи метаданных объектов Stripe
const (
	MetadataCampaignID   = "campaign_id"
	MetadataCampaignType = "campaign_type"
	MetadataLanguageID   = "language_id"
	MetadataPartnerID    = "partner_id"
)

// DefaultOneTimePeriod срок разового усыновления
const DefaultOneTimePeriod = 30 * 24 * time.Hour

// idempotencyNamespace пространство имен для ID кампаний из ключа Idempotency-Key
var idempotencyNamespace = uuid.MustParse("6f1d2c9e-4b7a-5e83-9c0d-2a8f5b3e7d41")

// campaignIDForKey дает один и тот же ID кампании для повторов с тем же ключом
func campaignIDForKey(key string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(key)).String()
}

// CheckoutConfig параметры оформления пожертвований
type CheckoutConfig struct {
	// ProductIDs продукт Stripe для каждого типа кампании
	ProductIDs map[domain.CampaignType]string
	// OneTimePeriod через сколько разовая кампания считается истекшей
	OneTimePeriod time.Duration
}

// CreateIntentInput запрос на оформление пожертвования
type CreateIntentInput struct {
	CampaignType   domain.CampaignType `json:"campaignType" validate:"required,oneof=ADOPT_LANGUAGE SPONSOR_TRANSLATION GENERAL_DONATION"`
	LanguageID     string              `json:"languageId" validate:"required,max=64"`
	Amount         int64               `json:"amount" validate:"gte=100"`
	Currency       string              `json:"currency" validate:"required,len=3"`
	IsRecurring    bool                `json:"isRecurring"`
	PartnerInfo    domain.PartnerInfo  `json:"partnerInfo"`
	BillingAddress *domain.Address     `json:"billingAddress,omitempty"`

	// IdempotencyKey из заголовка Idempotency-Key, если клиент его передал
	IdempotencyKey string `json:"-"`
}

// CreateIntentOutput данные для подтверждения платежа на клиенте
type CreateIntentOutput struct {
	SubscriptionID  string `json:"subscriptionId"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	CampaignID      string `json:"campaignId"`
	ClientSecret    string `json:"clientSecret"`
	CustomerID      string `json:"customerId"`
}

// CheckoutService создает кампании и платежные объекты Stripe
type CheckoutService struct {
	cfg        CheckoutConfig
	store      repository.Store
	settings   *CheckoutSettingsService
	stripe     stripe.Client
	notifier   Notifier
	publisher  kafka.Publisher
	metrics    metrics.DonationMetrics
	clock      clock.Clock
	background *Background
	log        *logger.Logger
}

// NewCheckoutService конструктор сервиса
func NewCheckoutService(
	cfg CheckoutConfig,
	store repository.Store,
	settings *CheckoutSettingsService,
	stripeClient stripe.Client,
	notifier Notifier,
	publisher kafka.Publisher,
	m metrics.DonationMetrics,
	clk clock.Clock,
	background *Background,
	log *logger.Logger,
) *CheckoutService {
	if cfg.OneTimePeriod <= 0 {
		cfg.OneTimePeriod = DefaultOneTimePeriod
	}
	return &CheckoutService{
		cfg:        cfg,
		store:      store,
		settings:   settings,
		stripe:     stripeClient,
		notifier:   notifier,
		publisher:  publisher,
		metrics:    m,
		clock:      clk,
		background: background,
		log:        log,
	}
}

// CreateIntent проверяет запрос, создает подписку или разовый платеж в Stripe
// и сохраняет кампанию в статусе ACTIVE.
func (s *CheckoutService) CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentOutput, error) {
	normalizeIntentInput(&in)

	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	log := s.log.With("campaignType", in.CampaignType, "languageId", in.LanguageID)
	log.Infow("Starting CreateIntent", "amount", in.Amount, "currency", in.Currency, "recurring", in.IsRecurring)
	startTime := s.clock.Now()

	language, err := s.store.Languages.GetByID(ctx, in.LanguageID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warnw("Language not found")
		return nil, domain.ErrLanguageNotFound
	}
	if err != nil {
		log.Errorw("Failed to load language", "error", err)
		return nil, internalError("load language", err)
	}

	campaignID := uuid.NewString()
	var existing *domain.Campaign
	if in.IdempotencyKey != "" {
		campaignID = campaignIDForKey(in.IdempotencyKey)
		existing, err = s.store.Campaigns.GetByID(ctx, campaignID)
		switch {
		case err == nil:
			log.Infow("Repeated checkout for idempotency key", "campaignId", campaignID)
		case errors.Is(err, repository.ErrNotFound):
			existing = nil
		default:
			log.Errorw("Failed to load campaign for idempotency key", "error", err)
			return nil, internalError("load campaign", err)
		}
	}

	// повтор уже сохраненного оформления не проверяет занятость языка: язык занят им самим
	if in.CampaignType == domain.CampaignTypeAdoptLanguage && existing == nil {
		adopted, err := s.store.Campaigns.HasActiveAdoption(ctx, language.ID)
		if err != nil {
			log.Errorw("Failed to check language adoption", "error", err)
			return nil, internalError("check adoption", err)
		}
		if adopted {
			log.Warnw("Language already adopted")
			return nil, domain.ErrLanguageAlreadyAdopted
		}
	}

	customerID, err := s.stripe.FindOrCreateCustomer(ctx, stripe.CustomerInput{
		Email:   in.PartnerInfo.Email,
		Name:    in.PartnerInfo.FirstName + " " + in.PartnerInfo.LastName,
		Phone:   in.PartnerInfo.Phone,
		Address: in.BillingAddress,
	})
	if err != nil {
		log.Errorw("Failed to resolve Stripe customer", "error", err)
		return nil, fmt.Errorf("resolve stripe customer: %w", err)
	}

	partner, err := s.resolvePartner(ctx, in, customerID)
	if err != nil {
		log.Errorw("Failed to resolve partner", "error", err)
		return nil, err
	}

	now := s.clock.Now().UTC()
	campaign := &domain.Campaign{
		ID:            campaignID,
		Type:          in.CampaignType,
		PartnerID:     partner.ID,
		LanguageID:    language.ID,
		MonthlyAmount: in.Amount,
		Currency:      in.Currency,
		Status:        domain.CampaignStatusActive,
		StartDate:     now,
	}
	metadata := map[string]string{
		MetadataCampaignID:   campaign.ID,
		MetadataCampaignType: string(in.CampaignType),
		MetadataLanguageID:   language.ID,
		MetadataPartnerID:    partner.ID,
	}
	idempotencyKey := "campaign-" + campaign.ID
	if in.IdempotencyKey != "" {
		idempotencyKey = in.IdempotencyKey
	}

	out := &CreateIntentOutput{CampaignID: campaign.ID, CustomerID: customerID}

	if in.IsRecurring {
		productID := s.cfg.ProductIDs[in.CampaignType]
		if productID == "" {
			log.Errorw("Stripe product is not configured for campaign type")
			return nil, fmt.Errorf("stripe product for %s is not configured", in.CampaignType)
		}

		priceID, err := s.stripe.FindOrCreateMonthlyPrice(ctx, productID, in.Amount, in.Currency)
		if err != nil {
			log.Errorw("Failed to resolve Stripe price", "error", err, "productId", productID)
			return nil, fmt.Errorf("resolve stripe price: %w", err)
		}

		sub, err := s.stripe.CreateSubscription(ctx, customerID, priceID, metadata, idempotencyKey)
		if err != nil {
			log.Errorw("Failed to create Stripe subscription", "error", err, "customerId", customerID)
			return nil, fmt.Errorf("create stripe subscription: %w", err)
		}

		next := sub.CurrentPeriodEnd.UTC()
		if sub.CurrentPeriodEnd.IsZero() {
			next = now.AddDate(0, 1, 0)
		}
		campaign.StripeSubscriptionID = strPtr(sub.ID)
		campaign.NextBillingDate = &next
		out.SubscriptionID = sub.ID
		out.PaymentIntentID = sub.PaymentIntentID
		out.ClientSecret = sub.ClientSecret
	} else {
		pi, err := s.stripe.CreatePaymentIntent(ctx, stripe.PaymentIntentInput{
			CustomerID:     customerID,
			Amount:         in.Amount,
			Currency:       in.Currency,
			ReceiptEmail:   in.PartnerInfo.Email,
			Description:    describeCampaign(in.CampaignType, language.Name),
			Metadata:       metadata,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			log.Errorw("Failed to create Stripe payment intent", "error", err, "customerId", customerID)
			return nil, fmt.Errorf("create stripe payment intent: %w", err)
		}

		campaign.StripePaymentIntentID = strPtr(pi.ID)
		campaign.NextBillingDate = timePtr(now.Add(s.cfg.OneTimePeriod))
		out.PaymentIntentID = pi.ID
		out.ClientSecret = pi.ClientSecret
	}

	if existing != nil {
		return s.replay(log, existing, campaign, out)
	}

	if err := s.store.Campaigns.Create(ctx, campaign); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			// параллельный запрос с тем же ключом успел сохранить кампанию
			saved, lookupErr := s.store.Campaigns.GetByID(ctx, campaign.ID)
			if lookupErr != nil {
				log.Errorw("Campaign conflicts with an existing record", "error", err, "campaignId", campaign.ID)
				return nil, internalError("save campaign", err)
			}
			return s.replay(log, saved, campaign, out)
		}
		s.compensate(campaign)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			log.Warnw("Lost adoption race, Stripe objects cancelled", "campaignId", campaign.ID)
			return nil, domain.ErrLanguageAlreadyAdopted
		case errors.Is(err, repository.ErrNotFound):
			log.Warnw("Language disappeared before campaign was saved", "campaignId", campaign.ID)
			return nil, domain.ErrLanguageNotFound
		}
		log.Errorw("Failed to save campaign", "error", err, "campaignId", campaign.ID)
		return nil, internalError("save campaign", err)
	}

	s.metrics.IncCampaignCreated(string(campaign.Type))
	log.Infow("Campaign created",
		"campaignId", campaign.ID,
		"partnerId", partner.ID,
		"subscriptionId", out.SubscriptionID,
		"paymentIntentId", out.PaymentIntentID,
		"duration", s.clock.Now().Sub(startTime),
	)

	welcome := email.WelcomeEmail{
		Recipient:       email.Recipient{PartnerID: partner.ID, Email: partner.Email, FirstName: partner.FirstName},
		CampaignType:    campaign.Type,
		LanguageName:    language.Name,
		Amount:          campaign.MonthlyAmount,
		Currency:        campaign.Currency,
		Recurring:       in.IsRecurring,
		NextBillingDate: campaign.NextBillingDate,
	}
	s.background.Go("welcome email", func(ctx context.Context) {
		if result := s.notifier.SendWelcomeEmail(ctx, welcome); !result.Success {
			s.log.Warnw("Welcome email was not delivered", "campaignId", campaign.ID, "message", result.Message)
		}
	})
	publish(s.background, s.publisher, s.log, kafka.TopicCampaignCreated, campaign.ID, campaignEvent(*campaign, now))

	return out, nil
}

// validate проверяет запрос по тегам и по текущим настройкам страницы оплаты
func (s *CheckoutService) validate(ctx context.Context, in CreateIntentInput) error {
	var errs domain.ValidationErrors
	if err := req.IsValid(in); err != nil {
		errs = validationErrors(err)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	if in.Amount < settings.MinimumAmount && errs.GetByField("amount") == "" {
		errs.Add("amount", fmt.Sprintf("must be at least %d", settings.MinimumAmount))
	}
	if in.Amount > settings.MaximumAmount {
		errs.Add("amount", fmt.Sprintf("must be at most %d", settings.MaximumAmount))
	}
	if len(in.Currency) == 3 && !settings.SupportsCurrency(in.Currency) {
		errs.Add("currency", "must be one of "+strings.Join(settings.Currencies, ", "))
	}

	if errs.HasErrors() {
		s.log.Warnw("CreateIntent request rejected", "errors", errs.Error())
		return errs
	}
	return nil
}

// resolvePartner находит партнера по email или создает нового,
// дописывая ID клиента Stripe, если его еще нет.
func (s *CheckoutService) resolvePartner(ctx context.Context, in CreateIntentInput, customerID string) (*domain.Partner, error) {
	partner, err := s.store.Partners.GetByEmail(ctx, in.PartnerInfo.Email)
	if err == nil {
		if partner.StripeCustomerID == nil || *partner.StripeCustomerID == "" {
			if err := s.store.Partners.SetStripeCustomerID(ctx, partner.ID, customerID); err != nil {
				return nil, internalError("set stripe customer", err)
			}
			partner.StripeCustomerID = strPtr(customerID)
		}
		return partner, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, internalError("load partner", err)
	}

	partner = &domain.Partner{
		Email:            in.PartnerInfo.Email,
		FirstName:        in.PartnerInfo.FirstName,
		LastName:         in.PartnerInfo.LastName,
		Organization:     in.PartnerInfo.Organization,
		Phone:            in.PartnerInfo.Phone,
		Country:          in.PartnerInfo.Country,
		StripeCustomerID: strPtr(customerID),
		BillingAddress:   in.BillingAddress,
	}
	err = s.store.Partners.Create(ctx, partner)
	if errors.Is(err, repository.ErrDuplicate) {
		// партнер создан параллельным запросом
		return s.resolvePartner(ctx, in, customerID)
	}
	if err != nil {
		return nil, internalError("create partner", err)
	}
	s.log.Infow("Partner created", "partnerId", partner.ID)
	return partner, nil
}

// replay отвечает на повтор оформления уже сохраненной кампанией.
// Stripe вернул те же объекты, если ключ и параметры совпали; иначе новые объекты отменяются.
func (s *CheckoutService) replay(log *logger.Logger, saved, attempt *domain.Campaign, out *CreateIntentOutput) (*CreateIntentOutput, error) {
	if !sameRef(saved.StripeSubscriptionID, attempt.StripeSubscriptionID) ||
		!sameRef(saved.StripePaymentIntentID, attempt.StripePaymentIntentID) {
		s.compensate(attempt)
		log.Warnw("Idempotency key reused for a different checkout", "campaignId", saved.ID)
		return nil, domain.ErrIdempotencyKeyReused
	}
	log.Infow("Checkout replayed", "campaignId", saved.ID)
	return out, nil
}

// compensate отменяет объекты Stripe кампании, которую не удалось сохранить
func (s *CheckoutService) compensate(c *domain.Campaign) {
	s.background.Go("compensate stripe objects", func(ctx context.Context) {
		var err error
		switch {
		case c.StripeSubscriptionID != nil:
			err = s.stripe.CancelSubscription(ctx, *c.StripeSubscriptionID)
		case c.StripePaymentIntentID != nil:
			err = s.stripe.CancelPaymentIntent(ctx, *c.StripePaymentIntentID)
		}
		if err != nil {
			s.log.Errorw("Failed to cancel Stripe object of unsaved campaign", "campaignId", c.ID, "error", err)
		}
	})
}

func normalizeIntentInput(in *CreateIntentInput) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.LanguageID = strings.TrimSpace(in.LanguageID)
	in.PartnerInfo.Email = strings.ToLower(strings.TrimSpace(in.PartnerInfo.Email))
	in.PartnerInfo.FirstName = strings.TrimSpace(in.PartnerInfo.FirstName)
	in.PartnerInfo.LastName = strings.TrimSpace(in.PartnerInfo.LastName)
	in.PartnerInfo.Country = strings.ToUpper(strings.TrimSpace(in.PartnerInfo.Country))
	if in.BillingAddress != nil {
		in.BillingAddress.Country = strings.ToUpper(strings.TrimSpace(in.BillingAddress.Country))
	}
}

func describeCampaign(t domain.CampaignType, languageName string) string {
	switch t {
	case domain.CampaignTypeAdoptLanguage:
		return "Adopt a language: " + languageName
	case domain.CampaignTypeSponsorTranslation:
		return "Sponsor translation: " + languageName
	}
	return "General donation"
}
