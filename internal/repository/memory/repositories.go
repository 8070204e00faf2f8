package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
)

type languageRepo struct{ s *Store }

func (r *languageRepo) GetByID(ctx context.Context, id string) (*domain.Language, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	l, ok := r.s.languages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r *languageRepo) List(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	out := make([]domain.Language, 0, len(r.s.languages))
	for _, l := range r.s.languages {
		if filter.Status != "" && l.AdoptionStatus != filter.Status {
			continue
		}
		if filter.Region != "" && l.Region != filter.Region {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type partnerRepo struct{ s *Store }

func (r *partnerRepo) GetByID(ctx context.Context, id string) (*domain.Partner, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	p, ok := r.s.partners[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *partnerRepo) GetByEmail(ctx context.Context, email string) (*domain.Partner, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	email = normalizeEmail(email)
	for _, p := range r.s.partners {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *partnerRepo) Create(ctx context.Context, partner *domain.Partner) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	partner.Email = normalizeEmail(partner.Email)
	for _, p := range r.s.partners {
		if p.Email == partner.Email {
			return repository.ErrDuplicate
		}
	}
	if partner.ID == "" {
		partner.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if partner.CreatedAt.IsZero() {
		partner.CreatedAt = now
	}
	partner.UpdatedAt = now
	r.s.partners[partner.ID] = *partner
	return nil
}

func (r *partnerRepo) SetStripeCustomerID(ctx context.Context, partnerID, customerID string) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	p, ok := r.s.partners[partnerID]
	if !ok {
		return repository.ErrNotFound
	}
	p.StripeCustomerID = strPtr(customerID)
	p.UpdatedAt = time.Now().UTC()
	r.s.partners[partnerID] = p
	return nil
}

type campaignRepo struct{ s *Store }

func (r *campaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *campaignRepo) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*domain.Campaign, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	for _, c := range r.s.campaigns {
		if c.StripeSubscriptionID != nil && *c.StripeSubscriptionID == subscriptionID {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *campaignRepo) GetByStripePaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Campaign, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	for _, c := range r.s.campaigns {
		if c.StripePaymentIntentID != nil && *c.StripePaymentIntentID == paymentIntentID {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *campaignRepo) HasActiveAdoption(ctx context.Context, languageID string) (bool, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return r.s.countOtherActiveAdoptions(languageID, "") > 0, nil
}

func (r *campaignRepo) Create(ctx context.Context, campaign *domain.Campaign) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	if _, ok := r.s.campaigns[campaign.ID]; ok {
		return repository.ErrStateConflict
	}
	for _, c := range r.s.campaigns {
		if sameRef(c.StripeSubscriptionID, campaign.StripeSubscriptionID) {
			return repository.ErrStateConflict
		}
	}
	now := time.Now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	adopting := campaign.IsAdoption() && campaign.Status == domain.CampaignStatusActive
	if adopting {
		lang, ok := r.s.languages[campaign.LanguageID]
		if !ok {
			return repository.ErrNotFound
		}
		if r.s.countOtherActiveAdoptions(campaign.LanguageID, "") > 0 {
			return repository.ErrDuplicate
		}
		lang.AdoptionStatus = domain.AdoptionStatusAdopted
		lang.UpdatedAt = now
		r.s.languages[lang.ID] = lang
	}

	r.s.campaigns[campaign.ID] = *campaign
	return nil
}

func (r *campaignRepo) UpdateBilling(ctx context.Context, id string, status domain.CampaignStatus, nextBillingDate *time.Time) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	if c.IsAdoption() && status == domain.CampaignStatusActive && c.Status != domain.CampaignStatusActive &&
		r.s.countOtherActiveAdoptions(c.LanguageID, c.ID) > 0 {
		return repository.ErrDuplicate
	}
	c.Status = status
	if nextBillingDate != nil {
		c.NextBillingDate = timePtr(nextBillingDate.UTC())
	}
	c.UpdatedAt = time.Now().UTC()
	r.s.campaigns[id] = c
	return nil
}

func (r *campaignRepo) RecordInvoicePayment(ctx context.Context, payment *domain.Payment, status domain.CampaignStatus, nextBillingDate *time.Time) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	c, ok := r.s.campaigns[payment.CampaignID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.s.duplicatePayment(payment) {
		return repository.ErrDuplicate
	}
	if c.IsAdoption() && status == domain.CampaignStatusActive && c.Status != domain.CampaignStatusActive &&
		r.s.countOtherActiveAdoptions(c.LanguageID, c.ID) > 0 {
		return repository.ErrStateConflict
	}

	r.s.appendPayment(payment)
	c.Status = status
	if nextBillingDate != nil {
		c.NextBillingDate = timePtr(nextBillingDate.UTC())
	}
	c.UpdatedAt = time.Now().UTC()
	r.s.campaigns[c.ID] = c
	return nil
}

func (r *campaignRepo) Complete(ctx context.Context, id string, at time.Time) (repository.LanguageRelease, error) {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return repository.LanguageRelease{}, repository.ErrNotFound
	}
	if c.Status != domain.CampaignStatusActive {
		return repository.LanguageRelease{}, repository.ErrStateConflict
	}
	c.Status = domain.CampaignStatusCompleted
	c.EndDate = timePtr(at)
	c.UpdatedAt = at
	r.s.campaigns[id] = c

	return r.s.releaseIfUnclaimed(c, at), nil
}

func (r *campaignRepo) Cancel(ctx context.Context, id string, at time.Time) (repository.LanguageRelease, error) {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return repository.LanguageRelease{}, repository.ErrNotFound
	}
	if c.Status == domain.CampaignStatusCancelled {
		return repository.LanguageRelease{}, nil
	}
	c.Status = domain.CampaignStatusCancelled
	c.EndDate = timePtr(at)
	c.UpdatedAt = at
	r.s.campaigns[id] = c

	return r.s.releaseIfUnclaimed(c, at), nil
}

func (r *campaignRepo) List(ctx context.Context, filter domain.CampaignFilter) ([]domain.CampaignDetails, error) {
	return r.collect(func(c domain.Campaign) bool {
		if filter.Status != "" && c.Status != filter.Status {
			return false
		}
		if filter.Type != "" && c.Type != filter.Type {
			return false
		}
		if filter.LanguageID != "" && c.LanguageID != filter.LanguageID {
			return false
		}
		return true
	}), nil
}

func (r *campaignRepo) ListActiveBillingBetween(ctx context.Context, from, to time.Time) ([]domain.CampaignDetails, error) {
	return r.collect(func(c domain.Campaign) bool {
		if c.Status != domain.CampaignStatusActive || c.NextBillingDate == nil {
			return false
		}
		return !c.NextBillingDate.Before(from) && c.NextBillingDate.Before(to)
	}), nil
}

func (r *campaignRepo) ListExpiredOneTimeAdoptions(ctx context.Context, before time.Time) ([]domain.CampaignDetails, error) {
	return r.collect(func(c domain.Campaign) bool {
		return c.Type == domain.CampaignTypeAdoptLanguage &&
			c.Status == domain.CampaignStatusActive &&
			c.IsOneTime() &&
			c.NextBillingDate != nil &&
			c.NextBillingDate.Before(before)
	}), nil
}

func (r *campaignRepo) ListByPartner(ctx context.Context, partnerID string) ([]domain.Campaign, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if c.PartnerID == partnerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *campaignRepo) collect(match func(domain.Campaign) bool) []domain.CampaignDetails {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	out := make([]domain.CampaignDetails, 0)
	for _, c := range r.s.campaigns {
		if match(c) {
			out = append(out, r.s.details(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextBillingDate, out[j].NextBillingDate
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		}
		return a.Before(*b)
	})
	return out
}

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	if r.s.duplicatePayment(payment) {
		return repository.ErrDuplicate
	}
	r.s.appendPayment(payment)
	return nil
}

// duplicatePayment вызывается под блокировкой
func (s *Store) duplicatePayment(payment *domain.Payment) bool {
	if payment.Status != domain.PaymentStatusSucceeded {
		return false
	}
	for _, p := range s.payments {
		if p.Status != domain.PaymentStatusSucceeded {
			continue
		}
		if sameRef(p.StripeInvoiceID, payment.StripeInvoiceID) {
			return true
		}
		if payment.StripeInvoiceID == nil && sameRef(p.StripePaymentIntentID, payment.StripePaymentIntentID) {
			return true
		}
	}
	return false
}

// appendPayment вызывается под блокировкой
func (s *Store) appendPayment(payment *domain.Payment) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	s.payments = append(s.payments, *payment)
}

func sameRef(a, b *string) bool {
	return a != nil && b != nil && *a != "" && *a == *b
}

func (r *paymentRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Payment, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.CampaignID == campaignID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *paymentRepo) ListByPartnerSince(ctx context.Context, partnerID string, since time.Time) ([]domain.Payment, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.PartnerID == partnerID && !p.PaymentDate.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

type communicationRepo struct{ s *Store }

func (r *communicationRepo) Create(ctx context.Context, c *domain.Communication) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.s.communications = append(r.s.communications, *c)
	return nil
}

func (r *communicationRepo) ListByPartner(ctx context.Context, partnerID string) ([]domain.Communication, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var out []domain.Communication
	for _, c := range r.s.communications {
		if c.PartnerID == partnerID {
			out = append(out, c)
		}
	}
	return out, nil
}

type settingsRepo struct{ s *Store }

func (r *settingsRepo) Get(ctx context.Context) (*domain.CheckoutSettings, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	if r.s.settings == nil {
		return nil, repository.ErrNotFound
	}
	cp := *r.s.settings
	return &cp, nil
}

func (r *settingsRepo) Upsert(ctx context.Context, settings *domain.CheckoutSettings) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	cp := *settings
	cp.ID = domain.CheckoutSettingsKey
	r.s.settings = &cp
	settings.ID = cp.ID
	return nil
}

type webhookEventRepo struct{ s *Store }

func (r *webhookEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	_, ok := r.s.webhookEvents[eventID]
	return ok, nil
}

func (r *webhookEventRepo) Record(ctx context.Context, event *domain.WebhookEvent) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	if _, ok := r.s.webhookEvents[event.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.webhookEvents[event.ID] = *event
	return nil
}
