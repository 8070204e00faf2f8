package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// Store хранилище в памяти. Один мьютекс на все таблицы дает те же гарантии
// атомарности, что и транзакции в postgres-реализации.
type Store struct {
	mutex sync.RWMutex
	log   *logger.Logger

	languages      map[string]domain.Language
	partners       map[string]domain.Partner
	campaigns      map[string]domain.Campaign
	payments       []domain.Payment
	communications []domain.Communication
	settings       *domain.CheckoutSettings
	webhookEvents  map[string]domain.WebhookEvent
}

// NewStore создает пустое хранилище в памяти
func NewStore(log *logger.Logger) *Store {
	return &Store{
		log:           log,
		languages:     make(map[string]domain.Language),
		partners:      make(map[string]domain.Partner),
		campaigns:     make(map[string]domain.Campaign),
		webhookEvents: make(map[string]domain.WebhookEvent),
	}
}

// Repositories возвращает набор репозиториев поверх хранилища
func (s *Store) Repositories() repository.Store {
	return repository.Store{
		Languages:        &languageRepo{s},
		Partners:         &partnerRepo{s},
		Campaigns:        &campaignRepo{s},
		Payments:         &paymentRepo{s},
		Communications:   &communicationRepo{s},
		CheckoutSettings: &settingsRepo{s},
		WebhookEvents:    &webhookEventRepo{s},
	}
}

// Fixtures начальные данные хранилища
type Fixtures struct {
	Languages []domain.Language
	Partners  []domain.Partner
	Campaigns []domain.Campaign
	Payments  []domain.Payment
}

// Seed загружает данные как есть. Проверяется только уникальность активного
// усыновления языка, остальные инварианты на совести вызывающего.
// Используется для локального запуска и в тестах.
func (s *Store) Seed(f Fixtures) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, l := range f.Languages {
		s.languages[l.ID] = l
	}
	for _, p := range f.Partners {
		p.Email = normalizeEmail(p.Email)
		s.partners[p.ID] = p
	}
	for _, c := range f.Campaigns {
		s.campaigns[c.ID] = c
	}
	// тот же инвариант, что держит индекс campaigns_one_active_adoption
	adopted := make(map[string]string)
	for _, c := range s.campaigns {
		if !c.IsAdoption() || c.Status != domain.CampaignStatusActive {
			continue
		}
		if other, ok := adopted[c.LanguageID]; ok {
			panic(fmt.Sprintf("memory: campaigns %s and %s both actively adopt %s", other, c.ID, c.LanguageID))
		}
		adopted[c.LanguageID] = c.ID
	}
	s.payments = append(s.payments, f.Payments...)
}

// Language возвращает копию языка для проверок в тестах
func (s *Store) Language(id string) (domain.Language, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	l, ok := s.languages[id]
	return l, ok
}

// Campaign возвращает копию кампании
func (s *Store) Campaign(id string) (domain.Campaign, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	c, ok := s.campaigns[id]
	return c, ok
}

// Campaigns возвращает все кампании
func (s *Store) Campaigns() []domain.Campaign {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]domain.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payments возвращает журнал платежей
func (s *Store) Payments() []domain.Payment {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]domain.Payment(nil), s.payments...)
}

// Communications возвращает журнал уведомлений
func (s *Store) Communications() []domain.Communication {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]domain.Communication(nil), s.communications...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func strPtr(s string) *string {
	return &s
}

// countOtherActiveAdoptions вызывается под блокировкой
func (s *Store) countOtherActiveAdoptions(languageID, exceptID string) int {
	n := 0
	for _, c := range s.campaigns {
		if c.ID == exceptID || c.LanguageID != languageID {
			continue
		}
		if c.Type == domain.CampaignTypeAdoptLanguage && c.Status == domain.CampaignStatusActive {
			n++
		}
	}
	return n
}

// countOtherActiveCampaigns считает ACTIVE кампании любого типа. Вызывается под блокировкой
func (s *Store) countOtherActiveCampaigns(languageID, exceptID string) int {
	n := 0
	for _, c := range s.campaigns {
		if c.ID == exceptID || c.LanguageID != languageID {
			continue
		}
		if c.Status == domain.CampaignStatusActive {
			n++
		}
	}
	return n
}

// releaseIfUnclaimed вызывается под блокировкой
func (s *Store) releaseIfUnclaimed(c domain.Campaign, at time.Time) repository.LanguageRelease {
	if !c.IsAdoption() {
		return repository.LanguageRelease{}
	}
	others := s.countOtherActiveCampaigns(c.LanguageID, c.ID)
	if others > 0 {
		return repository.LanguageRelease{OtherActive: others}
	}
	if lang, ok := s.languages[c.LanguageID]; ok {
		lang.AdoptionStatus = domain.AdoptionStatusAvailable
		lang.UpdatedAt = at
		s.languages[c.LanguageID] = lang
	}
	return repository.LanguageRelease{Released: true}
}

func (s *Store) details(c domain.Campaign) domain.CampaignDetails {
	d := domain.CampaignDetails{Campaign: c}
	if l, ok := s.languages[c.LanguageID]; ok {
		d.LanguageName = l.Name
	}
	if p, ok := s.partners[c.PartnerID]; ok {
		d.PartnerName = p.FullName()
		d.PartnerEmail = p.Email
	}
	return d
}
