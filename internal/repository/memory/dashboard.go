package memory

import (
	"context"
	"sort"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
)

// DashboardStats считает ту же сводку, что и отчетные SQL-запросы
func (s *Store) DashboardStats(_ context.Context, since time.Time) (*domain.DashboardStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := &domain.DashboardStats{
		GeneratedAt:     time.Now().UTC(),
		Since:           since,
		ActiveCampaigns: []domain.CampaignTypeCount{},
		Revenue:         []domain.CurrencyTotal{},
	}

	byType := map[domain.CampaignType]int{}
	for _, c := range s.campaigns {
		if c.Status == domain.CampaignStatusActive {
			byType[c.Type]++
		}
	}
	for t, n := range byType {
		stats.ActiveCampaigns = append(stats.ActiveCampaigns, domain.CampaignTypeCount{Type: t, Count: n})
	}
	sort.Slice(stats.ActiveCampaigns, func(i, j int) bool {
		return stats.ActiveCampaigns[i].Type < stats.ActiveCampaigns[j].Type
	})

	for _, l := range s.languages {
		if l.AdoptionStatus == domain.AdoptionStatusAdopted {
			stats.AdoptedLanguages++
		}
	}

	revenue := map[string]*domain.CurrencyTotal{}
	for _, p := range s.payments {
		if p.PaymentDate.Before(since) {
			continue
		}
		if p.Status == domain.PaymentStatusFailed {
			stats.FailedPayments++
			continue
		}
		total, ok := revenue[p.Currency]
		if !ok {
			total = &domain.CurrencyTotal{Currency: p.Currency}
			revenue[p.Currency] = total
		}
		total.Amount += p.Amount
		total.Payments++
	}
	for _, total := range revenue {
		stats.Revenue = append(stats.Revenue, *total)
	}
	sort.Slice(stats.Revenue, func(i, j int) bool { return stats.Revenue[i].Currency < stats.Revenue[j].Currency })

	return stats, nil
}
