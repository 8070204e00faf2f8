package services

import (
	"context"
	"testing"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expiryFixtures() memory.Fixtures {
	return memory.Fixtures{
		Languages: []domain.Language{
			language("lang_fr", domain.AdoptionStatusAdopted),
			language("lang_de", domain.AdoptionStatusAdopted),
			language("lang_nl", domain.AdoptionStatusAdopted),
			language("lang_it", domain.AdoptionStatusAdopted),
		},
		Partners: []domain.Partner{partner("partner_1", "grace@example.org")},
		Campaigns: []domain.Campaign{
			// истекла, язык освобождается
			activeAdoption("camp_expired", "lang_fr", testNow.Add(-time.Hour)),
			// истекла, но язык еще спонсируется другой активной кампанией
			activeAdoption("camp_expired_shared", "lang_de", testNow.AddDate(0, 0, -2)),
			subscribed(sponsorship("camp_de_sponsor", "lang_de", testNow.AddDate(0, 0, 20)), "sub_de"),
			// граница: дата списания равна текущему моменту
			activeAdoption("camp_boundary", "lang_nl", testNow),
			// подписки не истекают
			subscribed(activeAdoption("camp_sub_past", "lang_it", testNow.AddDate(0, 0, -3)), "sub_it"),
		},
	}
}

func resultsByCampaign(report *ExpiryReport) map[string]ExpiryResult {
	out := make(map[string]ExpiryResult, len(report.Results))
	for _, r := range report.Results {
		out[r.CampaignID] = r
	}
	return out
}

func TestExpiryRun(t *testing.T) {
	env := newTestEnv(t, expiryFixtures())

	report, err := env.expiry().Run(context.Background())
	require.NoError(t, err)
	env.background.Wait()

	assert.True(t, report.ProcessedAt.Equal(testNow))
	assert.Equal(t, 2, report.ExpiredCampaigns)
	require.Len(t, report.Results, 2)

	results := resultsByCampaign(report)
	assert.Equal(t, ActionReleased, results["camp_expired"].Action)
	assert.Equal(t, "Language lang_fr", results["camp_expired"].LanguageName)
	assert.Equal(t, "grace@example.org", results["camp_expired"].PartnerEmail)
	assert.Equal(t, ActionStillAdopted, results["camp_expired_shared"].Action)
	assert.Equal(t, 1, results["camp_expired_shared"].OtherActiveCampaigns)

	expired, _ := env.mem.Campaign("camp_expired")
	assert.Equal(t, domain.CampaignStatusCompleted, expired.Status)
	require.NotNil(t, expired.EndDate)
	assert.True(t, expired.EndDate.Equal(testNow))

	fr, _ := env.mem.Language("lang_fr")
	assert.Equal(t, domain.AdoptionStatusAvailable, fr.AdoptionStatus)
	de, _ := env.mem.Language("lang_de")
	assert.Equal(t, domain.AdoptionStatusAdopted, de.AdoptionStatus)

	for _, id := range []string{"camp_boundary", "camp_sub_past", "camp_de_sponsor"} {
		c, _ := env.mem.Campaign(id)
		assert.Equal(t, domain.CampaignStatusActive, c.Status, id)
	}

	assert.Equal(t, []string{kafka.TopicCampaignCompleted, kafka.TopicCampaignCompleted}, env.publisher.topics())

	// второй запуск ничего не находит
	again, err := env.expiry().Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.ExpiredCampaigns)
	assert.Empty(t, again.Results)
}

func TestExpiryRunContinuesAfterItemFailure(t *testing.T) {
	env := newTestEnv(t, expiryFixtures())
	env.repos.Campaigns = &failingCampaigns{
		CampaignRepository: env.repos.Campaigns,
		completeErr:        map[string]error{"camp_expired_shared": errStorage},
	}

	report, err := env.expiry().Run(context.Background())
	require.NoError(t, err)
	env.background.Wait()

	assert.Equal(t, 1, report.ExpiredCampaigns)
	results := resultsByCampaign(report)
	assert.Equal(t, ActionReleased, results["camp_expired"].Action)
	assert.Equal(t, ActionError, results["camp_expired_shared"].Action)
	assert.Contains(t, results["camp_expired_shared"].Error, "connection refused")

	shared, _ := env.mem.Campaign("camp_expired_shared")
	assert.Equal(t, domain.CampaignStatusActive, shared.Status)
}

func TestExpiryRunReportsConcurrentChange(t *testing.T) {
	env := newTestEnv(t, expiryFixtures())
	env.repos.Campaigns = &failingCampaigns{
		CampaignRepository: env.repos.Campaigns,
		completeErr:        map[string]error{"camp_expired": repository.ErrStateConflict},
	}

	report, err := env.expiry().Run(context.Background())
	require.NoError(t, err)

	results := resultsByCampaign(report)
	assert.Equal(t, ActionError, results["camp_expired"].Action)
	assert.Equal(t, "campaign is no longer active", results["camp_expired"].Error)
}

func TestExpiryRunFailsWhenQueryFails(t *testing.T) {
	env := newTestEnv(t, expiryFixtures())
	env.repos.Campaigns = &failingCampaigns{CampaignRepository: env.repos.Campaigns, listErr: errStorage}

	_, err := env.expiry().Run(context.Background())
	require.ErrorIs(t, err, errStorage)

	c, _ := env.mem.Campaign("camp_expired")
	assert.Equal(t, domain.CampaignStatusActive, c.Status)
}

func TestExpiryPreview(t *testing.T) {
	env := newTestEnv(t, memory.Fixtures{
		Languages: []domain.Language{
			language("lang_fr", domain.AdoptionStatusAdopted),
			language("lang_de", domain.AdoptionStatusAdopted),
			language("lang_nl", domain.AdoptionStatusAdopted),
			language("lang_it", domain.AdoptionStatusAdopted),
		},
		Campaigns: []domain.Campaign{
			activeAdoption("camp_6h", "lang_fr", testNow.Add(6*time.Hour)),
			subscribed(activeAdoption("camp_3d", "lang_de", testNow.AddDate(0, 0, 3)), "sub_3d"),
			activeAdoption("camp_10d", "lang_nl", testNow.AddDate(0, 0, 10)),
			activeAdoption("camp_past", "lang_it", testNow.Add(-time.Minute)),
		},
	})

	preview, err := env.expiry().Preview(context.Background())
	require.NoError(t, err)

	ids := func(items []domain.CampaignDetails) []string {
		out := make([]string, 0, len(items))
		for _, c := range items {
			out = append(out, c.ID)
		}
		return out
	}
	assert.True(t, preview.CheckedAt.Equal(testNow))
	assert.ElementsMatch(t, []string{"camp_6h"}, ids(preview.ExpiringSoon))
	assert.ElementsMatch(t, []string{"camp_6h", "camp_3d"}, ids(preview.ExpiringThisWeek))
}

func TestExpiryRunKeepsLanguageHeldBySponsorship(t *testing.T) {
	env := newTestEnv(t, memory.Fixtures{
		Languages: []domain.Language{language("lang_1", domain.AdoptionStatusAdopted)},
		Partners:  []domain.Partner{partner("partner_1", "grace@example.org")},
		Campaigns: []domain.Campaign{
			activeAdoption("camp_1", "lang_1", testNow.AddDate(0, 0, -1)),
			subscribed(sponsorship("camp_2", "lang_1", testNow.AddDate(0, 0, 10)), "sub_2"),
		},
	})

	report, err := env.expiry().Run(context.Background())
	require.NoError(t, err)
	env.background.Wait()

	require.Len(t, report.Results, 1)
	assert.Equal(t, "camp_1", report.Results[0].CampaignID)
	assert.Equal(t, ActionStillAdopted, report.Results[0].Action)
	assert.Equal(t, 1, report.Results[0].OtherActiveCampaigns)

	c1, _ := env.mem.Campaign("camp_1")
	assert.Equal(t, domain.CampaignStatusCompleted, c1.Status)
	lang, _ := env.mem.Language("lang_1")
	assert.Equal(t, domain.AdoptionStatusAdopted, lang.AdoptionStatus)
}
