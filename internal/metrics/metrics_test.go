package metrics

import (
	"testing"
	"time"

	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonationMetricsCount(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewDonationMetrics(registry, logger.NewNop()).(*donationMetrics)

	m.IncCampaignCreated("ADOPT_LANGUAGE")
	m.IncCampaignCreated("ADOPT_LANGUAGE")
	m.IncPayment("SUCCEEDED", "GBP")
	m.IncEmail("welcome", true)
	m.IncEmail("welcome", false)
	m.IncWebhookEvent("invoice.payment_succeeded", "processed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.campaignsCreated.WithLabelValues("ADOPT_LANGUAGE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("SUCCEEDED", "GBP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("welcome", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("welcome", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("invoice.payment_succeeded", "processed")))
}

func TestSystemMetricsDependencyFlip(t *testing.T) {
	registry := NewRegistry()
	m := NewSystemMetrics(registry, logger.NewNop()).(*systemMetrics)

	m.SetDependencyUp("redis", true)
	m.SetDependencyUp("redis", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dependency.WithLabelValues("redis", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.dependency))

	m.SchedulerTick("expiry", time.Unix(1700000000, 0))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastTick.WithLabelValues("expiry")))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
