package services

import (
	"context"
	"errors"
	"testing"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutSettingsDefaults(t *testing.T) {
	env := newTestEnv(t, memory.Fixtures{})
	svc := NewCheckoutSettingsService(env.repos.CheckoutSettings, env.clock, env.log)

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCheckoutSettings(), *settings)
}

func TestCheckoutSettingsUpsert(t *testing.T) {
	env := newTestEnv(t, memory.Fixtures{})
	svc := NewCheckoutSettingsService(env.repos.CheckoutSettings, env.clock, env.log)
	ctx := context.Background()

	in := domain.DefaultCheckoutSettings()
	in.ID = "ignored"
	in.Currencies = []string{"eur", "gbp"}
	in.DefaultCurrency = "eur"
	in.PresetAmounts = []int64{500, 2000}
	in.HeroTitle = "Every language, every nation"

	saved, err := svc.Upsert(ctx, in, "admin@loveworld.eu")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutSettingsKey, saved.ID)
	assert.Equal(t, []string{"EUR", "GBP"}, saved.Currencies)
	assert.Equal(t, "EUR", saved.DefaultCurrency)
	assert.Equal(t, "admin@loveworld.eu", saved.UpdatedBy)
	assert.True(t, saved.UpdatedAt.Equal(testNow))

	loaded, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Every language, every nation", loaded.HeroTitle)
	assert.Equal(t, []int64{500, 2000}, loaded.PresetAmounts)
}

func TestCheckoutSettingsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CheckoutSettings)
		field  string
	}{
		{"minimum below floor", func(s *domain.CheckoutSettings) { s.MinimumAmount = 50 }, "minimumAmount"},
		{"maximum not above minimum", func(s *domain.CheckoutSettings) { s.MaximumAmount = s.MinimumAmount }, "maximumAmount"},
		{"maximum above ceiling", func(s *domain.CheckoutSettings) { s.MaximumAmount = 20000000 }, "maximumAmount"},
		{"preset outside range", func(s *domain.CheckoutSettings) { s.PresetAmounts = []int64{500, 2000000} }, "presetAmounts[1]"},
		{"too many presets", func(s *domain.CheckoutSettings) { s.PresetAmounts = make([]int64, 9) }, "presetAmounts"},
		{"default not offered", func(s *domain.CheckoutSettings) { s.DefaultCurrency = "USD"; s.Currencies = []string{"GBP"} }, "defaultCurrency"},
		{"no currencies", func(s *domain.CheckoutSettings) { s.Currencies = nil }, "currencies"},
		{"duplicate currency", func(s *domain.CheckoutSettings) { s.Currencies = []string{"GBP", "GBP"} }, "currencies[1]"},
		{"hero title too long", func(s *domain.CheckoutSettings) { s.HeroTitle = string(make([]byte, 121)) }, "heroTitle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, memory.Fixtures{})
			svc := NewCheckoutSettingsService(env.repos.CheckoutSettings, env.clock, env.log)

			in := domain.DefaultCheckoutSettings()
			tt.mutate(&in)

			_, err := svc.Upsert(context.Background(), in, "admin")
			require.ErrorIs(t, err, domain.ErrInvalidInput)

			var verrs domain.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.NotEmpty(t, verrs.GetByField(tt.field), "expected %s in %v", tt.field, verrs)

			_, err = env.repos.CheckoutSettings.Get(context.Background())
			assert.Error(t, err, "invalid settings must not be stored")
		})
	}
}
