package stripe

import (
	"testing"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/stripe/stripetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestVerifyEventAcceptsValidSignature(t *testing.T) {
	payload := stripetest.EventPayload("evt_1", EventInvoicePaymentSucceeded, map[string]any{"id": "in_1", "object": "invoice"})
	header := stripetest.SignatureHeader(testSecret, payload, time.Now())

	event, err := VerifyEvent(payload, header, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventInvoicePaymentSucceeded, string(event.Type))
	assert.NotEmpty(t, event.Data.Raw)
}

func TestVerifyEventRejectsBadSignatures(t *testing.T) {
	payload := stripetest.EventPayload("evt_1", EventInvoicePaymentSucceeded, map[string]any{"id": "in_1"})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", stripetest.SignatureHeader("whsec_other", payload, time.Now())},
		{"stale timestamp", stripetest.SignatureHeader(testSecret, payload, time.Now().Add(-time.Hour))},
		{"garbage", "t=abc,v1=zzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyEvent(payload, tt.header, testSecret)
			assert.ErrorIs(t, err, domain.ErrInvalidSignature)
		})
	}
}

func TestVerifyEventRejectsTamperedBody(t *testing.T) {
	payload := stripetest.EventPayload("evt_1", EventInvoicePaymentSucceeded, map[string]any{"amount_paid": 100})
	header := stripetest.SignatureHeader(testSecret, payload, time.Now())

	tampered := stripetest.EventPayload("evt_1", EventInvoicePaymentSucceeded, map[string]any{"amount_paid": 1})
	_, err := VerifyEvent(tampered, header, testSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}
