package req

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contact struct {
	Email   string `json:"email" validate:"required,email"`
	Country string `json:"country" validate:"required,len=2"`
}

type donation struct {
	Amount  int64   `json:"amount" validate:"gte=100"`
	Contact contact `json:"partnerInfo"`
}

func TestDetailsUsesJSONPaths(t *testing.T) {
	err := IsValid(donation{Amount: 50, Contact: contact{Email: "nope", Country: "GBR"}})
	require.Error(t, err)

	details := Details(err)
	byField := map[string]string{}
	for _, d := range details {
		byField[d.Field] = d.Message
	}
	assert.Equal(t, "must be at least 100", byField["amount"])
	assert.Equal(t, "must be a valid email address", byField["partnerInfo.email"])
	assert.Equal(t, "must be exactly 2 characters", byField["partnerInfo.country"])
}

func TestDecode(t *testing.T) {
	body, err := Decode[donation](io.NopCloser(strings.NewReader(`{"amount":500,"partnerInfo":{"email":"a@b.org"}}`)))
	require.NoError(t, err)
	assert.Equal(t, int64(500), body.Amount)
	assert.Equal(t, "a@b.org", body.Contact.Email)

	_, err = Decode[donation](io.NopCloser(strings.NewReader(`{"amount":`)))
	assert.Error(t, err)
}
