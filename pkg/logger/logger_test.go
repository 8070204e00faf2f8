package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		" warn ":  WARN,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).Named("webhook")

	log.Infow("Received verified Stripe event", "eventID", "evt_1")
	log.Warn("campaign %s not found", "camp_1")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "webhook", entries[0].LoggerName)
		assert.Equal(t, "evt_1", entries[0].ContextMap()["eventID"])
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, "campaign camp_1 not found", entries[1].Message)
	}
}
