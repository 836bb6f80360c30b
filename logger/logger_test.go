package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithMergesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := NewZap(zap.New(core))

	l := With(With(base, map[string]any{"attempt_id": "a1"}), map[string]any{"network": "devnet"})
	l.Info("phase_changed", map[string]any{"phase": "building", "network": "mainnet-beta"})

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "a1", ctx["attempt_id"])
	assert.Equal(t, "mainnet-beta", ctx["network"])
	assert.Equal(t, "building", ctx["phase"])
}

func TestZapLoggerErrorField(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewZap(zap.New(core))

	l.Debug("hidden", nil)
	l.Warn("broadcast_failed", map[string]any{"error": errors.New("blockhash not found")})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "blockhash not found", logs.All()[0].ContextMap()["error"])
}

func TestWithNilLogger(t *testing.T) {
	l := With(nil, map[string]any{"k": "v"})
	assert.NotPanics(t, func() { l.Error("x", nil) })
}
