package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithAddsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("service", "Store").Info("loaded", "records", 3)
	l.Warn("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "loaded", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Store", fields["service"])
	assert.EqualValues(t, 3, fields["records"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "production"} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}
}
