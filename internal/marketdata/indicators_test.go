package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA_WarmUpAndRolling(t *testing.T) {
	// Arrange
	sma := NewSMA(3)

	// Act & Assert: not ready until the window fills
	sma.Add(10)
	assert.False(t, sma.Ready())
	sma.Add(20)
	assert.False(t, sma.Ready())
	sma.Add(30)
	require.True(t, sma.Ready())
	assert.InDelta(t, 20.0, sma.Value(), 1e-9)

	// the window rolls: 10 drops out, (20+30+40)/3
	sma.Add(40)
	assert.InDelta(t, 30.0, sma.Value(), 1e-9)
}

func TestSMA_Reset(t *testing.T) {
	// Arrange
	sma := NewSMA(2)
	sma.Add(10)
	sma.Add(20)
	require.True(t, sma.Ready())

	// Act
	sma.Reset()

	// Assert
	assert.False(t, sma.Ready())
	sma.Add(5)
	sma.Add(7)
	assert.InDelta(t, 6.0, sma.Value(), 1e-9)
}

func TestSessionVWAP_WeightsByVolume(t *testing.T) {
	// Arrange
	var vwap SessionVWAP

	// Assert: undefined before any volume
	_, ok := vwap.Value()
	assert.False(t, ok)

	// Act: 100@10 and 110@30 -> (1000+3300)/40 = 107.5
	vwap.Add(100, 10)
	vwap.Add(110, 30)

	// Assert
	v, ok := vwap.Value()
	require.True(t, ok)
	assert.InDelta(t, 107.5, v, 1e-9)
}

func TestSessionVWAP_IgnoresZeroVolume(t *testing.T) {
	// Arrange
	var vwap SessionVWAP
	vwap.Add(100, 10)

	// Act: zero and negative volume do not move the average
	vwap.Add(500, 0)
	vwap.Add(500, -5)

	// Assert
	v, ok := vwap.Value()
	require.True(t, ok)
	assert.InDelta(t, 100.0, v, 1e-9)
}

func TestSessionVWAP_Reset(t *testing.T) {
	// Arrange
	var vwap SessionVWAP
	vwap.Add(100, 10)

	// Act
	vwap.Reset()

	// Assert
	_, ok := vwap.Value()
	assert.False(t, ok)
}

func TestEnricher_AttachesIndicatorsAfterWarmUp(t *testing.T) {
	// Arrange
	enricher := NewEnricher(2)
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	// Act: first sample has VWAP but no MA yet
	first, ok := enricher.Enrich(PriceTick{Timestamp: base, Price: 100, Volume: 10})
	require.True(t, ok)
	assert.False(t, first.HasMA)
	require.True(t, first.HasVWAP)
	assert.InDelta(t, 100.0, first.SessionVWAP, 1e-9)

	// second sample completes the MA window
	second, ok := enricher.Enrich(PriceTick{Timestamp: base.Add(time.Second), Price: 102, Volume: 10})
	require.True(t, ok)
	require.True(t, second.HasMA)
	assert.InDelta(t, 101.0, second.MovingAverage, 1e-9)
	assert.InDelta(t, 101.0, second.SessionVWAP, 1e-9)
	assert.True(t, second.IndicatorsReady())
}

func TestEnricher_DropsStaleSamples(t *testing.T) {
	// Arrange
	enricher := NewEnricher(1)
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	_, ok := enricher.Enrich(PriceTick{Timestamp: base, Price: 100, Volume: 10})
	require.True(t, ok)

	// Act & Assert: duplicate and out-of-order timestamps are rejected
	_, ok = enricher.Enrich(PriceTick{Timestamp: base, Price: 101, Volume: 10})
	assert.False(t, ok)
	_, ok = enricher.Enrich(PriceTick{Timestamp: base.Add(-time.Second), Price: 101, Volume: 10})
	assert.False(t, ok)

	// rejected samples leave the indicators untouched
	next, ok := enricher.Enrich(PriceTick{Timestamp: base.Add(time.Second), Price: 100, Volume: 10})
	require.True(t, ok)
	assert.InDelta(t, 100.0, next.SessionVWAP, 1e-9)
}

func TestEnricher_ResetSession(t *testing.T) {
	// Arrange
	enricher := NewEnricher(1)
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	_, ok := enricher.Enrich(PriceTick{Timestamp: base, Price: 100, Volume: 10})
	require.True(t, ok)

	// Act
	enricher.ResetSession()

	// Assert: a fresh session accepts an older timestamp and starts a new VWAP
	tick, ok := enricher.Enrich(PriceTick{Timestamp: base.Add(-time.Hour), Price: 50, Volume: 5})
	require.True(t, ok)
	require.True(t, tick.HasVWAP)
	assert.InDelta(t, 50.0, tick.SessionVWAP, 1e-9)
}
