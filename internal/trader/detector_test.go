package trader

import (
	"testing"
	"time"

	"vwap-options-bot/internal/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickAt builds an indicator-carrying tick n seconds into the series.
func tickAt(n int, ma, vwap float64) marketdata.PriceTick {
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return marketdata.PriceTick{
		Timestamp:     base.Add(time.Duration(n) * time.Second),
		Price:         vwap, // price itself is irrelevant to the detector
		MovingAverage: ma,
		SessionVWAP:   vwap,
		HasMA:         true,
		HasVWAP:       true,
	}
}

func observeAll(d *Detector, ticks []marketdata.PriceTick) []*marketdata.Cross {
	var crosses []*marketdata.Cross
	for _, tk := range ticks {
		if c := d.Observe(tk); c != nil {
			crosses = append(crosses, c)
		}
	}
	return crosses
}

func TestDetector_NoSignChange_EmitsNothing(t *testing.T) {
	// Arrange: moving average stays above VWAP the whole series
	d := NewDetector()
	ticks := []marketdata.PriceTick{
		tickAt(0, 100.5, 100.0),
		tickAt(1, 100.8, 100.0),
		tickAt(2, 100.2, 100.0),
		tickAt(3, 101.0, 100.0),
	}

	// Act
	crosses := observeAll(d, ticks)

	// Assert
	assert.Empty(t, crosses)
}

func TestDetector_DownCross(t *testing.T) {
	// Arrange: the scenario from the trading playbook — t0 above, t1 below
	d := NewDetector()
	ticks := []marketdata.PriceTick{
		tickAt(0, 100.5, 100.0),
		tickAt(1, 99.8, 100.0),
	}

	// Act
	crosses := observeAll(d, ticks)

	// Assert
	require.Len(t, crosses, 1)
	assert.Equal(t, marketdata.DirectionDown, crosses[0].Direction)
	assert.Equal(t, ticks[1].Timestamp, crosses[0].Timestamp)
	assert.Equal(t, 99.8, crosses[0].MovingAverage)
}

func TestDetector_ExactEqualityCarriesLastSign(t *testing.T) {
	// Arrange: MA touches VWAP exactly, then returns to the same side.
	// The touch must not register as a flip.
	d := NewDetector()
	ticks := []marketdata.PriceTick{
		tickAt(0, 100.5, 100.0),
		tickAt(1, 100.0, 100.0), // undetermined
		tickAt(2, 100.3, 100.0),
	}

	// Act
	crosses := observeAll(d, ticks)

	// Assert
	assert.Empty(t, crosses)
}

func TestDetector_EqualityThenOppositeSide(t *testing.T) {
	// Arrange: touch followed by a genuine move below emits one down cross
	d := NewDetector()
	ticks := []marketdata.PriceTick{
		tickAt(0, 100.5, 100.0),
		tickAt(1, 100.0, 100.0),
		tickAt(2, 99.5, 100.0),
	}

	// Act
	crosses := observeAll(d, ticks)

	// Assert
	require.Len(t, crosses, 1)
	assert.Equal(t, marketdata.DirectionDown, crosses[0].Direction)
}

func TestDetector_SuppressesRepeatedDirection(t *testing.T) {
	// Arrange: down, back up, down again. The second down would repeat the
	// last emitted direction only if the up between them was not emitted;
	// here every reversal is genuine, so all three fire.
	d := NewDetector()
	ticks := []marketdata.PriceTick{
		tickAt(0, 100.5, 100.0),
		tickAt(1, 99.8, 100.0),  // down
		tickAt(2, 100.2, 100.0), // up
		tickAt(3, 99.6, 100.0),  // down
	}

	// Act
	crosses := observeAll(d, ticks)

	// Assert
	require.Len(t, crosses, 3)
	assert.Equal(t, marketdata.DirectionDown, crosses[0].Direction)
	assert.Equal(t, marketdata.DirectionUp, crosses[1].Direction)
	assert.Equal(t, marketdata.DirectionDown, crosses[2].Direction)
}

func TestDetector_ResetSuppressesRepeatAfterRestart(t *testing.T) {
	// Arrange: a down cross, then a reset mid-session must not replay the
	// stored sign, but the emitted-direction memory survives Observe
	// sequences that re-establish the same side.
	d := NewDetector()
	observeAll(d, []marketdata.PriceTick{
		tickAt(0, 100.5, 100.0),
		tickAt(1, 99.8, 100.0),
	})

	// Act: sign re-establishes negative, then crosses down again without
	// an intervening up emission
	d.lastSign = 1 // choppy data re-established a positive sign
	cross := d.Observe(tickAt(2, 99.7, 100.0))

	// Assert: direction matches the last emitted one, so it is suppressed
	assert.Nil(t, cross)
}

func TestDetector_SkipsTicksMissingIndicators(t *testing.T) {
	// Arrange: warm-up ticks carry no moving average; they must be
	// excluded, not treated as zero
	d := NewDetector()
	warmup := marketdata.PriceTick{
		Timestamp:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Price:       100.0,
		SessionVWAP: 100.0,
		HasVWAP:     true,
	}

	// Act
	first := d.Observe(warmup)
	crosses := observeAll(d, []marketdata.PriceTick{
		tickAt(1, 100.5, 100.0),
		tickAt(2, 99.8, 100.0),
	})

	// Assert
	assert.Nil(t, first)
	require.Len(t, crosses, 1)
	assert.Equal(t, marketdata.DirectionDown, crosses[0].Direction)
}

func TestDetector_ResetClearsState(t *testing.T) {
	// Arrange
	d := NewDetector()
	observeAll(d, []marketdata.PriceTick{
		tickAt(0, 100.5, 100.0),
		tickAt(1, 99.8, 100.0), // down emitted
	})

	// Act
	d.Reset()
	crosses := observeAll(d, []marketdata.PriceTick{
		tickAt(100, 100.5, 100.0),
		tickAt(101, 99.8, 100.0),
	})

	// Assert: after reset the same down cross fires again
	require.Len(t, crosses, 1)
	assert.Equal(t, marketdata.DirectionDown, crosses[0].Direction)
}
