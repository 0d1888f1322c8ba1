package trader

import (
	"vwap-options-bot/internal/marketdata"
)

// Detector turns the ordered tick stream into discrete directional
// crossover events by comparing sign(movingAverage - sessionVWAP) across
// adjacent ticks. Exact equality is treated as undetermined and the last
// non-zero sign carries forward, so floating-point noise exactly at a
// crossing point cannot flip the sign back and forth. A new cross whose
// direction matches the last emitted one is suppressed.
type Detector struct {
	lastSign    int // -1, 0 (not yet established), +1
	lastEmitted marketdata.Direction
}

// NewDetector creates a detector with no established sign.
func NewDetector() *Detector {
	return &Detector{}
}

// Observe consumes one tick and returns a Cross when a genuine direction
// change occurred, nil otherwise. Ticks missing either indicator are
// excluded from the comparison sequence entirely.
func (d *Detector) Observe(tick marketdata.PriceTick) *marketdata.Cross {
	if !tick.IndicatorsReady() {
		return nil
	}

	sign := 0
	switch diff := tick.MovingAverage - tick.SessionVWAP; {
	case diff > 0:
		sign = 1
	case diff < 0:
		sign = -1
	default:
		sign = d.lastSign // undetermined, carry forward
	}

	if sign == 0 {
		return nil // still no established sign
	}

	prev := d.lastSign
	d.lastSign = sign

	if prev == 0 || sign == prev {
		return nil // first established sign, or no change
	}

	dir := marketdata.DirectionUp
	if sign < 0 {
		dir = marketdata.DirectionDown
	}
	if dir == d.lastEmitted {
		return nil // repeat of the last emitted direction
	}
	d.lastEmitted = dir

	return &marketdata.Cross{
		Timestamp:     tick.Timestamp,
		Price:         tick.Price,
		MovingAverage: tick.MovingAverage,
		SessionVWAP:   tick.SessionVWAP,
		Direction:     dir,
	}
}

// Reset clears all cross-cycle state at the start of a trading session.
func (d *Detector) Reset() {
	d.lastSign = 0
	d.lastEmitted = ""
}
