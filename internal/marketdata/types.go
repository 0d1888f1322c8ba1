// Package marketdata supplies the engine with an ordered, deduplicated
// stream of price samples, each enriched with a rolling moving average and
// a session-reset volume-weighted average price.
package marketdata

import "time"

// Direction of a crossover.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// PriceTick is a single enriched price sample. Ticks are immutable, unique
// per timestamp and ordered ascending. During moving-average warm-up HasMA
// is false and the tick is excluded from crossover evaluation.
type PriceTick struct {
	Timestamp     time.Time
	Price         float64
	Volume        float64
	MovingAverage float64
	SessionVWAP   float64
	HasMA         bool
	HasVWAP       bool
}

// IndicatorsReady reports whether both indicators are present.
func (t PriceTick) IndicatorsReady() bool {
	return t.HasMA && t.HasVWAP
}

// Cross is a discrete directional crossover event derived from the tick
// stream. Emitted only on a genuine direction change.
type Cross struct {
	Timestamp     time.Time
	Price         float64
	MovingAverage float64
	SessionVWAP   float64
	Direction     Direction
}
