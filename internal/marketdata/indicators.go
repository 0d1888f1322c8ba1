package marketdata

import "sync"

// SMA is a rolling simple moving average over the most recent N samples.
type SMA struct {
	window int
	values []float64
	sum    float64
	next   int
	count  int
}

// NewSMA creates a rolling mean over the given window size.
func NewSMA(window int) *SMA {
	if window < 1 {
		window = 1
	}
	return &SMA{
		window: window,
		values: make([]float64, window),
	}
}

// Add pushes a new sample into the window.
func (s *SMA) Add(v float64) {
	if s.count == s.window {
		s.sum -= s.values[s.next]
	} else {
		s.count++
	}
	s.values[s.next] = v
	s.sum += v
	s.next = (s.next + 1) % s.window
}

// Ready reports whether the window has filled at least once.
func (s *SMA) Ready() bool {
	return s.count == s.window
}

// Value returns the current mean. Only meaningful once Ready.
func (s *SMA) Value() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Reset empties the window.
func (s *SMA) Reset() {
	s.sum = 0
	s.next = 0
	s.count = 0
}

// SessionVWAP accumulates a volume-weighted average price from session
// start. Reset once per trading day.
type SessionVWAP struct {
	cumPV  float64
	cumVol float64
}

// Add accumulates one price/volume sample.
func (v *SessionVWAP) Add(price, volume float64) {
	if volume <= 0 {
		return
	}
	v.cumPV += price * volume
	v.cumVol += volume
}

// Value returns the current VWAP; ok is false until the first sample with
// positive volume arrives.
func (v *SessionVWAP) Value() (float64, bool) {
	if v.cumVol == 0 {
		return 0, false
	}
	return v.cumPV / v.cumVol, true
}

// Reset clears the session accumulators.
func (v *SessionVWAP) Reset() {
	v.cumPV = 0
	v.cumVol = 0
}

// Enricher turns raw price/volume samples into PriceTicks carrying both
// indicators. Samples that do not advance the timestamp are dropped so the
// resulting stream stays deduplicated and monotonic. The feed goroutine
// enriches while the engine resets at the session boundary, so access is
// mutex-guarded.
type Enricher struct {
	mu   sync.Mutex
	sma  *SMA
	vwap *SessionVWAP
	last struct {
		set bool
		ts  int64 // unix nanos of the last accepted sample
	}
}

// NewEnricher creates an enricher with the given moving-average window.
func NewEnricher(maWindow int) *Enricher {
	return &Enricher{
		sma:  NewSMA(maWindow),
		vwap: &SessionVWAP{},
	}
}

// Enrich consumes one raw sample. ok is false when the sample is stale
// (timestamp not strictly after the previous accepted one).
func (e *Enricher) Enrich(tick PriceTick) (PriceTick, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ns := tick.Timestamp.UnixNano()
	if e.last.set && ns <= e.last.ts {
		return PriceTick{}, false
	}
	e.last.set = true
	e.last.ts = ns

	e.sma.Add(tick.Price)
	e.vwap.Add(tick.Price, tick.Volume)

	if e.sma.Ready() {
		tick.MovingAverage = e.sma.Value()
		tick.HasMA = true
	}
	if v, ok := e.vwap.Value(); ok {
		tick.SessionVWAP = v
		tick.HasVWAP = true
	}
	return tick, true
}

// ResetSession clears session-scoped state (VWAP and warm-up window) at the
// start of a new trading day, so trades seen before the open never leak
// into the session's indicators.
func (e *Enricher) ResetSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sma.Reset()
	e.vwap.Reset()
	e.last.set = false
}
