package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Source providers.
const (
	// ProviderStream consumes live trades over a websocket.
	ProviderStream = "stream"
	// ProviderStub emits deterministic synthetic ticks for dry runs and tests.
	ProviderStub = "stub"
)

// Source is a pluggable price series. Run blocks until the context is
// cancelled, publishing enriched ticks on the channel returned by Ticks.
// ResetSession clears session-scoped indicator state; the engine calls it
// at the session boundary before the first active cycle.
type Source interface {
	Run(ctx context.Context) error
	Ticks() <-chan PriceTick
	ResetSession()
}

// publish offers a tick without ever blocking the feed goroutine. When the
// buffer is full the oldest tick is stolen to make room; every receive and
// send here is non-blocking because the engine may drain the channel
// concurrently, and a tick lost to that race was about to be consumed as
// the freshest anyway.
func publish(out chan PriceTick, tick PriceTick) {
	select {
	case out <- tick:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- tick:
	default:
	}
}

// NewSource builds the configured source implementation.
func NewSource(provider, symbol, wsURL string, maWindow int, interval time.Duration, logger *zap.Logger) (Source, error) {
	switch provider {
	case ProviderStream:
		return NewStreamSource(symbol, wsURL, maWindow, logger), nil
	case ProviderStub:
		return NewStubSource(symbol, maWindow, interval, logger), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", provider)
	}
}

// StubSource generates a deterministic synthetic price walk. Useful when
// running the engine offline; tests use it as a drop-in source.
type StubSource struct {
	symbol   string
	interval time.Duration
	enricher *Enricher
	out      chan PriceTick
	logger   *zap.Logger
}

// NewStubSource creates a synthetic source emitting one tick per interval.
func NewStubSource(symbol string, maWindow int, interval time.Duration, logger *zap.Logger) *StubSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &StubSource{
		symbol:   symbol,
		interval: interval,
		enricher: NewEnricher(maWindow),
		out:      make(chan PriceTick, 64),
		logger:   logger,
	}
}

// Ticks returns the output channel.
func (s *StubSource) Ticks() <-chan PriceTick {
	return s.out
}

// ResetSession clears the synthetic stream's indicator state.
func (s *StubSource) ResetSession() {
	s.enricher.ResetSession()
}

// Run emits a slow sine walk around a base price until cancelled.
func (s *StubSource) Run(ctx context.Context) error {
	s.logger.Info("Starting stub market data source",
		zap.String("symbol", s.symbol),
		zap.Duration("interval", s.interval))

	const base = 100.0
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var i int
	for {
		select {
		case <-ctx.Done():
			close(s.out)
			return ctx.Err()
		case now := <-ticker.C:
			i++
			price := base + 2.0*math.Sin(float64(i)/25.0)
			tick, ok := s.enricher.Enrich(PriceTick{
				Timestamp: now,
				Price:     price,
				Volume:    100 + float64(i%7)*10,
			})
			if !ok {
				continue
			}
			publish(s.out, tick)
		}
	}
}
