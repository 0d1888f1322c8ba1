package trader

import (
	"fmt"
	"sort"
	"time"

	"vwap-options-bot/internal/broker"
	"vwap-options-bot/internal/marketdata"
	"vwap-options-bot/internal/models"

	"go.uber.org/zap"
)

// Selection is the contract picked for a new entry. Degraded is set when
// no same-day expiration was available and a later one was used instead.
type Selection struct {
	Contract broker.OptionContract
	Degraded bool
}

// StrikeSelector picks the contract to sell for a given crossover
// direction: the nearest PUT at or below the current price on a down
// cross, the nearest CALL at or above it on an up cross. Strikes without
// a quoted bid are not candidates.
type StrikeSelector struct {
	logger *zap.Logger
}

// NewStrikeSelector creates a selector.
func NewStrikeSelector(logger *zap.Logger) *StrikeSelector {
	return &StrikeSelector{logger: logger}
}

// Select picks a contract from the chain snapshot. Returns
// ErrNoLiquidStrike when no candidate qualifies.
func (s *StrikeSelector) Select(currentPrice float64, dir marketdata.Direction, chain []broker.OptionContract, now time.Time) (*Selection, error) {
	wantType := models.OptionTypePut
	if dir == marketdata.DirectionUp {
		wantType = models.OptionTypeCall
	}

	var best *broker.OptionContract
	today := now.Format("2006-01-02")

	for _, expiry := range expirationsAscending(chain) {
		if expiry.Format("2006-01-02") < today {
			continue // stale chain row
		}
		for i := range chain {
			c := &chain[i]
			if c.OptionType != wantType || !c.Expiration.Equal(expiry) {
				continue
			}
			if c.Bid <= 0 {
				continue // unquoted, not tradable
			}
			if wantType == models.OptionTypePut {
				if c.Strike > currentPrice {
					continue
				}
				if best == nil || c.Strike > best.Strike {
					best = c
				}
			} else {
				if c.Strike < currentPrice {
					continue
				}
				if best == nil || c.Strike < best.Strike {
					best = c
				}
			}
		}
		if best != nil {
			degraded := best.Expiration.Format("2006-01-02") != today
			if degraded {
				s.logger.Warn("No same-day expiration available, falling back to nearest later expiry",
					zap.String("option_type", wantType),
					zap.Time("expiration", best.Expiration))
			}
			return &Selection{Contract: *best, Degraded: degraded}, nil
		}
	}

	return nil, fmt.Errorf("%s at price %.2f: %w", wantType, currentPrice, ErrNoLiquidStrike)
}

// expirationsAscending returns the distinct expirations in the chain,
// soonest first.
func expirationsAscending(chain []broker.OptionContract) []time.Time {
	seen := make(map[int64]bool)
	var out []time.Time
	for _, c := range chain {
		key := c.Expiration.Unix()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c.Expiration)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
