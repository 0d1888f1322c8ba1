package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vwap-options-bot/internal/broker"
	"vwap-options-bot/internal/config"
	"vwap-options-bot/internal/marketdata"
	"vwap-options-bot/internal/metrics"
	"vwap-options-bot/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReasonReconcilePending suppresses entries while a timed-out open is
// still unresolved against broker state.
const ReasonReconcilePending = "reconcile_pending"

// maxInvariantStreak is how many consecutive cycles may hit an invariant
// error before the session halts for manual inspection.
const maxInvariantStreak = 2

// pendingOpen tracks an opening order whose submission timed out. Until it
// is reconciled against broker-reported positions, no new entry runs:
// assuming the open never happened could double the position.
type pendingOpen struct {
	clientOrderID string
	spec          EntrySpec
}

// Engine runs the per-cycle evaluation loop: one cycle per sampling
// interval, strictly serialized. All state mutation happens inside a
// cycle, which is what protects the single-open-position invariant.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	gateway  broker.Interface
	source   marketdata.Source
	detector *Detector
	selector *StrikeSelector
	ledger   *Ledger
	risk     *RiskManager
	clock    *SessionClock
	audit    *AuditLog

	pending         *pendingOpen
	invariantStreak int
	invariantHit    bool
	sessionStarted  bool

	now func() time.Time
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, gateway broker.Interface, source marketdata.Source, db *gorm.DB) (*Engine, error) {
	clock, err := NewSessionClock(cfg.Session)
	if err != nil {
		return nil, err
	}

	return &Engine{
		logger:   logger,
		cfg:      cfg,
		gateway:  gateway,
		source:   source,
		detector: NewDetector(),
		selector: NewStrikeSelector(logger),
		ledger:   NewLedger(db, cfg.Trading.ContractMultiplier, logger),
		risk:     NewRiskManager(cfg.Trading.ProfitTargetFraction, cfg.Trading.StopLossFraction),
		clock:    clock,
		audit:    NewAuditLog(db, logger),
		now:      time.Now,
	}, nil
}

// Run drives the cycle loop for one trading session. Returns nil when the
// session closes normally; an error only for fatal conditions (repeated
// invariant violations or a failed startup).
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Initializing trading engine...")
	if err := e.ledger.Load(); err != nil {
		return fmt.Errorf("engine initialization failed: %w", err)
	}
	if e.ledger.Open() != nil {
		metrics.OpenPositions.Set(1)
	}

	go func() {
		if err := e.source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("Market data source stopped", zap.Error(err))
		}
	}()

	interval := time.Duration(e.cfg.Trading.CycleInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting cycle loop",
		zap.String("symbol", e.cfg.Trading.Symbol),
		zap.Duration("interval", interval),
		zap.Bool("dry_run", e.cfg.Trading.DryRun))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return nil
		case <-ticker.C:
			now := e.now()
			state := e.clock.StateAt(now)

			switch state {
			case StateBeforeOpen:
				e.drainTicks() // discard pre-session samples
				continue
			case StateClosed:
				e.endSession(now)
				return nil
			}

			if err := e.Cycle(ctx, now, state); err != nil {
				return err
			}
		}
	}
}

// Cycle runs one full evaluation pass. Exported so tests can drive the
// engine without the ticker.
func (e *Engine) Cycle(ctx context.Context, now time.Time, state SessionState) error {
	metrics.CyclesTotal.Inc()
	e.invariantHit = false

	if !e.sessionStarted {
		// Trades seen before the open must not leak into the session
		// VWAP, the warm-up window or the detector's sign state.
		e.source.ResetSession()
		e.detector.Reset()
		e.sessionStarted = true
		e.logger.Info("Session active", zap.Time("close", e.clock.CloseAt(now)))
	}

	if e.pending != nil {
		e.reconcile(ctx, now)
	}

	if tick := e.drainTicks(); tick != nil {
		if cross := e.detector.Observe(*tick); cross != nil {
			metrics.CrossesTotal.WithLabelValues(string(cross.Direction)).Inc()
			e.handleCross(ctx, now, state, cross)
		}
	}

	e.markOpenPosition(ctx)
	e.evaluateRisk(ctx, now, state)

	if e.invariantHit {
		e.invariantStreak++
	} else {
		e.invariantStreak = 0
	}
	if e.invariantStreak >= maxInvariantStreak {
		return fmt.Errorf("invariant violated on %d consecutive cycles, halting session for manual inspection", e.invariantStreak)
	}
	return nil
}

// drainTicks empties the source channel and returns the freshest tick, or
// nil when none arrived since the last cycle. Data queued while a cycle
// was in flight is consumed here, never mid-cycle.
func (e *Engine) drainTicks() *marketdata.PriceTick {
	var latest *marketdata.PriceTick
	for {
		select {
		case tick, ok := <-e.source.Ticks():
			if !ok {
				return latest
			}
			t := tick
			latest = &t
		default:
			return latest
		}
	}
}

// handleCross decides whether a fresh cross becomes an entry. Every
// outcome is written to the audit log.
func (e *Engine) handleCross(ctx context.Context, now time.Time, state SessionState, cross *marketdata.Cross) {
	open := e.ledger.Open()

	switch {
	case state != StateActive:
		e.audit.Record(cross, false, "", ReasonSessionState)
	case e.pending != nil:
		e.audit.Record(cross, false, "", ReasonReconcilePending)
	case open != nil && sameSide(open, cross):
		e.audit.Record(cross, false, "", ReasonPositionOpen)
	default:
		if open != nil {
			// Opposite-side position: route its close before the new entry.
			if err := e.closePosition(ctx, now, "crossover_reversal"); err != nil {
				e.logger.Warn("Failed to close opposite-side position, entry skipped", zap.Error(err))
				e.audit.Record(cross, false, "", ReasonOrderFailed)
				return
			}
		}
		e.openFromCross(ctx, now, cross)
	}
}

// sameSide reports whether the open position already expresses the
// cross's direction (down -> short PUT, up -> short CALL).
func sameSide(pos *models.Position, cross *marketdata.Cross) bool {
	if cross.Direction == marketdata.DirectionDown {
		return pos.OptionType == models.OptionTypePut
	}
	return pos.OptionType == models.OptionTypeCall
}

// openFromCross selects a contract and opens a new short position.
func (e *Engine) openFromCross(ctx context.Context, now time.Time, cross *marketdata.Cross) {
	chain, err := e.gateway.GetOptionChain(ctx, e.cfg.Trading.Symbol)
	if err != nil {
		e.logger.Warn("Entry skipped", zap.Error(fmt.Errorf("%w: %s", ErrChainUnavailable, err)))
		e.audit.Record(cross, false, "", ReasonChainUnavailable)
		return
	}

	sel, err := e.selector.Select(cross.Price, cross.Direction, chain, now)
	if err != nil {
		e.logger.Warn("Entry skipped", zap.Error(err))
		e.audit.Record(cross, false, "", ReasonNoLiquidStrike)
		return
	}

	spec := EntrySpec{
		Symbol:         e.cfg.Trading.Symbol,
		OptionSymbol:   sel.Contract.OptionSymbol,
		OptionType:     sel.Contract.OptionType,
		Strike:         decimal.NewFromFloat(sel.Contract.Strike),
		Expiration:     sel.Contract.Expiration,
		ContractCount:  e.cfg.Trading.ContractCount,
		DegradedExpiry: sel.Degraded,
		SignalTime:     cross.Timestamp,
	}

	clientOrderID := uuid.NewString()
	fill, err := e.submitOpen(ctx, now, clientOrderID, sel)
	if err != nil {
		if errors.Is(err, broker.ErrOrderTimeout) {
			// The order may have executed; block re-entry until the next
			// cycle reconciles against broker-reported positions.
			e.pending = &pendingOpen{clientOrderID: clientOrderID, spec: spec}
		}
		metrics.OrdersTotal.WithLabelValues(broker.ActionSellToOpen, "failed").Inc()
		e.logger.Warn("Opening order failed", zap.Error(err))
		e.audit.Record(cross, false, "", ReasonOrderFailed)
		return
	}
	metrics.OrdersTotal.WithLabelValues(broker.ActionSellToOpen, "filled").Inc()

	pos, err := e.ledger.OpenPosition(spec, *fill)
	if err != nil {
		e.recordInvariant(err)
		e.audit.Record(cross, false, "", ReasonOrderFailed)
		return
	}
	metrics.OpenPositions.Set(1)
	e.audit.Record(cross, true, pos.PositionID, "")
}

// submitOpen places the SELL_TO_OPEN order, or simulates a fill at the
// quoted bid in dry-run mode.
func (e *Engine) submitOpen(ctx context.Context, now time.Time, clientOrderID string, sel *Selection) (*Fill, error) {
	if e.cfg.Trading.DryRun {
		return &Fill{
			Price:     decimal.NewFromFloat(sel.Contract.Bid),
			Time:      now,
			Simulated: true,
		}, nil
	}

	resp, err := e.gateway.SubmitOrder(ctx, broker.OrderRequest{
		ClientOrderID: clientOrderID,
		OptionSymbol:  sel.Contract.OptionSymbol,
		Action:        broker.ActionSellToOpen,
		ContractCount: e.cfg.Trading.ContractCount,
	})
	if err != nil {
		return nil, err
	}
	return &Fill{
		BrokerOrderID: resp.OrderID,
		Price:         decimal.NewFromFloat(resp.FillPrice),
		Time:          now,
	}, nil
}

// reconcile resolves a timed-out open against the broker's positions. If
// the contract shows up short at the broker the fill is booked; otherwise
// the order is treated as never executed and entries unblock.
func (e *Engine) reconcile(ctx context.Context, now time.Time) {
	positions, err := e.gateway.GetPositions(ctx)
	if err != nil {
		e.logger.Warn("Reconciliation failed, entries stay blocked", zap.Error(err))
		return
	}

	for _, bp := range positions {
		if bp.OptionSymbol != e.pending.spec.OptionSymbol || bp.Quantity >= 0 {
			continue
		}
		e.logger.Warn("Timed-out order actually filled, booking position",
			zap.String("option_symbol", bp.OptionSymbol))
		fill := Fill{
			BrokerOrderID: e.pending.clientOrderID,
			Price:         decimal.NewFromFloat(bp.AvgPrice),
			Time:          now,
		}
		if _, err := e.ledger.OpenPosition(e.pending.spec, fill); err != nil {
			e.recordInvariant(err)
		} else {
			metrics.OpenPositions.Set(1)
		}
		e.pending = nil
		return
	}

	e.logger.Info("Timed-out order did not execute, entries unblocked")
	e.pending = nil
}

// markOpenPosition refreshes the open position's mark from a live option
// quote. Quote failures skip the mark; the last one stands.
func (e *Engine) markOpenPosition(ctx context.Context) {
	pos := e.ledger.Open()
	if pos == nil {
		return
	}

	quote, err := e.gateway.GetQuote(ctx, pos.OptionSymbol)
	if err != nil {
		e.logger.Debug("Mark-to-market skipped, no quote", zap.Error(err))
		return
	}
	if mid := quote.Mid(); mid > 0 {
		e.ledger.MarkToMarket(decimal.NewFromFloat(mid))
	}
}

// evaluateRisk applies the exit rules and routes any close through the
// gateway. A failed close is simply re-attempted on the next cycle; the
// forced-close deadline bounds the retries.
func (e *Engine) evaluateRisk(ctx context.Context, now time.Time, state SessionState) {
	action, reason := e.risk.Evaluate(state, e.ledger.Open())
	if action != ActionClose {
		return
	}
	if err := e.closePosition(ctx, now, reason); err != nil {
		e.logger.Warn("Close failed, will retry next cycle",
			zap.String("reason", reason), zap.Error(err))
	}
}

// closePosition buys back the open position and settles the ledger.
func (e *Engine) closePosition(ctx context.Context, now time.Time, reason string) error {
	pos := e.ledger.Open()
	if pos == nil {
		return nil
	}

	var fill Fill
	if e.cfg.Trading.DryRun {
		fill = Fill{Price: pos.CurrentPrice, Time: now, Simulated: true}
	} else {
		resp, err := e.gateway.SubmitOrder(ctx, broker.OrderRequest{
			ClientOrderID: uuid.NewString(),
			OptionSymbol:  pos.OptionSymbol,
			Action:        broker.ActionBuyToClose,
			ContractCount: pos.ContractCount,
		})
		if err != nil {
			metrics.OrdersTotal.WithLabelValues(broker.ActionBuyToClose, "failed").Inc()
			return err
		}
		fill = Fill{
			BrokerOrderID: resp.OrderID,
			Price:         decimal.NewFromFloat(resp.FillPrice),
			Time:          now,
		}
	}

	closed, err := e.ledger.ClosePosition(fill)
	if err != nil {
		e.recordInvariant(err)
		return err
	}
	metrics.OrdersTotal.WithLabelValues(broker.ActionBuyToClose, "filled").Inc()
	metrics.OpenPositions.Set(0)
	f, _ := closed.RealizedPnL.Float64()
	metrics.RealizedPnL.Add(f)

	e.logger.Info("Closed position",
		zap.String("position_id", closed.PositionID),
		zap.String("reason", reason),
		zap.String("realized_pnl", closed.RealizedPnL.String()))
	return nil
}

// endSession force-expires any position still open at hard session close.
func (e *Engine) endSession(now time.Time) {
	e.logger.Info("Session closed, stopping cycle loop")
	if e.ledger.Open() == nil {
		return
	}

	pos, err := e.ledger.ForceExpire(now)
	if err != nil {
		e.logger.Error("Force-expire failed, books left open", zap.Error(err))
		return
	}
	metrics.OpenPositions.Set(0)
	e.logger.Warn("Force-expired position at last known mark",
		zap.String("position_id", pos.PositionID),
		zap.String("realized_pnl", pos.RealizedPnL.String()))
}

// recordInvariant logs an invariant violation loudly and arms the
// consecutive-cycle fatal check.
func (e *Engine) recordInvariant(err error) {
	if !errors.Is(err, ErrPositionAlreadyOpen) && !errors.Is(err, ErrNoOpenPosition) {
		e.logger.Error("Ledger mutation failed", zap.Error(err))
		return
	}
	e.invariantHit = true
	e.logger.Error("INVARIANT VIOLATION: cycle mutation aborted, state unchanged", zap.Error(err))
}
