package trader

import (
	"github.com/shopspring/decimal"

	"vwap-options-bot/internal/models"
)

// RiskAction is the decision produced by one risk evaluation.
type RiskAction int

const (
	// ActionNone: no rule matched, hold the position.
	ActionNone RiskAction = iota
	// ActionClose: buy the position back this cycle.
	ActionClose
)

// Close reasons reported alongside ActionClose.
const (
	CloseReasonForcedWindow = "forced_close_window"
	CloseReasonProfitTarget = "profit_target"
	CloseReasonStopLoss     = "stop_loss"
)

// RiskManager evaluates exit conditions against the open position every
// cycle, independent of whether a fresh cross occurred. Rules run in
// priority order and the first match wins.
type RiskManager struct {
	profitTarget decimal.Decimal // fraction of entry credit
	stopLoss     decimal.Decimal // fraction of entry credit, applied negative
}

// NewRiskManager creates a risk manager with the configured fractions
// (defaults: profit target 0.5, stop loss 2.0).
func NewRiskManager(profitTargetFraction, stopLossFraction float64) *RiskManager {
	return &RiskManager{
		profitTarget: decimal.NewFromFloat(profitTargetFraction),
		stopLoss:     decimal.NewFromFloat(stopLossFraction),
	}
}

// Evaluate applies the exit rules to the open position. Returns
// ActionNone with an empty reason when no rule matches or pos is nil.
//
// Priority: forced close window, then profit target, then stop loss.
func (r *RiskManager) Evaluate(state SessionState, pos *models.Position) (RiskAction, string) {
	if pos == nil || !pos.IsOpen() {
		return ActionNone, ""
	}

	// 1. Forced close window: at or past sessionClose - closeBuffer the
	// position goes regardless of P&L sign.
	if state == StateCloseOnly || state == StateClosed {
		return ActionClose, CloseReasonForcedWindow
	}

	// 2. Profit target: unrealizedPnl >= fraction x entryCredit.
	if pos.UnrealizedPnL.GreaterThanOrEqual(pos.EntryCredit.Mul(r.profitTarget)) {
		return ActionClose, CloseReasonProfitTarget
	}

	// 3. Stop loss: unrealizedPnl <= -fraction x entryCredit.
	if pos.UnrealizedPnL.LessThanOrEqual(pos.EntryCredit.Mul(r.stopLoss).Neg()) {
		return ActionClose, CloseReasonStopLoss
	}

	return ActionNone, ""
}
