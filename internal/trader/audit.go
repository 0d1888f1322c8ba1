package trader

import (
	"vwap-options-bot/internal/marketdata"
	"vwap-options-bot/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Suppression reasons written to the audit log.
const (
	ReasonSessionState     = "session_state"
	ReasonPositionOpen     = "position_already_open"
	ReasonChainUnavailable = "chain_unavailable"
	ReasonNoLiquidStrike   = "no_liquid_strike"
	ReasonOrderFailed      = "order_failed"
)

// AuditLog is the append-only sink for crossover signals. Every cross gets
// a row whether it produced a trade or not, so downstream analysis can
// tell "no crossover" apart from "crossover suppressed".
type AuditLog struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuditLog creates a signal audit log.
func NewAuditLog(db *gorm.DB, logger *zap.Logger) *AuditLog {
	return &AuditLog{db: db, logger: logger}
}

// Record writes one signal row. positionID is empty unless the cross
// produced a trade. Write failures are logged, never fatal: losing one
// audit row must not stop the cycle loop.
func (a *AuditLog) Record(cross *marketdata.Cross, actionTaken bool, positionID, reason string) {
	signal := models.Signal{
		Timestamp:     cross.Timestamp,
		Type:          models.SignalTypeCross,
		Price:         cross.Price,
		MovingAverage: cross.MovingAverage,
		SessionVWAP:   cross.SessionVWAP,
		Direction:     string(cross.Direction),
		ActionTaken:   actionTaken,
		Reason:        reason,
	}
	if positionID != "" {
		signal.PositionID = &positionID
	}

	if err := a.db.Create(&signal).Error; err != nil {
		a.logger.Error("Failed to record signal", zap.Error(err))
		return
	}

	a.logger.Info("Recorded crossover signal",
		zap.String("direction", string(cross.Direction)),
		zap.Bool("action_taken", actionTaken),
		zap.String("reason", reason))
}
