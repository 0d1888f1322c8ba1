package trader

import (
	"fmt"
	"time"

	"vwap-options-bot/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EntrySpec describes the position to create from a confirmed opening fill.
type EntrySpec struct {
	Symbol         string
	OptionSymbol   string
	OptionType     string
	Strike         decimal.Decimal
	Expiration     time.Time
	ContractCount  int
	DegradedExpiry bool
	SignalTime     time.Time
}

// Fill is a confirmed execution reported by the order gateway.
type Fill struct {
	BrokerOrderID string
	Price         decimal.Decimal
	Time          time.Time
	Simulated     bool
}

// Ledger owns the single allowed open position and the full trade and P&L
// history. All mutation happens synchronously within a cycle, so no
// locking is needed beyond the engine's strict cycle serialization.
type Ledger struct {
	db         *gorm.DB
	logger     *zap.Logger
	multiplier decimal.Decimal
	open       *models.Position // cached; authoritative copy lives in the DB
}

// NewLedger creates a ledger. contractMultiplier is the per-contract
// share multiplier (100 for standard equity options).
func NewLedger(db *gorm.DB, contractMultiplier int, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:         db,
		logger:     logger,
		multiplier: decimal.NewFromInt(int64(contractMultiplier)),
	}
}

// Load restores the cached open position after a restart. At most one row
// can be OPEN; anything else is a corrupt store and surfaces as an error.
func (l *Ledger) Load() error {
	var open []models.Position
	if err := l.db.Where("status = ?", models.PositionStatusOpen).Find(&open).Error; err != nil {
		return fmt.Errorf("failed to load open position: %w", err)
	}
	switch len(open) {
	case 0:
		l.open = nil
	case 1:
		l.open = &open[0]
		l.logger.Info("Recovered open position from database",
			zap.String("position_id", l.open.PositionID),
			zap.String("option_symbol", l.open.OptionSymbol))
	default:
		return fmt.Errorf("found %d OPEN positions, expected at most one: %w", len(open), ErrPositionAlreadyOpen)
	}
	return nil
}

// Open returns the current open position, or nil.
func (l *Ledger) Open() *models.Position {
	return l.open
}

// notional returns price x contracts x multiplier.
func (l *Ledger) notional(price decimal.Decimal, contracts int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(contracts))).Mul(l.multiplier)
}

// OpenPosition creates the position and its SELL_TO_OPEN trade from a
// confirmed fill. Fails with ErrPositionAlreadyOpen if a position with
// status OPEN already exists; this is the authoritative enforcement point
// for the single-position invariant.
func (l *Ledger) OpenPosition(spec EntrySpec, fill Fill) (*models.Position, error) {
	var count int64
	if err := l.db.Model(&models.Position{}).
		Where("status = ?", models.PositionStatusOpen).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check for open positions: %w", err)
	}
	if count > 0 || l.open != nil {
		return nil, fmt.Errorf("cannot open %s: %w", spec.OptionSymbol, ErrPositionAlreadyOpen)
	}

	credit := l.notional(fill.Price, spec.ContractCount)
	signalTime := spec.SignalTime

	position := models.Position{
		PositionID:     uuid.NewString(),
		Symbol:         spec.Symbol,
		OptionSymbol:   spec.OptionSymbol,
		OptionType:     spec.OptionType,
		Strike:         spec.Strike,
		Expiration:     spec.Expiration,
		ContractCount:  spec.ContractCount,
		EntryPrice:     fill.Price,
		EntryCredit:    credit,
		CurrentPrice:   fill.Price,
		UnrealizedPnL:  decimal.Zero,
		Status:         models.PositionStatusOpen,
		DegradedExpiry: spec.DegradedExpiry,
		IsSimulation:   fill.Simulated,
		OpenedAt:       fill.Time,
	}
	trade := models.Trade{
		TradeID:         uuid.NewString(),
		PositionID:      position.PositionID,
		Action:          models.TradeActionSellToOpen,
		OptionSymbol:    spec.OptionSymbol,
		ContractCount:   spec.ContractCount,
		Price:           fill.Price,
		CreditDebit:     credit,
		TradeTimestamp:  fill.Time,
		SignalTimestamp: &signalTime,
		BrokerOrderID:   fill.BrokerOrderID,
		IsSimulation:    fill.Simulated,
	}

	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&position).Error; err != nil {
			return err
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}
		return l.addCredits(tx, fill.Time, credit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record opening fill: %w", err)
	}

	l.open = &position
	l.logger.Info("Opened position",
		zap.String("position_id", position.PositionID),
		zap.String("option_symbol", position.OptionSymbol),
		zap.String("entry_credit", credit.String()))
	return l.open, nil
}

// MarkToMarket recomputes the open position's unrealized P&L from the
// current option price. No-op when nothing is open; calling it twice with
// the same input yields the same result.
func (l *Ledger) MarkToMarket(currentOptionPrice decimal.Decimal) {
	if l.open == nil {
		return
	}

	unrealized := l.open.EntryCredit.Sub(l.notional(currentOptionPrice, l.open.ContractCount))
	if l.open.CurrentPrice.Equal(currentOptionPrice) && l.open.UnrealizedPnL.Equal(unrealized) {
		return // unchanged mark
	}

	l.open.CurrentPrice = currentOptionPrice
	l.open.UnrealizedPnL = unrealized

	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Position{}).
			Where("position_id = ?", l.open.PositionID).
			Updates(map[string]interface{}{
				"current_price":  currentOptionPrice,
				"unrealized_pnl": unrealized,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.DailyPnL{}).
			Where("date = ?", models.DateKey(l.open.OpenedAt)).
			Update("unrealized_pnl", unrealized).Error
	})
	if err != nil {
		// Never fails the cycle; the next mark overwrites anyway.
		l.logger.Warn("Failed to persist mark-to-market", zap.Error(err))
	}
}

// ClosePosition transitions the open position to CLOSED on a confirmed
// closing fill, records the BUY_TO_CLOSE trade and updates the daily P&L.
// Fails with ErrNoOpenPosition when nothing is open.
func (l *Ledger) ClosePosition(fill Fill) (*models.Position, error) {
	return l.settle(fill, models.PositionStatusClosed, false)
}

// ForceExpire closes the books on a position that could not be closed by
// session end: transitions it to EXPIRED and records an estimated trade at
// the last known mark so the day's books do not block the next session.
func (l *Ledger) ForceExpire(now time.Time) (*models.Position, error) {
	if l.open == nil {
		return nil, ErrNoOpenPosition
	}
	fill := Fill{
		Price:     l.open.CurrentPrice,
		Time:      now,
		Simulated: l.open.IsSimulation,
	}
	return l.settle(fill, models.PositionStatusExpired, true)
}

func (l *Ledger) settle(fill Fill, status string, estimated bool) (*models.Position, error) {
	if l.open == nil {
		return nil, fmt.Errorf("cannot close: %w", ErrNoOpenPosition)
	}

	pos := l.open
	exitDebit := l.notional(fill.Price, pos.ContractCount)
	realized := pos.EntryCredit.Sub(exitDebit)
	closedAt := fill.Time

	trade := models.Trade{
		TradeID:        uuid.NewString(),
		PositionID:     pos.PositionID,
		Action:         models.TradeActionBuyToClose,
		OptionSymbol:   pos.OptionSymbol,
		ContractCount:  pos.ContractCount,
		Price:          fill.Price,
		CreditDebit:    exitDebit.Neg(),
		TradeTimestamp: fill.Time,
		BrokerOrderID:  fill.BrokerOrderID,
		Estimated:      estimated,
		IsSimulation:   fill.Simulated,
	}

	err := l.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Position{}).
			Where("position_id = ? AND status = ?", pos.PositionID, models.PositionStatusOpen).
			Updates(map[string]interface{}{
				"status":         status,
				"current_price":  fill.Price,
				"unrealized_pnl": decimal.Zero,
				"realized_pnl":   realized,
				"closed_at":      closedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoOpenPosition
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}
		return l.settleDaily(tx, fill.Time, realized)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record closing fill: %w", err)
	}

	pos.Status = status
	pos.CurrentPrice = fill.Price
	pos.UnrealizedPnL = decimal.Zero
	pos.RealizedPnL = realized
	pos.ClosedAt = &closedAt
	l.open = nil

	l.logger.Info("Settled position",
		zap.String("position_id", pos.PositionID),
		zap.String("status", status),
		zap.String("realized_pnl", realized.String()),
		zap.Bool("estimated", estimated))
	return pos, nil
}

// dailyRow loads or creates the DailyPnL row for a date, inside tx.
func (l *Ledger) dailyRow(tx *gorm.DB, t time.Time) (*models.DailyPnL, error) {
	row := models.DailyPnL{Date: models.DateKey(t)}
	if err := tx.Where(models.DailyPnL{Date: row.Date}).FirstOrCreate(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// addCredits accumulates entry credit at open-fill time.
func (l *Ledger) addCredits(tx *gorm.DB, t time.Time, credit decimal.Decimal) error {
	row, err := l.dailyRow(tx, t)
	if err != nil {
		return err
	}
	row.CreditsReceived = row.CreditsReceived.Add(credit)
	return tx.Save(row).Error
}

// settleDaily books one settled position into the day's aggregates:
// trade counters, realized P&L and the running cumulative-P&L trough.
func (l *Ledger) settleDaily(tx *gorm.DB, t time.Time, realized decimal.Decimal) error {
	row, err := l.dailyRow(tx, t)
	if err != nil {
		return err
	}

	row.TotalTrades++
	if realized.IsPositive() {
		row.WinningTrades++
	} else if realized.IsNegative() {
		row.LosingTrades++
	}
	row.RealizedPnL = row.RealizedPnL.Add(realized)
	row.UnrealizedPnL = decimal.Zero
	if row.RealizedPnL.LessThan(row.MaxDrawdown) {
		row.MaxDrawdown = row.RealizedPnL
	}
	return tx.Save(row).Error
}
