package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade actions.
const (
	TradeActionSellToOpen = "SELL_TO_OPEN"
	TradeActionBuyToClose = "BUY_TO_CLOSE"
)

// Trade is an append-only execution record. Every trade references an
// existing position through PositionID.
type Trade struct {
	gorm.Model
	TradeID       string `gorm:"type:varchar(36);uniqueIndex"`
	PositionID    string `gorm:"type:varchar(36);index"`
	Action        string `gorm:"type:varchar(16)"`
	OptionSymbol  string
	ContractCount int
	Price         decimal.Decimal `gorm:"type:numeric(20,8)"`
	// CreditDebit is positive for premium received (opening a short) and
	// negative for premium paid (closing it).
	CreditDebit     decimal.Decimal `gorm:"type:numeric(20,8)"`
	TradeTimestamp  time.Time       `gorm:"index"`
	SignalTimestamp *time.Time
	BrokerOrderID   string
	// Estimated marks a synthetic closing trade booked at the last known
	// mark when the session ends without a confirmed fill.
	Estimated    bool
	IsSimulation bool
}
