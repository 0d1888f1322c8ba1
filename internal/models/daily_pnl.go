package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPnL aggregates one trading day's results. A single row per date,
// updated incrementally as positions close.
type DailyPnL struct {
	ID            uint   `gorm:"primaryKey"`
	Date          string `gorm:"type:varchar(10);uniqueIndex"`
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(20,8)"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(20,8)"`
	// CreditsReceived accumulates entry credit at open-fill time.
	CreditsReceived decimal.Decimal `gorm:"type:numeric(20,8)"`
	// MaxDrawdown is the running trough of the day's cumulative realized
	// P&L. Zero or negative by construction.
	MaxDrawdown decimal.Decimal `gorm:"type:numeric(20,8)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the default pluralization ("daily_pn_ls").
func (DailyPnL) TableName() string {
	return "daily_pnl"
}

// DateKey formats a timestamp as a DailyPnL date key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
