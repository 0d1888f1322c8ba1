package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Option types.
const (
	OptionTypeCall = "CALL"
	OptionTypePut  = "PUT"
)

// Position lifecycle statuses.
const (
	PositionStatusOpen    = "OPEN"
	PositionStatusClosed  = "CLOSED"
	PositionStatusExpired = "EXPIRED"
)

// Position represents a single short option position.
// At most one position may have status OPEN at any time; the ledger
// enforces this against the database before creating a new row.
type Position struct {
	gorm.Model
	PositionID    string `gorm:"type:varchar(36);uniqueIndex"`
	Symbol        string `gorm:"index"`
	OptionSymbol  string
	OptionType    string          `gorm:"type:varchar(4)"`
	Strike        decimal.Decimal `gorm:"type:numeric(20,8)"`
	Expiration    time.Time
	ContractCount int
	EntryPrice    decimal.Decimal `gorm:"type:numeric(20,8)"`
	EntryCredit   decimal.Decimal `gorm:"type:numeric(20,8)"`
	CurrentPrice  decimal.Decimal `gorm:"type:numeric(20,8)"`
	// Explicit column names because default GORM naming turns "PnL" into "pn_l".
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(20,8)"`
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(20,8)"`
	Status        string          `gorm:"type:varchar(8);index"`
	// DegradedExpiry marks a position opened against a later-dated contract
	// because no same-day expiration was available.
	DegradedExpiry bool
	IsSimulation   bool
	OpenedAt       time.Time `gorm:"index"`
	ClosedAt       *time.Time
}

// IsOpen reports whether the position is still live.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}
