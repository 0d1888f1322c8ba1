package models

import (
	"time"

	"gorm.io/gorm"
)

// Signal types.
const (
	SignalTypeCross = "MA_VWAP_CROSS"
)

// Crossover directions, shared with the detector.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Signal is the audit record for a single observed crossover. One row is
// written for every cross, whether or not it produced a trade, so that
// "no crossover" and "crossover suppressed" stay distinguishable downstream.
type Signal struct {
	gorm.Model
	Timestamp     time.Time `gorm:"index"`
	Type          string    `gorm:"type:varchar(16)"`
	Price         float64
	MovingAverage float64
	SessionVWAP   float64 `gorm:"column:session_vwap"`
	Direction     string  `gorm:"type:varchar(4)"`
	ActionTaken   bool
	PositionID    *string `gorm:"type:varchar(36)"`
	// Reason records why a cross produced no action (session state, an
	// existing position, a chain failure). Empty when ActionTaken is true.
	Reason string
}
