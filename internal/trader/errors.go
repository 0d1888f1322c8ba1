package trader

import "errors"

// Chain errors. Both are recorded as a suppressed signal and skip the
// entry for that cycle; neither stops the loop.
var (
	// ErrChainUnavailable means the contract chain snapshot could not be
	// obtained.
	ErrChainUnavailable = errors.New("option chain unavailable")
	// ErrNoLiquidStrike means no candidate strike had a quoted bid.
	ErrNoLiquidStrike = errors.New("no liquid strike in range")
)

// Invariant errors. These indicate a logic defect or race: the triggering
// mutation is aborted and state left unchanged. Repeated occurrences
// across consecutive cycles halt the session.
var (
	// ErrPositionAlreadyOpen is returned when opening while a position is
	// already OPEN. The ledger is the authoritative enforcement point for
	// the single-position invariant.
	ErrPositionAlreadyOpen = errors.New("a position is already open")
	// ErrNoOpenPosition is returned when closing while nothing is OPEN.
	ErrNoOpenPosition = errors.New("no open position")
)
