package broker

import "errors"

// Order failures the engine is expected to recover from. All three leave
// the cycle loop running; the engine retries on its next cycle.
var (
	// ErrRejectedByBroker means the broker refused the order outright.
	ErrRejectedByBroker = errors.New("order rejected by broker")
	// ErrOrderTimeout means no response arrived within the order timeout.
	// The order may or may not have executed; callers must reconcile
	// against broker-reported positions before assuming it did not.
	ErrOrderTimeout = errors.New("order timed out")
	// ErrInsufficientLiquidity means the order could not be matched.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)
