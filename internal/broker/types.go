package broker

import "time"

// Order actions accepted by the gateway.
const (
	ActionSellToOpen = "SELL_TO_OPEN"
	ActionBuyToClose = "BUY_TO_CLOSE"
)

// Terminal and in-flight order statuses reported by the broker.
const (
	OrderStatusFilled   = "FILLED"
	OrderStatusPending  = "PENDING"
	OrderStatusRejected = "REJECTED"
	OrderStatusCanceled = "CANCELED"
)

// Quote is a level-1 snapshot for the underlying or a single contract.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// Mid returns the bid/ask midpoint, falling back to the last trade when
// one side is unquoted.
func (q *Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// OptionContract is a single strike in a chain snapshot.
type OptionContract struct {
	OptionSymbol string    `json:"option_symbol"`
	Underlying   string    `json:"underlying"`
	OptionType   string    `json:"option_type"` // CALL or PUT
	Strike       float64   `json:"strike"`
	Expiration   time.Time `json:"expiration"`
	Bid          float64   `json:"bid"`
	Ask          float64   `json:"ask"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest"`
}

// OrderRequest describes one open or close instruction. ClientOrderID is a
// caller-supplied UUID used to reconcile timed-out submissions.
type OrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	OptionSymbol  string `json:"option_symbol"`
	Action        string `json:"action"`
	ContractCount int    `json:"contract_count"`
}

// OrderResponse reports the outcome of a submitted order.
type OrderResponse struct {
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`
	FillPrice float64 `json:"fill_price"`
	Reason    string  `json:"reason,omitempty"`
}

// BrokerPosition is the broker's view of a held contract, used to
// reconcile state after an order timeout.
type BrokerPosition struct {
	OptionSymbol string `json:"option_symbol"`
	Quantity     int    `json:"quantity"` // negative for short
	// AvgPrice is the average entry premium per contract, the same unit
	// as an order's fill price.
	AvgPrice      float64 `json:"avg_price"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}
