package protocol

import (
	"github.com/shopspring/decimal"
)

// ExecutionReport describes one state change of an order.
// For trade reports LastQty/LastPx carry the fill and CounterOrderID the
// opposite order; IsTaker marks which side initiated the match.
type ExecutionReport struct {
	ExecID         uint64          `json:"exec_id"`
	OrderID        uint64          `json:"order_id"`
	CounterOrderID uint64          `json:"counter_order_id,omitempty"`
	ClientOrderID  string          `json:"client_order_id,omitempty"`
	AccountID      uint64          `json:"account_id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Price          decimal.Decimal `json:"price"`
	OrderQty       decimal.Decimal `json:"order_qty"`
	LeavesQty      decimal.Decimal `json:"leaves_qty"`
	LastQty        decimal.Decimal `json:"last_qty,omitempty"`
	LastPx         decimal.Decimal `json:"last_px,omitempty"`
	IsTaker        bool            `json:"is_taker,omitempty"`
	Status         OrdStatus       `json:"status"`
}

// PriceQty is a [price, qty] pair; it marshals as a two-element JSON array.
type PriceQty [2]decimal.Decimal

// Price returns the price component.
func (pq PriceQty) Price() decimal.Decimal { return pq[0] }

// Qty returns the quantity component.
func (pq PriceQty) Qty() decimal.Decimal { return pq[1] }

// MarketData is a depth snapshot of one book, best price first on each side.
// Depth is max(len(Bids), len(Asks)) for wire compactness.
type MarketData struct {
	Symbol       string     `json:"symbol"`
	Depth        int        `json:"depth"`
	TransactTime int64      `json:"transact_time"`
	Bids         []PriceQty `json:"bids"`
	Asks         []PriceQty `json:"asks"`
}

// ErrorMessage reports a recoverable processing failure to downstream
// consumers. Payload, when present, is the offending inbound command.
type ErrorMessage struct {
	Text    string   `json:"text"`
	Payload *Command `json:"payload,omitempty"`
}

// EventKind identifies the payload carried by an outbound Event.
type EventKind uint8

const (
	EventUnknown         EventKind = 0
	EventExecutionReport EventKind = 1
	EventMarketData      EventKind = 2
	EventError           EventKind = 3
)

// Event is the closed variant of outbound messages. Exactly one payload
// pointer is set, selected by Kind.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Report     *ExecutionReport `json:"report,omitempty"`
	MarketData *MarketData      `json:"market_data,omitempty"`
	Err        *ErrorMessage    `json:"error,omitempty"`
}

// NewReportEvent wraps an ExecutionReport into an Event.
func NewReportEvent(r *ExecutionReport) *Event {
	return &Event{Kind: EventExecutionReport, Report: r}
}

// NewMarketDataEvent wraps a MarketData into an Event.
func NewMarketDataEvent(md *MarketData) *Event {
	return &Event{Kind: EventMarketData, MarketData: md}
}

// NewErrorEvent wraps an ErrorMessage into an Event.
func NewErrorEvent(text string, payload *Command) *Event {
	return &Event{Kind: EventError, Err: &ErrorMessage{Text: text, Payload: payload}}
}
