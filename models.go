package match

import (
	"github.com/altex-exchange/matching-engine/protocol"
	"github.com/shopspring/decimal"
)

const (
	// EngineVersion is the current version of the matching engine
	EngineVersion = "v1.0.0"

	// SnapshotSchemaVersion is the current version of the snapshot schema
	// Increment this when the snapshot format changes in a backward-incompatible way
	SnapshotSchemaVersion = 1

	// QtyScale is the fixed decimal scale for base quantities. Quote-sized
	// market buys derive their traded quantity by floor division at this
	// scale.
	QtyScale = 8

	// MarketDataDepth is the maximum number of price levels reported per
	// side in market data.
	MarketDataDepth = 20
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

type OrderType = protocol.OrderType

const (
	Limit  OrderType = protocol.OrderTypeLimit
	Market OrderType = protocol.OrderTypeMarket
)

// Order is the engine-side state of an order. Once resting, an order is
// owned exclusively by its PriceLevel until it is matched to zero, cancelled
// or removed; Price is immutable after construction.
//
// Leaves is denominated in the base asset, except for market buys sized in
// the quote asset where it tracks the unspent quote amount.
type Order struct {
	ID            uint64          `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	AccountID     uint64          `json:"account_id"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Qty           decimal.Decimal `json:"qty"`
	Leaves        decimal.Decimal `json:"leaves"`
	QuoteQty      decimal.Decimal `json:"quote_qty,omitempty"`
	Timestamp     int64           `json:"timestamp"` // Unix nano, admission time

	// Intrusive linked list pointers, owned by the PriceLevel (ignored by JSON)
	next *Order
	prev *Order
}

// QuoteSized reports whether the order is a market buy sized in the quote
// asset.
func (o *Order) QuoteSized() bool {
	return o.Type == Market && o.Side == Buy && o.QuoteQty.IsPositive()
}

// Filled reports whether nothing of the order remains to execute.
func (o *Order) Filled() bool {
	return !o.Leaves.IsPositive()
}

// Trade is the immutable result of one match step. Price is always the
// maker's resting price; Amount = Qty * Price in the quote asset.
type Trade struct {
	Taker  *Order
	Maker  *Order
	Qty    decimal.Decimal
	Price  decimal.Decimal
	Amount decimal.Decimal
}

func orderFromRequest(req *protocol.NewOrderRequest) *Order {
	return &Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		AccountID:     req.AccountID,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Qty:           req.Qty,
		QuoteQty:      req.QuoteQty,
	}
}
