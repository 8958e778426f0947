package match

import (
	"fmt"

	"github.com/altex-exchange/matching-engine/protocol"
	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// AggregatedBook maintains a simplified view of one order book, tracking
// only price levels and their aggregated sizes. It is designed for
// downstream services that rebuild depth state from the MarketData stream
// published by the engine.
type AggregatedBook struct {
	symbol   string
	lastTime int64
	bid      *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
	ask      *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
}

func newBidMap() *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	return treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
		return a.GreaterThan(b)
	})
}

func newAskMap() *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	return treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
		return a.LessThan(b)
	})
}

// NewAggregatedBook creates an empty view for symbol.
func NewAggregatedBook(symbol string) *AggregatedBook {
	return &AggregatedBook{
		symbol: symbol,
		bid:    newBidMap(),
		ask:    newAskMap(),
	}
}

// Symbol returns the instrument symbol this view tracks.
func (ab *AggregatedBook) Symbol() string {
	return ab.symbol
}

// TransactTime returns the transact time of the last applied snapshot.
func (ab *AggregatedBook) TransactTime() int64 {
	return ab.lastTime
}

// Apply replaces the view with a MarketData snapshot. Snapshots older than
// the last applied one are ignored so out-of-order delivery cannot rewind
// the view.
func (ab *AggregatedBook) Apply(md *protocol.MarketData) error {
	if md.Symbol != ab.symbol {
		return fmt.Errorf("%w: market data for %q applied to %q view", ErrInvalidParam, md.Symbol, ab.symbol)
	}
	if md.TransactTime < ab.lastTime {
		return nil
	}

	bid := newBidMap()
	for _, pq := range md.Bids {
		bid.Set(pq.Price(), pq.Qty())
	}
	ask := newAskMap()
	for _, pq := range md.Asks {
		ask.Set(pq.Price(), pq.Qty())
	}

	ab.bid = bid
	ab.ask = ask
	ab.lastTime = md.TransactTime
	return nil
}

func (ab *AggregatedBook) side(side Side) *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	if side == Buy {
		return ab.bid
	}
	return ab.ask
}

// Depth returns the aggregated size at a price level, or zero if the level
// is absent.
func (ab *AggregatedBook) Depth(side Side, price decimal.Decimal) decimal.Decimal {
	size, ok := ab.side(side).Get(price)
	if !ok {
		return decimal.Zero
	}
	return size
}

// Best returns the best price level of a side.
func (ab *AggregatedBook) Best(side Side) (protocol.PriceQty, bool) {
	it := ab.side(side).Iterator()
	if !it.Valid() {
		return protocol.PriceQty{}, false
	}
	return protocol.PriceQty{it.Key(), it.Value()}, true
}

// Levels returns up to limit levels of a side, best price first.
func (ab *AggregatedBook) Levels(side Side, limit int) []protocol.PriceQty {
	levels := make([]protocol.PriceQty, 0, limit)
	for it := ab.side(side).Iterator(); it.Valid() && len(levels) < limit; it.Next() {
		levels = append(levels, protocol.PriceQty{it.Key(), it.Value()})
	}
	return levels
}
