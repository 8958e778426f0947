package match

import (
	"errors"
	"time"

	"github.com/altex-exchange/matching-engine/protocol"
	"github.com/altex-exchange/matching-engine/structure"
	"github.com/shopspring/decimal"
)

// IndexStrategy selects the price-level index backing a book side.
type IndexStrategy string

const (
	// IndexSkipList is the default, unbounded strategy.
	IndexSkipList IndexStrategy = "skiplist"
	// IndexRBTree is an unbounded balanced-tree strategy.
	IndexRBTree IndexStrategy = "rbtree"
	// IndexArray is a fixed-capacity sorted-array strategy; adding a price
	// level beyond the capacity fails deterministically.
	IndexArray IndexStrategy = "array"
)

const defaultArrayCapacity = 1024

type bookConfig struct {
	strategy      IndexStrategy
	arrayCapacity int
}

// OrderBookOption configures an OrderBook at construction time.
type OrderBookOption func(*bookConfig)

// WithIndexStrategy selects the price-level index strategy.
func WithIndexStrategy(s IndexStrategy) OrderBookOption {
	return func(cfg *bookConfig) {
		cfg.strategy = s
	}
}

// WithArrayCapacity sets the per-side level capacity of the array strategy.
func WithArrayCapacity(n int) OrderBookOption {
	return func(cfg *bookConfig) {
		cfg.arrayCapacity = n
	}
}

func newSideIndex(cfg *bookConfig, less structure.LessFunc) structure.SortedIndex[*PriceLevel] {
	switch cfg.strategy {
	case IndexRBTree:
		return structure.NewRBTreeIndex[*PriceLevel](less)
	case IndexArray:
		return structure.NewArrayIndex[*PriceLevel](less, cfg.arrayCapacity)
	default:
		return structure.NewSkipListIndex[*PriceLevel](less)
	}
}

// OrderBook owns the two price-ordered sides of one instrument plus an
// order-ID index for O(1) lookup and cancel. It is not safe for concurrent
// use; the engine thread is the sole owner.
type OrderBook struct {
	symbol string
	bids   structure.SortedIndex[*PriceLevel] // highest price first
	asks   structure.SortedIndex[*PriceLevel] // lowest price first
	orders map[uint64]*Order
}

// NewOrderBook creates an empty book for symbol.
func NewOrderBook(symbol string, opts ...OrderBookOption) *OrderBook {
	cfg := &bookConfig{
		strategy:      IndexSkipList,
		arrayCapacity: defaultArrayCapacity,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &OrderBook{
		symbol: symbol,
		bids: newSideIndex(cfg, func(a, b decimal.Decimal) bool {
			return a.GreaterThan(b)
		}),
		asks: newSideIndex(cfg, func(a, b decimal.Decimal) bool {
			return a.LessThan(b)
		}),
		orders: make(map[uint64]*Order),
	}
}

// Symbol returns the instrument symbol.
func (b *OrderBook) Symbol() string {
	return b.symbol
}

// Order returns the resting order with the given ID, or nil.
func (b *OrderBook) Order(id uint64) *Order {
	return b.orders[id]
}

// OrderCount returns the number of resting orders across both sides.
func (b *OrderBook) OrderCount() int {
	return len(b.orders)
}

func (b *OrderBook) sideIndex(side Side) structure.SortedIndex[*PriceLevel] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// limitCrossed reports whether the opposing level price breaks the taker's
// limit: a buy stops once asks exceed its price, a sell once bids fall
// below it.
func limitCrossed(taker *Order, levelPrice decimal.Decimal) bool {
	if taker.Side == Buy {
		return levelPrice.GreaterThan(taker.Price)
	}
	return levelPrice.LessThan(taker.Price)
}

// fillFor computes the base quantity and quote amount of the next match
// step. Quote-sized takers derive quantity by floor division of the unspent
// quote amount at QtyScale, capped at the maker's leaves; the two legs are
// decremented independently by the caller.
func fillFor(taker, maker *Order, price decimal.Decimal) (qty, amount decimal.Decimal) {
	if taker.QuoteSized() {
		qty, _ = taker.Leaves.QuoRem(price, QtyScale)
		if qty.GreaterThan(maker.Leaves) {
			qty = maker.Leaves
		}
		return qty, qty.Mul(price)
	}
	qty = decimal.Min(taker.Leaves, maker.Leaves)
	return qty, qty.Mul(price)
}

// Match executes the taker against resting liquidity and returns the
// resulting trades in execution order. Limit takers stop at their limit
// price, market takers only on exhausted depth. Makers within a level are
// served strictly oldest first; fully filled makers and emptied levels are
// removed in the same pass. The taker is never rested here; that decision
// belongs to the engine.
func (b *OrderBook) Match(taker *Order) ([]*Trade, error) {
	opposing := b.sideIndex(taker.Side.Opposite())

	var trades []*Trade
	stalled := false

	for taker.Leaves.IsPositive() && !stalled {
		price, level, ok := opposing.Front()
		if !ok {
			break
		}
		if taker.Type == Limit && limitCrossed(taker, price) {
			break
		}

		level.ResetCursor()
		for level.HasNext() && taker.Leaves.IsPositive() {
			maker := level.Next()

			qty, amount := fillFor(taker, maker, price)
			if !qty.IsPositive() {
				// The unspent quote amount no longer buys one quantum of
				// the base asset; the remainder is dust for the engine to
				// cancel.
				stalled = true
				break
			}

			maker.Leaves = maker.Leaves.Sub(qty)
			if taker.QuoteSized() {
				taker.Leaves = taker.Leaves.Sub(amount)
			} else {
				taker.Leaves = taker.Leaves.Sub(qty)
			}
			level.Reduce(qty)

			trades = append(trades, &Trade{
				Taker:  taker,
				Maker:  maker,
				Qty:    qty,
				Price:  price,
				Amount: amount,
			})

			if maker.Filled() {
				if err := level.RemoveCurrent(); err != nil {
					return trades, err
				}
				delete(b.orders, maker.ID)
			}
		}
		level.ResetCursor()

		if level.Empty() {
			opposing.Remove(price)
		}
	}

	return trades, nil
}

// Add rests a non-fully-matched order in its side's price level, creating
// the level if absent, and registers it in the order index. A capacity
// overflow of a bounded index strategy is an invariant-class failure.
func (b *OrderBook) Add(order *Order) error {
	side := b.sideIndex(order.Side)

	level, ok := side.Get(order.Price)
	if !ok {
		level = NewPriceLevel(order.Price)
		if err := side.Put(order.Price, level); err != nil {
			if errors.Is(err, structure.ErrIndexFull) {
				return NewInvariantError("add order %d at %s: %w", order.ID, order.Price, ErrBookCapacity)
			}
			return err
		}
	}

	if err := level.Add(order); err != nil {
		return err
	}
	b.orders[order.ID] = order
	return nil
}

// Update amends a resting order. An unchanged price mutates the quantity in
// place, preserving time priority; a price change is remove plus re-add and
// loses it.
func (b *OrderBook) Update(id uint64, newPrice, newQty decimal.Decimal) error {
	order, ok := b.orders[id]
	if !ok {
		return ErrOrderNotFound
	}

	if order.Price.Equal(newPrice) {
		side := b.sideIndex(order.Side)
		level, ok := side.Get(order.Price)
		if !ok {
			return NewInvariantError("order %d indexed without a level at %s", id, order.Price)
		}
		level.Reduce(order.Leaves.Sub(newQty))
		order.Leaves = newQty
		if newQty.GreaterThan(order.Qty) {
			order.Qty = newQty
		}
		return nil
	}

	if err := b.Remove(id); err != nil {
		return err
	}
	order.Price = newPrice
	order.Leaves = newQty
	if newQty.GreaterThan(order.Qty) {
		order.Qty = newQty
	}
	return b.Add(order)
}

// Remove deletes a resting order from its level and the order index,
// removing the level if it empties.
func (b *OrderBook) Remove(id uint64) error {
	order, ok := b.orders[id]
	if !ok {
		return ErrOrderNotFound
	}

	side := b.sideIndex(order.Side)
	level, ok := side.Get(order.Price)
	if !ok {
		return NewInvariantError("order %d indexed without a level at %s", id, order.Price)
	}

	if err := level.Remove(order); err != nil {
		return err
	}
	if level.Empty() {
		side.Remove(order.Price)
	}
	delete(b.orders, id)
	return nil
}

func sideDepth(side structure.SortedIndex[*PriceLevel]) []protocol.PriceQty {
	depth := make([]protocol.PriceQty, 0, MarketDataDepth)
	side.Walk(func(price decimal.Decimal, level *PriceLevel) bool {
		depth = append(depth, protocol.PriceQty{price, level.Total()})
		return len(depth) < MarketDataDepth
	})
	return depth
}

// BuildMarketData aggregates the remaining quantity per level on each side,
// best price first, capped at MarketDataDepth levels.
func (b *OrderBook) BuildMarketData() *protocol.MarketData {
	bids := sideDepth(b.bids)
	asks := sideDepth(b.asks)

	depth := len(bids)
	if len(asks) > depth {
		depth = len(asks)
	}

	return &protocol.MarketData{
		Symbol:       b.symbol,
		Depth:        depth,
		TransactTime: time.Now().UnixNano(),
		Bids:         bids,
		Asks:         asks,
	}
}

// RestingOrders returns every resting order, bids then asks, best level
// first and FIFO within each level. Re-adding the orders in this sequence
// reproduces identical book structure and time priority.
func (b *OrderBook) RestingOrders() []*Order {
	orders := make([]*Order, 0, len(b.orders))
	collect := func(_ decimal.Decimal, level *PriceLevel) bool {
		orders = append(orders, level.Orders()...)
		return true
	}
	b.bids.Walk(collect)
	b.asks.Walk(collect)
	return orders
}

// Load re-inserts previously exported resting orders. The input must be in
// RestingOrders sequence so that per-level FIFO order is preserved.
func (b *OrderBook) Load(orders []*Order) error {
	for _, order := range orders {
		if err := b.Add(order); err != nil {
			return err
		}
	}
	return nil
}
