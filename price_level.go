package match

import (
	"github.com/shopspring/decimal"
)

// PriceLevel holds the resting orders at one exact price in arrival (FIFO)
// order. Orders are linked through their intrusive next/prev pointers, which
// gives O(1) arbitrary removal for cancels.
//
// The level carries a single restartable cursor for the matching loop.
// RemoveCurrent deletes the order last returned by Next; Remove deletes an
// arbitrary order but fails with ErrIterationActive while a cursor pass is
// in flight. The two removal styles are mutually exclusive within one pass,
// which keeps the API small without exposing iterator invalidation.
type PriceLevel struct {
	price decimal.Decimal
	head  *Order
	tail  *Order
	count int
	total decimal.Decimal // sum of leaves across resting orders

	cursor *Order // next order the cursor will return
	last   *Order // order most recently returned by Next
}

// NewPriceLevel creates an empty level at price.
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{price: price}
}

// Price returns the level price.
func (l *PriceLevel) Price() decimal.Decimal {
	return l.price
}

// Add appends an order to the tail of the level. The order price must equal
// the level price exactly.
func (l *PriceLevel) Add(order *Order) error {
	if !order.Price.Equal(l.price) {
		return NewInvariantError("add order %d: %w: order=%s level=%s",
			order.ID, ErrPriceMismatch, order.Price, l.price)
	}

	order.prev = l.tail
	order.next = nil
	if l.tail != nil {
		l.tail.next = order
	} else {
		l.head = order
	}
	l.tail = order

	l.count++
	if l.count == 1 {
		// A level outside a cursor pass keeps cursor == head; Remove
		// relies on that to detect in-flight iteration.
		l.cursor = l.head
	}
	l.total = l.total.Add(order.Leaves)
	return nil
}

// ResetCursor rewinds the shared cursor to the head of the level and ends
// any in-flight pass.
func (l *PriceLevel) ResetCursor() {
	l.cursor = l.head
	l.last = nil
}

// HasNext reports whether the cursor has more orders to return.
func (l *PriceLevel) HasNext() bool {
	return l.cursor != nil
}

// Next returns the order under the cursor and advances it.
func (l *PriceLevel) Next() *Order {
	order := l.cursor
	if order != nil {
		l.cursor = order.next
		l.last = order
	}
	return order
}

// RemoveCurrent deletes the order last returned by Next.
func (l *PriceLevel) RemoveCurrent() error {
	if l.last == nil {
		return NewInvariantError("remove current on level %s without an active cursor", l.price)
	}
	order := l.last
	l.last = nil
	l.unlink(order)
	return nil
}

// Remove deletes an arbitrary resting order in O(1) via its intrusive links.
// It fails while a cursor pass is active — an order has been returned and not
// consumed, or the cursor stands anywhere but the head — so that cursor state
// can never reference an unlinked order.
func (l *PriceLevel) Remove(order *Order) error {
	if l.last != nil || l.cursor != l.head {
		return NewInvariantError("remove order %d from level %s: %w", order.ID, l.price, ErrIterationActive)
	}
	l.unlink(order)
	l.cursor = l.head
	return nil
}

// Reduce decreases the aggregate leaves total after a partial fill of a
// resting order. The order itself has already been decremented by the match
// loop.
func (l *PriceLevel) Reduce(qty decimal.Decimal) {
	l.total = l.total.Sub(qty)
}

// unlink detaches order from the level list and updates aggregates.
func (l *PriceLevel) unlink(order *Order) {
	if order.prev != nil {
		order.prev.next = order.next
	} else {
		l.head = order.next
	}
	if order.next != nil {
		order.next.prev = order.prev
	} else {
		l.tail = order.prev
	}

	// Clear pointers to avoid leaks and accidental reuse
	order.next = nil
	order.prev = nil

	l.count--
	l.total = l.total.Sub(order.Leaves)
}

// Empty reports whether the level holds no orders. Empty levels must be
// removed from their book index.
func (l *PriceLevel) Empty() bool {
	return l.count == 0
}

// Len returns the number of resting orders.
func (l *PriceLevel) Len() int {
	return l.count
}

// Total returns the aggregate leaves quantity across resting orders.
func (l *PriceLevel) Total() decimal.Decimal {
	return l.total
}

// Orders returns the resting orders in FIFO order. The slice is a copy; the
// orders are not.
func (l *PriceLevel) Orders() []*Order {
	orders := make([]*Order, 0, l.count)
	for o := l.head; o != nil; o = o.next {
		orders = append(orders, o)
	}
	return orders
}
