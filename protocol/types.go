package protocol

// Side identifies which side of the book an order belongs to.
type Side int8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// String returns a human readable side name.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	}
	return "unknown"
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType identifies how an order is priced.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrdStatus is the execution-report status of an order.
type OrdStatus string

const (
	OrdStatusNew             OrdStatus = "new"
	OrdStatusPartiallyFilled OrdStatus = "partially_filled"
	OrdStatusFilled          OrdStatus = "filled"
	OrdStatusCancelled       OrdStatus = "cancelled"
)
