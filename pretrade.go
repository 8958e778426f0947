package match

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PreTradeCheck validates an incoming order against account existence and
// available balance, assigns the order ID and locks the reserve.
type PreTradeCheck struct {
	accounts    *AccountRepository
	instruments *InstrumentRepository
	counter     *GlobalCounter
}

// NewPreTradeCheck wires the check against the engine-owned repositories and
// counter.
func NewPreTradeCheck(accounts *AccountRepository, instruments *InstrumentRepository, counter *GlobalCounter) *PreTradeCheck {
	return &PreTradeCheck{
		accounts:    accounts,
		instruments: instruments,
		counter:     counter,
	}
}

// reserve returns the locking asset and reserve amount of an order: quote
// asset for buys (price*qty for limit, the explicit quote amount for market
// buys), base asset and plain quantity for sells.
func (c *PreTradeCheck) reserve(order *Order) (string, decimal.Decimal, error) {
	instr, ok := c.instruments.Get(order.Symbol)
	if !ok {
		return "", decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnknownSymbol, order.Symbol)
	}

	if order.Side == Buy {
		if order.Type == Market {
			return instr.QuoteAsset, order.QuoteQty, nil
		}
		return instr.QuoteAsset, order.Price.Mul(order.Qty), nil
	}
	return instr.BaseAsset, order.Qty, nil
}

// ValidateOrder checks shape, account existence and available balance.
// Failures are recoverable: the order is dropped and an error message goes
// out, no state is touched.
func (c *PreTradeCheck) ValidateOrder(order *Order) error {
	switch order.Type {
	case Limit:
		if !order.Price.IsPositive() || !order.Qty.IsPositive() {
			return fmt.Errorf("%w: limit order needs positive price and qty", ErrInvalidParam)
		}
	case Market:
		if order.Side == Buy {
			if !order.QuoteQty.IsPositive() {
				return fmt.Errorf("%w: market buy needs a positive quote amount", ErrInvalidParam)
			}
		} else if !order.Qty.IsPositive() {
			return fmt.Errorf("%w: market sell needs a positive qty", ErrInvalidParam)
		}
	default:
		return fmt.Errorf("%w: unsupported order type %q", ErrInvalidParam, order.Type)
	}

	account, ok := c.accounts.Get(order.AccountID)
	if !ok {
		return fmt.Errorf("%w: account %d", ErrAccountNotFound, order.AccountID)
	}

	asset, amount, err := c.reserve(order)
	if err != nil {
		return err
	}

	pos := account.Position(asset)
	if amount.GreaterThan(pos.Balance) {
		return fmt.Errorf("%w: account %d needs %s %s, has %s",
			ErrInsufficientBalance, order.AccountID, amount, asset, pos.Balance)
	}
	return nil
}

// AdmitOrder assigns the next order ID and the starting leaves quantity:
// the base quantity, or the quote amount for quote-sized market buys.
func (c *PreTradeCheck) AdmitOrder(order *Order) {
	order.ID = c.counter.NextOrderID()
	order.Timestamp = time.Now().UnixNano()
	if order.QuoteSized() {
		order.Leaves = order.QuoteQty
	} else {
		order.Leaves = order.Qty
	}
}

// LockBalance moves the reserve from the account's balance to its locked
// bucket. It must only run after ValidateOrder passed, so a failure here is
// an invariant violation, not bad input.
func (c *PreTradeCheck) LockBalance(order *Order) error {
	account, ok := c.accounts.Get(order.AccountID)
	if !ok {
		return NewInvariantError("lock balance: account %d vanished after validation", order.AccountID)
	}

	asset, amount, err := c.reserve(order)
	if err != nil {
		return NewInvariantError("lock balance for order %d: %w", order.ID, err)
	}

	if err := account.Position(asset).Lock(amount); err != nil {
		return NewInvariantError("lock %s %s for order %d: %w", amount, asset, order.ID, err)
	}
	return nil
}
