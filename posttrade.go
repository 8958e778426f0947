package match

import (
	"github.com/altex-exchange/matching-engine/protocol"
	"github.com/shopspring/decimal"
)

// PostTradeCheck settles trades against account positions and emits
// execution reports and market data on the outbound channel.
type PostTradeCheck struct {
	accounts    *AccountRepository
	instruments *InstrumentRepository
	counter     *GlobalCounter
	outbound    Outbound
}

// NewPostTradeCheck wires the check against the engine-owned repositories,
// counter and outbound publisher.
func NewPostTradeCheck(accounts *AccountRepository, instruments *InstrumentRepository, counter *GlobalCounter, outbound Outbound) *PostTradeCheck {
	return &PostTradeCheck{
		accounts:    accounts,
		instruments: instruments,
		counter:     counter,
		outbound:    outbound,
	}
}

func (c *PostTradeCheck) baseReport(order *Order) *protocol.ExecutionReport {
	return &protocol.ExecutionReport{
		ExecID:        c.counter.NextExecID(),
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		AccountID:     order.AccountID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Price:         order.Price,
		OrderQty:      order.Qty,
		LeavesQty:     order.Leaves,
	}
}

// SendExecReportNew emits a NEW-status report for a freshly admitted order.
func (c *PostTradeCheck) SendExecReportNew(order *Order) {
	report := c.baseReport(order)
	report.Status = protocol.OrdStatusNew
	c.outbound.Publish(protocol.NewReportEvent(report))
}

// SendExecReportTrade emits the taker and maker reports for one trade, each
// with its own execution ID. A side whose leaves reached zero reports
// FILLED, otherwise PARTIALLY_FILLED.
func (c *PostTradeCheck) SendExecReportTrade(taker, maker *Order, qty, price decimal.Decimal) {
	takerReport := c.baseReport(taker)
	takerReport.CounterOrderID = maker.ID
	takerReport.LastQty = qty
	takerReport.LastPx = price
	takerReport.IsTaker = true
	takerReport.Status = tradeStatus(taker)

	makerReport := c.baseReport(maker)
	makerReport.CounterOrderID = taker.ID
	makerReport.LastQty = qty
	makerReport.LastPx = price
	makerReport.Status = tradeStatus(maker)

	c.outbound.Publish(protocol.NewReportEvent(takerReport), protocol.NewReportEvent(makerReport))
}

func tradeStatus(order *Order) protocol.OrdStatus {
	if order.Filled() {
		return protocol.OrdStatusFilled
	}
	return protocol.OrdStatusPartiallyFilled
}

// SettleTrade releases the locked reserves consumed by one trade and
// credits the counter assets: the buyer spends locked quote and receives
// base, the seller spends locked base and receives quote. A limit buyer
// filled below its limit gets the price-improvement excess unlocked
// immediately so no reserve is stranded after a full fill.
func (c *PostTradeCheck) SettleTrade(taker, maker *Order, qty, amount decimal.Decimal) error {
	instr, ok := c.instruments.Get(taker.Symbol)
	if !ok {
		return NewInvariantError("settle trade: instrument %q vanished", taker.Symbol)
	}

	buyer, seller := taker, maker
	if taker.Side == Sell {
		buyer, seller = maker, taker
	}

	buyerAcct, ok := c.accounts.Get(buyer.AccountID)
	if !ok {
		return NewInvariantError("settle trade: buyer account %d vanished", buyer.AccountID)
	}
	sellerAcct, ok := c.accounts.Get(seller.AccountID)
	if !ok {
		return NewInvariantError("settle trade: seller account %d vanished", seller.AccountID)
	}

	buyerQuote := buyerAcct.Position(instr.QuoteAsset)
	if err := buyerQuote.SpendLocked(amount); err != nil {
		return NewInvariantError("settle order %d: %w", buyer.ID, err)
	}
	if buyer.Type == Limit {
		refund := qty.Mul(buyer.Price).Sub(amount)
		if refund.IsPositive() {
			if err := buyerQuote.Unlock(refund); err != nil {
				return NewInvariantError("refund order %d: %w", buyer.ID, err)
			}
		}
	}
	buyerAcct.Position(instr.BaseAsset).Deposit(qty)

	if err := sellerAcct.Position(instr.BaseAsset).SpendLocked(qty); err != nil {
		return NewInvariantError("settle order %d: %w", seller.ID, err)
	}
	sellerAcct.Position(instr.QuoteAsset).Deposit(amount)

	return nil
}

// CancelOrder releases the order's remaining locked reserve and emits a
// CANCELLED report.
func (c *PostTradeCheck) CancelOrder(order *Order) error {
	instr, ok := c.instruments.Get(order.Symbol)
	if !ok {
		return NewInvariantError("cancel order %d: instrument %q vanished", order.ID, order.Symbol)
	}

	account, ok := c.accounts.Get(order.AccountID)
	if !ok {
		return NewInvariantError("cancel order %d: account %d vanished", order.ID, order.AccountID)
	}

	asset := instr.BaseAsset
	remaining := order.Leaves
	if order.Side == Buy {
		asset = instr.QuoteAsset
		if !order.QuoteSized() {
			remaining = order.Leaves.Mul(order.Price)
		}
	}

	if remaining.IsPositive() {
		if err := account.Position(asset).Unlock(remaining); err != nil {
			return NewInvariantError("cancel order %d: %w", order.ID, err)
		}
	}

	report := c.baseReport(order)
	report.Status = protocol.OrdStatusCancelled
	c.outbound.Publish(protocol.NewReportEvent(report))
	return nil
}

// SendMarketData forwards a market data snapshot unmodified.
func (c *PostTradeCheck) SendMarketData(md *protocol.MarketData) {
	c.outbound.Publish(protocol.NewMarketDataEvent(md))
}
