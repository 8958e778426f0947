package match

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nextTestOrderID uint64

func limitOrder(side Side, price, qty string) *Order {
	nextTestOrderID++
	p := decimal.RequireFromString(price)
	q := decimal.RequireFromString(qty)
	return &Order{
		ID:     nextTestOrderID,
		Symbol: "BTC-USDT",
		Side:   side,
		Type:   Limit,
		Price:  p,
		Qty:    q,
		Leaves: q,
	}
}

func marketSell(qty string) *Order {
	nextTestOrderID++
	q := decimal.RequireFromString(qty)
	return &Order{
		ID:     nextTestOrderID,
		Symbol: "BTC-USDT",
		Side:   Sell,
		Type:   Market,
		Qty:    q,
		Leaves: q,
	}
}

func marketBuyQuote(quoteQty string) *Order {
	nextTestOrderID++
	q := decimal.RequireFromString(quoteQty)
	return &Order{
		ID:       nextTestOrderID,
		Symbol:   "BTC-USDT",
		Side:     Buy,
		Type:     Market,
		QuoteQty: q,
		Leaves:   q,
	}
}

func TestOrderBookAddAndRemove(t *testing.T) {
	book := NewOrderBook("BTC-USDT")

	buy := limitOrder(Buy, "100", "2")
	sell := limitOrder(Sell, "110", "3")
	require.NoError(t, book.Add(buy))
	require.NoError(t, book.Add(sell))

	assert.Equal(t, 2, book.OrderCount())
	assert.Equal(t, buy, book.Order(buy.ID))

	require.NoError(t, book.Remove(buy.ID))
	assert.Nil(t, book.Order(buy.ID))
	assert.Equal(t, 1, book.OrderCount())

	assert.ErrorIs(t, book.Remove(buy.ID), ErrOrderNotFound)
}

func TestOrderBookMatchPriceTimePriority(t *testing.T) {
	book := NewOrderBook("BTC-USDT")

	first := limitOrder(Sell, "100", "1")
	second := limitOrder(Sell, "100", "1")
	cheaper := limitOrder(Sell, "99", "1")
	require.NoError(t, book.Add(first))
	require.NoError(t, book.Add(second))
	require.NoError(t, book.Add(cheaper))

	taker := limitOrder(Buy, "100", "2.5")
	trades, err := book.Match(taker)
	require.NoError(t, err)
	require.Len(t, trades, 3)

	// Best price first, then arrival order within the 100 level.
	assert.Equal(t, cheaper.ID, trades[0].Maker.ID)
	assert.Equal(t, "99", trades[0].Price.String())
	assert.Equal(t, first.ID, trades[1].Maker.ID)
	assert.Equal(t, second.ID, trades[2].Maker.ID)

	assert.Equal(t, "0.5", trades[2].Qty.String())
	assert.True(t, taker.Filled())
	assert.Equal(t, "0.5", second.Leaves.String())

	// Filled makers leave the book, the partially filled one stays.
	assert.Nil(t, book.Order(cheaper.ID))
	assert.Nil(t, book.Order(first.ID))
	assert.Equal(t, second, book.Order(second.ID))
}

func TestOrderBookMatchRespectsLimitPrice(t *testing.T) {
	book := NewOrderBook("BTC-USDT")
	require.NoError(t, book.Add(limitOrder(Sell, "105", "1")))

	taker := limitOrder(Buy, "100", "1")
	trades, err := book.Match(taker)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, "1", taker.Leaves.String())
}

func TestOrderBookMarketSellWalksTheBids(t *testing.T) {
	book := NewOrderBook("BTC-USDT")
	require.NoError(t, book.Add(limitOrder(Buy, "101", "1")))
	require.NoError(t, book.Add(limitOrder(Buy, "100", "1")))

	taker := marketSell("3")
	trades, err := book.Match(taker)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, "101", trades[0].Price.String())
	assert.Equal(t, "100", trades[1].Price.String())

	// Depth is exhausted; one unit remains unexecuted.
	assert.Equal(t, "1", taker.Leaves.String())
	assert.Equal(t, 0, book.OrderCount())
}

func TestOrderBookQuoteSizedMarketBuy(t *testing.T) {
	book := NewOrderBook("BTC-USDT")
	require.NoError(t, book.Add(limitOrder(Sell, "219", "1")))

	taker := marketBuyQuote("111")
	trades, err := book.Match(taker)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	// floor(111/219) at 8 decimal places.
	assert.Equal(t, "0.50684931", trades[0].Qty.String())
	assert.Equal(t, "110.99999889", trades[0].Amount.String())

	// The unspent remainder no longer buys one quantum; it stays on the
	// taker as dust for the engine to cancel.
	assert.Equal(t, "0.00000111", taker.Leaves.String())
	assert.False(t, taker.Filled())
	assert.Equal(t, 1, book.OrderCount())
}

func TestOrderBookQuoteSizedBuyCappedByMakerLeaves(t *testing.T) {
	book := NewOrderBook("BTC-USDT")
	maker := limitOrder(Sell, "100", "0.5")
	require.NoError(t, book.Add(maker))

	taker := marketBuyQuote("100")
	trades, err := book.Match(taker)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	assert.Equal(t, "0.5", trades[0].Qty.String())
	assert.Equal(t, "50", trades[0].Amount.String())
	assert.Equal(t, "50", taker.Leaves.String())
	assert.True(t, maker.Filled())
	assert.Equal(t, 0, book.OrderCount())
}

func TestOrderBookUpdate(t *testing.T) {
	book := NewOrderBook("BTC-USDT")
	first := limitOrder(Buy, "100", "2")
	second := limitOrder(Buy, "100", "2")
	require.NoError(t, book.Add(first))
	require.NoError(t, book.Add(second))

	t.Run("same price keeps time priority", func(t *testing.T) {
		require.NoError(t, book.Update(first.ID, decimal.NewFromInt(100), decimal.NewFromInt(1)))

		taker := marketSell("1")
		trades, err := book.Match(taker)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, first.ID, trades[0].Maker.ID)
	})

	t.Run("price change loses time priority", func(t *testing.T) {
		third := limitOrder(Buy, "99", "1")
		require.NoError(t, book.Add(third))
		require.NoError(t, book.Update(third.ID, decimal.NewFromInt(100), decimal.NewFromInt(1)))

		taker := marketSell("3")
		trades, err := book.Match(taker)
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Equal(t, second.ID, trades[0].Maker.ID)
		assert.Equal(t, third.ID, trades[1].Maker.ID)
	})

	t.Run("unknown order", func(t *testing.T) {
		err := book.Update(999999, decimal.NewFromInt(1), decimal.NewFromInt(1))
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestOrderBookBuildMarketData(t *testing.T) {
	book := NewOrderBook("BTC-USDT")
	require.NoError(t, book.Add(limitOrder(Buy, "100", "2.5")))
	require.NoError(t, book.Add(limitOrder(Buy, "100", "1")))
	require.NoError(t, book.Add(limitOrder(Buy, "99", "1")))
	require.NoError(t, book.Add(limitOrder(Sell, "101", "4")))

	md := book.BuildMarketData()
	assert.Equal(t, "BTC-USDT", md.Symbol)
	assert.Equal(t, 2, md.Depth)

	require.Len(t, md.Bids, 2)
	assert.Equal(t, "100", md.Bids[0].Price().String())
	assert.Equal(t, "3.5", md.Bids[0].Qty().String())
	assert.Equal(t, "99", md.Bids[1].Price().String())

	require.Len(t, md.Asks, 1)
	assert.Equal(t, "101", md.Asks[0].Price().String())
	assert.Equal(t, "4", md.Asks[0].Qty().String())
}

func TestOrderBookMarketDataDepthCap(t *testing.T) {
	book := NewOrderBook("BTC-USDT")
	for i := 0; i < MarketDataDepth+5; i++ {
		require.NoError(t, book.Add(limitOrder(Buy, decimal.NewFromInt(int64(100+i)).String(), "1")))
	}

	md := book.BuildMarketData()
	assert.Len(t, md.Bids, MarketDataDepth)
	assert.Equal(t, MarketDataDepth, md.Depth)
	// Best bid is the highest price level.
	assert.Equal(t, "124", md.Bids[0].Price().String())
}

func TestOrderBookRestingOrdersRoundTrip(t *testing.T) {
	for _, strategy := range []IndexStrategy{IndexSkipList, IndexRBTree, IndexArray} {
		t.Run(string(strategy), func(t *testing.T) {
			book := NewOrderBook("BTC-USDT", WithIndexStrategy(strategy))
			require.NoError(t, book.Add(limitOrder(Buy, "100", "1")))
			require.NoError(t, book.Add(limitOrder(Buy, "100", "2")))
			require.NoError(t, book.Add(limitOrder(Buy, "99", "1")))
			require.NoError(t, book.Add(limitOrder(Sell, "101", "3")))

			orders := book.RestingOrders()
			require.Len(t, orders, 4)
			// Bids first, best level first, FIFO within a level; asks last.
			assert.Equal(t, "100", orders[0].Price.String())
			assert.True(t, orders[0].ID < orders[1].ID)
			assert.Equal(t, "99", orders[2].Price.String())
			assert.Equal(t, Sell, orders[3].Side)

			restored := NewOrderBook("BTC-USDT", WithIndexStrategy(strategy))
			require.NoError(t, restored.Load(orders))

			want := book.BuildMarketData()
			got := restored.BuildMarketData()
			assert.Equal(t, want.Bids, got.Bids)
			assert.Equal(t, want.Asks, got.Asks)
			assert.Equal(t, book.OrderCount(), restored.OrderCount())
		})
	}
}

func TestOrderBookArrayStrategyOverflow(t *testing.T) {
	book := NewOrderBook("BTC-USDT", WithIndexStrategy(IndexArray), WithArrayCapacity(2))

	require.NoError(t, book.Add(limitOrder(Buy, "100", "1")))
	require.NoError(t, book.Add(limitOrder(Buy, "99", "1")))
	// A second order at an existing level does not consume a level slot.
	require.NoError(t, book.Add(limitOrder(Buy, "100", "1")))

	err := book.Add(limitOrder(Buy, "98", "1"))
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))
	assert.ErrorIs(t, err, ErrBookCapacity)
}
