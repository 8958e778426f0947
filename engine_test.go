package match

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altex-exchange/matching-engine/protocol"
)

func newTestEngine(t *testing.T) (*MatchingEngine, *MemoryOutbound) {
	out := NewMemoryOutbound()
	eng := NewMatchingEngine(nil, out,
		WithSnapshotDir(t.TempDir()),
		WithIdleStrategy(NoopIdle{}),
	)
	return eng, out
}

func setupMarket(t *testing.T, eng *MatchingEngine) {
	require.NoError(t, eng.Process(protocol.NewInstrumentCommand(&protocol.InstrumentConfig{
		Symbol:     "BTC-USDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
	})))
}

func deposit(t *testing.T, eng *MatchingEngine, account uint64, asset, amount string) {
	require.NoError(t, eng.Process(protocol.NewDepositCommand(&protocol.BalanceDeposit{
		AccountID: account,
		Asset:     asset,
		Amount:    decimal.RequireFromString(amount),
	})))
}

func position(t *testing.T, eng *MatchingEngine, account uint64, asset string) *Position {
	acct, ok := eng.Accounts().Get(account)
	require.True(t, ok)
	return acct.Position(asset)
}

func TestEngineInstrumentLifecycle(t *testing.T) {
	eng, _ := newTestEngine(t)
	setupMarket(t, eng)

	assert.NotNil(t, eng.Book("BTC-USDT"))
	assert.Equal(t, 1, eng.Instruments().Len())

	t.Run("duplicate symbol rejected", func(t *testing.T) {
		err := eng.Process(protocol.NewInstrumentCommand(&protocol.InstrumentConfig{
			Symbol:     "BTC-USDT",
			BaseAsset:  "BTC",
			QuoteAsset: "USDT",
		}))
		assert.ErrorIs(t, err, ErrDuplicateSymbol)
	})

	t.Run("incomplete config rejected", func(t *testing.T) {
		err := eng.Process(protocol.NewInstrumentCommand(&protocol.InstrumentConfig{Symbol: "ETH-USDT"}))
		assert.ErrorIs(t, err, ErrInvalidParam)
	})
}

func TestEngineDeposit(t *testing.T) {
	eng, _ := newTestEngine(t)
	setupMarket(t, eng)

	deposit(t, eng, 1, "USDT", "1000")
	assert.Equal(t, "1000", position(t, eng, 1, "USDT").Balance.String())

	t.Run("unknown asset rejected", func(t *testing.T) {
		err := eng.Process(protocol.NewDepositCommand(&protocol.BalanceDeposit{
			AccountID: 1,
			Asset:     "DOGE",
			Amount:    decimal.NewFromInt(5),
		}))
		assert.ErrorIs(t, err, ErrUnknownAsset)
	})

	t.Run("non positive amount rejected", func(t *testing.T) {
		err := eng.Process(protocol.NewDepositCommand(&protocol.BalanceDeposit{
			AccountID: 1,
			Asset:     "USDT",
			Amount:    decimal.Zero,
		}))
		assert.ErrorIs(t, err, ErrInvalidParam)
	})
}

func TestEngineLimitOrderRestsAndLocks(t *testing.T) {
	eng, out := newTestEngine(t)
	setupMarket(t, eng)
	deposit(t, eng, 1, "USDT", "1000")

	clientID := xid.New().String()
	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:        "BTC-USDT",
		ClientOrderID: clientID,
		AccountID:     1,
		Side:          Buy,
		Type:          Limit,
		Price:         decimal.NewFromInt(100),
		Qty:           decimal.RequireFromString("5.5"),
	})))

	reports := out.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, protocol.OrdStatusNew, reports[0].Status)
	assert.Equal(t, clientID, reports[0].ClientOrderID)
	assert.Equal(t, "5.5", reports[0].LeavesQty.String())
	assert.NotZero(t, reports[0].OrderID)

	pos := position(t, eng, 1, "USDT")
	assert.Equal(t, "450", pos.Balance.String())
	assert.Equal(t, "550", pos.Locked.String())

	md := out.LastMarketData("BTC-USDT")
	require.NotNil(t, md)
	require.Len(t, md.Bids, 1)
	assert.Equal(t, "100", md.Bids[0].Price().String())
	assert.Equal(t, "5.5", md.Bids[0].Qty().String())
	assert.Empty(t, md.Asks)
}

func TestEngineLimitOrdersCrossAndSettle(t *testing.T) {
	eng, out := newTestEngine(t)
	setupMarket(t, eng)
	deposit(t, eng, 1, "USDT", "1000")
	deposit(t, eng, 2, "BTC", "10")

	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 1,
		Side:      Buy,
		Type:      Limit,
		Price:     decimal.NewFromInt(100),
		Qty:       decimal.RequireFromString("5.5"),
	})))
	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 2,
		Side:      Sell,
		Type:      Limit,
		Price:     decimal.NewFromInt(100),
		Qty:       decimal.NewFromInt(3),
	})))

	reports := out.Reports()
	require.Len(t, reports, 4) // buyer NEW, seller NEW, taker trade, maker trade

	taker := reports[2]
	assert.True(t, taker.IsTaker)
	assert.Equal(t, Sell, taker.Side)
	assert.Equal(t, protocol.OrdStatusFilled, taker.Status)
	assert.Equal(t, "3", taker.LastQty.String())
	assert.Equal(t, "100", taker.LastPx.String())
	assert.Equal(t, "0", taker.LeavesQty.String())

	maker := reports[3]
	assert.False(t, maker.IsTaker)
	assert.Equal(t, protocol.OrdStatusPartiallyFilled, maker.Status)
	assert.Equal(t, "2.5", maker.LeavesQty.String())
	assert.Equal(t, taker.OrderID, maker.CounterOrderID)
	assert.Equal(t, maker.OrderID, taker.CounterOrderID)
	assert.NotEqual(t, taker.ExecID, maker.ExecID)

	// Buyer spent 300 of the 550 reserve and holds 3 BTC.
	buyerUSDT := position(t, eng, 1, "USDT")
	assert.Equal(t, "450", buyerUSDT.Balance.String())
	assert.Equal(t, "250", buyerUSDT.Locked.String())
	assert.Equal(t, "3", position(t, eng, 1, "BTC").Balance.String())

	// Seller delivered 3 BTC and received 300 USDT.
	sellerBTC := position(t, eng, 2, "BTC")
	assert.Equal(t, "7", sellerBTC.Balance.String())
	assert.Equal(t, "0", sellerBTC.Locked.String())
	assert.Equal(t, "300", position(t, eng, 2, "USDT").Balance.String())

	md := out.LastMarketData("BTC-USDT")
	require.NotNil(t, md)
	require.Len(t, md.Bids, 1)
	assert.Equal(t, "2.5", md.Bids[0].Qty().String())
	assert.Empty(t, md.Asks)
}

func TestEnginePriceImprovementRefund(t *testing.T) {
	eng, out := newTestEngine(t)
	setupMarket(t, eng)
	deposit(t, eng, 1, "BTC", "1")
	deposit(t, eng, 2, "USDT", "1000")

	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 1,
		Side:      Sell,
		Type:      Limit,
		Price:     decimal.NewFromInt(90),
		Qty:       decimal.NewFromInt(1),
	})))

	// Buyer bids 100 but fills at the resting 90; the 10 USDT difference is
	// unlocked with the fill.
	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 2,
		Side:      Buy,
		Type:      Limit,
		Price:     decimal.NewFromInt(100),
		Qty:       decimal.NewFromInt(1),
	})))

	buyerUSDT := position(t, eng, 2, "USDT")
	assert.Equal(t, "910", buyerUSDT.Balance.String())
	assert.Equal(t, "0", buyerUSDT.Locked.String())
	assert.Equal(t, "1", position(t, eng, 2, "BTC").Balance.String())

	reports := out.Reports()
	require.Len(t, reports, 4)
	assert.Equal(t, "90", reports[2].LastPx.String())
}

func TestEngineMarketBuyCancelsDust(t *testing.T) {
	eng, out := newTestEngine(t)
	setupMarket(t, eng)
	deposit(t, eng, 1, "BTC", "1")
	deposit(t, eng, 2, "USDT", "111")

	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 1,
		Side:      Sell,
		Type:      Limit,
		Price:     decimal.NewFromInt(219),
		Qty:       decimal.NewFromInt(1),
	})))
	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 2,
		Side:      Buy,
		Type:      Market,
		QuoteQty:  decimal.NewFromInt(111),
	})))

	// The quote remainder that no longer buys one quantum is cancelled and
	// returned, never left locked.
	buyerUSDT := position(t, eng, 2, "USDT")
	assert.Equal(t, "0.00000111", buyerUSDT.Balance.String())
	assert.Equal(t, "0", buyerUSDT.Locked.String())
	assert.Equal(t, "0.50684931", position(t, eng, 2, "BTC").Balance.String())

	reports := out.Reports()
	require.Len(t, reports, 5) // seller NEW, buyer NEW, taker trade, maker trade, buyer CANCELLED
	last := reports[4]
	assert.Equal(t, protocol.OrdStatusCancelled, last.Status)
	assert.Equal(t, "0.00000111", last.LeavesQty.String())
}

func TestEngineMarketSellCancelsUnfilledRemainder(t *testing.T) {
	eng, out := newTestEngine(t)
	setupMarket(t, eng)
	deposit(t, eng, 1, "USDT", "1000")
	deposit(t, eng, 2, "BTC", "5")

	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 1,
		Side:      Buy,
		Type:      Limit,
		Price:     decimal.NewFromInt(100),
		Qty:       decimal.NewFromInt(2),
	})))
	require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "BTC-USDT",
		AccountID: 2,
		Side:      Sell,
		Type:      Market,
		Qty:       decimal.NewFromInt(5),
	})))

	// Two units traded, three returned on depth exhaustion.
	sellerBTC := position(t, eng, 2, "BTC")
	assert.Equal(t, "3", sellerBTC.Balance.String())
	assert.Equal(t, "0", sellerBTC.Locked.String())
	assert.Equal(t, "200", position(t, eng, 2, "USDT").Balance.String())

	reports := out.Reports()
	require.Len(t, reports, 5)
	assert.Equal(t, protocol.OrdStatusCancelled, reports[4].Status)
	assert.Equal(t, "3", reports[4].LeavesQty.String())
}

func TestEngineRejectsWithoutTouchingState(t *testing.T) {
	eng, _ := newTestEngine(t)
	setupMarket(t, eng)
	deposit(t, eng, 1, "USDT", "100")

	cases := []struct {
		name string
		req  *protocol.NewOrderRequest
		want error
	}{
		{
			name: "unknown symbol",
			req:  &protocol.NewOrderRequest{Symbol: "ETH-USDT", AccountID: 1, Side: Buy, Type: Limit, Price: decimal.NewFromInt(1), Qty: decimal.NewFromInt(1)},
			want: ErrUnknownSymbol,
		},
		{
			name: "unknown account",
			req:  &protocol.NewOrderRequest{Symbol: "BTC-USDT", AccountID: 99, Side: Buy, Type: Limit, Price: decimal.NewFromInt(1), Qty: decimal.NewFromInt(1)},
			want: ErrAccountNotFound,
		},
		{
			name: "insufficient balance",
			req:  &protocol.NewOrderRequest{Symbol: "BTC-USDT", AccountID: 1, Side: Buy, Type: Limit, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(2)},
			want: ErrInsufficientBalance,
		},
		{
			name: "limit without price",
			req:  &protocol.NewOrderRequest{Symbol: "BTC-USDT", AccountID: 1, Side: Buy, Type: Limit, Qty: decimal.NewFromInt(1)},
			want: ErrInvalidParam,
		},
		{
			name: "market buy without quote amount",
			req:  &protocol.NewOrderRequest{Symbol: "BTC-USDT", AccountID: 1, Side: Buy, Type: Market},
			want: ErrInvalidParam,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := eng.Process(protocol.NewOrderCommand(tc.req))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	pos := position(t, eng, 1, "USDT")
	assert.Equal(t, "100", pos.Balance.String())
	assert.Equal(t, "0", pos.Locked.String())
	assert.Equal(t, 0, eng.Book("BTC-USDT").OrderCount())
}

func TestEngineRunIsolatesRecoverableErrors(t *testing.T) {
	rb := NewRingBuffer[*protocol.Command](64)
	out := NewMemoryOutbound()
	eng := NewMatchingEngine(rb, out,
		WithSnapshotDir(t.TempDir()),
		WithIdleStrategy(SleepIdle{Duration: time.Millisecond}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	rb.Publish(protocol.NewInstrumentCommand(&protocol.InstrumentConfig{
		Symbol:     "BTC-USDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
	}))
	// Order for a symbol that does not exist: rejected, loop keeps going.
	rb.Publish(protocol.NewOrderCommand(&protocol.NewOrderRequest{
		Symbol:    "ETH-USDT",
		AccountID: 1,
		Side:      Buy,
		Type:      Limit,
		Price:     decimal.NewFromInt(1),
		Qty:       decimal.NewFromInt(1),
	}))
	rb.Publish(protocol.NewDepositCommand(&protocol.BalanceDeposit{
		AccountID: 1,
		Asset:     "USDT",
		Amount:    decimal.NewFromInt(500),
	}))

	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	errs := out.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Text, "ETH-USDT")
	require.NotNil(t, errs[0].Payload)
	assert.Equal(t, protocol.CmdNewOrder, errs[0].Payload.Kind)

	// The deposit behind the rejected order still went through.
	pos := position(t, eng, 1, "USDT")
	assert.Equal(t, "500", pos.Balance.String())
}

func TestEngineRunStopsOnSnapshotFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")

	rb := NewRingBuffer[*protocol.Command](16)
	out := NewMemoryOutbound()
	eng := NewMatchingEngine(rb, out,
		WithSnapshotDir(dir),
		WithIdleStrategy(SleepIdle{Duration: time.Millisecond}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	// Occupy the snapshot directory path with a regular file so the trigger
	// cannot persist state.
	require.NoError(t, os.WriteFile(dir, []byte("in the way"), 0o600))
	rb.Publish(protocol.NewSnapshotCommand())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine kept running after a snapshot persistence failure")
	}

	// Persistence failures are fatal, never downgraded to an error message.
	assert.Empty(t, out.Errors())
}

func TestEngineRunStopsOnInvariantViolation(t *testing.T) {
	rb := NewRingBuffer[*protocol.Command](16)
	out := NewMemoryOutbound()
	eng := NewMatchingEngine(rb, out,
		WithSnapshotDir(t.TempDir()),
		WithIdleStrategy(SleepIdle{Duration: time.Millisecond}),
		WithOrderBookOptions(WithIndexStrategy(IndexArray), WithArrayCapacity(1)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	rb.Publish(protocol.NewInstrumentCommand(&protocol.InstrumentConfig{
		Symbol:     "BTC-USDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
	}))
	rb.Publish(protocol.NewDepositCommand(&protocol.BalanceDeposit{
		AccountID: 1,
		Asset:     "USDT",
		Amount:    decimal.NewFromInt(1000),
	}))
	// Two bid levels against a one-level capacity: the second Add violates
	// the book's capacity invariant.
	for _, price := range []int64{100, 99} {
		rb.Publish(protocol.NewOrderCommand(&protocol.NewOrderRequest{
			Symbol:    "BTC-USDT",
			AccountID: 1,
			Side:      Buy,
			Type:      Limit,
			Price:     decimal.NewFromInt(price),
			Qty:       decimal.NewFromInt(1),
		}))
	}

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, IsInvariantError(err))
		assert.ErrorIs(t, err, ErrBookCapacity)
	case <-time.After(2 * time.Second):
		t.Fatal("engine kept running after an invariant violation")
	}

	assert.Empty(t, out.Errors())
}

func TestEngineOrderIDsAreUniqueAndIncreasing(t *testing.T) {
	eng, out := newTestEngine(t)
	setupMarket(t, eng)
	deposit(t, eng, 1, "USDT", "1000")

	for i := 0; i < 5; i++ {
		require.NoError(t, eng.Process(protocol.NewOrderCommand(&protocol.NewOrderRequest{
			Symbol:    "BTC-USDT",
			AccountID: 1,
			Side:      Buy,
			Type:      Limit,
			Price:     decimal.NewFromInt(int64(10 + i)),
			Qty:       decimal.NewFromInt(1),
		})))
	}

	reports := out.Reports()
	require.Len(t, reports, 5)
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i].OrderID, reports[i-1].OrderID)
		assert.Greater(t, reports[i].ExecID, reports[i-1].ExecID)
	}
}
