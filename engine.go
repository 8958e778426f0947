package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/altex-exchange/matching-engine/protocol"
)

const defaultIdleSleep = 100 * time.Microsecond

// MatchingEngine is the single-threaded sequencer. Exactly one goroutine —
// the one running Run — owns the inbound queue, every order book, both
// repositories and the global counter, so none of that state needs locks.
// Messages are processed strictly in arrival order, giving a total order
// over all state mutations; each message runs to completion before the next
// is dequeued.
type MatchingEngine struct {
	inbound     Inbound
	outbound    Outbound
	books       map[string]*OrderBook
	accounts    *AccountRepository
	instruments *InstrumentRepository
	counter     *GlobalCounter
	pre         *PreTradeCheck
	post        *PostTradeCheck
	snapshots   *SnapshotManager
	idle        IdleStrategy
	bookOpts    []OrderBookOption
}

type engineConfig struct {
	idle        IdleStrategy
	snapshotDir string
	serializer  protocol.Serializer
	bookOpts    []OrderBookOption
}

// EngineOption configures a MatchingEngine at construction time.
type EngineOption func(*engineConfig)

// WithIdleStrategy sets how the engine waits on an empty inbound queue.
func WithIdleStrategy(s IdleStrategy) EngineOption {
	return func(cfg *engineConfig) {
		cfg.idle = s
	}
}

// WithSnapshotDir sets the snapshot directory.
func WithSnapshotDir(dir string) EngineOption {
	return func(cfg *engineConfig) {
		cfg.snapshotDir = dir
	}
}

// WithSerializer sets the snapshot serializer.
func WithSerializer(s protocol.Serializer) EngineOption {
	return func(cfg *engineConfig) {
		cfg.serializer = s
	}
}

// WithOrderBookOptions sets the options applied to every book the engine
// creates, e.g. the price-index strategy.
func WithOrderBookOptions(opts ...OrderBookOption) EngineOption {
	return func(cfg *engineConfig) {
		cfg.bookOpts = opts
	}
}

// NewMatchingEngine creates an engine reading from inbound and publishing
// to outbound.
func NewMatchingEngine(inbound Inbound, outbound Outbound, opts ...EngineOption) *MatchingEngine {
	cfg := &engineConfig{
		idle:        SleepIdle{Duration: defaultIdleSleep},
		snapshotDir: "snapshots",
		serializer:  &protocol.DefaultJSONSerializer{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	accounts := NewAccountRepository()
	instruments := NewInstrumentRepository()
	counter := NewGlobalCounter()

	return &MatchingEngine{
		inbound:     inbound,
		outbound:    outbound,
		books:       make(map[string]*OrderBook),
		accounts:    accounts,
		instruments: instruments,
		counter:     counter,
		pre:         NewPreTradeCheck(accounts, instruments, counter),
		post:        NewPostTradeCheck(accounts, instruments, counter, outbound),
		snapshots:   NewSnapshotManager(cfg.snapshotDir, cfg.serializer, accounts, instruments),
		idle:        cfg.idle,
		bookOpts:    cfg.bookOpts,
	}
}

// Book returns the order book for symbol, or nil.
func (e *MatchingEngine) Book(symbol string) *OrderBook {
	return e.books[symbol]
}

// Accounts returns the account repository.
func (e *MatchingEngine) Accounts() *AccountRepository {
	return e.accounts
}

// Instruments returns the instrument repository.
func (e *MatchingEngine) Instruments() *InstrumentRepository {
	return e.instruments
}

// Counter returns the global ID counter.
func (e *MatchingEngine) Counter() *GlobalCounter {
	return e.counter
}

func (e *MatchingEngine) createBook(symbol string) *OrderBook {
	book := NewOrderBook(symbol, e.bookOpts...)
	e.books[symbol] = book
	e.snapshots.RegisterBook(book)
	return book
}

// Recover restores state from the most recent snapshot, if any, and
// fast-forwards the global counter past the highest recovered order ID.
// It must complete before live traffic is processed; a failed load keeps
// the engine from starting.
func (e *MatchingEngine) Recover() error {
	filename, err := e.snapshots.LatestSnapshotFile()
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}

	symbols, err := e.snapshots.ReadSymbols(filename)
	if err != nil {
		return err
	}
	for _, symbol := range symbols {
		e.createBook(symbol)
	}

	maxOrderID, err := e.snapshots.LoadSnapshot(filename)
	if err != nil {
		return err
	}
	e.counter.FastForward(maxOrderID)

	logger.Info().
		Str("file", filename).
		Int("books", len(e.books)).
		Uint64("order_id", e.counter.OrderID()).
		Msg("engine state recovered")
	return nil
}

// Run recovers persisted state and then drives the sequencing loop until
// ctx is cancelled. Recoverable per-message failures become outbound error
// messages; invariant violations and snapshot I/O failures stop the engine
// with an error.
func (e *MatchingEngine) Run(ctx context.Context) error {
	if err := e.Recover(); err != nil {
		return fmt.Errorf("recover from snapshot: %w", err)
	}

	logger.Info().Str("version", EngineVersion).Msg("matching engine started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cmd, ok := e.inbound.Poll()
		if !ok {
			e.idle.Idle()
			continue
		}

		if err := e.Process(cmd); err != nil {
			if IsInvariantError(err) || cmd.Kind == protocol.CmdSnapshotTrigger {
				logger.Error().Err(err).Stringer("kind", cmd.Kind).Msg("fatal processing error")
				return err
			}
			logger.Warn().Err(err).Stringer("kind", cmd.Kind).Msg("message rejected")
			e.outbound.Publish(protocol.NewErrorEvent(err.Error(), cmd))
		}
	}
}

// Process handles one inbound command to completion. Exported so hosts can
// drive the engine without the polling loop, e.g. in replay tools.
func (e *MatchingEngine) Process(cmd *protocol.Command) error {
	switch cmd.Kind {
	case protocol.CmdInstrumentConfig:
		return e.handleInstrument(cmd.Instrument)
	case protocol.CmdNewOrder:
		return e.handleNewOrder(cmd.Order)
	case protocol.CmdBalanceDeposit:
		return e.handleDeposit(cmd.Deposit)
	case protocol.CmdSnapshotTrigger:
		_, err := e.snapshots.MakeSnapshot()
		return err
	default:
		return fmt.Errorf("%w: command kind %d", ErrInvalidParam, cmd.Kind)
	}
}

func (e *MatchingEngine) handleInstrument(cfg *protocol.InstrumentConfig) error {
	if cfg == nil || cfg.Symbol == "" || cfg.BaseAsset == "" || cfg.QuoteAsset == "" {
		return fmt.Errorf("%w: instrument config needs symbol, base and quote", ErrInvalidParam)
	}
	if err := e.instruments.Add(cfg); err != nil {
		return err
	}
	e.createBook(cfg.Symbol)

	logger.Info().
		Str("symbol", cfg.Symbol).
		Str("base", cfg.BaseAsset).
		Str("quote", cfg.QuoteAsset).
		Msg("instrument created")
	return nil
}

func (e *MatchingEngine) handleNewOrder(req *protocol.NewOrderRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty order", ErrInvalidParam)
	}
	if req.Symbol == "" {
		return fmt.Errorf("%w: order without symbol", ErrUnknownSymbol)
	}
	book, ok := e.books[req.Symbol]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSymbol, req.Symbol)
	}

	order := orderFromRequest(req)
	if err := e.pre.ValidateOrder(order); err != nil {
		return err
	}
	e.pre.AdmitOrder(order)
	if err := e.pre.LockBalance(order); err != nil {
		return err
	}
	e.post.SendExecReportNew(order)

	trades, matchErr := book.Match(order)
	for _, trade := range trades {
		if err := e.post.SettleTrade(trade.Taker, trade.Maker, trade.Qty, trade.Amount); err != nil {
			return err
		}
		e.post.SendExecReportTrade(trade.Taker, trade.Maker, trade.Qty, trade.Price)
	}
	if matchErr != nil {
		return matchErr
	}

	if !order.Filled() {
		if order.Type == Limit {
			if err := book.Add(order); err != nil {
				return err
			}
		} else if err := e.post.CancelOrder(order); err != nil {
			return err
		}
	}

	e.post.SendMarketData(book.BuildMarketData())
	return nil
}

func (e *MatchingEngine) handleDeposit(dep *protocol.BalanceDeposit) error {
	if dep == nil || dep.Asset == "" || !dep.Amount.IsPositive() {
		return fmt.Errorf("%w: deposit needs an asset and a positive amount", ErrInvalidParam)
	}
	if !e.instruments.KnowsAsset(dep.Asset) {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, dep.Asset)
	}

	e.accounts.GetOrCreate(dep.AccountID).Position(dep.Asset).Deposit(dep.Amount)
	return nil
}
