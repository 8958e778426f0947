package protocol

import (
	"github.com/shopspring/decimal"
)

// CommandKind identifies the payload carried by a Command.
type CommandKind uint8

const (
	CmdUnknown          CommandKind = 0
	CmdInstrumentConfig CommandKind = 1
	CmdNewOrder         CommandKind = 2
	CmdBalanceDeposit   CommandKind = 3
	CmdSnapshotTrigger  CommandKind = 4
)

// String returns a human readable command kind name.
func (k CommandKind) String() string {
	switch k {
	case CmdInstrumentConfig:
		return "instrument_config"
	case CmdNewOrder:
		return "new_order"
	case CmdBalanceDeposit:
		return "balance_deposit"
	case CmdSnapshotTrigger:
		return "snapshot_trigger"
	}
	return "unknown"
}

// InstrumentConfig creates a trading instrument and an empty order book.
// Instruments are immutable once created.
type InstrumentConfig struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
}

// NewOrderRequest admits a new order into the engine.
// Price is only meaningful for limit orders. QuoteQty sizes a market buy in
// the quote asset; when set, Qty must be zero.
type NewOrderRequest struct {
	Symbol        string          `json:"symbol"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	AccountID     uint64          `json:"account_id"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price,omitempty"`
	Qty           decimal.Decimal `json:"qty,omitempty"`
	QuoteQty      decimal.Decimal `json:"quote_qty,omitempty"`
}

// BalanceDeposit credits an account position in one asset.
type BalanceDeposit struct {
	AccountID uint64          `json:"account_id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
}

// Command is the closed variant of inbound messages. Exactly one payload
// pointer is set, selected by Kind; SnapshotTrigger carries no payload.
type Command struct {
	Kind       CommandKind       `json:"kind"`
	Instrument *InstrumentConfig `json:"instrument,omitempty"`
	Order      *NewOrderRequest  `json:"order,omitempty"`
	Deposit    *BalanceDeposit   `json:"deposit,omitempty"`
}

// NewInstrumentCommand wraps an InstrumentConfig into a Command.
func NewInstrumentCommand(cfg *InstrumentConfig) *Command {
	return &Command{Kind: CmdInstrumentConfig, Instrument: cfg}
}

// NewOrderCommand wraps a NewOrderRequest into a Command.
func NewOrderCommand(req *NewOrderRequest) *Command {
	return &Command{Kind: CmdNewOrder, Order: req}
}

// NewDepositCommand wraps a BalanceDeposit into a Command.
func NewDepositCommand(dep *BalanceDeposit) *Command {
	return &Command{Kind: CmdBalanceDeposit, Deposit: dep}
}

// NewSnapshotCommand builds a snapshot trigger command.
func NewSnapshotCommand() *Command {
	return &Command{Kind: CmdSnapshotTrigger}
}
