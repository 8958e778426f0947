package match

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/altex-exchange/matching-engine/protocol"
	"github.com/rs/xid"
)

// SnapshotItemType tags one domain's serialized collection inside a
// snapshot file.
type SnapshotItemType string

const (
	SnapshotItemAccount    SnapshotItemType = "ACCOUNT"
	SnapshotItemInstrument SnapshotItemType = "INSTRUMENT"
	SnapshotItemOrderBook  SnapshotItemType = "ORDER_BOOK"
)

// SnapshotItem is one element of a snapshot file. Data holds the serialized
// collection for the tagged domain; ORDER_BOOK data is the book's resting
// orders in per-level FIFO order.
type SnapshotItem struct {
	Type SnapshotItemType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// snapshotFile is the on-disk envelope: the schema version plus the tagged
// items. Files written under a different schema version are refused on load.
type snapshotFile struct {
	Version int            `json:"version"`
	Items   []SnapshotItem `json:"items"`
}

const snapshotSuffix = ".snapshot.json"

// SnapshotManager persists and restores account, instrument and order-book
// state. Snapshot creation runs synchronously on the engine thread, so a
// file is always a consistent, non-torn view of all state.
type SnapshotManager struct {
	dir         string
	serializer  protocol.Serializer
	accounts    *AccountRepository
	instruments *InstrumentRepository
	books       map[string]*OrderBook
}

// NewSnapshotManager creates a manager writing to dir.
func NewSnapshotManager(dir string, serializer protocol.Serializer, accounts *AccountRepository, instruments *InstrumentRepository) *SnapshotManager {
	return &SnapshotManager{
		dir:         dir,
		serializer:  serializer,
		accounts:    accounts,
		instruments: instruments,
		books:       make(map[string]*OrderBook),
	}
}

// RegisterBook adds a live order book to the snapshot set.
func (m *SnapshotManager) RegisterBook(book *OrderBook) {
	m.books[book.Symbol()] = book
}

func (m *SnapshotManager) sortedSymbols() []string {
	symbols := make([]string, 0, len(m.books))
	for symbol := range m.books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (m *SnapshotManager) appendItem(items []SnapshotItem, typ SnapshotItemType, v any) ([]SnapshotItem, error) {
	data, err := m.serializer.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s snapshot item: %w", typ, err)
	}
	return append(items, SnapshotItem{Type: typ, Data: data}), nil
}

// MakeSnapshot serializes instrument, account and per-book order state into
// one timestamp-named file and returns its path. The file is written to a
// temporary name and renamed, so a failed write never leaves a partial
// snapshot behind and never touches in-memory state.
func (m *SnapshotManager) MakeSnapshot() (string, error) {
	items := make([]SnapshotItem, 0, 2+len(m.books))

	items, err := m.appendItem(items, SnapshotItemInstrument, m.instruments.All())
	if err != nil {
		return "", err
	}
	items, err = m.appendItem(items, SnapshotItemAccount, m.accounts.All())
	if err != nil {
		return "", err
	}
	for _, symbol := range m.sortedSymbols() {
		items, err = m.appendItem(items, SnapshotItemOrderBook, m.books[symbol].RestingOrders())
		if err != nil {
			return "", err
		}
	}

	payload, err := m.serializer.Marshal(&snapshotFile{
		Version: SnapshotSchemaVersion,
		Items:   items,
	})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := time.Now().UTC().Format("20060102T150405.000000000") + "-" + xid.New().String() + snapshotSuffix
	path := filepath.Join(m.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize snapshot: %w", err)
	}

	logger.Info().Str("file", path).Int("items", len(items)).Msg("snapshot created")
	return path, nil
}

// LatestSnapshotFile returns the most recently modified snapshot file in
// the directory, or ErrNoSnapshot if none exists.
func (m *SnapshotManager) LatestSnapshotFile() (string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("read snapshot dir: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return "", fmt.Errorf("stat snapshot %s: %w", entry.Name(), err)
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(m.dir, entry.Name())
			latestMod = info.ModTime()
		}
	}

	if latest == "" {
		return "", ErrNoSnapshot
	}
	return latest, nil
}

func (m *SnapshotManager) readItems(filename string) ([]SnapshotItem, error) {
	payload, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", filename, err)
	}
	var file snapshotFile
	if err := m.serializer.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filename, err)
	}
	if file.Version != SnapshotSchemaVersion {
		return nil, fmt.Errorf("snapshot %s: schema version %d, engine supports %d",
			filename, file.Version, SnapshotSchemaVersion)
	}
	return file.Items, nil
}

// ReadSymbols peeks the INSTRUMENT item of a snapshot without loading any
// state, so the engine can pre-create order books before LoadSnapshot
// populates them.
func (m *SnapshotManager) ReadSymbols(filename string) ([]string, error) {
	items, err := m.readItems(filename)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.Type != SnapshotItemInstrument {
			continue
		}
		var configs []*protocol.InstrumentConfig
		if err := m.serializer.Unmarshal(item.Data, &configs); err != nil {
			return nil, fmt.Errorf("decode instrument item: %w", err)
		}
		symbols := make([]string, 0, len(configs))
		for _, cfg := range configs {
			symbols = append(symbols, cfg.Symbol)
		}
		return symbols, nil
	}
	return nil, nil
}

// LoadSnapshot restores all state from a snapshot file and returns the
// highest order ID seen among recovered resting orders, for fast-forwarding
// the global counter. Books for every symbol in the file must already be
// registered.
func (m *SnapshotManager) LoadSnapshot(filename string) (uint64, error) {
	items, err := m.readItems(filename)
	if err != nil {
		return 0, err
	}

	var maxOrderID uint64
	for _, item := range items {
		switch item.Type {
		case SnapshotItemInstrument:
			var configs []*protocol.InstrumentConfig
			if err := m.serializer.Unmarshal(item.Data, &configs); err != nil {
				return 0, fmt.Errorf("decode instrument item: %w", err)
			}
			m.instruments.LoadAll(configs)

		case SnapshotItemAccount:
			var accounts []*Account
			if err := m.serializer.Unmarshal(item.Data, &accounts); err != nil {
				return 0, fmt.Errorf("decode account item: %w", err)
			}
			m.accounts.LoadAll(accounts)

		case SnapshotItemOrderBook:
			var orders []*Order
			if err := m.serializer.Unmarshal(item.Data, &orders); err != nil {
				return 0, fmt.Errorf("decode order book item: %w", err)
			}
			for _, order := range orders {
				book, ok := m.books[order.Symbol]
				if !ok {
					return 0, fmt.Errorf("%w: recovered order %d references %q", ErrUnknownSymbol, order.ID, order.Symbol)
				}
				if err := book.Add(order); err != nil {
					return 0, fmt.Errorf("restore order %d: %w", order.ID, err)
				}
				if order.ID > maxOrderID {
					maxOrderID = order.ID
				}
			}

		default:
			return 0, fmt.Errorf("unknown snapshot item type %q", item.Type)
		}
	}

	logger.Info().Str("file", filename).Uint64("max_order_id", maxOrderID).Msg("snapshot loaded")
	return maxOrderID, nil
}
