package match

import (
	"sync"

	"github.com/altex-exchange/matching-engine/protocol"
)

// Outbound publishes engine events (execution reports, market data, error
// messages) to downstream consumers. The engine thread is the sole producer;
// implementations must be safe to read from other goroutines.
type Outbound interface {
	Publish(events ...*protocol.Event)
}

// MemoryOutbound stores events in memory, useful for testing.
type MemoryOutbound struct {
	mu     sync.RWMutex
	events []*protocol.Event
}

// NewMemoryOutbound creates a new MemoryOutbound.
func NewMemoryOutbound() *MemoryOutbound {
	return &MemoryOutbound{
		events: make([]*protocol.Event, 0),
	}
}

// Publish appends events to the in-memory slice.
func (m *MemoryOutbound) Publish(events ...*protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

// Count returns the number of events stored.
func (m *MemoryOutbound) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Events returns a copy of all events stored.
func (m *MemoryOutbound) Events() []*protocol.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*protocol.Event, len(m.events))
	copy(events, m.events)
	return events
}

// Reports returns the execution reports in publish order.
func (m *MemoryOutbound) Reports() []*protocol.ExecutionReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var reports []*protocol.ExecutionReport
	for _, ev := range m.events {
		if ev.Kind == protocol.EventExecutionReport {
			reports = append(reports, ev.Report)
		}
	}
	return reports
}

// MarketData returns the market data snapshots in publish order.
func (m *MemoryOutbound) MarketData() []*protocol.MarketData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var snapshots []*protocol.MarketData
	for _, ev := range m.events {
		if ev.Kind == protocol.EventMarketData {
			snapshots = append(snapshots, ev.MarketData)
		}
	}
	return snapshots
}

// Errors returns the error messages in publish order.
func (m *MemoryOutbound) Errors() []*protocol.ErrorMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []*protocol.ErrorMessage
	for _, ev := range m.events {
		if ev.Kind == protocol.EventError {
			errs = append(errs, ev.Err)
		}
	}
	return errs
}

// LastMarketData returns the most recently published market data snapshot
// for symbol, or nil.
func (m *MemoryOutbound) LastMarketData(symbol string) *protocol.MarketData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if ev.Kind == protocol.EventMarketData && ev.MarketData.Symbol == symbol {
			return ev.MarketData
		}
	}
	return nil
}

// ChannelOutbound forwards events to a Go channel. Publish blocks when the
// channel is full, which keeps the outbound stream lossless at the cost of
// stalling the engine behind a slow consumer.
type ChannelOutbound struct {
	ch chan *protocol.Event
}

// NewChannelOutbound creates a ChannelOutbound with the given buffer size.
func NewChannelOutbound(buffer int) *ChannelOutbound {
	return &ChannelOutbound{
		ch: make(chan *protocol.Event, buffer),
	}
}

// Publish sends events to the channel.
func (c *ChannelOutbound) Publish(events ...*protocol.Event) {
	for _, ev := range events {
		c.ch <- ev
	}
}

// C returns the receive side of the channel.
func (c *ChannelOutbound) C() <-chan *protocol.Event {
	return c.ch
}
