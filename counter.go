package match

// GlobalCounter generates order IDs and execution IDs shared across all
// books. It is owned by the engine thread and deliberately not atomic:
// exactly one goroutine mutates it (see the concurrency model in engine.go).
type GlobalCounter struct {
	orderID uint64
	execID  uint64
}

// NewGlobalCounter creates a counter starting at zero.
func NewGlobalCounter() *GlobalCounter {
	return &GlobalCounter{}
}

// NextOrderID returns the next monotonic order ID.
func (c *GlobalCounter) NextOrderID() uint64 {
	c.orderID++
	return c.orderID
}

// NextExecID returns the next monotonic execution ID.
func (c *GlobalCounter) NextExecID() uint64 {
	c.execID++
	return c.execID
}

// OrderID returns the last issued order ID.
func (c *GlobalCounter) OrderID() uint64 {
	return c.orderID
}

// FastForward advances the order ID counter past maxOrderID so that IDs
// assigned after snapshot recovery never collide with recovered orders.
func (c *GlobalCounter) FastForward(maxOrderID uint64) {
	if c.orderID < maxOrderID {
		c.orderID = maxOrderID
	}
}
