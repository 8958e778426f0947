package match

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrDuplicateSymbol     = errors.New("symbol already exists")
	ErrAccountNotFound     = errors.New("account not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownAsset        = errors.New("asset is not used by any instrument")
	ErrInvalidParam        = errors.New("the param is invalid")
	ErrPriceMismatch       = errors.New("order price does not match level price")
	ErrIterationActive     = errors.New("level is being iterated, object removal is not allowed")
	ErrBookCapacity        = errors.New("order book capacity exceeded")
	ErrNoSnapshot          = errors.New("no snapshot available")
)

// InvariantError marks a programming/invariant violation rather than bad
// input: locking more than the validated balance, price mismatch inside a
// level, capacity overflow of an array-backed book. The engine treats these
// as fatal instead of converting them to an outbound ErrorMessage.
type InvariantError struct {
	err error
}

// NewInvariantError wraps err as an invariant violation.
func NewInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{err: fmt.Errorf(format, args...)}
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.err.Error()
}

func (e *InvariantError) Unwrap() error {
	return e.err
}

// IsInvariantError reports whether err is (or wraps) an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
