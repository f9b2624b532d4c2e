package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// InsufficientStockError is returned by the execution transaction when the
// locked re-verification finds less stock than requested. This is a business
// condition (another request won the race), not a system failure.
type InsufficientStockError struct {
	MedicineName string
	Available    int
	Requested    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("storage: insufficient stock for %s (available: %d, requested: %d)",
		e.MedicineName, e.Available, e.Requested)
}

// AsInsufficientStock unwraps err into an InsufficientStockError, if it is one.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}
