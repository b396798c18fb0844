package warehouse

import (
	"fmt"

	"github.com/odyssey-erp/cascade/internal/shared"
)

var (
	// ErrInsufficientStock indicates a pool would go negative.
	ErrInsufficientStock = fmt.Errorf("warehouse: %w", shared.ErrInsufficientStock)
	// ErrInvalidQuantity indicates a zero, negative or non-finite quantity.
	ErrInvalidQuantity = fmt.Errorf("warehouse: %w: quantity must be positive", shared.ErrValidation)
	// ErrReservedPoolManaged rejects manual changes to RESERVED.
	ErrReservedPoolManaged = fmt.Errorf("warehouse: %w: RESERVED is managed by sales order confirmation", shared.ErrValidation)
	// ErrNoReservation indicates a sales order holds no allocations.
	ErrNoReservation = fmt.Errorf("warehouse: reservation %w", shared.ErrNotFound)
)
