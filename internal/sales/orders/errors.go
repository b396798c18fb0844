package orders

import (
	"fmt"

	"github.com/odyssey-erp/cascade/internal/shared"
)

var (
	ErrNotFound = fmt.Errorf("sales order %w", shared.ErrNotFound)
	// ErrInvalidStatus wraps shared.ErrInvalidTransition.
	ErrInvalidStatus = fmt.Errorf("sales order: %w", shared.ErrInvalidTransition)
	// ErrNotConfirmed guards invoice and job order generation.
	ErrNotConfirmed = fmt.Errorf("sales order not confirmed: %w", shared.ErrInvalidTransition)
	// ErrOpenJobOrders blocks completion while job orders are unfinished.
	ErrOpenJobOrders = fmt.Errorf("sales order has unfinished job orders: %w", shared.ErrInvalidTransition)
	ErrVersionConflict = fmt.Errorf("sales order: %w", shared.ErrVersionConflict)
)
