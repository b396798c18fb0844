package joborders

import (
	"fmt"

	"github.com/odyssey-erp/cascade/internal/shared"
)

var (
	ErrNotFound     = fmt.Errorf("job order %w", shared.ErrNotFound)
	ErrItemNotFound = fmt.Errorf("job order item %w", shared.ErrNotFound)
	// ErrInvalidStatus wraps shared.ErrInvalidTransition.
	ErrInvalidStatus = fmt.Errorf("job order: %w", shared.ErrInvalidTransition)
	// ErrShipmentSlotOutOfRange rejects a shipment number beyond the slot cap.
	ErrShipmentSlotOutOfRange = fmt.Errorf("job order: %w: shipment number out of range", shared.ErrValidation)
	// ErrShipmentSlotsFull indicates every shipment slot of an item is used.
	ErrShipmentSlotsFull = fmt.Errorf("job order: all shipment slots used: %w", shared.ErrConflict)
	// ErrShipmentSlotLocked rejects edits to a slot written by a delivery receipt.
	ErrShipmentSlotLocked = fmt.Errorf("job order: %w: shipment slot belongs to a delivery receipt", shared.ErrInvalidTransition)
	// ErrInsufficientReady indicates shipping more than is reserved.
	ErrInsufficientReady = fmt.Errorf("job order: ready quantity: %w", shared.ErrInsufficientStock)
	// ErrNothingReady indicates a delivery receipt with no ready quantity.
	ErrNothingReady = fmt.Errorf("job order: nothing ready to deliver: %w", shared.ErrInsufficientStock)
	// ErrExceedsOrder rejects production beyond the ordered quantity.
	ErrExceedsOrder = fmt.Errorf("job order: %w: production exceeds order quantity", shared.ErrValidation)
	ErrVersionConflict = fmt.Errorf("job order: %w", shared.ErrVersionConflict)
)
