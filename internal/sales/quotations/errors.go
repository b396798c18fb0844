package quotations

import (
	"fmt"

	"github.com/odyssey-erp/cascade/internal/shared"
)

var (
	ErrNotFound = fmt.Errorf("quotation %w", shared.ErrNotFound)
	// ErrInvalidStatus wraps shared.ErrInvalidTransition.
	ErrInvalidStatus = fmt.Errorf("quotation: %w", shared.ErrInvalidTransition)
	// ErrRevisionLocked indicates the quotation can no longer be revised.
	ErrRevisionLocked = fmt.Errorf("quotation locked for revision: %w", shared.ErrInvalidTransition)
	// ErrExpired indicates the validity date has passed.
	ErrExpired = fmt.Errorf("quotation expired: %w", shared.ErrInvalidTransition)
	// ErrVersionConflict indicates a concurrent update.
	ErrVersionConflict = fmt.Errorf("quotation: %w", shared.ErrVersionConflict)
)
