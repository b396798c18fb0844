package shared

import "context"

// TxRunner runs a unit of work atomically. Nested calls join the outer unit.
type TxRunner interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

// DirectRunner runs fn without opening a transaction.
type DirectRunner struct{}

// InTx implements TxRunner.
func (DirectRunner) InTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
