package store

import (
	"context"

	"outbound-crm/internal/apperr"
)

// WithRetry runs fn in a transaction and, if it lost a unique-constraint race,
// runs the whole lookup-then-write once more. A second loss is a TransientConflict.
func WithRetry(ctx context.Context, st Store, op string, fn func(ctx context.Context, tx Tx) error) error {
	err := st.WithTx(ctx, fn)
	if !IsRetryable(err) {
		return err
	}
	err = st.WithTx(ctx, fn)
	if IsRetryable(err) {
		return apperr.Transient(op+": concurrent write conflict", err)
	}
	return err
}
