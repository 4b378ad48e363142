package store_test

import (
	"context"
	"errors"
	"testing"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/store"
	"outbound-crm/internal/store/memory"

	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	calls := 0
	err := store.WithRetry(ctx, st, "op", func(ctx context.Context, tx store.Tx) error {
		calls++
		if calls == 1 {
			return store.ErrUniqueViolation
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = store.WithRetry(ctx, st, "op", func(ctx context.Context, tx store.Tx) error {
		calls++
		return store.ErrUniqueViolation
	})
	assert.ErrorIs(t, err, apperr.ErrTransientConflict)
	assert.ErrorIs(t, err, store.ErrUniqueViolation)
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	calls = 0
	err = store.WithRetry(ctx, st, "op", func(ctx context.Context, tx store.Tx) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
