package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesOrder(t *testing.T) {
	pool := NewPool(4)

	out, err := Map(context.Background(), pool, 100, func(_ context.Context, i int) (int, error) {
		return i * i, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 100)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestMapEmptyInput(t *testing.T) {
	pool := NewPool(4)

	out, err := Map(context.Background(), pool, 0, func(_ context.Context, i int) (int, error) {
		return i, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMapPropagatesFirstError(t *testing.T) {
	pool := NewPool(2)
	boom := errors.New("boom")

	_, err := Map(context.Background(), pool, 50, func(_ context.Context, i int) (int, error) {
		if i == 7 {
			return 0, boom
		}
		return i, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestMapCanceledContext(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Map(ctx, pool, 10, func(ctx context.Context, i int) (int, error) {
		return i, ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPoolDefaultsSize(t *testing.T) {
	assert.Equal(t, 8, NewPool(0).Size())
	assert.Equal(t, 3, NewPool(3).Size())
}
