package dbpool

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestReply(t *testing.T) {
	ctx := context.Background()
	noDispose := func(int) { t.Fatalf("unexpected dispose") }

	t.Run("Send", func(t *testing.T) {
		r := newReply[int](ctx)
		assert.False(t, r.canceled())
		require.True(t, r.send(42))
		v, err := r.await(ctx, noDispose)
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		// one shot: the second send loses
		assert.False(t, r.send(43))
	})

	t.Run("Drop", func(t *testing.T) {
		r := newReply[int](ctx)
		r.drop(ErrDispatchLost)
		r.drop(ErrDispatchClosed)
		_, err := r.await(ctx, noDispose)
		assert.ErrorIs(t, err, ErrDispatchLost)
		assert.False(t, r.send(1))
	})

	t.Run("AbandonBeforeSend", func(t *testing.T) {
		r := newReply[int](ctx)
		_, ok := r.abandon()
		assert.False(t, ok)
		assert.True(t, r.canceled())
		assert.False(t, r.send(1), "send after abandon must fail")
	})

	t.Run("AbandonAfterSend", func(t *testing.T) {
		r := newReply[int](ctx)
		require.True(t, r.send(7))
		v, ok := r.abandon()
		assert.True(t, ok)
		assert.Equal(t, 7, v)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		r := newReply[int](cctx)
		cancel()
		assert.True(t, r.canceled())

		// the worker drops, the caller reports its own context error
		r.drop(errCanceled)
		_, err := r.await(cctx, noDispose)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("AwaitCanceledDisposesRacingValue", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		r := newReply[int](cctx)

		var disposed []int
		_, err := r.await(cctx, func(v int) { disposed = append(disposed, v) })
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, disposed)

		// after abandon the worker keeps its value
		assert.False(t, r.send(5))
	})
}

func TestCommandKind(t *testing.T) {
	single := newKeyCommand(context.Background(), nil, []byte("a"))
	assert.Equal(t, 1, single.keyCount())
	assert.Equal(t, "get", single.kind.String())
	// single keys are stored inline
	assert.Equal(t, &single.get.inline[0], &single.get.keys[0])

	batch := newGetCommand(context.Background(), nil, [][]byte{[]byte("a"), []byte("b")})
	assert.Equal(t, 2, batch.keyCount())

	// a batch of one is still executed as a point lookup
	one := newGetCommand(context.Background(), nil, [][]byte{[]byte("a")})
	assert.Equal(t, 1, one.keyCount())

	seek := newSeekCommand(context.Background(), nil, nil, 0, nil)
	assert.Equal(t, "iter", seek.kind.String())
	assert.Equal(t, 0, seek.keyCount())
}
