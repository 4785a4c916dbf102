package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("same key waits for release", func(t *testing.T) {
		var k keyedMutex
		unlock, err := k.lock(context.Background(), "bucket")
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			second, err := k.lock(context.Background(), "bucket")
			if assert.NoError(t, err) {
				second()
			}
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Fatal("second lock acquired while the first was held")
		case <-time.After(20 * time.Millisecond):
		}
		unlock()
		<-acquired
		assert.Zero(t, k.held())
	})

	t.Run("different keys do not block", func(t *testing.T) {
		var k keyedMutex
		a, err := k.lock(context.Background(), "a")
		require.NoError(t, err)
		b, err := k.lock(context.Background(), "b")
		require.NoError(t, err)
		assert.Equal(t, 2, k.held())
		a()
		b()
		assert.Zero(t, k.held())
	})

	t.Run("cancelled wait gives up", func(t *testing.T) {
		var k keyedMutex
		unlock, err := k.lock(context.Background(), "bucket")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = k.lock(ctx, "bucket")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()
		assert.Zero(t, k.held())
	})
}
