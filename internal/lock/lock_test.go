package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSkipsWhenBusy(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "conv:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "conv:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	other, ok, _ := l.TryLock(ctx, "conv:2", time.Minute)
	assert.True(t, ok)
	other()

	unlock()
	unlock()

	again, ok, _ := l.TryLock(ctx, "conv:1", time.Minute)
	assert.True(t, ok)
	again()
}

func TestLocalSingleWinner(t *testing.T) {
	l := NewLocal()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := l.TryLock(context.Background(), "k", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
