package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutinePoolSubmitExecutesTask(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	defer p.Close()

	var ran atomic.Bool
	require.NoError(t, p.SubmitWait(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	assert.True(t, ran.Load())
}

func TestGoroutinePoolSubmitWaitPropagatesError(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	defer p.Close()

	boom := assertErr("boom")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGoroutinePoolRecoversFromPanic(t *testing.T) {
	var panicked atomic.Bool
	cfg := DefaultGoroutinePoolConfig()
	cfg.PanicHandler = func(r any) { panicked.Store(true) }
	p := NewGoroutinePool(cfg)
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		panic("task exploded")
	})
	assert.Error(t, err)
	assert.True(t, panicked.Load())
}

func TestGoroutinePoolClosedRejectsSubmit(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestGoroutinePoolRunsManyTasksConcurrently(t *testing.T) {
	cfg := DefaultGoroutinePoolConfig()
	cfg.MaxWorkers = 8
	p := NewGoroutinePool(cfg)
	defer p.Close()

	var count atomic.Int64
	const n = 50
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			count.Add(1)
			done <- struct{}{}
			return nil
		}))
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks to complete")
		}
	}
	assert.EqualValues(t, n, count.Load())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
