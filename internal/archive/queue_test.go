package archive

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueueCommitsInOrderPerProject(t *testing.T) {
	q := NewQueue(QueueConfig{Workers: 4, HighWaterMark: 64}, zap.NewNop())
	defer q.Close()

	var mu atomic.Int64
	var order []int64
	ch := make(chan int64, 10)

	for i := int64(0); i < 5; i++ {
		i := i
		require.NoError(t, q.Submit(context.Background(), CommitJob{
			ProjectID: 7,
			Commit: func(ctx context.Context) error {
				mu.Add(1)
				ch <- i
				return nil
			},
		}))
	}

	require.NoError(t, q.FlushAsyncCommits(context.Background()))
	close(ch)
	for v := range ch {
		order = append(order, v)
	}

	assert.EqualValues(t, 5, mu.Load())
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, order)
}

func TestFlushAsyncCommitsWaitsForPending(t *testing.T) {
	q := NewQueue(QueueConfig{Workers: 1, HighWaterMark: 8}, zap.NewNop())
	defer q.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, q.Submit(context.Background(), CommitJob{
		ProjectID: 1,
		Commit: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	<-started
	done := make(chan struct{})
	go func() {
		_ = q.FlushAsyncCommits(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("flush returned before commit finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush never returned after commit finished")
	}
}
