package indexer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunnerProcessesEveryJob(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	r := NewRunner(3, func(ctx context.Context, job Job) {
		mu.Lock()
		seen[job.BookmarkID] = true
		mu.Unlock()
	}, zap.NewNop())

	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		require.NoError(t, r.Submit(Job{BookmarkID: id}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	assert.Len(t, seen, 7)
	assert.Equal(t, 0, r.Pending())
	require.NoError(t, r.Shutdown(ctx))
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	r := NewRunner(2, func(ctx context.Context, job Job) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
	}, zap.NewNop())

	for i := 0; i < 8; i++ {
		require.NoError(t, r.Submit(Job{BookmarkID: "x"}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunnerSurvivesPanics(t *testing.T) {
	var handled atomic.Int32
	r := NewRunner(1, func(ctx context.Context, job Job) {
		if job.BookmarkID == "bad" {
			panic("boom")
		}
		handled.Add(1)
	}, zap.NewNop())

	require.NoError(t, r.Submit(Job{BookmarkID: "bad"}))
	require.NoError(t, r.Submit(Job{BookmarkID: "good"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, int64(1), r.panicked.Load())
}

func TestRunnerRejectsAfterShutdown(t *testing.T) {
	r := NewRunner(1, func(ctx context.Context, job Job) {}, zap.NewNop())
	require.NoError(t, r.Shutdown(context.Background()))
	assert.ErrorIs(t, r.Submit(Job{BookmarkID: "late"}), ErrRunnerStopped)
	// A second shutdown is a no-op.
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRunnerShutdownTimeoutCancelsRunningJobs(t *testing.T) {
	var handled atomic.Int32
	r := NewRunner(1, func(ctx context.Context, job Job) {
		handled.Add(1)
		<-ctx.Done()
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Submit(Job{BookmarkID: "slow"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, handled.Load(), int32(3))
	assert.Equal(t, 0, r.Pending())
}

func TestWaitWithNothingQueued(t *testing.T) {
	r := NewRunner(0, func(ctx context.Context, job Job) {}, zap.NewNop())
	assert.Equal(t, 3, r.size)
	assert.NoError(t, r.Wait(context.Background()))
}

func TestRunnerSubmitRacingShutdown(t *testing.T) {
	var ran atomic.Int64
	r := NewRunner(2, func(ctx context.Context, job Job) {
		ran.Add(1)
	}, zap.NewNop())

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := r.Submit(Job{BookmarkID: "x"}); err != nil {
					assert.ErrorIs(t, err, ErrRunnerStopped)
					return
				}
				accepted.Add(1)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	wg.Wait()

	// Every job accepted before the stop ran; nothing is left in flight.
	assert.Equal(t, accepted.Load(), ran.Load())
	assert.Equal(t, 0, r.Pending())
}
