package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/scholar-x/pkg/infra/pool"
)

func TestSubmitRunsTasks(t *testing.T) {
	p, err := pool.New("test", pool.IngestConfig(4))
	require.NoError(t, err)
	defer p.Release()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(20), counter.Load())

	stats := p.Stats()
	assert.Equal(t, int64(20), stats.Submitted)
	assert.Equal(t, int64(20), stats.Completed)
	assert.Zero(t, stats.Failed)
}

func TestSubmitAfterRelease(t *testing.T) {
	p, err := pool.New("test", nil)
	require.NoError(t, err)

	p.Release()
	assert.ErrorIs(t, p.Submit(func() {}), pool.ErrPoolClosed)
}

func TestNonblockingOverload(t *testing.T) {
	p, err := pool.New("test", &pool.Config{
		Capacity:       1,
		ExpiryDuration: time.Second,
		Nonblocking:    true,
	})
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		<-block
	}))

	// Worker is occupied and the pool cannot queue, so this must be rejected.
	err = p.Submit(func() {})
	assert.ErrorIs(t, err, pool.ErrPoolOverload)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(block)
	wg.Wait()
}

func TestSubmitWithContextCancelled(t *testing.T) {
	p, err := pool.New("test", pool.IngestConfig(2))
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.SubmitWithContext(ctx, func() {
		t.Error("task must not run with a cancelled context")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPanicIsCountedAndRecovered(t *testing.T) {
	p, err := pool.New("test", pool.IngestConfig(2))
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Submit(func() {
		panic("task blew up")
	}))

	// The panic handler runs asynchronously on the worker goroutine.
	require.Eventually(t, func() bool {
		return p.Stats().Panics == 1
	}, time.Second, 10*time.Millisecond)

	// Pool stays usable after a worker panic.
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() { wg.Done() }))
	wg.Wait()
}

func TestTune(t *testing.T) {
	p, err := pool.New("test", pool.IngestConfig(2))
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, 2, p.Cap())
	p.Tune(8)
	assert.Equal(t, 8, p.Cap())
}

func TestReleaseTimeoutWaitsForTasks(t *testing.T) {
	p, err := pool.New("test", pool.IngestConfig(2))
	require.NoError(t, err)

	var done atomic.Bool
	require.NoError(t, p.Submit(func() {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	}))

	require.NoError(t, p.ReleaseTimeout(time.Second))
	assert.True(t, done.Load())
}
