package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	p := NewWorkerPool(4, 16, nil)
	p.Start()
	defer p.Stop()

	var n atomic.Int32
	for range 100 {
		require.NoError(t, p.Submit(context.Background(), func() { n.Add(1) }))
	}
	assert.Eventually(t, func() bool { return n.Load() == 100 }, time.Second, time.Millisecond)
}

func TestWorkerPoolSurvivesPanic(t *testing.T) {
	p := NewWorkerPool(1, 4, nil)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Submit(context.Background(), func() { panic("boom") }))
	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from panic")
	}
}

func TestWorkerPoolSubmitBlocksUntilContextDone(t *testing.T) {
	p := NewWorkerPool(1, 0, nil)
	// not started: nobody drains the queue
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPoolStopped(t *testing.T) {
	p := NewWorkerPool(2, 4, nil)
	p.Start()
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolStopped)
}
