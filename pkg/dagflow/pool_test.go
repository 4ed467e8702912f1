package dagflow

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPool_RunsInSubmissionOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newPool(1, 8, discardLogger())
	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 5 {
		require.NoError(t, p.submit(context.Background(), func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	p.close()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	p := newPool(1, 1, slog.New(slog.NewTextHandler(&buf, nil)))

	var ran atomic.Bool
	require.NoError(t, p.submit(context.Background(), func() { panic("boom") }))
	require.NoError(t, p.submit(context.Background(), func() { ran.Store(true) }))
	p.close()

	assert.True(t, ran.Load(), "worker survives a panicking task")
	assert.Contains(t, buf.String(), "pool task panicked")
	assert.Contains(t, buf.String(), "boom")
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := newPool(2, 0, discardLogger())
	p.close()
	p.close()

	assert.True(t, p.isClosed())
	assert.ErrorIs(t, p.submit(context.Background(), func() {}), ErrSchedulerClosed)
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newPool(1, 0, discardLogger())
	release := make(chan struct{})
	require.NoError(t, p.submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	p.close()
}
