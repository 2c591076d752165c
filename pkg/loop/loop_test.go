package loop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safemelbourne/livemap/pkg/loop"
)

func runLoop(t *testing.T) (*loop.Loop, context.CancelFunc) {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l, cancel
}

func TestLoopPreservesOrder(t *testing.T) {
	l, _ := runLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopPostFromManyGoroutines(t *testing.T) {
	l, _ := runLoop(t)

	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Post(func() { count++ })
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, l.Call(context.Background(), func() { final = count }))
	assert.Equal(t, 500, final)
}

func TestLoopAfterFunc(t *testing.T) {
	l, _ := runLoop(t)

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoopAfterFuncDisposed(t *testing.T) {
	l, _ := runLoop(t)

	fired := false
	dispose := l.AfterFunc(5*time.Millisecond, func() { fired = true })
	dispose()
	dispose()

	time.Sleep(30 * time.Millisecond)
	var got bool
	require.NoError(t, l.Call(context.Background(), func() { got = fired }))
	assert.False(t, got)
}

func TestLoopRecoversPanic(t *testing.T) {
	l, _ := runLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestCallHonoursContext(t *testing.T) {
	l := loop.New() // never run
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManual(t *testing.T) {
	m := loop.NewManual()

	var order []string
	m.AfterFunc(2*time.Second, func() { order = append(order, "late") })
	m.AfterFunc(1*time.Second, func() {
		order = append(order, "early")
		m.Post(func() { order = append(order, "posted") })
	})
	cancel := m.AfterFunc(1500*time.Millisecond, func() { order = append(order, "canceled") })
	cancel()

	assert.Equal(t, 2, m.Pending())
	m.Advance(999 * time.Millisecond)
	assert.Empty(t, order)

	m.Advance(time.Second)
	assert.Equal(t, []string{"early", "posted"}, order)

	m.Advance(time.Second)
	assert.Equal(t, []string{"early", "posted", "late"}, order)
	assert.Equal(t, 2999*time.Millisecond, m.Now())
	assert.Zero(t, m.Pending())
}

func TestManualCallRunsInline(t *testing.T) {
	m := loop.NewManual()
	ran := false
	require.NoError(t, m.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestGuard(t *testing.T) {
	var g loop.Guard
	assert.False(t, g.Held())
	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())
	assert.True(t, g.Held())
	g.Release()
	assert.True(t, g.TryAcquire())
}
