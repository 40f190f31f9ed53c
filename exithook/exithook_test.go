package exithook

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	calls atomic.Int32
	err   error
}

func (c *countingCloser) Close() error {
	c.calls.Add(1)
	return c.err
}

func TestRegisterRun(t *testing.T) {
	a := &countingCloser{}
	b := &countingCloser{err: errors.New("already gone")}
	c := &countingCloser{}

	ha := Register(a)
	Register(b)
	hc := Register(c)
	assert.NotEqual(t, ha, hc)

	Unregister(hc)
	Unregister(hc)

	Run()
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Zero(t, c.calls.Load())
	assert.Zero(t, Len())

	Run()
	assert.Equal(t, int32(1), a.calls.Load(), "closers run once")
}

func TestNotifyContext(t *testing.T) {
	require := require.New(t)

	c := &countingCloser{}
	h := Register(c)
	t.Cleanup(func() { Unregister(h) })

	ctx, stop := NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	require.NoError(syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by signal")
	}
	require.ErrorIs(ctx.Err(), context.Canceled)

	// the signal only cancels; the owner runs the registry
	time.Sleep(20 * time.Millisecond)
	require.Zero(c.calls.Load())

	Run()
	require.Equal(int32(1), c.calls.Load())
}

func TestNotifyContext_Stop(t *testing.T) {
	c := &countingCloser{}
	h := Register(c)
	t.Cleanup(func() { Unregister(h) })

	ctx, stop := NotifyContext(context.Background())
	stop()
	stop()

	require.Error(t, ctx.Err())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.calls.Load(), "stopping must not run the registry")
}
