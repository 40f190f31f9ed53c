// Package exithook keeps the process-wide fallback list of resources that
// must be released before the process exits.
//
// Controllers register themselves when created and unregister when closed, so
// normally the registry is empty at exit. A program defers Run in its main
// function so that a stage left connected by an abnormal exit path still has
// its motors stopped and released.
//
// A controller is not safe for concurrent use, so Run must be called by the
// goroutine that drives the registered controllers. NotifyContext turns a
// signal into a cancelled context for that goroutine; it never runs the
// registry itself.
package exithook

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-xystage/logger"
)

// Handle identifies a registration.
type Handle uint64

var (
	nextHandle atomic.Uint64
	closers    = xsync.NewMapOf[Handle, io.Closer]()
)

// Register adds c to the registry and returns its handle.
func Register(c io.Closer) Handle {
	h := Handle(nextHandle.Add(1))
	closers.Store(h, c)

	return h
}

// Unregister removes the registration. Unknown handles are ignored.
func Unregister(h Handle) {
	closers.Delete(h)
}

// Len returns the number of registered closers.
func Len() int {
	return closers.Size()
}

// Run closes and removes every registered closer. Errors are logged.
func Run() {
	closers.Range(func(h Handle, c io.Closer) bool {
		if _, loaded := closers.LoadAndDelete(h); !loaded {
			return true
		}
		if err := c.Close(); err != nil {
			logger.Error("exit hook close failed", "handle", uint64(h), "error", err)
		}

		return true
	})
}

// NotifyContext returns a copy of ctx that is cancelled when one of sigs
// (default os.Interrupt) is received. Blocking controller calls made with the
// returned context end early, after which the owner closes its controllers,
// typically through a deferred Run.
//
// The returned stop function releases the signal handler and cancels the
// context.
func NotifyContext(ctx context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}

	sigCtx, cancel := signal.NotifyContext(ctx, sigs...)

	var stopped atomic.Bool
	go func() {
		<-sigCtx.Done()
		if ctx.Err() == nil && !stopped.Load() {
			logger.Warn("signal received, cancelling stage operations", "registered", Len())
		}
	}()

	return sigCtx, func() {
		stopped.Store(true)
		cancel()
	}
}
