// Package worker starts the dedicated goroutine that owns a bus.
package worker

import (
	"context"
	"log/slog"
	"runtime"

	"devicebus-go/types"
)

// Pinned reports whether h asks for a dedicated OS thread. Go exposes no
// portable core affinity or thread priority, so any such hint locks the
// goroutine to its thread and the rest is left to the platform.
func Pinned(h types.WorkerHints) bool { return h.Core > 0 || h.Priority > 0 }

// Context is a running worker.
type Context struct {
	name string
	done chan struct{}
}

// Start runs fn on a new goroutine with ctx. Done closes when fn returns.
func Start(ctx context.Context, name string, h types.WorkerHints, log *slog.Logger, fn func(ctx context.Context)) *Context {
	if log == nil {
		log = slog.Default()
	}
	c := &Context{name: name, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		if Pinned(h) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		log.Debug("worker started", "worker", name, "core", h.Core, "priority", h.Priority, "stack", h.StackBytes)
		fn(ctx)
		log.Debug("worker stopped", "worker", name)
	}()
	return c
}

func (c *Context) Name() string { return c.name }

func (c *Context) Done() <-chan struct{} { return c.done }
