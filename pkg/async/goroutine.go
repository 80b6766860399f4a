package async

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

var logger atomic.Pointer[observability.Logger]

// SetLogger sets the logger used to report background task failures
func SetLogger(l *observability.Logger) {
	logger.Store(l)
}

func taskLogger(taskName string) *observability.Logger {
	l := logger.Load()
	if l == nil {
		l = observability.NewLogger(observability.InfoLevel, nil)
	}
	return l.WithField("task", taskName)
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(ctx, 2*time.Second, "forward tenantSwitched", func(ctx context.Context) error {
//	    return forwarder.Forward(ctx, event)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				taskLogger(taskName).
					WithField("stack", string(debug.Stack())).
					Errorf("panic in background task: %v", r)
			}
		}()

		if err := fn(ctx); err != nil {
			taskLogger(taskName).WithError(err).Warn("background task failed")
		}
	}()
}
