// Package async provides safe goroutine launching for background tasks.
//
// SafeGo runs a function with panic recovery, a timeout and error logging:
//
//	async.SafeGo(ctx, 2*time.Second, "forward event", func(ctx context.Context) error {
//		return forwarder.Forward(ctx, event)
//	})
//
// Failures are logged through the logger installed with SetLogger and are
// never returned to the caller.
package async
