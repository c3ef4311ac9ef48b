package tools

import (
	"context"
	"log"
)

// ToolFunc defines a function executed asynchronously.
type ToolFunc func(ctx context.Context) error

// Dispatch runs the provided tool in a separate goroutine. Errors are logged
// under the tool name; the caller never waits for the result.
func Dispatch(ctx context.Context, name string, fn ToolFunc) {
	go func() {
		if err := fn(ctx); err != nil {
			log.Printf("[%s] %v", name, err)
		}
	}()
}

// DispatchAndWait runs the tool like Dispatch and returns a channel that is
// closed once it has finished.
func DispatchAndWait(ctx context.Context, name string, fn ToolFunc) <-chan struct{} {
	done := make(chan struct{})
	Dispatch(ctx, name, func(ctx context.Context) error {
		defer close(done)
		return fn(ctx)
	})
	return done
}
