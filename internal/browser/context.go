package browser

import (
	"context"
)

// CombineContext returns a context that carries ctx1's values and is cancelled when either
// ctx1 or ctx2 is done. chromedp actions need ctx1 (the tab) for its target; ctx2 is the
// caller's operation deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	// The goroutine stops when either context is done.
	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
