package schemas

import (
	"context"
	"time"
)

// NavigateOptions tunes a navigation.
type NavigateOptions struct {
	// WaitForNetworkIdle holds Navigate until the page has had no in-flight requests for
	// the driver's quiet period.
	WaitForNetworkIdle bool
}

// ScreenshotOptions tunes a capture.
type ScreenshotOptions struct {
	FullPage bool
}

// Page is the browser capability the engine drives. A Page is a single tab owned by one
// scenario run; implementations need not be safe for concurrent use.
//
// Every method returns an error instead of swallowing driver failures.
type Page interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	CurrentURL(ctx context.Context) (string, error)
	TypeInto(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error
	WaitForSelector(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Sleep(ctx context.Context, d time.Duration) error
	// Screenshot returns the encoded image (PNG, or JPEG when the driver is set up for
	// lossy captures).
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Close(ctx context.Context) error
}

// PageOpener hands out a fresh Page per run.
type PageOpener interface {
	Open(ctx context.Context) (Page, error)
}

// PageOpenerFunc adapts a function to PageOpener.
type PageOpenerFunc func(ctx context.Context) (Page, error)

// Open calls f(ctx).
func (f PageOpenerFunc) Open(ctx context.Context) (Page, error) {
	return f(ctx)
}
