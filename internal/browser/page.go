// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/config"
)

// ErrPageClosed is returned by every Page method called after Close.
var ErrPageClosed = errors.New("page is closed")

// Page is a single browser tab driven through chromedp.
type Page struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Config
	logger    *zap.Logger
	harvester *Harvester
	onClose   func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.Page = (*Page)(nil)

func newPage(tabCtx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.Logger) *Page {
	id := uuid.New().String()
	pageLogger := logger.With(zap.String("page_id", id))
	return &Page{
		id:        id,
		ctx:       tabCtx,
		cancel:    cancel,
		cfg:       cfg,
		logger:    pageLogger,
		harvester: NewHarvester(tabCtx, pageLogger),
	}
}

// runActions executes chromedp actions bounded by both the tab lifetime and ctx.
func (p *Page) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed() {
		return ErrPageClosed
	}
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		// chromedp reports a plain cancellation; surface the caller's reason instead.
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// Navigate loads url and waits for the body. With WaitForNetworkIdle it then waits for the
// network to go quiet; a page that never settles is logged and accepted.
func (p *Page) Navigate(ctx context.Context, url string, opts schemas.NavigateOptions) error {
	navCtx := ctx
	if timeout := p.cfg.Network.NavigationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.runActions(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return err
	}
	if !opts.WaitForNetworkIdle {
		return nil
	}

	idleCtx := ctx
	if timeout := p.cfg.Network.NetworkIdleTimeout; timeout > 0 {
		var cancel context.CancelFunc
		idleCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.harvester.WaitNetworkIdle(idleCtx, p.cfg.Network.NetworkIdleQuiet); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("Network did not go idle, continuing.", zap.String("url", url), zap.Int("inflight_requests", p.harvester.Inflight()))
	}
	return nil
}

// CurrentURL returns the location of the top-level document.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := p.runActions(ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

// TypeInto focuses the first element matching selector and types text into it.
func (p *Page) TypeInto(ctx context.Context, selector, text string) error {
	return p.runActions(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// selectScript sets a <select> value and fires the events a user selection would.
const selectScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) { return false; }
	el.value = %s;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return el.value === %[2]s;
})()`

// SelectOption sets the control matching selector to value.
func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	sel, err := jsoniter.MarshalToString(selector)
	if err != nil {
		return err
	}
	val, err := jsoniter.MarshalToString(value)
	if err != nil {
		return err
	}

	var ok bool
	if err := p.runActions(ctx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(selectScript, sel, val), &ok),
	); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no option with value %q", value)
	}
	return nil
}

// WaitForSelector blocks until an element matching selector is in the DOM.
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	return p.runActions(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// Click clicks the first visible element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.runActions(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Sleep waits for d, returning early if ctx ends or the page closes.
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPageClosed
	}
}

// Screenshot captures the page as PNG, or JPEG below quality 100.
func (p *Page) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	quality := p.cfg.Browser.ScreenshotQuality
	if quality <= 0 || quality > 100 {
		quality = 100
	}

	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if opts.FullPage {
		action = chromedp.FullScreenshot(&buf, quality)
	}
	if err := p.runActions(ctx, action); err != nil {
		return nil, err
	}
	p.logger.Debug("Screenshot captured.", zap.Int("bytes", len(buf)), zap.Int("quality", quality))
	return buf, nil
}

// Close stops network tracking and closes the tab. Only the first call has an effect.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return nil
	}
	p.isClosed = true
	p.mu.Unlock()

	p.logger.Debug("Closing page.")
	p.harvester.Stop()
	p.cancel()

	if p.onClose != nil {
		p.onClose()
	}
	return nil
}

func (p *Page) closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isClosed
}
