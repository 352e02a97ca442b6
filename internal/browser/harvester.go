// internal/browser/harvester.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Harvester listens to the network events of one tab and tracks which requests are still
// in flight, so navigation can wait for the page to go quiet.
type Harvester struct {
	logger *zap.Logger

	// The context for the browser tab this harvester is attached to.
	tabCtx context.Context
	// A separate context for the listener so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	lock         sync.RWMutex

	isStarted bool
}

// NewHarvester creates a harvester for the tab behind tabCtx.
func NewHarvester(tabCtx context.Context, logger *zap.Logger) *Harvester {
	return &Harvester{
		tabCtx:   tabCtx,
		logger:   logger.Named("harvester"),
		inflight: make(map[network.RequestID]struct{}),
	}
}

// Start enables the network domain and begins listening.
func (h *Harvester) Start(ctx context.Context) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	// Derived from the tab, so if the tab dies the listener dies.
	h.listenerCtx, h.cancelListener = context.WithCancel(h.tabCtx)
	chromedp.ListenTarget(h.listenerCtx, h.handleEvent)

	runCtx, cancel := CombineContext(h.tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, network.Enable()); err != nil {
		h.cancelListener()
		return err
	}

	h.isStarted = true
	h.lastActivity = time.Now()
	h.logger.Debug("Harvester started and listening for network events.")
	return nil
}

// Stop detaches the listener. It is safe to call more than once.
func (h *Harvester) Stop() {
	h.lock.Lock()
	defer h.lock.Unlock()

	if !h.isStarted {
		return
	}
	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
}

func (h *Harvester) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		h.lock.Lock()
		h.inflight[e.RequestID] = struct{}{}
		h.lastActivity = time.Now()
		h.lock.Unlock()
	case *network.EventLoadingFinished:
		h.finish(e.RequestID)
	case *network.EventLoadingFailed:
		h.finish(e.RequestID)
	}
}

func (h *Harvester) finish(id network.RequestID) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.inflight, id)
	h.lastActivity = time.Now()
}

// Inflight returns the number of requests still outstanding.
func (h *Harvester) Inflight() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.inflight)
}

// WaitNetworkIdle polls until there have been no in-flight requests and no network
// activity for quietPeriod.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		quietPeriod = DefaultNetworkIdleQuiet
	}
	ticker := time.NewTicker(quietPeriod / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("WaitNetworkIdle aborted.", zap.Int("inflight_requests", h.Inflight()), zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			h.lock.RLock()
			inflight := len(h.inflight)
			quiet := time.Since(h.lastActivity)
			h.lock.RUnlock()

			if inflight == 0 && quiet >= quietPeriod {
				return nil
			}
		}
	}
}
