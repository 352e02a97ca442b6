// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/config"
)

const (
	launchTimeout = 30 * time.Second
	openTimeout   = 30 * time.Second

	// DefaultNetworkIdleQuiet applies when the network config leaves it unset.
	DefaultNetworkIdleQuiet = 500 * time.Millisecond
)

// Manager owns the browser process and hands out one tab per scenario run.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx manages the entire browser process.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	// browserCtx holds the browser connection. Every tab context derives from it.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser and checks that it responds.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Browser.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, DefaultAllocatorOptions(m.cfg.Browser)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	// The first Run binds the browser to the context it is given, so it must be the
	// browser context itself rather than one carrying the launch deadline.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank"))
	}()

	var err error
	select {
	case err = <-started:
	case <-time.After(launchTimeout):
		m.allocatorCancel()
		err = fmt.Errorf("no response after %s: %w", launchTimeout, <-started)
	case <-ctx.Done():
		m.allocatorCancel()
		<-started
		err = ctx.Err()
	}
	if err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// AllocatorFlags returns the command line flags layered on top of chromedp's defaults.
// A false value removes a default flag.
func AllocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		// Drops the automation infobar that chromedp enables by default.
		"enable-automation":  false,
		"headless":           cfg.Headless,
		"disable-gpu":        cfg.Headless,
		"disable-extensions": true,
	}

	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}
	if cfg.DisableCache {
		flags["disk-cache-size"] = "0"
		flags["media-cache-size"] = "0"
		flags["disable-cache"] = true
	}
	if width, height := viewport(cfg); width > 0 && height > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", width, height)
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}

	// Custom arguments from config.yaml, as --name or --name=value.
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			flags[flagName] = parts[1]
		} else {
			flags[flagName] = true
		}
	}

	// Flags required for running inside containers (e.g., Docker on Linux).
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// DefaultAllocatorOptions assembles the exec allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range AllocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func viewport(cfg config.BrowserConfig) (int, int) {
	return cfg.Viewport["width"], cfg.Viewport["height"]
}

// Open creates a new tab, enables network tracking and applies the viewport and headers.
func (m *Manager) Open(ctx context.Context) (schemas.Page, error) {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)

	// The first Run on a fresh context creates the target and ties it to tabCtx.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create browser tab: %w", err)
	}

	initCtx, cancelInit := context.WithTimeout(ctx, openTimeout)
	defer cancelInit()
	runCtx, cancelRun := CombineContext(tabCtx, initCtx)
	defer cancelRun()

	page := newPage(tabCtx, cancel, m.cfg, m.logger)
	if err := page.harvester.Start(initCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start network tracking: %w", err)
	}

	var tasks chromedp.Tasks
	if width, height := viewport(m.cfg.Browser); width > 0 && height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
	}
	if len(m.cfg.Network.Headers) > 0 {
		headers := make(network.Headers)
		for k, v := range m.cfg.Network.Headers {
			headers[k] = v
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}
	if len(tasks) > 0 {
		if err := chromedp.Run(runCtx, tasks); err != nil {
			page.harvester.Stop()
			cancel()
			return nil, fmt.Errorf("failed to configure browser tab: %w", err)
		}
	}

	m.wg.Add(1)
	page.onClose = m.wg.Done
	m.logger.Debug("New page opened.", zap.String("page_id", page.id))
	return page, nil
}

// Shutdown waits for open pages to close, bounded by ctx, then terminates the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.browserCancel()
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
