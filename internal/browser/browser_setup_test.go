// internal/browser/browser_setup_test.go
package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scenario-cli/internal/browser"
	"github.com/xkilldash9x/scenario-cli/internal/config"
)

// testFixture holds the environment for browser integration tests.
type testFixture struct {
	Manager *browser.Manager
	Logger  *zap.Logger
	Config  *config.Config
	MgrCtx  context.Context
	cancel  context.CancelFunc
}

// chromeCandidates are the executable names chromedp looks for.
var chromeCandidates = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
}

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser integration tests skipped in -short mode")
	}
	for _, name := range chromeCandidates {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome or Chromium executable found")
}

// setupTestConfig initializes the configuration and logger.
func setupTestConfig(t *testing.T) (*zap.Logger, *config.Config) {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))

	cfg := config.NewDefaultConfig()
	cfg.Browser.Headless = true
	cfg.Browser.DisableCache = true
	cfg.Browser.IgnoreTLSErrors = true
	// Faster waits for tests.
	cfg.Network.NetworkIdleQuiet = 100 * time.Millisecond
	cfg.Network.NetworkIdleTimeout = 5 * time.Second
	cfg.Network.NavigationTimeout = 20 * time.Second
	return logger, cfg
}

// setupBrowserManager starts a Manager for a test and shuts it down afterwards.
func setupBrowserManager(t *testing.T) *testFixture {
	t.Helper()
	requireChrome(t)
	logger, cfg := setupTestConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	mgr, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		cancel()
		t.Fatalf("Failed to initialize Browser Manager: %v", err)
	}

	fixture := &testFixture{
		Manager: mgr,
		Logger:  logger,
		Config:  cfg,
		MgrCtx:  ctx,
		cancel:  cancel,
	}

	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = fixture.Manager.Shutdown(shutdownCtx)
		fixture.cancel()
	})

	return fixture
}

// createTestServer starts a mock HTTP server.
func createTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// testForm is the page most integration tests drive.
const testForm = `<!DOCTYPE html>
<html><body>
<form action="/done" method="get">
  <input type="text" name="email" id="email">
  <select name="country" id="country">
    <option value="jp">Japan</option>
    <option value="us">United States</option>
  </select>
  <input type="radio" name="gender" value="female" id="female">
  <button type="submit" id="submit">Send</button>
</form>
</body></html>`

func formServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testForm))
	})
	mux.HandleFunc("/done", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1 id="done">Thanks</h1></body></html>`))
	})
	return createTestServer(t, mux)
}

func openPage(t *testing.T, f *testFixture) *browser.Page {
	t.Helper()
	page, err := f.Manager.Open(f.MgrCtx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = page.Close(context.Background())
	})
	return page.(*browser.Page)
}
