// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/config"
	"github.com/xkilldash9x/scenario-cli/internal/observability"
)

// stubPage always sits at location and writes a fake PNG for screenshots.
type stubPage struct {
	location string
}

func (p *stubPage) Navigate(ctx context.Context, url string, opts schemas.NavigateOptions) error {
	return nil
}
func (p *stubPage) CurrentURL(ctx context.Context) (string, error) { return p.location, nil }
func (p *stubPage) TypeInto(ctx context.Context, selector, text string) error { return nil }
func (p *stubPage) SelectOption(ctx context.Context, selector, value string) error { return nil }
func (p *stubPage) WaitForSelector(ctx context.Context, selector string) error { return nil }
func (p *stubPage) Click(ctx context.Context, selector string) error { return nil }
func (p *stubPage) Sleep(ctx context.Context, d time.Duration) error { return nil }
func (p *stubPage) Close(ctx context.Context) error { return nil }
func (p *stubPage) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

// stubBrowser stands in for the chromedp manager.
type stubBrowser struct {
	mu       sync.Mutex
	location string
	cfg      *config.Config
	opened   int
	shutdown int
}

func useStubBrowser(t *testing.T, location string) *stubBrowser {
	t.Helper()
	b := &stubBrowser{location: location}
	original := newPageOpener
	newPageOpener = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.PageOpener, func(context.Context) error, error) {
		b.mu.Lock()
		b.cfg = cfg
		b.mu.Unlock()
		opener := schemas.PageOpenerFunc(func(ctx context.Context) (schemas.Page, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.opened++
			return &stubPage{location: b.location}, nil
		})
		return opener, func(context.Context) error {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.shutdown++
			return nil
		}, nil
	}
	t.Cleanup(func() { newPageOpener = original })
	return b
}

// executeCommand runs a fresh command tree and returns what it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	t.Setenv("SCENARIO_LOGGER_LEVEL", "error")

	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const signupYAML = `
name: signup
url: https://example.test/form
iteration: 2
steps:
  - action:
      type: input
      form:
        selector: "#email"
        regexp: "[a-z]{6}@example\\.com"
  - action:
      type: click
      selector: "#submit"
  - action:
      type: ensure
      location: https://example.test/done
  - action:
      type: screenshot
      name: done
`

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "scenario-cli version dev\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "scenario-cli version dev\n", out)
}

func TestRunCmd_RequiredArgs(t *testing.T) {
	_, err := executeCommand(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s), only received 0")
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "signup.yaml", signupYAML)

	t.Run("valid file", func(t *testing.T) {
		out, err := executeCommand(t, "validate", good)
		require.NoError(t, err)
		assert.Contains(t, out, "ok  "+good)
		assert.Contains(t, out, `name="signup" iterations=2 precondition_steps=0 steps=4`)
	})

	t.Run("invalid file", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.json", `{"url": "https://example.test", "steps": [{"action": {"type": "hover"}}]}`)
		_, err := executeCommand(t, "validate", good, bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrMalformedScenario)
	})
}

func TestRunCmd_RunsScenario(t *testing.T) {
	b := useStubBrowser(t, "https://example.test/done")
	dir := t.TempDir()
	file := writeFile(t, dir, "signup.yaml", signupYAML)
	artifactDir := filepath.Join(dir, "shots")

	out, err := executeCommand(t, "run", "--artifacts", artifactDir, "--seed", "5", file)
	require.NoError(t, err)

	assert.Contains(t, out, "PASS  "+file)
	assert.Contains(t, out, "iterations=2 failures=0 artifacts=2 seed=5")
	assert.Equal(t, 1, b.opened)
	assert.Equal(t, 1, b.shutdown)
	assert.FileExists(t, filepath.Join(artifactDir, "done.png"))
	assert.FileExists(t, filepath.Join(artifactDir, "done-1.png"))
}

func TestRunCmd_FlagsOverrideConfig(t *testing.T) {
	b := useStubBrowser(t, "https://example.test/done")
	dir := t.TempDir()
	file := writeFile(t, dir, "signup.yaml", signupYAML)
	cfgFile := writeFile(t, dir, "config.yaml", `
runner:
  concurrency: 3
  iterations: 4
browser:
  headless: false
generator:
  seed: 11
artifacts:
  dir: `+filepath.Join(dir, "from-config")+`
`)
	t.Setenv("SCENARIO_GENERATOR_SEED", "99")

	out, err := executeCommand(t, "--config", cfgFile, "run", "--iterations", "1", file)
	require.NoError(t, err)

	assert.Contains(t, out, "iterations=1 failures=0")
	assert.Contains(t, out, "seed=99", "environment beats the config file")
	require.NotNil(t, b.cfg)
	assert.Equal(t, 3, b.cfg.Runner.Concurrency)
	assert.False(t, b.cfg.Browser.Headless)
	assert.FileExists(t, filepath.Join(dir, "from-config", "done.png"))
}

func TestRunCmd_MissingConfigFile(t *testing.T) {
	useStubBrowser(t, "https://example.test/done")
	_, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "run", "x.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}

func TestRunCmd_FailOnError(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "signup.yaml", signupYAML)

	t.Run("failures are reported but not fatal by default", func(t *testing.T) {
		useStubBrowser(t, "https://example.test/form")
		out, err := executeCommand(t, "run", "--artifacts", filepath.Join(dir, "a"), file)
		require.NoError(t, err)
		assert.Contains(t, out, "FAIL  "+file)
		assert.Contains(t, out, "iteration 0:")
		assert.Contains(t, out, "iteration 1:")
		assert.Contains(t, out, "screenshot: ")
	})

	t.Run("fail-on-error turns failures into an error", func(t *testing.T) {
		useStubBrowser(t, "https://example.test/form")
		_, err := executeCommand(t, "run", "--fail-on-error", "--artifacts", filepath.Join(dir, "b"), file)
		assert.ErrorIs(t, err, ErrScenarioFailures)
	})
}

func TestRunCmd_InvalidScenarioNeverStartsBrowser(t *testing.T) {
	b := useStubBrowser(t, "https://example.test/done")
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "url: https://example.test\niteration: -1\n")

	_, err := executeCommand(t, "run", bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrMalformedScenario)
	assert.Nil(t, b.cfg, "browser must not be started")
}

func TestRunCmd_WritesMetricsTextfile(t *testing.T) {
	useStubBrowser(t, "https://example.test/done")
	dir := t.TempDir()
	file := writeFile(t, dir, "signup.yaml", signupYAML)
	metricsPath := filepath.Join(dir, "metrics", "scenario.prom")
	t.Setenv("SCENARIO_METRICS_TEXTFILE_PATH", metricsPath)

	_, err := executeCommand(t, "run", "--artifacts", filepath.Join(dir, "shots"), file)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `scenario_iterations_total{result="ok"} 2`)
	assert.Contains(t, string(data), `scenario_steps_total{kind="click",result="ok"} 2`)
}
