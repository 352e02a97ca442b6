package browser_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/artifacts"
	"github.com/xkilldash9x/scenario-cli/internal/engine"
)

func TestRunner_DrivesRealBrowser(t *testing.T) {
	f := setupBrowserManager(t)
	server := formServer(t)
	dir := t.TempDir()

	runner, err := engine.NewRunner(f.Manager, f.Logger, engine.Options{
		Rand:  rand.New(rand.NewSource(1)),
		Store: &artifacts.Store{Dir: dir},
	})
	require.NoError(t, err)

	sc := schemas.Scenario{
		Name:       "signup",
		URL:        server.URL + "/form",
		Iterations: 2,
		Steps: []schemas.Step{
			{Action: schemas.InputAction{Selector: `input[name="email"]`, Regexp: schemas.String(`[a-z]{5}@example\.com`)}},
			{Action: schemas.SelectAction{Selector: `select[name="country"]`, Values: []string{"jp", "us"}}},
			{Action: schemas.RadioAction{Selector: `input[type="radio"][name="gender"]`}},
			{Action: schemas.ClickAction{Selector: "#submit"}},
			// Click does not wait for the form submission to land.
			{Action: schemas.WaitAction{Duration: time.Second}},
			{Action: schemas.EnsureAction{LocationRegexp: schemas.String(`/done\?email=[a-z]{5}%40example\.com`)}},
			{Action: schemas.ScreenshotAction{Name: "done"}},
		},
	}

	report, err := runner.Run(f.MgrCtx, sc)
	require.NoError(t, err)
	assert.False(t, report.Failed(), "failures: %v", report.Failures)
	assert.Equal(t, 2, report.Iterations)

	require.Len(t, report.Artifacts, 2)
	assert.Equal(t, filepath.Join(dir, "done.png"), report.Artifacts[0])
	assert.Equal(t, filepath.Join(dir, "done-1.png"), report.Artifacts[1])
	for _, path := range report.Artifacts {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestRunner_FailedEnsureCapturesScreenshot(t *testing.T) {
	f := setupBrowserManager(t)
	server := formServer(t)
	dir := t.TempDir()

	runner, err := engine.NewRunner(f.Manager, f.Logger, engine.Options{
		Rand:  rand.New(rand.NewSource(1)),
		Store: &artifacts.Store{Dir: dir},
	})
	require.NoError(t, err)

	report, err := runner.Run(f.MgrCtx, schemas.Scenario{
		Name:       "stays",
		URL:        server.URL + "/form",
		Iterations: 1,
		Steps: []schemas.Step{
			{Action: schemas.EnsureAction{Location: schemas.String(server.URL + "/done")}},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, schemas.ErrAssertion)
	require.NotEmpty(t, report.Failures[0].Artifact)
	assert.FileExists(t, report.Failures[0].Artifact)
}
