package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/config"
	"github.com/katistix/cloudmigrate/internal/workflow/workflowtest"
)

func newTestApplication(t *testing.T, configYAML string) (*application, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	if configYAML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o600))
	}
	t.Setenv("CLOUDMIGRATE_COMMON_LOG_FILE", "discard")
	var out bytes.Buffer
	return newApplication(&out, config.NewLoader([]string{dir})), &out
}

func TestApplicationInitialize(t *testing.T) {
	app, _ := newTestApplication(t, `
backend:
  base_url: http://migrator.test:8080
wizard:
  default_provider: azure
repository:
  branch_name: move-to-gcp
`)
	root := newRootCommand(app)
	require.NoError(t, app.initialize(root))
	assert.Equal(t, "http://migrator.test:8080", app.configuration.Backend.BaseURL)

	client, err := app.newClient()
	require.NoError(t, err)
	assert.Equal(t, "http://migrator.test:8080", client.BaseURL())

	ctrl, err := app.newController(&workflowtest.StubBackend{}, "")
	require.NoError(t, err)
	defer ctrl.Close()
	state := ctrl.Snapshot()
	assert.Equal(t, backend.ProviderAzure, state.Provider)
	assert.Equal(t, "move-to-gcp", state.Options.BranchName)
	assert.True(t, state.Options.CreatePR)

	ctrl.Reset()
	assert.Equal(t, "move-to-gcp", ctrl.Snapshot().Options.BranchName, "reset keeps configured options")
}

func TestApplicationProviderOverride(t *testing.T) {
	app, _ := newTestApplication(t, "")
	require.NoError(t, app.initialize(newRootCommand(app)))

	ctrl, err := app.newController(&workflowtest.StubBackend{}, "AZURE")
	require.NoError(t, err)
	defer ctrl.Close()
	assert.Equal(t, backend.ProviderAzure, ctrl.Snapshot().Provider)

	_, err = app.newController(&workflowtest.StubBackend{}, "gcp")
	require.Error(t, err)
}

func TestApplicationRejectsBadOutputFormat(t *testing.T) {
	app, _ := newTestApplication(t, "")
	app.output = "csv"
	_, err := app.printer()
	require.Error(t, err)
}

func TestApplicationWritesMetricsFile(t *testing.T) {
	app, _ := newTestApplication(t, "")
	app.metricsFile = filepath.Join(t.TempDir(), "cloudmigrate.prom")
	app.recorder.SubmissionStarted("code")
	require.NoError(t, app.finish())

	content, err := os.ReadFile(app.metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `cloudmigrate_submissions_total{kind="code"} 1`)
}

func TestFirstNonEmpty(t *testing.T) {
	testCases := []struct {
		values   []string
		expected string
	}{
		{values: []string{"", "  ", "info"}, expected: "info"},
		{values: []string{" debug ", "info"}, expected: "debug"},
		{values: nil, expected: ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, firstNonEmpty(tc.values...))
	}
}
