package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/report"
)

func sampleResult() *backend.MigrationResult {
	return &backend.MigrationResult{
		RefactoredCode:  "from google.cloud import storage\n",
		VariableMapping: map[string]any{"s3_client": "storage_client", "bucket": map[string]any{"name": "assets"}},
		FilesChanged:    []backend.FileRef{{Path: "app/storage.py"}},
		FilesFailed:     []backend.FileRef{{Path: "app/queue.py", Detail: "unsupported API"}},
		PRURL:           "https://github.com/acme/shop/pull/7",
		Extra:           map[string]json.RawMessage{"summary": json.RawMessage(`"2 files"`)},
	}
}

func TestParseFormat(t *testing.T) {
	for input, expected := range map[string]report.Format{"": report.FormatTable, "JSON": report.FormatJSON, " yaml ": report.FormatYAML} {
		format, err := report.ParseFormat(input)
		require.NoError(t, err)
		assert.Equal(t, expected, format)
	}
	_, err := report.ParseFormat("xml")
	require.Error(t, err)
}

func TestJobTable(t *testing.T) {
	var out bytes.Buffer
	job := report.NewJob("job-9", "repository", "completed", nil, sampleResult())
	require.NoError(t, report.NewPrinter(&out, report.FormatTable).Job(job))

	text := out.String()
	assert.Contains(t, text, "job-9")
	assert.Contains(t, text, "https://github.com/acme/shop/pull/7")
	assert.Contains(t, text, "s3_client")
	assert.Contains(t, text, `{"name":"assets"}`)
	assert.Contains(t, text, "unsupported API")
	assert.Contains(t, text, "from google.cloud import storage")
}

func TestJobJSON(t *testing.T) {
	var out bytes.Buffer
	job := report.NewJob("job-9", "code", "timed_out", errors.New("Migration timed out"), sampleResult())
	require.NoError(t, report.NewPrinter(&out, report.FormatJSON).Job(job))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "timed_out", decoded["status"])
	assert.Equal(t, "Migration timed out", decoded["error"])
	assert.Equal(t, "2 files", decoded["extra"].(map[string]any)["summary"])
}

func TestAnalysisYAML(t *testing.T) {
	var analysis backend.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(`{"repository_id":42,"mar":{"services_detected":[{"service_name":"s3","files":["a.py"]}]}}`), &analysis))

	var out bytes.Buffer
	require.NoError(t, report.NewPrinter(&out, report.FormatYAML).Analysis(analysis))

	var decoded struct {
		RepositoryID string `yaml:"repository_id"`
		MAR          struct {
			ServicesDetected []struct {
				ServiceName string `yaml:"service_name"`
			} `yaml:"services_detected"`
		} `yaml:"mar"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "42", decoded.RepositoryID)
	require.Len(t, decoded.MAR.ServicesDetected, 1)
	assert.Equal(t, "s3", decoded.MAR.ServicesDetected[0].ServiceName)
}

func TestCatalogTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, report.NewPrinter(&out, report.FormatTable).Catalog(backend.DefaultCatalog(), backend.ProviderAzure))
	assert.Contains(t, out.String(), "cosmos_db")
	assert.NotContains(t, out.String(), "dynamodb")
}
