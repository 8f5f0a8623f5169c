package telemetry_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katistix/cloudmigrate/internal/telemetry"
)

func TestRecorderCounters(t *testing.T) {
	recorder := telemetry.NewRecorder()
	recorder.SubmissionStarted("code")
	recorder.PollObserved(false)
	recorder.PollObserved(true)
	recorder.PollObserved(true)
	recorder.JobFinished("code", "completed")
	recorder.ObserveRequest("poll_status", 20*time.Millisecond, nil)
	recorder.ObserveRequest("poll_status", time.Second, errors.New("refused"))

	count, err := testutil.GatherAndCount(recorder.Registry(), "cloudmigrate_polls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome")

	path := filepath.Join(t.TempDir(), "cloudmigrate.prom")
	require.NoError(t, recorder.WriteTextfile(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `cloudmigrate_polls_total{outcome="transient"} 2`)
	assert.Contains(t, string(content), `cloudmigrate_jobs_finished_total{kind="code",outcome="completed"} 1`)
	assert.Contains(t, string(content), `cloudmigrate_request_duration_seconds_count{call="poll_status",status="error"} 1`)
}
