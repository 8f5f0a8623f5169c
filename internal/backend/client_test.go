package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katistix/cloudmigrate/internal/backend"
)

type recordedRequest struct {
	method    string
	path      string
	body      map[string]any
	requestID string
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*backend.Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path, requestID: r.Header.Get("X-Request-ID")}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		requests = append(requests, rec)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := backend.NewClient(backend.Options{BaseURL: server.URL + "/"})
	require.NoError(t, err)
	return client, &requests
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewClientValidation(t *testing.T) {
	testCases := []struct {
		name    string
		baseURL string
		wantErr error
	}{
		{name: "empty", baseURL: "  ", wantErr: backend.ErrMissingBaseURL},
		{name: "no_scheme", baseURL: "localhost:8000"},
		{name: "ftp", baseURL: "ftp://example.com"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			client, err := backend.NewClient(backend.Options{BaseURL: testCase.baseURL})
			require.Error(t, err)
			require.Nil(t, client)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)
			}
		})
	}

	client, err := backend.NewClient(backend.Options{BaseURL: "http://localhost:8000/"})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", client.BaseURL())
}

func TestAnalyzeRepository(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"repository_id": 42, "mar": {"services_detected": [
			{"service_name": "s3", "files": ["app.py"]},
			{"service_name": "sqs"},
			{"service_name": "s3"},
			{"service_name": " "}
		]}}`)
	})

	result, err := client.AnalyzeRepository(context.Background(), backend.RepositoryRef{
		URL:    "https://github.com/acme/shop",
		Branch: "main",
		Token:  "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, backend.ID("42"), result.RepositoryID)
	assert.Equal(t, []string{"s3", "sqs"}, result.DetectedServiceNames())

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/repository/analyze", req.path)
	assert.Equal(t, "https://github.com/acme/shop", req.body["repository_url"])
	assert.Equal(t, "main", req.body["branch"])
	assert.Equal(t, "secret", req.body["token"])
	assert.NotEmpty(t, req.requestID)
}

func TestAnalyzeRepositoryErrors(t *testing.T) {
	t.Run("server_detail", func(t *testing.T) {
		client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"detail": "Repository not found"}`)
		})
		_, err := client.AnalyzeRepository(context.Background(), backend.RepositoryRef{URL: "https://github.com/acme/missing"})
		var analysisErr *backend.AnalysisError
		require.ErrorAs(t, err, &analysisErr)
		assert.Equal(t, "Repository not found", err.Error())
		var serverErr *backend.ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, http.StatusBadRequest, serverErr.StatusCode)
	})

	t.Run("no_detail", func(t *testing.T) {
		client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, `oops`)
		})
		_, err := client.AnalyzeRepository(context.Background(), backend.RepositoryRef{URL: "https://github.com/acme/shop"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "check that the backend service is running")
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		baseURL := server.URL
		server.Close()

		client, err := backend.NewClient(backend.Options{BaseURL: baseURL})
		require.NoError(t, err)
		_, err = client.AnalyzeRepository(context.Background(), backend.RepositoryRef{URL: "https://github.com/acme/shop"})
		var connErr *backend.ConnectivityError
		require.ErrorAs(t, err, &connErr)
		assert.False(t, connErr.Timeout)
		assert.Contains(t, err.Error(), baseURL)
	})
}

func TestSubmitCodeMigration(t *testing.T) {
	t.Run("job", func(t *testing.T) {
		client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusAccepted, `{"migration_id": "job-1", "status": "pending"}`)
		})
		submission, err := client.SubmitCodeMigration(context.Background(), backend.CodeMigrationRequest{
			Code:          "import boto3",
			Language:      "python",
			Services:      []string{"s3"},
			CloudProvider: backend.ProviderAWS,
		})
		require.NoError(t, err)
		assert.True(t, submission.Async())
		assert.Equal(t, "job-1", submission.MigrationID)
		assert.Nil(t, submission.Result)

		req := (*requests)[0]
		assert.Equal(t, "/api/migrate", req.path)
		assert.Equal(t, "aws", req.body["cloud_provider"])
		assert.Equal(t, []any{"s3"}, req.body["services"])
	})

	t.Run("synchronous_result", func(t *testing.T) {
		client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"refactored_code": "from google.cloud import storage", "variable_mapping": {"s3": "gcs"}, "warnings": ["check iam"]}`)
		})
		submission, err := client.SubmitCodeMigration(context.Background(), backend.CodeMigrationRequest{Code: "x"})
		require.NoError(t, err)
		assert.False(t, submission.Async())
		require.NotNil(t, submission.Result)
		assert.Equal(t, "from google.cloud import storage", submission.Result.RefactoredCode)
		assert.Equal(t, "gcs", submission.Result.VariableMapping["s3"])
		assert.Contains(t, submission.Result.Extra, "warnings")
	})

	t.Run("server_error_verbatim", func(t *testing.T) {
		client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, `{"detail": [{"msg": "field required"}, {"msg": "too long"}]}`)
		})
		_, err := client.SubmitCodeMigration(context.Background(), backend.CodeMigrationRequest{})
		var serverErr *backend.ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, "field required; too long", serverErr.Error())
	})
}

func TestSubmitRepositoryMigration(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"migration_id": 7}`)
	})

	_, err := client.SubmitRepositoryMigration(context.Background(), " ", backend.RepositoryMigrationRequest{})
	require.ErrorIs(t, err, backend.ErrMissingIdentifier)

	submission, err := client.SubmitRepositoryMigration(context.Background(), "repo-9", backend.RepositoryMigrationRequest{
		Services:          []string{"s3", "sqs"},
		RepositoryOptions: backend.RepositoryOptions{CreatePR: true, BranchName: "gcp-migration", RunTests: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "7", submission.MigrationID)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/api/repository/repo-9/migrate", req.path)
	assert.Equal(t, true, req.body["create_pr"])
	assert.Equal(t, "gcp-migration", req.body["branch_name"])
	assert.Equal(t, true, req.body["run_tests"])
}

func TestPollJobStatus(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{
			"status": "in_progress",
			"progress": {"refactoring": {"percent": 40, "message": "rewriting"}, "validation": {"percent": 0, "message": ""}}
		}`)
	})

	status, err := client.PollJobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, backend.JobInProgress, status.Status)
	assert.False(t, status.Status.Terminal())
	require.NotNil(t, status.Progress)
	assert.Equal(t, 40.0, status.Progress.Refactoring.Percent)
	assert.Equal(t, "rewriting", status.Progress.Refactoring.Message)

	req := (*requests)[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/api/migration/job-1", req.path)
}

func TestPollJobStatusKeepsMisshapedResultFields(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"completed","refactored_code":"x","files_changed":3,"variable_mapping":["s3"]}`)
	})

	status, err := client.PollJobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, backend.JobCompleted, status.Status)
	assert.Equal(t, "x", status.RefactoredCode)
	assert.Empty(t, status.FilesChanged)
	assert.JSONEq(t, `3`, string(status.Extra["files_changed"]))

	merged := backend.MergeResult(status)
	assert.Equal(t, "x", merged.RefactoredCode)
	assert.JSONEq(t, `["s3"]`, string(merged.Extra["variable_mapping"]))
}

func TestPollJobStatusRejectsBadStatus(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":{"state":"completed"}}`)
	})

	_, err := client.PollJobStatus(context.Background(), "job-1")
	var decodeErr *backend.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestPollJobStatusTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := backend.NewClient(backend.Options{BaseURL: server.URL, PollTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.PollJobStatus(context.Background(), "job-1")
	var connErr *backend.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, connErr.Timeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestListServices(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "flat", body: `{"AWS": [{"id": "s3", "name": "Amazon S3"}], "azure": ["blob_storage"]}`},
		{name: "wrapped", body: `{"services": {"aws": [{"id": "s3", "name": "Amazon S3"}], "azure": [{"name": "blob_storage"}]}}`},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, testCase.body)
			})
			catalog, err := client.ListServices(context.Background())
			require.NoError(t, err)

			s3, ok := catalog.Lookup(backend.ProviderAWS, "S3")
			require.True(t, ok)
			assert.Equal(t, "Amazon S3", s3.Name)

			blob, ok := catalog.Lookup(backend.ProviderAzure, "blob-storage")
			require.True(t, ok)
			assert.Equal(t, "blob_storage", blob.ID)
		})
	}
}

func TestMergeResult(t *testing.T) {
	var status backend.JobStatus
	require.NoError(t, json.NewDecoder(strings.NewReader(`{
		"status": "completed",
		"result": {"refactored_code": "old", "pr_url": "https://example.com/pr/0", "summary": "2 services migrated"},
		"refactored_code": "new",
		"files_changed": ["a.py", {"path": "b.py"}],
		"files_failed": [{"file": "c.py", "error": "syntax error"}],
		"pr_url": "https://example.com/pr/1"
	}`)).Decode(&status))

	merged := backend.MergeResult(status)
	assert.Equal(t, "new", merged.RefactoredCode)
	assert.Equal(t, "https://example.com/pr/1", merged.PRURL)
	assert.Equal(t, []backend.FileRef{{Path: "a.py"}, {Path: "b.py"}}, merged.FilesChanged)
	assert.Equal(t, []backend.FileRef{{Path: "c.py", Detail: "syntax error"}}, merged.FilesFailed)
	assert.JSONEq(t, `"2 services migrated"`, string(merged.Extra["summary"]))

	require.NoError(t, json.Unmarshal([]byte(`{
		"status": "completed",
		"result": {"refactored_code": "nested", "files_failed": "none"}
	}`), &status))
	merged = backend.MergeResult(status)
	assert.Equal(t, "nested", merged.RefactoredCode)
	assert.Empty(t, merged.FilesFailed)
	assert.JSONEq(t, `"none"`, string(merged.Extra["files_failed"]))
}

func TestParseProvider(t *testing.T) {
	provider, err := backend.ParseProvider(" Azure ")
	require.NoError(t, err)
	assert.Equal(t, backend.ProviderAzure, provider)

	_, err = backend.ParseProvider("gcp")
	require.Error(t, err)
}
