// Package backend is the HTTP+JSON client for the migration backend: the
// repository analysis service and the migration job service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSubmitTimeout  = 60 * time.Second
	DefaultAnalyzeTimeout = 120 * time.Second
	DefaultPollTimeout    = 10 * time.Second

	requestIDHeader = "X-Request-ID"
	maxResponseSize = 32 << 20

	callAnalyze       = "analyze_repository"
	callMigrateCode   = "migrate_code"
	callMigrateRepo   = "migrate_repository"
	callPollStatus    = "poll_status"
	callListServices  = "list_services"
	pathAnalyze       = "/api/repository/analyze"
	pathMigrateCode   = "/api/migrate"
	pathMigrateRepo   = "/api/repository/%s/migrate"
	pathMigration     = "/api/migration/%s"
	pathServices      = "/api/services"
	logRequestMessage = "backend request"
	logFailedMessage  = "backend request failed"
)

// Recorder observes backend request latencies.
type Recorder interface {
	ObserveRequest(call string, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, time.Duration, error) {}

// Options configures a Client.
type Options struct {
	BaseURL        string
	SubmitTimeout  time.Duration
	AnalyzeTimeout time.Duration
	PollTimeout    time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
	Recorder       Recorder
}

// Client talks to the migration backend.
type Client struct {
	baseURL        string
	submitTimeout  time.Duration
	analyzeTimeout time.Duration
	pollTimeout    time.Duration
	http           *http.Client
	logger         *zap.Logger
	recorder       Recorder
}

// NewClient validates options and builds a Client. Zero timeouts fall back to
// the package defaults.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url %q: %w", opts.BaseURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q: expected http(s)://host[:port]", opts.BaseURL)
	}

	c := &Client{
		baseURL:        base,
		submitTimeout:  orDefault(opts.SubmitTimeout, DefaultSubmitTimeout),
		analyzeTimeout: orDefault(opts.AnalyzeTimeout, DefaultAnalyzeTimeout),
		pollTimeout:    orDefault(opts.PollTimeout, DefaultPollTimeout),
		http:           opts.HTTPClient,
		logger:         opts.Logger,
		recorder:       opts.Recorder,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	return c, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// BaseURL returns the normalised backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// AnalyzeRepository asks the backend which cloud services a repository uses.
// Any failure is returned as *AnalysisError.
func (c *Client) AnalyzeRepository(ctx context.Context, ref RepositoryRef) (AnalysisResult, error) {
	var result AnalysisResult
	payload, err := c.do(ctx, callAnalyze, http.MethodPost, pathAnalyze, c.analyzeTimeout, ref)
	if err != nil {
		return result, &AnalysisError{BaseURL: c.baseURL, Cause: err}
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return AnalysisResult{}, &AnalysisError{BaseURL: c.baseURL, Cause: &DecodeError{Call: callAnalyze, Cause: err}}
	}
	return result, nil
}

// SubmitCodeMigration submits a code snippet for migration.
func (c *Client) SubmitCodeMigration(ctx context.Context, req CodeMigrationRequest) (Submission, error) {
	payload, err := c.do(ctx, callMigrateCode, http.MethodPost, pathMigrateCode, c.submitTimeout, req)
	if err != nil {
		return Submission{}, err
	}
	return decodeSubmission(callMigrateCode, payload)
}

// SubmitRepositoryMigration submits a previously analyzed repository for
// migration.
func (c *Client) SubmitRepositoryMigration(ctx context.Context, repositoryID string, req RepositoryMigrationRequest) (Submission, error) {
	if strings.TrimSpace(repositoryID) == "" {
		return Submission{}, fmt.Errorf("repository: %w", ErrMissingIdentifier)
	}
	path := fmt.Sprintf(pathMigrateRepo, url.PathEscape(repositoryID))
	payload, err := c.do(ctx, callMigrateRepo, http.MethodPost, path, c.submitTimeout, req)
	if err != nil {
		return Submission{}, err
	}
	return decodeSubmission(callMigrateRepo, payload)
}

// PollJobStatus fetches the current status of a migration job. It uses the
// short poll timeout.
func (c *Client) PollJobStatus(ctx context.Context, migrationID string) (JobStatus, error) {
	var status JobStatus
	if strings.TrimSpace(migrationID) == "" {
		return status, fmt.Errorf("migration: %w", ErrMissingIdentifier)
	}
	path := fmt.Sprintf(pathMigration, url.PathEscape(migrationID))
	payload, err := c.do(ctx, callPollStatus, http.MethodGet, path, c.pollTimeout, nil)
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(payload, &status); err != nil {
		return JobStatus{}, &DecodeError{Call: callPollStatus, Cause: err}
	}
	return status, nil
}

// ListServices fetches the backend service catalog.
func (c *Client) ListServices(ctx context.Context) (Catalog, error) {
	payload, err := c.do(ctx, callListServices, http.MethodGet, pathServices, c.pollTimeout, nil)
	if err != nil {
		return nil, err
	}
	catalog, err := decodeCatalog(payload)
	if err != nil {
		return nil, &DecodeError{Call: callListServices, Cause: err}
	}
	return catalog, nil
}

func decodeSubmission(call string, payload []byte) (Submission, error) {
	var envelope struct {
		MigrationID ID `json:"migration_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Submission{}, &DecodeError{Call: call, Cause: err}
	}
	if envelope.MigrationID != "" {
		return Submission{MigrationID: string(envelope.MigrationID)}, nil
	}
	result, err := decodeResult(payload)
	if err != nil {
		return Submission{}, &DecodeError{Call: call, Cause: err}
	}
	return Submission{Result: &result}, nil
}

// do performs one JSON request and returns the raw 2xx response body.
func (c *Client) do(ctx context.Context, call, method, path string, timeout time.Duration, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", call, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", call, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug(logRequestMessage,
		zap.String("call", call),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	started := time.Now()
	payload, err := c.roundTrip(req)
	c.recorder.ObserveRequest(call, time.Since(started), err)
	if err != nil {
		c.logger.Debug(logFailedMessage,
			zap.String("call", call),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, err
	}
	return payload, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectivityError{BaseURL: c.baseURL, Timeout: isTimeout(err), Cause: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &ConnectivityError{BaseURL: c.baseURL, Timeout: isTimeout(err), Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Detail: parseDetail(payload)}
	}
	return payload, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseDetail extracts the "detail" field of an error body. Structured
// details (validation error lists) are re-encoded as JSON text.
func parseDetail(payload []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	if string(body.Detail) == "null" {
		return ""
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &list); err == nil {
		var msgs []string
		for _, item := range list {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(body.Detail)
}
