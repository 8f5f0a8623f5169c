package workflowtest

import (
	"context"
	"sync"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/workflow"
)

// PollResponse is one scripted answer of the status endpoint.
type PollResponse struct {
	Status backend.JobStatus
	Err    error
}

// StubBackend records requests and answers with scripted responses. Unset
// funcs answer with a job id "job-1" and a pending status.
type StubBackend struct {
	AnalyzeFunc          func(ctx context.Context, ref backend.RepositoryRef) (backend.AnalysisResult, error)
	SubmitCodeFunc       func(ctx context.Context, req backend.CodeMigrationRequest) (backend.Submission, error)
	SubmitRepositoryFunc func(ctx context.Context, repositoryID string, req backend.RepositoryMigrationRequest) (backend.Submission, error)
	// PollHook runs while a status request is "in flight", before its
	// response is returned.
	PollHook func(migrationID string)

	mu           sync.Mutex
	pollQueue    []PollResponse
	Analyses     []backend.RepositoryRef
	CodeRequests []backend.CodeMigrationRequest
	RepoRequests []backend.RepositoryMigrationRequest
	RepoIDs      []string
	Polls        []string
}

var _ workflow.Backend = (*StubBackend)(nil)

// QueuePoll appends scripted status answers, consumed one per poll.
func (b *StubBackend) QueuePoll(responses ...PollResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pollQueue = append(b.pollQueue, responses...)
}

// PollCount is the number of status requests received.
func (b *StubBackend) PollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Polls)
}

func (b *StubBackend) AnalyzeRepository(ctx context.Context, ref backend.RepositoryRef) (backend.AnalysisResult, error) {
	b.mu.Lock()
	b.Analyses = append(b.Analyses, ref)
	fn := b.AnalyzeFunc
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref)
	}
	var result backend.AnalysisResult
	result.RepositoryID = "repo-1"
	return result, nil
}

func (b *StubBackend) SubmitCodeMigration(ctx context.Context, req backend.CodeMigrationRequest) (backend.Submission, error) {
	b.mu.Lock()
	b.CodeRequests = append(b.CodeRequests, req)
	fn := b.SubmitCodeFunc
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return backend.Submission{MigrationID: "job-1"}, nil
}

func (b *StubBackend) SubmitRepositoryMigration(ctx context.Context, repositoryID string, req backend.RepositoryMigrationRequest) (backend.Submission, error) {
	b.mu.Lock()
	b.RepoIDs = append(b.RepoIDs, repositoryID)
	b.RepoRequests = append(b.RepoRequests, req)
	fn := b.SubmitRepositoryFunc
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, repositoryID, req)
	}
	return backend.Submission{MigrationID: "job-1"}, nil
}

func (b *StubBackend) PollJobStatus(ctx context.Context, migrationID string) (backend.JobStatus, error) {
	b.mu.Lock()
	b.Polls = append(b.Polls, migrationID)
	next := PollResponse{Status: backend.JobStatus{Status: backend.JobPending}}
	if len(b.pollQueue) > 0 {
		next = b.pollQueue[0]
		b.pollQueue = b.pollQueue[1:]
	}
	hook := b.PollHook
	b.mu.Unlock()
	if hook != nil {
		hook(migrationID)
	}
	return next.Status, next.Err
}
