// Package workflow owns the migration wizard state and the job polling loop.
//
// A Controller is the single owner of the wizard State and of the active
// PollHandle. Every mutation goes through its methods. Timer callbacks and
// HTTP completions arrive on runtime goroutines and are serialised by the
// controller's mutex; responses that belong to a cancelled loop, a reset
// session, or a closed controller are discarded.
package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/source"
)

// Backend is the subset of the backend client the controller drives.
type Backend interface {
	AnalyzeRepository(ctx context.Context, ref backend.RepositoryRef) (backend.AnalysisResult, error)
	SubmitCodeMigration(ctx context.Context, req backend.CodeMigrationRequest) (backend.Submission, error)
	SubmitRepositoryMigration(ctx context.Context, repositoryID string, req backend.RepositoryMigrationRequest) (backend.Submission, error)
	PollJobStatus(ctx context.Context, migrationID string) (backend.JobStatus, error)
}

// Metrics receives workflow events.
type Metrics interface {
	SubmissionStarted(kind string)
	PollObserved(transient bool)
	JobFinished(kind, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) SubmissionStarted(string)   {}
func (nopMetrics) PollObserved(bool)          {}
func (nopMetrics) JobFinished(string, string) {}

// Observer is called with a snapshot after every state change. It runs
// outside the controller lock and may be called from any goroutine.
type Observer func(State)

// Option configures a Controller.
type Option func(*Controller)

func WithClock(clock Clock) Option { return func(c *Controller) { c.clock = clock } }

func WithLogger(logger *zap.Logger) Option { return func(c *Controller) { c.logger = logger } }

func WithMetrics(metrics Metrics) Option { return func(c *Controller) { c.metrics = metrics } }

func WithObserver(observer Observer) Option { return func(c *Controller) { c.observer = observer } }

func WithCatalog(catalog backend.Catalog) Option { return func(c *Controller) { c.catalog = catalog } }

// WithProvider sets the provider selected on start and after Reset.
func WithProvider(provider backend.Provider) Option {
	return func(c *Controller) { c.provider = provider }
}

// WithRepositoryOptions sets the repository options used on start and after
// Reset.
func WithRepositoryOptions(opts backend.RepositoryOptions) Option {
	return func(c *Controller) { c.options = opts }
}

const (
	outcomeCompleted   = "completed"
	outcomeFailed      = "failed"
	outcomeTimedOut    = "timed_out"
	outcomeSynchronous = "synchronous"
)

// Controller drives the wizard and the polling loop.
type Controller struct {
	mu     sync.Mutex
	state  State
	poll   *PollHandle
	gen    uint64 // bumped by Submit, Reset and Close
	epoch  uint64 // bumped by Reset and Close
	closed bool

	backend  Backend
	clock    Clock
	logger   *zap.Logger
	metrics  Metrics
	observer Observer
	catalog  backend.Catalog
	provider backend.Provider
	options  backend.RepositoryOptions
}

// New builds a Controller around a backend.
func New(b Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:  b,
		clock:    RealClock{},
		logger:   zap.NewNop(),
		metrics:  nopMetrics{},
		catalog:  backend.DefaultCatalog(),
		provider: backend.ProviderAWS,
		options:  backend.RepositoryOptions{CreatePR: true, BranchName: defaultMigrationBranch},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = initialState(c.provider, c.options)
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Catalog returns the service catalog used for selection.
func (c *Controller) Catalog() backend.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// Polling reports whether a poll loop is active.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poll.Active()
}

// update applies fn under the lock and notifies the observer.
func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn(&c.state)
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)
}

func (c *Controller) notify(snapshot State) {
	if c.observer != nil {
		c.observer(snapshot)
	}
}

// SetCatalog replaces the service catalog, for example with the backend's.
func (c *Controller) SetCatalog(catalog backend.Catalog) {
	if len(catalog) == 0 {
		return
	}
	c.update(func(s *State) {
		c.catalog = catalog
	})
}

// SetProvider selects the source provider. Selected services that the new
// provider does not offer are dropped.
func (c *Controller) SetProvider(provider backend.Provider) {
	c.update(func(s *State) {
		if s.Provider == provider {
			return
		}
		s.Provider = provider
		s.Err = nil
		for id := range s.selected {
			if _, ok := c.catalog.Lookup(provider, id); !ok {
				delete(s.selected, id)
			}
		}
	})
}

func (c *Controller) SetInputMethod(method InputMethod) {
	c.update(func(s *State) {
		s.InputMethod = method
		s.Err = nil
	})
}

func (c *Controller) SetCode(code string) {
	c.update(func(s *State) {
		s.Code = code
	})
}

// SetLanguage pins the snippet language. An empty value means detect.
func (c *Controller) SetLanguage(language string) {
	c.update(func(s *State) {
		s.Language = strings.ToLower(strings.TrimSpace(language))
	})
}

// SetRepository updates the repository reference. A changed URL or branch
// invalidates the previous analysis.
func (c *Controller) SetRepository(ref backend.RepositoryRef) {
	c.update(func(s *State) {
		if s.Repository.URL != ref.URL || s.Repository.Branch != ref.Branch {
			s.Analysis = nil
		}
		s.Repository = ref
	})
}

func (c *Controller) SetRepositoryOptions(opts backend.RepositoryOptions) {
	c.update(func(s *State) {
		s.Options = opts
	})
}

// ToggleService flips the selection of a service id.
func (c *Controller) ToggleService(id string) {
	c.update(func(s *State) {
		if _, ok := s.selected[id]; ok {
			delete(s.selected, id)
		} else {
			s.selected[id] = struct{}{}
		}
		s.Err = nil
	})
}

// SelectServices replaces the selection.
func (c *Controller) SelectServices(ids []string) {
	c.update(func(s *State) {
		s.selected = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				s.selected[id] = struct{}{}
			}
		}
	})
}

// Next validates the current step and advances. A failed validation is
// stored in the state and returned.
func (c *Controller) Next() error {
	var err error
	c.update(func(s *State) {
		if s.Step == LastStep {
			return
		}
		if err = c.validate(*s, s.Step); err != nil {
			s.Err = err
			return
		}
		if s.Step == StepServices && s.Result == nil {
			err = &ValidationError{Field: "result", Message: "Submit the migration to see results."}
			s.Err = err
			return
		}
		s.Step++
		s.Err = nil
	})
	return err
}

// Back moves one step back without validating.
func (c *Controller) Back() {
	c.update(func(s *State) {
		if s.Step > StepProvider {
			s.Step--
		}
		if !s.Busy {
			s.Err = nil
		}
	})
}

// GoTo jumps back to an earlier step.
func (c *Controller) GoTo(step Step) error {
	var err error
	c.update(func(s *State) {
		if step < StepProvider || step > s.Step {
			err = &ValidationError{Field: "step", Message: "Complete the current step first."}
			return
		}
		s.Step = step
	})
	return err
}

func (c *Controller) validate(s State, step Step) error {
	switch step {
	case StepProvider:
		if s.Provider != backend.ProviderAWS && s.Provider != backend.ProviderAzure {
			return &ValidationError{Field: "provider", Message: "Select a source cloud provider."}
		}
	case StepSource:
		if s.InputMethod == InputCode {
			if strings.TrimSpace(s.Code) == "" {
				return &ValidationError{Field: "code", Message: "Enter the code you want to migrate."}
			}
			return nil
		}
		if _, err := source.ValidateRepositoryURL(s.Repository.URL); err != nil {
			return &ValidationError{Field: "repository_url", Message: repositoryURLMessage(err)}
		}
		if s.Analysis == nil {
			return &ValidationError{Field: "analysis", Message: "Analyze the repository before continuing."}
		}
	case StepServices:
		if len(s.selected) == 0 {
			return &ValidationError{Field: "services", Message: "Select at least one service to migrate."}
		}
	}
	return nil
}

func repositoryURLMessage(err error) string {
	if errors.Is(err, source.ErrEmptyRepositoryURL) {
		return "Enter a repository URL."
	}
	return "Enter a valid git repository URL (https or ssh)."
}

// Analyze runs repository analysis for the current repository reference and
// preselects the detected services.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Busy {
		c.mu.Unlock()
		return ErrBusy
	}
	ref := c.state.Repository
	normalized, err := source.ValidateRepositoryURL(ref.URL)
	if err != nil {
		verr := &ValidationError{Field: "repository_url", Message: repositoryURLMessage(err)}
		c.state.Err = verr
		snapshot := c.state.clone()
		c.mu.Unlock()
		c.notify(snapshot)
		return verr
	}
	ref.URL = normalized
	ref.Branch = strings.TrimSpace(ref.Branch)
	if ref.Branch == "" {
		ref.Branch = defaultBranch
	}
	epoch := c.epoch
	c.state.Busy = true
	c.state.Err = nil
	c.state.Analysis = nil
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)

	c.logger.Info("analyzing repository",
		zap.String("repository", source.RepositoryName(ref.URL)),
		zap.String("branch", ref.Branch),
	)
	result, err := c.backend.AnalyzeRepository(ctx, ref)

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state.Busy = false
	if err != nil {
		c.state.Err = err
		c.logger.Warn("repository analysis failed", zap.Error(err))
	} else {
		c.state.Analysis = &result
		c.state.selected = c.preselect(c.state.Provider, result.DetectedServiceNames())
		c.logger.Info("repository analyzed",
			zap.String("repository_id", string(result.RepositoryID)),
			zap.Strings("services_detected", result.DetectedServiceNames()),
		)
	}
	snapshot = c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)
	return err
}

func (c *Controller) preselect(provider backend.Provider, names []string) map[string]struct{} {
	selected := make(map[string]struct{}, len(names))
	for _, name := range names {
		if svc, ok := c.catalog.Lookup(provider, name); ok {
			selected[svc.ID] = struct{}{}
			continue
		}
		selected[name] = struct{}{}
	}
	return selected
}

// Submit sends the migration request. Any active poll loop is cancelled
// first. When the backend answers with a job id a new poll loop starts and
// Submit returns; the outcome is delivered through the observer. A response
// without a job id is taken as the final result.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// A running poll loop is replaced; a submission or analysis in flight is not.
	if c.state.Busy && c.state.Phase != PhasePolling {
		c.mu.Unlock()
		return ErrBusy
	}
	for _, step := range []Step{StepSource, StepServices} {
		if err := c.validate(c.state, step); err != nil {
			c.state.Err = err
			snapshot := c.state.clone()
			c.mu.Unlock()
			c.notify(snapshot)
			return err
		}
	}

	c.cancelPollLocked()
	c.gen++
	gen := c.gen
	kind := c.state.Kind()
	services := c.state.SelectedServices()

	var codeReq backend.CodeMigrationRequest
	var repoReq backend.RepositoryMigrationRequest
	var repositoryID string
	if kind == KindCode {
		if c.state.Language == "" {
			c.state.Language = detectLanguage(c.state.Code)
		}
		codeReq = backend.CodeMigrationRequest{
			Code:          c.state.Code,
			Language:      c.state.Language,
			Services:      services,
			CloudProvider: c.state.Provider,
		}
	} else {
		repositoryID = string(c.state.Analysis.RepositoryID)
		repoReq = backend.RepositoryMigrationRequest{Services: services, RepositoryOptions: c.state.Options}
	}

	c.state.Busy = true
	c.state.Err = nil
	c.state.Result = nil
	c.state.Phase = PhaseSubmitting
	c.state.MigrationID = ""
	c.state.Progress = backend.Progress{}
	c.metrics.SubmissionStarted(kind.String())
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)

	c.logger.Info("submitting migration",
		zap.String("kind", kind.String()),
		zap.Strings("services", services),
	)
	var submission backend.Submission
	var err error
	if kind == KindCode {
		submission, err = c.backend.SubmitCodeMigration(ctx, codeReq)
	} else {
		submission, err = c.backend.SubmitRepositoryMigration(ctx, repositoryID, repoReq)
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	switch {
	case err != nil:
		c.state.Busy = false
		c.state.Phase = PhaseIdle
		c.state.Err = err
		c.logger.Warn("migration submission failed", zap.Error(err))
	case !submission.Async():
		c.finishLocked(kind, submission.Result, outcomeSynchronous)
	default:
		c.startPollLocked(kind, submission.MigrationID)
	}
	snapshot = c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)
	return err
}

func detectLanguage(code string) string {
	if language := source.DetectLanguage("", []byte(code)); language != "" {
		return language
	}
	return source.DefaultLanguage
}

func (c *Controller) startPollLocked(kind JobKind, migrationID string) {
	cadence := CadenceFor(kind)
	h := &PollHandle{MigrationID: migrationID, Kind: kind, Cadence: cadence}
	h.ticker = c.clock.Every(cadence.Interval, func() { c.tick(h) })
	h.ceiling = c.clock.After(cadence.Ceiling, func() { c.expire(h) })
	c.poll = h

	c.state.Phase = PhasePolling
	c.state.MigrationID = migrationID
	c.state.Busy = true
	c.logger.Info("migration job started",
		zap.String("migration_id", migrationID),
		zap.String("kind", kind.String()),
		zap.Duration("interval", cadence.Interval),
		zap.Duration("ceiling", cadence.Ceiling),
	)
}

func (c *Controller) cancelPollLocked() {
	if c.poll != nil {
		c.poll.Cancel()
		c.poll = nil
	}
}

func (c *Controller) finishLocked(kind JobKind, result *backend.MigrationResult, outcome string) {
	if result == nil {
		result = &backend.MigrationResult{}
	}
	c.state.Result = result
	c.state.Phase = PhaseCompleted
	c.state.Busy = false
	c.state.Err = nil
	c.state.Step = StepResults
	c.metrics.JobFinished(kind.String(), outcome)
	c.logger.Info("migration completed",
		zap.String("migration_id", c.state.MigrationID),
		zap.String("outcome", outcome),
		zap.Int("files_changed", len(result.FilesChanged)),
		zap.String("pr_url", result.PRURL),
	)
}

// tick fetches the job status once. The fetch runs without the lock.
func (c *Controller) tick(h *PollHandle) {
	c.mu.Lock()
	if c.poll != h {
		c.mu.Unlock()
		return
	}
	migrationID := h.MigrationID
	c.mu.Unlock()

	status, err := c.backend.PollJobStatus(context.Background(), migrationID)
	if err != nil {
		c.apply(h, TransientFailure(err))
		return
	}
	c.apply(h, Polled(status))
}

// apply handles one poll outcome for loop h. Outcomes of a loop that is no
// longer active are ignored.
func (c *Controller) apply(h *PollHandle, outcome PollOutcome) {
	c.mu.Lock()
	if c.poll != h {
		c.mu.Unlock()
		c.logger.Debug("stale poll response ignored", zap.String("migration_id", h.MigrationID))
		return
	}
	status, ok := outcome.Status()
	c.metrics.PollObserved(!ok)
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("poll request failed; retrying on next tick",
			zap.String("migration_id", h.MigrationID),
			zap.Error(outcome.Failure()),
		)
		return
	}

	if status.Progress != nil {
		c.state.Progress = *status.Progress
	}
	switch status.Status {
	case backend.JobCompleted:
		c.cancelPollLocked()
		result := backend.MergeResult(status)
		c.finishLocked(h.Kind, &result, outcomeCompleted)
	case backend.JobFailed:
		c.cancelPollLocked()
		c.state.Err = &JobFailedError{MigrationID: h.MigrationID, Message: strings.TrimSpace(status.Error)}
		c.state.Phase = PhaseFailed
		c.state.Busy = false
		c.metrics.JobFinished(h.Kind.String(), outcomeFailed)
		c.logger.Warn("migration failed",
			zap.String("migration_id", h.MigrationID),
			zap.String("error", status.Error),
		)
	}
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)
}

// expire fires when the ceiling elapses before a terminal status.
func (c *Controller) expire(h *PollHandle) {
	c.mu.Lock()
	if c.poll != h {
		c.mu.Unlock()
		return
	}
	c.cancelPollLocked()
	c.state.Err = &TimeoutError{Kind: h.Kind, MigrationID: h.MigrationID, Ceiling: h.Cadence.Ceiling}
	c.state.Phase = PhaseTimedOut
	c.state.Busy = false
	c.metrics.JobFinished(h.Kind.String(), outcomeTimedOut)
	c.logger.Warn("migration timed out",
		zap.String("migration_id", h.MigrationID),
		zap.Duration("ceiling", h.Cadence.Ceiling),
	)
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)
}

// Reset cancels any poll loop and restores the initial state. Responses
// still in flight are discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cancelPollLocked()
	c.gen++
	c.epoch++
	c.state = initialState(c.provider, c.options)
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.notify(snapshot)
}

// Close tears the controller down. Timers are cancelled and no further
// state changes or notifications happen.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancelPollLocked()
	c.gen++
	c.epoch++
}
