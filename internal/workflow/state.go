package workflow

import (
	"sort"
	"time"

	"github.com/katistix/cloudmigrate/internal/backend"
)

// Step is the wizard position.
type Step int

const (
	StepProvider Step = iota
	StepSource
	StepServices
	StepResults
)

// LastStep is the results step.
const LastStep = StepResults

func (s Step) String() string {
	switch s {
	case StepProvider:
		return "Provider"
	case StepSource:
		return "Source"
	case StepServices:
		return "Services"
	case StepResults:
		return "Results"
	}
	return "Unknown"
}

// InputMethod selects how the code to migrate is supplied.
type InputMethod int

const (
	InputCode InputMethod = iota
	InputRepository
)

func (m InputMethod) String() string {
	if m == InputRepository {
		return "repository"
	}
	return "code"
}

// JobKind distinguishes the two job flavours, which poll at different rates.
type JobKind int

const (
	KindCode JobKind = iota
	KindRepository
)

func (k JobKind) String() string {
	if k == KindRepository {
		return "repository"
	}
	return "code"
}

// Cadence is the poll interval and ceiling timeout of a job kind.
type Cadence struct {
	Interval time.Duration
	Ceiling  time.Duration
}

var cadences = map[JobKind]Cadence{
	KindCode:       {Interval: time.Second, Ceiling: 5 * time.Minute},
	KindRepository: {Interval: 2 * time.Second, Ceiling: 30 * time.Minute},
}

// CadenceFor returns the poll cadence of a job kind.
func CadenceFor(kind JobKind) Cadence {
	return cadences[kind]
}

// JobPhase is the client-side lifecycle of the current migration.
type JobPhase int

const (
	PhaseIdle JobPhase = iota
	PhaseSubmitting
	PhasePolling
	PhaseCompleted
	PhaseFailed
	PhaseTimedOut
)

func (p JobPhase) String() string {
	return [...]string{"idle", "submitting", "polling", "completed", "failed", "timed_out"}[p]
}

// Terminal reports whether the job has stopped being observed.
func (p JobPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseTimedOut
}

// State is the wizard view-state. Values returned by Controller.Snapshot are
// copies and safe to read without synchronisation.
type State struct {
	Step        Step
	Provider    backend.Provider
	InputMethod InputMethod
	Code        string
	Language    string
	Repository  backend.RepositoryRef
	Options     backend.RepositoryOptions

	Analysis    *backend.AnalysisResult
	Result      *backend.MigrationResult
	Err         error
	Busy        bool
	Phase       JobPhase
	MigrationID string
	Progress    backend.Progress

	selected map[string]struct{}
}

func initialState(provider backend.Provider, opts backend.RepositoryOptions) State {
	return State{
		Step:        StepProvider,
		Provider:    provider,
		InputMethod: InputCode,
		Repository:  backend.RepositoryRef{Branch: defaultBranch},
		Options:     opts,
		selected:    make(map[string]struct{}),
	}
}

const (
	defaultBranch          = "main"
	defaultMigrationBranch = "cloudmigrate/gcp"
)

func (s State) clone() State {
	c := s
	c.selected = make(map[string]struct{}, len(s.selected))
	for k := range s.selected {
		c.selected[k] = struct{}{}
	}
	return c
}

// Selected reports whether a service id is selected.
func (s State) Selected(id string) bool {
	_, ok := s.selected[id]
	return ok
}

// SelectedServices returns the selected service ids sorted.
func (s State) SelectedServices() []string {
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Kind is the job kind the current input method submits.
func (s State) Kind() JobKind {
	if s.InputMethod == InputRepository {
		return KindRepository
	}
	return KindCode
}
