package main

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/workflow"
	"github.com/katistix/cloudmigrate/internal/workflow/workflowtest"
)

type wizardHarness struct {
	model   model
	ctrl    *workflow.Controller
	clock   *workflowtest.FakeClock
	backend *workflowtest.StubBackend
}

func newWizardHarness(t *testing.T) *wizardHarness {
	t.Helper()
	h := &wizardHarness{clock: workflowtest.NewFakeClock(), backend: &workflowtest.StubBackend{}}
	notifier := newStateNotifier()
	h.ctrl = workflow.New(h.backend, workflow.WithClock(h.clock), workflow.WithObserver(notifier.observe))
	t.Cleanup(h.ctrl.Close)
	h.model = newModel(context.Background(), h.ctrl, notifier, nil)
	return h
}

func (h *wizardHarness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(model)
	return cmd
}

func (h *wizardHarness) key(k tea.KeyType) tea.Cmd {
	return h.send(tea.KeyMsg{Type: k})
}

func (h *wizardHarness) typeText(text string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// run executes a command returned by the model and feeds its message back.
func (h *wizardHarness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	h.send(cmd())
}

func TestWizardProviderStep(t *testing.T) {
	h := newWizardHarness(t)
	assert.Equal(t, workflow.StepProvider, h.model.state.Step)

	h.key(tea.KeyRight)
	assert.Equal(t, backend.ProviderAzure, h.ctrl.Snapshot().Provider)
	h.key(tea.KeyRight)
	assert.Equal(t, backend.ProviderAWS, h.ctrl.Snapshot().Provider)

	h.key(tea.KeyDown)
	h.key(tea.KeySpace)
	assert.Equal(t, workflow.InputRepository, h.ctrl.Snapshot().InputMethod)

	h.key(tea.KeyEnter)
	assert.Equal(t, workflow.StepSource, h.model.state.Step)
	assert.Contains(t, h.model.View(), "analyze")

	h.key(tea.KeyEsc)
	assert.Equal(t, workflow.StepProvider, h.model.state.Step)
}

func TestWizardCodeMigrationFlow(t *testing.T) {
	h := newWizardHarness(t)
	h.key(tea.KeyEnter)
	require.Equal(t, workflow.StepSource, h.model.state.Step)

	h.key(tea.KeyCtrlN)
	assert.Equal(t, workflow.StepSource, h.model.state.Step, "empty code blocks the step")
	assert.Contains(t, h.model.View(), "Enter the code you want to migrate.")

	h.typeText("import boto3")
	assert.Equal(t, "import boto3", h.ctrl.Snapshot().Code)
	h.key(tea.KeyCtrlN)
	require.Equal(t, workflow.StepServices, h.model.state.Step)

	item, ok := h.model.services.SelectedItem().(serviceItem)
	require.True(t, ok)
	h.key(tea.KeySpace)
	assert.True(t, h.ctrl.Snapshot().Selected(item.service.ID))

	h.run(h.key(tea.KeyEnter))
	assert.Equal(t, workflow.PhasePolling, h.model.state.Phase)
	assert.Contains(t, h.model.View(), "job-1")
	assert.Nil(t, h.key(tea.KeyEnter), "no second submission while a job runs")

	h.backend.QueuePoll(
		workflowtest.PollResponse{Status: backend.JobStatus{
			Status:   backend.JobInProgress,
			Progress: &backend.Progress{Refactoring: backend.StageProgress{Percent: 40, Message: "rewriting clients"}},
		}},
		workflowtest.PollResponse{Status: backend.JobStatus{
			Status:         backend.JobCompleted,
			RefactoredCode: "from google.cloud import storage",
			PRURL:          "",
		}},
	)
	h.clock.Advance(time.Second)
	h.send(stateChangedMsg{})
	assert.Contains(t, h.model.View(), "rewriting clients")

	h.clock.Advance(time.Second)
	h.send(stateChangedMsg{})
	require.Equal(t, workflow.StepResults, h.model.state.Step)
	assert.Contains(t, h.model.View(), "from google.cloud import storage")

	h.typeText("r")
	assert.Equal(t, workflow.StepProvider, h.model.state.Step)
	assert.Empty(t, h.model.code.Value())
	assert.Nil(t, h.model.state.Result)
}

func TestWizardRepositoryAnalysisPreselects(t *testing.T) {
	h := newWizardHarness(t)
	h.backend.AnalyzeFunc = func(context.Context, backend.RepositoryRef) (backend.AnalysisResult, error) {
		var result backend.AnalysisResult
		result.RepositoryID = "repo-9"
		result.MAR.ServicesDetected = []backend.DetectedService{{ServiceName: "DynamoDB"}, {ServiceName: "custom-queue"}}
		return result, nil
	}
	h.ctrl.SetInputMethod(workflow.InputRepository)
	h.key(tea.KeyEnter)
	require.Equal(t, workflow.StepSource, h.model.state.Step)

	h.typeText("https://github.com/acme/shop")
	cmd := h.key(tea.KeyEnter)
	require.NotNil(t, cmd)
	h.run(cmd)

	require.NotNil(t, h.model.state.Analysis)
	assert.Equal(t, "https://github.com/acme/shop", h.backend.Analyses[0].URL)
	assert.Equal(t, "main", h.backend.Analyses[0].Branch)
	assert.Equal(t, []string{"custom-queue", "dynamodb"}, h.model.state.SelectedServices())

	detected := map[string]bool{}
	for _, it := range h.model.serviceItems() {
		si := it.(serviceItem)
		if si.detected {
			detected[si.service.ID] = si.selected
		}
	}
	assert.Equal(t, map[string]bool{"dynamodb": true, "custom-queue": true}, detected)

	h.key(tea.KeyEnter)
	assert.Equal(t, workflow.StepServices, h.model.state.Step)
	h.typeText("t")
	assert.True(t, h.ctrl.Snapshot().Options.RunTests)
}

func TestWizardResultsJumpBackToStep(t *testing.T) {
	h := newWizardHarness(t)
	h.backend.SubmitCodeFunc = func(context.Context, backend.CodeMigrationRequest) (backend.Submission, error) {
		return backend.Submission{Result: &backend.MigrationResult{RefactoredCode: "print(2)"}}, nil
	}
	h.ctrl.SetCode("print(1)")
	h.ctrl.SelectServices([]string{"s3"})
	require.NoError(t, h.ctrl.Submit(context.Background()))
	h.send(stateChangedMsg{})
	require.Equal(t, workflow.StepResults, h.model.state.Step)
	assert.Contains(t, h.model.View(), "1-3: edit step")

	h.typeText("2")
	assert.Equal(t, workflow.StepSource, h.model.state.Step)
	assert.Equal(t, "print(1)", h.model.code.Value())

	h.key(tea.KeyCtrlN)
	assert.Equal(t, workflow.StepServices, h.model.state.Step)
	assert.Equal(t, "print(1)", h.ctrl.Snapshot().Code)
}

func TestWizardQuitClosesController(t *testing.T) {
	h := newWizardHarness(t)
	h.ctrl.SetCode("print(1)")
	h.ctrl.SelectServices([]string{"s3"})
	require.NoError(t, h.ctrl.Submit(context.Background()))
	require.True(t, h.ctrl.Polling())

	cmd := h.key(tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.True(t, h.model.quitting)
	assert.False(t, h.ctrl.Polling())
	assert.Equal(t, 0, h.clock.Active())
}

func TestCopyTarget(t *testing.T) {
	assert.Empty(t, copyTarget(nil))
	assert.Equal(t, "print(1)", copyTarget(&backend.MigrationResult{RefactoredCode: "print(1)"}))
	assert.Equal(t, "https://github.com/acme/shop/pull/1", copyTarget(&backend.MigrationResult{RefactoredCode: "x", PRURL: "https://github.com/acme/shop/pull/1"}))
}

func TestFraction(t *testing.T) {
	assert.InDelta(t, 0.4, fraction(40), 1e-9)
	assert.Equal(t, 0.0, fraction(-5))
	assert.Equal(t, 1.0, fraction(250))
}
