package main

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/workflow"
)

// --- BUBBLE TEA MESSAGES ---
// These messages are the results of commands.

// stateChangedMsg tells the model to re-read the controller snapshot.
type stateChangedMsg struct{}

type analyzedMsg struct{ err error }

type submittedMsg struct{ err error }

type catalogMsg struct {
	catalog backend.Catalog
	err     error
}

type copiedToClipboardMsg struct{ err error }

type copiedExpiredMsg struct{}

// --- CONTROLLER, BACKEND & CLIPBOARD COMMANDS ---

// stateNotifier bridges controller notifications into the event loop. A
// pending notification is enough since the model reads a fresh snapshot.
type stateNotifier struct {
	ch chan struct{}
}

func newStateNotifier() *stateNotifier {
	return &stateNotifier{ch: make(chan struct{}, 1)}
}

func (n *stateNotifier) observe(workflow.State) {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *stateNotifier) wait() tea.Cmd {
	return func() tea.Msg {
		<-n.ch
		return stateChangedMsg{}
	}
}

func analyzeCmd(ctx context.Context, ctrl *workflow.Controller) tea.Cmd {
	return func() tea.Msg {
		return analyzedMsg{err: ctrl.Analyze(ctx)}
	}
}

func submitCmd(ctx context.Context, ctrl *workflow.Controller) tea.Cmd {
	return func() tea.Msg {
		return submittedMsg{err: ctrl.Submit(ctx)}
	}
}

type catalogSource interface {
	ListServices(ctx context.Context) (backend.Catalog, error)
}

func fetchCatalogCmd(ctx context.Context, src catalogSource) tea.Cmd {
	return func() tea.Msg {
		catalog, err := src.ListServices(ctx)
		return catalogMsg{catalog: catalog, err: err}
	}
}

func copyToClipboardCmd(text string) tea.Cmd {
	return tea.Batch(
		func() tea.Msg {
			return copiedToClipboardMsg{err: clipboard.WriteAll(text)}
		},
		tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return copiedExpiredMsg{}
		}),
	)
}
