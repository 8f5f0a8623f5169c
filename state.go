package main

import (
	"github.com/katistix/cloudmigrate/internal/workflow"
)

// --- WIZARD STATE LABELS ---

func phaseLabel(p workflow.JobPhase) string {
	return [...]string{
		"Ready", "📤 Submitting...", "🔄 Migrating...", "✅ Completed", "🔥 Failed", "⏰ Timed out",
	}[p]
}

// sourceField is the focused input on the repository source step.
type sourceField int

const (
	fieldURL sourceField = iota
	fieldBranch
	fieldToken
)

func (f sourceField) next() sourceField {
	return (f + 1) % (fieldToken + 1)
}

func (f sourceField) prev() sourceField {
	return (f + fieldToken) % (fieldToken + 1)
}

// providerRow is the focused row on the provider step.
type providerRow int

const (
	rowProvider providerRow = iota
	rowInputMethod
)

// stepTitles is the wizard breadcrumb.
var stepTitles = []string{"1 Provider", "2 Source", "3 Services", "4 Results"}
