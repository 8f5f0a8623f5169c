package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/report"
	"github.com/katistix/cloudmigrate/internal/workflow"
)

// --- BUBBLE TEA MODEL & ITEMS ---

// serviceItem is one row of the service checklist.
type serviceItem struct {
	service  backend.ServiceInfo
	selected bool
	detected bool
}

// Implement list.Item interface for serviceItem.
func (i serviceItem) Title() string {
	box := "[ ]"
	if i.selected {
		box = "[x]"
	}
	return fmt.Sprintf("%s %s", box, i.service.Name)
}

func (i serviceItem) Description() string {
	desc := i.service.Description
	if desc == "" {
		desc = i.service.ID
	}
	if i.detected {
		return successStyle.Render("detected") + " • " + desc
	}
	return desc
}

func (i serviceItem) FilterValue() string { return i.service.Name }

const maxCodePreviewLines = 20

// --- MAIN MODEL ---
type model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	ctrl       *workflow.Controller
	notifier   *stateNotifier
	catalogSrc catalogSource
	state      workflow.State

	row    providerRow
	field  sourceField
	code   textarea.Model
	url    textinput.Model
	branch textinput.Model
	token  textinput.Model

	services    list.Model
	spinner     spinner.Model
	refactoring progress.Model
	validation  progress.Model

	showCopied bool
	copyErr    error
	quitting   bool
}

// newModel builds the wizard around a controller. catalogSrc may be nil, in
// which case the controller's catalog is used as is.
func newModel(ctx context.Context, ctrl *workflow.Controller, notifier *stateNotifier, catalogSrc catalogSource) model {
	ctx, cancel := context.WithCancel(ctx)

	code := textarea.New()
	code.Placeholder = "Paste the code that uses AWS or Azure SDKs..."
	code.CharLimit = 0
	code.MaxHeight = 0
	code.SetHeight(12)
	code.SetWidth(80)

	url := textinput.New()
	url.Placeholder = "https://github.com/org/repo.git"
	url.Prompt = "URL     › "
	branch := textinput.New()
	branch.Placeholder = "main"
	branch.Prompt = "Branch  › "
	token := textinput.New()
	token.Placeholder = "optional access token"
	token.Prompt = "Token   › "
	token.EchoMode = textinput.EchoPassword

	delegate := list.NewDefaultDelegate()
	selectedStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(katistixOrange).
		Foreground(katistixOrange).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = selectedStyle.Foreground(lipgloss.Color("250")).Faint(true)

	l := list.New(nil, delegate, 48, 20)
	l.Title = "Services to migrate"
	l.Styles.Title = titleStyle
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)

	s := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))))

	m := model{
		ctx:         ctx,
		cancel:      cancel,
		ctrl:        ctrl,
		notifier:    notifier,
		catalogSrc:  catalogSrc,
		code:        code,
		url:         url,
		branch:      branch,
		token:       token,
		services:    l,
		spinner:     s,
		refactoring: progress.New(progress.WithSolidFill(string(katistixOrange)), progress.WithWidth(36)),
		validation:  progress.New(progress.WithSolidFill(string(katistixOrange)), progress.WithWidth(36)),
	}
	m.refresh()
	m.loadInputs()
	m.focusStep()
	return m
}

// --- BUBBLE TEA LOGIC ---
func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.notifier.wait(), m.spinner.Tick, textarea.Blink}
	if m.catalogSrc != nil {
		cmds = append(cmds, fetchCatalogCmd(m.ctx, m.catalogSrc))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		width := msg.Width - h
		m.services.SetSize(int(float32(width)*0.45), msg.Height-v-8)
		m.code.SetWidth(max(width-2, 20))
		m.code.SetHeight(max(msg.Height-v-12, 5))
		return m, nil

	case stateChangedMsg:
		m.refresh()
		return m, m.notifier.wait()

	case analyzedMsg, submittedMsg:
		// Failures are already part of the controller state.
		m.refresh()
		return m, nil

	case catalogMsg:
		if msg.err == nil {
			m.ctrl.SetCatalog(msg.catalog)
		}
		m.refresh()
		return m, nil

	case copiedToClipboardMsg:
		m.showCopied = msg.err == nil
		m.copyErr = msg.err
		return m, nil

	case copiedExpiredMsg:
		m.showCopied = false
		m.copyErr = nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateInputs(msg)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc":
		m.ctrl.Back()
		m.refresh()
		return m, m.focusStep()
	}

	switch m.state.Step {
	case workflow.StepProvider:
		return m.providerKey(msg)
	case workflow.StepSource:
		return m.sourceKey(msg)
	case workflow.StepServices:
		return m.servicesKey(msg)
	default:
		return m.resultsKey(msg)
	}
}

func (m model) providerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()
	case "up", "k", "down", "j", "tab", "shift+tab":
		if m.row == rowProvider {
			m.row = rowInputMethod
		} else {
			m.row = rowProvider
		}
	case "left", "h", "right", "l", " ":
		if m.row == rowProvider {
			m.ctrl.SetProvider(cycleProvider(m.state.Provider, msg.String() == "left" || msg.String() == "h"))
		} else if m.state.InputMethod == workflow.InputCode {
			m.ctrl.SetInputMethod(workflow.InputRepository)
		} else {
			m.ctrl.SetInputMethod(workflow.InputCode)
		}
	case "enter":
		_ = m.ctrl.Next()
		m.refresh()
		return m, m.focusStep()
	}
	m.refresh()
	return m, nil
}

func cycleProvider(current backend.Provider, backwards bool) backend.Provider {
	idx := 0
	for i, p := range backend.Providers {
		if p == current {
			idx = i
		}
	}
	if backwards {
		idx += len(backend.Providers) - 1
	} else {
		idx++
	}
	return backend.Providers[idx%len(backend.Providers)]
}

func (m model) sourceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	repository := m.state.InputMethod == workflow.InputRepository
	switch msg.String() {
	case "ctrl+n":
		m.pushInputs()
		_ = m.ctrl.Next()
		m.refresh()
		return m, m.focusStep()
	case "ctrl+a":
		if repository && !m.state.Busy {
			m.pushInputs()
			return m, analyzeCmd(m.ctx, m.ctrl)
		}
		return m, nil
	}
	if !repository {
		return m.updateInputs(msg)
	}

	switch msg.String() {
	case "tab", "down":
		m.field = m.field.next()
		return m, m.focusStep()
	case "shift+tab", "up":
		m.field = m.field.prev()
		return m, m.focusStep()
	case "enter":
		m.pushInputs()
		if m.state.Analysis == nil {
			if m.state.Busy {
				return m, nil
			}
			return m, analyzeCmd(m.ctx, m.ctrl)
		}
		_ = m.ctrl.Next()
		m.refresh()
		return m, m.focusStep()
	}
	return m.updateInputs(msg)
}

func (m model) servicesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()
	case " ", "x":
		if item, ok := m.services.SelectedItem().(serviceItem); ok && !m.state.Busy {
			m.ctrl.ToggleService(item.service.ID)
			m.refresh()
		}
		return m, nil
	case "p", "t":
		if m.state.InputMethod == workflow.InputRepository && !m.state.Busy {
			opts := m.state.Options
			if msg.String() == "p" {
				opts.CreatePR = !opts.CreatePR
			} else {
				opts.RunTests = !opts.RunTests
			}
			m.ctrl.SetRepositoryOptions(opts)
			m.refresh()
		}
		return m, nil
	case "enter":
		if m.state.Busy {
			return m, nil
		}
		return m, submitCmd(m.ctx, m.ctrl)
	}
	var cmd tea.Cmd
	m.services, cmd = m.services.Update(msg)
	return m, cmd
}

func (m model) resultsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()
	case "c":
		if text := copyTarget(m.state.Result); text != "" {
			return m, copyToClipboardCmd(text)
		}
	case "1", "2", "3":
		step := workflow.Step(msg.String()[0] - '1')
		if m.ctrl.GoTo(step) == nil {
			m.refresh()
			m.loadInputs()
			m.showCopied = false
			return m, m.focusStep()
		}
	case "r":
		m.ctrl.Reset()
		m.refresh()
		m.loadInputs()
		m.row = rowProvider
		m.field = fieldURL
		m.showCopied = false
		return m, m.focusStep()
	}
	return m, nil
}

// copyTarget prefers the pull request URL over the refactored code.
func copyTarget(result *backend.MigrationResult) string {
	if result == nil {
		return ""
	}
	if result.PRURL != "" {
		return result.PRURL
	}
	return result.RefactoredCode
}

func (m model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	m.ctrl.Close()
	return m, tea.Quit
}

// updateInputs forwards a message to the focused text input and pushes the
// new value to the controller.
func (m model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.state.Step != workflow.StepSource {
		return m, nil
	}
	var cmd tea.Cmd
	if m.state.InputMethod == workflow.InputCode {
		m.code, cmd = m.code.Update(msg)
	} else {
		switch m.field {
		case fieldURL:
			m.url, cmd = m.url.Update(msg)
		case fieldBranch:
			m.branch, cmd = m.branch.Update(msg)
		case fieldToken:
			m.token, cmd = m.token.Update(msg)
		}
	}
	m.pushInputs()
	m.refresh()
	return m, cmd
}

func (m *model) pushInputs() {
	if m.state.InputMethod == workflow.InputCode {
		if m.code.Value() != m.state.Code {
			m.ctrl.SetCode(m.code.Value())
		}
		return
	}
	ref := backend.RepositoryRef{
		URL:    strings.TrimSpace(m.url.Value()),
		Branch: strings.TrimSpace(m.branch.Value()),
		Token:  strings.TrimSpace(m.token.Value()),
	}
	if ref != m.state.Repository {
		m.ctrl.SetRepository(ref)
	}
}

// loadInputs copies the controller state into the text inputs.
func (m *model) loadInputs() {
	m.code.SetValue(m.state.Code)
	m.url.SetValue(m.state.Repository.URL)
	m.branch.SetValue(m.state.Repository.Branch)
	m.token.SetValue(m.state.Repository.Token)
}

func (m *model) focusStep() tea.Cmd {
	m.code.Blur()
	m.url.Blur()
	m.branch.Blur()
	m.token.Blur()
	if m.state.Step != workflow.StepSource {
		return nil
	}
	if m.state.InputMethod == workflow.InputCode {
		return m.code.Focus()
	}
	switch m.field {
	case fieldBranch:
		return m.branch.Focus()
	case fieldToken:
		return m.token.Focus()
	default:
		return m.url.Focus()
	}
}

// refresh re-reads the controller snapshot and rebuilds the checklist.
func (m *model) refresh() {
	m.state = m.ctrl.Snapshot()
	m.services.SetItems(m.serviceItems())
}

func (m model) serviceItems() []list.Item {
	catalog := m.ctrl.Catalog()
	provider := m.state.Provider

	detected := make(map[string]bool)
	if m.state.Analysis != nil {
		for _, name := range m.state.Analysis.DetectedServiceNames() {
			if svc, ok := catalog.Lookup(provider, name); ok {
				detected[svc.ID] = true
			} else {
				detected[name] = true
			}
		}
	}

	var items []list.Item
	known := make(map[string]bool)
	for _, svc := range catalog.Services(provider) {
		known[svc.ID] = true
		items = append(items, serviceItem{service: svc, selected: m.state.Selected(svc.ID), detected: detected[svc.ID]})
	}
	for _, id := range m.state.SelectedServices() {
		if !known[id] {
			items = append(items, serviceItem{service: backend.ServiceInfo{ID: id, Name: id}, selected: true, detected: detected[id]})
		}
	}
	return items
}

// --- VIEW ---
func (m model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.state.Step {
	case workflow.StepProvider:
		body = m.renderProviderView()
	case workflow.StepSource:
		body = m.renderSourceView()
	case workflow.StepServices:
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.services.View(), detailPaneStyle.Render(m.renderJobView()))
	default:
		body = detailPaneStyle.Render(m.renderResultView())
	}

	sections := []string{m.renderHeader(), "", body}
	if m.state.Err != nil {
		sections = append(sections, "", errorStyle.Render(m.state.Err.Error()))
	}
	sections = append(sections, m.renderHelpView())
	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m model) renderHeader() string {
	crumbs := make([]string, len(stepTitles))
	for i, title := range stepTitles {
		if workflow.Step(i) == m.state.Step {
			crumbs[i] = stepActiveStyle.Render(title)
		} else {
			crumbs[i] = stepStyle.Render(title)
		}
	}
	return titleStyle.Render("Cloud Migration Wizard") + "  " + strings.Join(crumbs, stepStyle.Render(" › "))
}

func (m model) renderProviderView() string {
	renderChoices := func(focused bool, options []string, active int) string {
		marker := "  "
		if focused {
			marker = stepActiveStyle.Render("› ")
		}
		parts := make([]string, len(options))
		for i, opt := range options {
			if i == active {
				parts[i] = choiceActiveStyle.Render(opt)
			} else {
				parts[i] = choiceStyle.Render(opt)
			}
		}
		return marker + strings.Join(parts, " ")
	}

	providers := make([]string, len(backend.Providers))
	activeProvider := 0
	for i, p := range backend.Providers {
		providers[i] = strings.ToUpper(string(p))
		if p == m.state.Provider {
			activeProvider = i
		}
	}

	var b strings.Builder
	b.WriteString(detailAttrStyle.Render("Source cloud"))
	b.WriteString("\n")
	b.WriteString(renderChoices(m.row == rowProvider, providers, activeProvider))
	b.WriteString("\n\n")
	b.WriteString(detailAttrStyle.Render("Migrate"))
	b.WriteString("\n")
	b.WriteString(renderChoices(m.row == rowInputMethod, []string{"Code snippet", "Git repository"}, int(m.state.InputMethod)))
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("Target: Google Cloud Platform"))
	return b.String()
}

func (m model) renderSourceView() string {
	var b strings.Builder
	if m.state.InputMethod == workflow.InputCode {
		language := m.state.Language
		if language == "" {
			language = "auto-detect"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", detailAttrStyle.Render("Language"), detailValStyle.Render(language))
		b.WriteString(m.code.View())
		return b.String()
	}

	b.WriteString(m.url.View())
	b.WriteString("\n")
	b.WriteString(m.branch.View())
	b.WriteString("\n")
	b.WriteString(m.token.View())
	b.WriteString("\n\n")
	switch {
	case m.state.Busy:
		fmt.Fprintf(&b, "%s Analyzing repository...", m.spinner.View())
	case m.state.Analysis != nil:
		names := m.state.Analysis.DetectedServiceNames()
		detected := "none"
		if len(names) > 0 {
			detected = strings.Join(names, ", ")
		}
		fmt.Fprintf(&b, "%s %s\n", successStyle.Render("Analyzed."), detailValStyle.Render("Detected services: "+detected))
	default:
		b.WriteString(mutedStyle.Render("Press enter or ctrl+a to analyze the repository."))
	}
	return b.String()
}

func (m model) renderJobView() string {
	s := m.state
	var b strings.Builder
	b.WriteString(detailTitleStyle.Render(strings.ToUpper(string(s.Provider)) + " → GCP"))
	b.WriteString("\n\n")

	status := phaseLabel(s.Phase)
	switch s.Phase {
	case workflow.PhaseSubmitting, workflow.PhasePolling:
		status = m.spinner.View() + " " + pendingStyle.Render(status)
	case workflow.PhaseFailed, workflow.PhaseTimedOut:
		status = errorStyle.Render(status)
	case workflow.PhaseCompleted:
		status = successStyle.Render(status)
	}
	fmt.Fprintf(&b, "%s: %s\n", detailAttrStyle.Render("Status"), status)
	fmt.Fprintf(&b, "%s: %s\n", detailAttrStyle.Render("Selected"), detailValStyle.Render(fmt.Sprintf("%d", len(s.SelectedServices()))))
	if s.MigrationID != "" {
		fmt.Fprintf(&b, "%s: %s\n", detailAttrStyle.Render("Migration ID"), detailValStyle.Render(s.MigrationID))
	}

	if s.InputMethod == workflow.InputRepository {
		fmt.Fprintf(&b, "\n%s: %s\n", detailAttrStyle.Render("Create PR"), detailValStyle.Render(yesNo(s.Options.CreatePR)))
		fmt.Fprintf(&b, "%s: %s\n", detailAttrStyle.Render("Branch"), detailValStyle.Render(s.Options.BranchName))
		fmt.Fprintf(&b, "%s: %s\n", detailAttrStyle.Render("Run tests"), detailValStyle.Render(yesNo(s.Options.RunTests)))
	}

	if s.Phase == workflow.PhasePolling {
		b.WriteString("\n")
		b.WriteString(renderStage("Refactoring", s.Progress.Refactoring, m.refactoring))
		b.WriteString(renderStage("Validation", s.Progress.Validation, m.validation))
	}
	return b.String()
}

func renderStage(label string, stage backend.StageProgress, bar progress.Model) string {
	line := fmt.Sprintf("%s\n%s\n", detailAttrStyle.Render(label), bar.ViewAs(fraction(stage.Percent)))
	if stage.Message != "" {
		line += detailValStyle.Render(stage.Message) + "\n"
	}
	return line
}

// fraction converts a backend percentage (0-100) to a progress ratio.
func fraction(percent float64) float64 {
	ratio := percent / 100
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (m model) renderResultView() string {
	r := m.state.Result
	if r == nil {
		return "No result yet."
	}

	var b strings.Builder
	b.WriteString(detailTitleStyle.Render("Migration complete"))
	b.WriteString("\n\n")

	copyStatus := ""
	if m.showCopied {
		copyStatus = " " + copySuccessStyle.Render("Copied!")
	} else if m.copyErr != nil {
		copyStatus = " " + errorStyle.Render(m.copyErr.Error())
	}
	if r.PRURL != "" {
		fmt.Fprintf(&b, "%s:%s\n%s\n\n", detailAttrStyle.Render("Pull request"), copyStatus, successStyle.Render(r.PRURL))
		copyStatus = ""
	}
	if len(r.FilesChanged) > 0 || len(r.FilesFailed) > 0 {
		b.WriteString(detailAttrStyle.Render("Files"))
		b.WriteString("\n")
		for _, f := range r.FilesChanged {
			fmt.Fprintf(&b, "  %s %s\n", successStyle.Render("✓"), f.Path)
		}
		for _, f := range r.FilesFailed {
			line := fmt.Sprintf("  %s %s", errorStyle.Render("✗"), f.Path)
			if f.Detail != "" {
				line += " " + detailValStyle.Render(f.Detail)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	if len(r.VariableMapping) > 0 {
		b.WriteString(detailAttrStyle.Render("Variable mapping"))
		b.WriteString("\n")
		for _, key := range r.MappingKeys() {
			fmt.Fprintf(&b, "  %s → %s\n", key, detailValStyle.Render(report.FormatValue(r.VariableMapping[key])))
		}
		b.WriteString("\n")
	}
	if r.RefactoredCode != "" {
		fmt.Fprintf(&b, "%s:%s\n", detailAttrStyle.Render("Refactored code"), copyStatus)
		lines := strings.Split(strings.TrimRight(r.RefactoredCode, "\n"), "\n")
		if len(lines) > maxCodePreviewLines {
			hidden := len(lines) - maxCodePreviewLines
			lines = append(lines[:maxCodePreviewLines], mutedStyle.Render(fmt.Sprintf("… %d more lines (press c to copy)", hidden)))
		}
		b.WriteString(codeStyle.Render(strings.Join(lines, "\n")))
	}
	return b.String()
}

func (m model) renderHelpView() string {
	var helpText string
	switch m.state.Step {
	case workflow.StepProvider:
		helpText = "↑/↓: row • ←/→: choose • enter: next • q: quit"
	case workflow.StepSource:
		if m.state.InputMethod == workflow.InputRepository {
			helpText = "tab: next field • enter/ctrl+a: analyze • ctrl+n: next • esc: back • ctrl+c: quit"
		} else {
			helpText = "ctrl+n: next • esc: back • ctrl+c: quit"
		}
	case workflow.StepServices:
		helpText = "↑/↓: navigate • space: toggle • enter: migrate • esc: back • q: quit"
		if m.state.InputMethod == workflow.InputRepository {
			helpText += " • p: create PR • t: run tests"
		}
	default:
		helpText = "c: copy • 1-3: edit step • r: start over • esc: back • q: quit"
	}
	return helpStyle.Render("\n" + helpText)
}
