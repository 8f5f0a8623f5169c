package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/report"
	"github.com/katistix/cloudmigrate/internal/source"
	"github.com/katistix/cloudmigrate/internal/workflow"
)

const (
	exitFailure    = 1
	exitJobFailure = 2
)

// jobError reports a migration that ended without a result.
type jobError struct {
	phase workflow.JobPhase
	err   error
}

func (e *jobError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("migration %s", e.phase)
	}
	return e.err.Error()
}

func (e *jobError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var je *jobError
	if errors.As(err, &je) {
		return exitJobFailure
	}
	return exitFailure
}

// jobWatcher observes a headless session: it logs progress changes and hands
// over the first terminal snapshot.
type jobWatcher struct {
	logger *zap.Logger
	done   chan workflow.State

	mu   sync.Mutex
	last backend.Progress
}

func newJobWatcher(logger *zap.Logger) *jobWatcher {
	return &jobWatcher{logger: logger, done: make(chan workflow.State, 1)}
}

func (w *jobWatcher) observe(s workflow.State) {
	if s.Phase == workflow.PhasePolling {
		w.mu.Lock()
		changed := s.Progress != w.last
		w.last = s.Progress
		w.mu.Unlock()
		if changed {
			w.logger.Info("migration progress",
				zap.String("migration_id", s.MigrationID),
				zap.Float64("refactoring_percent", s.Progress.Refactoring.Percent),
				zap.Float64("validation_percent", s.Progress.Validation.Percent),
				zap.String("refactoring", s.Progress.Refactoring.Message),
				zap.String("validation", s.Progress.Validation.Message),
			)
		}
	}
	if s.Phase.Terminal() {
		select {
		case w.done <- s:
		default:
		}
	}
}

// runJob submits the session and blocks until the job completes, fails or
// times out, or ctx is cancelled.
func runJob(ctx context.Context, ctrl *workflow.Controller, w *jobWatcher) (workflow.State, error) {
	if err := ctrl.Submit(ctx); err != nil {
		return ctrl.Snapshot(), err
	}
	if s := ctrl.Snapshot(); s.Phase.Terminal() {
		return s, nil
	}
	select {
	case s := <-w.done:
		return s, nil
	case <-ctx.Done():
		ctrl.Close()
		return ctrl.Snapshot(), ctx.Err()
	}
}

func (a *application) reportJob(printer *report.Printer, s workflow.State) error {
	job := report.NewJob(s.MigrationID, s.Kind().String(), s.Phase.String(), s.Err, s.Result)
	if err := printer.Job(job); err != nil {
		return err
	}
	if s.Phase != workflow.PhaseCompleted {
		return &jobError{phase: s.Phase, err: s.Err}
	}
	return nil
}

// resolveServices maps service names given on the command line to catalog
// ids. Unknown names are passed through for the backend to judge.
func resolveServices(catalog backend.Catalog, provider backend.Provider, names []string) []string {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if svc, ok := catalog.Lookup(provider, name); ok {
			ids = append(ids, svc.ID)
			continue
		}
		ids = append(ids, name)
	}
	return ids
}

func addRepositoryFlags(flags *pflag.FlagSet, ref *backend.RepositoryRef) {
	flags.StringVar(&ref.URL, "url", "", "Git repository URL (https or ssh)")
	flags.StringVar(&ref.Branch, "branch", "main", "Branch to analyze")
	flags.StringVar(&ref.Token, "token", "", "Access token for private repositories")
}

// --- SUBCOMMANDS ---

func newAnalyzeCommand(app *application) *cobra.Command {
	var ref backend.RepositoryRef
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect the cloud services a repository uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer, err := app.printer()
			if err != nil {
				return err
			}
			client, err := app.newClient()
			if err != nil {
				return err
			}
			ctrl, err := app.newController(client, "")
			if err != nil {
				return err
			}
			defer ctrl.Close()

			ctrl.SetInputMethod(workflow.InputRepository)
			ctrl.SetRepository(ref)
			if err := ctrl.Analyze(cmd.Context()); err != nil {
				return err
			}
			return printer.Analysis(*ctrl.Snapshot().Analysis)
		},
	}
	addRepositoryFlags(cmd.Flags(), &ref)
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newMigrateCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Submit a migration and wait for its result",
	}
	cmd.AddCommand(newMigrateCodeCommand(app), newMigrateRepoCommand(app))
	return cmd
}

func newMigrateCodeCommand(app *application) *cobra.Command {
	var (
		file     string
		language string
		provider string
		services []string
	)
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Migrate a code snippet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer, err := app.printer()
			if err != nil {
				return err
			}
			content, name, err := readSource(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if language == "" {
				language = source.DetectLanguage(name, content)
			}

			client, err := app.newClient()
			if err != nil {
				return err
			}
			watcher := newJobWatcher(app.logger)
			ctrl, err := app.newController(client, provider, workflow.WithObserver(watcher.observe))
			if err != nil {
				return err
			}
			defer ctrl.Close()

			snapshot := ctrl.Snapshot()
			ctrl.SetInputMethod(workflow.InputCode)
			ctrl.SetCode(string(content))
			ctrl.SetLanguage(language)
			ctrl.SelectServices(resolveServices(ctrl.Catalog(), snapshot.Provider, services))

			state, err := runJob(cmd.Context(), ctrl, watcher)
			if err != nil {
				return err
			}
			return app.reportJob(printer, state)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "File containing the code to migrate (- for stdin)")
	flags.StringVar(&language, "language", "", "Language of the code (detected when empty)")
	flags.StringVar(&provider, "provider", "", "Source cloud provider (aws or azure)")
	flags.StringSliceVar(&services, "services", nil, "Services to migrate, comma separated")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newMigrateRepoCommand(app *application) *cobra.Command {
	var (
		ref        backend.RepositoryRef
		provider   string
		services   []string
		createPR   bool
		branchName string
		runTests   bool
	)
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Analyze and migrate a git repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer, err := app.printer()
			if err != nil {
				return err
			}
			client, err := app.newClient()
			if err != nil {
				return err
			}
			watcher := newJobWatcher(app.logger)
			ctrl, err := app.newController(client, provider, workflow.WithObserver(watcher.observe))
			if err != nil {
				return err
			}
			defer ctrl.Close()

			ctrl.SetInputMethod(workflow.InputRepository)
			ctrl.SetRepository(ref)
			if err := ctrl.Analyze(cmd.Context()); err != nil {
				return err
			}
			snapshot := ctrl.Snapshot()
			if len(services) > 0 {
				ctrl.SelectServices(resolveServices(ctrl.Catalog(), snapshot.Provider, services))
			}

			opts := snapshot.Options
			flags := cmd.Flags()
			if flags.Changed("create-pr") {
				opts.CreatePR = createPR
			}
			if flags.Changed("branch-name") {
				opts.BranchName = branchName
			}
			if flags.Changed("run-tests") {
				opts.RunTests = runTests
			}
			ctrl.SetRepositoryOptions(opts)

			state, err := runJob(cmd.Context(), ctrl, watcher)
			if err != nil {
				return err
			}
			return app.reportJob(printer, state)
		},
	}
	flags := cmd.Flags()
	addRepositoryFlags(flags, &ref)
	flags.StringVar(&provider, "provider", "", "Source cloud provider (aws or azure)")
	flags.StringSliceVar(&services, "services", nil, "Services to migrate (defaults to the detected ones)")
	flags.BoolVar(&createPR, "create-pr", true, "Open a pull request with the migrated code")
	flags.StringVar(&branchName, "branch-name", "", "Branch the migrated code is pushed to")
	flags.BoolVar(&runTests, "run-tests", false, "Run the repository tests after migrating")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newServicesCommand(app *application) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "services",
		Short: "List the services that can be migrated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer, err := app.printer()
			if err != nil {
				return err
			}
			var providers []backend.Provider
			if provider != "" {
				p, err := backend.ParseProvider(provider)
				if err != nil {
					return err
				}
				providers = append(providers, p)
			}
			client, err := app.newClient()
			if err != nil {
				return err
			}
			catalog, err := client.ListServices(cmd.Context())
			if err != nil || len(catalog) == 0 {
				app.logger.Warn("service catalog unavailable; using built-in catalog", zap.Error(err))
				catalog = backend.DefaultCatalog()
			}
			return printer.Catalog(catalog, providers...)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Only list services of this provider")
	return cmd
}

// readSource reads the code to migrate from a file or, for "-", from stdin.
func readSource(stdin io.Reader, file string) ([]byte, string, error) {
	if file == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return content, "", nil
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return content, filepath.Base(file), nil
}
