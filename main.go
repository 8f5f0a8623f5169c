package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/source"
	"github.com/katistix/cloudmigrate/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := newApplication(os.Stdout, defaultLoader())
	err := newRootCommand(app).ExecuteContext(ctx)
	stop()
	if finishErr := app.finish(); err == nil {
		err = finishErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCommand(app *application) *cobra.Command {
	var fromCwd bool
	root := &cobra.Command{
		Use:           "cloudmigrate",
		Short:         "Migrate AWS and Azure code to Google Cloud",
		Long:          "cloudmigrate submits code snippets or git repositories to the migration backend and follows the jobs until they finish. Without a subcommand it opens the interactive wizard.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.initialize(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runWizard(cmd.Context(), fromCwd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.configFile, "config", "", "Optional path to a configuration file")
	flags.StringVar(&app.logLevel, "log-level", "", "Override the configured log level")
	flags.StringVar(&app.logFormat, "log-format", "", "Override the configured log format (structured or console)")
	flags.StringVar(&app.metricsFile, "metrics-file", "", "Write session metrics in Prometheus text format to this file on exit")
	flags.StringVarP(&app.output, "output", "o", "table", "Output format: table, json or yaml")
	root.Flags().BoolVar(&fromCwd, "from-cwd", false, "Prefill the repository from the git working copy in the current directory")

	root.AddCommand(newAnalyzeCommand(app), newMigrateCommand(app), newServicesCommand(app))
	return root
}

// runWizard runs the interactive wizard until the user quits.
func (a *application) runWizard(ctx context.Context, fromCwd bool) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}
	notifier := newStateNotifier()
	ctrl, err := a.newController(client, "", workflow.WithObserver(notifier.observe))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if fromCwd || a.configuration.Wizard.FromCwd {
		if err := prefillFromWorkingCopy(ctrl, "."); err != nil {
			if fromCwd {
				return err
			}
			a.logger.Warn("working copy prefill skipped", zap.Error(err))
		}
	}

	var catalogSrc catalogSource
	if a.configuration.Wizard.FetchCatalog {
		catalogSrc = client
	}
	_, err = tea.NewProgram(newModel(ctx, ctrl, notifier, catalogSrc), tea.WithAltScreen()).Run()
	return err
}

// prefillFromWorkingCopy selects repository input and copies the origin URL
// and branch of the git checkout containing dir.
func prefillFromWorkingCopy(ctrl *workflow.Controller, dir string) error {
	wc, err := source.DetectWorkingCopy(dir)
	if err != nil {
		return err
	}
	ctrl.SetInputMethod(workflow.InputRepository)
	ctrl.SetRepository(backend.RepositoryRef{URL: wc.URL, Branch: firstNonEmpty(wc.Branch, "main")})
	return nil
}
