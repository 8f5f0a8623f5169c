package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/katistix/cloudmigrate/internal/backend"
	"github.com/katistix/cloudmigrate/internal/config"
	"github.com/katistix/cloudmigrate/internal/logging"
	"github.com/katistix/cloudmigrate/internal/report"
	"github.com/katistix/cloudmigrate/internal/telemetry"
	"github.com/katistix/cloudmigrate/internal/workflow"
)

// --- CONFIGURATION ---

const (
	configDirName = ".cloudmigrate"
	envFileName   = ".env"
)

// application holds what every command needs once configuration is loaded.
type application struct {
	loader        *config.Loader
	configuration config.Configuration
	logger        *zap.Logger
	recorder      *telemetry.Recorder
	out           io.Writer

	configFile  string
	logLevel    string
	logFormat   string
	metricsFile string
	output      string
}

func newApplication(out io.Writer, loader *config.Loader) *application {
	return &application{
		loader:   loader,
		logger:   zap.NewNop(),
		recorder: telemetry.NewRecorder(),
		out:      out,
	}
}

// defaultLoader searches the working directory and ~/.cloudmigrate.
func defaultLoader() *config.Loader {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, configDirName))
	}
	return config.NewLoader(paths, envFileName)
}

// initialize loads configuration and builds the logger. The wizard owns the
// terminal, so its logs are dropped unless a log file is configured.
func (a *application) initialize(cmd *cobra.Command) error {
	cfg, loaded, err := a.loader.Load(a.configFile)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	a.configuration = cfg

	level := firstNonEmpty(a.logLevel, cfg.Common.LogLevel)
	format := firstNonEmpty(a.logFormat, cfg.Common.LogFormat)
	output := cfg.Common.LogFile
	if output == "" && cmd == cmd.Root() {
		output = logging.Discard
	}
	logger, err := logging.NewFactory().Create(logging.Level(level), logging.Format(format), output)
	if err != nil {
		return fmt.Errorf("unable to create logger: %w", err)
	}
	a.logger = logger
	a.logger.Debug("configuration initialized",
		zap.String("config_file", loaded.ConfigFileUsed),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("command_name", cmd.CommandPath()),
	)
	return nil
}

// finish writes the metrics file and flushes the logger.
func (a *application) finish() error {
	var errs []error
	if a.metricsFile != "" {
		if err := a.recorder.WriteTextfile(a.metricsFile); err != nil {
			errs = append(errs, fmt.Errorf("unable to write metrics: %w", err))
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *application) newClient() (*backend.Client, error) {
	opts := a.configuration.BackendOptions()
	opts.Logger = a.logger
	opts.Recorder = a.recorder
	return backend.NewClient(opts)
}

// newController builds a controller for a session. provider overrides the
// configured default when non-empty.
func (a *application) newController(b workflow.Backend, provider string, opts ...workflow.Option) (*workflow.Controller, error) {
	selected, err := a.configuration.Provider()
	if provider != "" {
		selected, err = backend.ParseProvider(provider)
	}
	if err != nil {
		return nil, err
	}
	base := []workflow.Option{
		workflow.WithLogger(a.logger),
		workflow.WithMetrics(a.recorder),
		workflow.WithProvider(selected),
		workflow.WithRepositoryOptions(a.configuration.Repository),
	}
	return workflow.New(b, append(base, opts...)...), nil
}

func (a *application) printer() (*report.Printer, error) {
	format, err := report.ParseFormat(a.output)
	if err != nil {
		return nil, err
	}
	return report.NewPrinter(a.out, format), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
