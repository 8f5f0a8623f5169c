// Package config loads cloudmigrate settings from config files, a .env file
// and CLOUDMIGRATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/katistix/cloudmigrate/internal/backend"
)

const (
	EnvironmentPrefix = "CLOUDMIGRATE"
	configName        = "config"
	configType        = "yaml"
)

// Configuration is the full settings tree.
type Configuration struct {
	Common     CommonConfiguration       `mapstructure:"common"`
	Backend    BackendConfiguration      `mapstructure:"backend"`
	Wizard     WizardConfiguration       `mapstructure:"wizard"`
	Repository backend.RepositoryOptions `mapstructure:"repository"`
}

// CommonConfiguration holds logging settings.
type CommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// BackendConfiguration locates the migration backend.
type BackendConfiguration struct {
	BaseURL        string        `mapstructure:"base_url"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	AnalyzeTimeout time.Duration `mapstructure:"analyze_timeout"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
}

// WizardConfiguration holds wizard start-up defaults.
type WizardConfiguration struct {
	DefaultProvider string `mapstructure:"default_provider"`
	FromCwd         bool   `mapstructure:"from_cwd"`
	FetchCatalog    bool   `mapstructure:"fetch_catalog"`
}

// Defaults returns the default value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"common.log_level":        "info",
		"common.log_format":       "console",
		"common.log_file":         "",
		"backend.base_url":        "http://localhost:8000",
		"backend.submit_timeout":  backend.DefaultSubmitTimeout,
		"backend.analyze_timeout": backend.DefaultAnalyzeTimeout,
		"backend.poll_timeout":    backend.DefaultPollTimeout,
		"wizard.default_provider": string(backend.ProviderAWS),
		"wizard.from_cwd":         false,
		"wizard.fetch_catalog":    true,
		"repository.create_pr":    true,
		"repository.branch_name":  "cloudmigrate/gcp",
		"repository.run_tests":    false,
	}
}

// Loader wraps viper to merge defaults, an optional config file, a .env file
// and the environment.
type Loader struct {
	searchPaths []string
	envFiles    []string
}

// Loaded describes where the configuration came from.
type Loaded struct {
	ConfigFileUsed string
}

// NewLoader creates a loader searching the given directories for config.yaml
// and loading envFiles (missing ones are skipped) before reading the
// environment.
func NewLoader(searchPaths []string, envFiles ...string) *Loader {
	l := &Loader{
		searchPaths: append([]string(nil), searchPaths...),
		envFiles:    append([]string(nil), envFiles...),
	}
	return l
}

// Load resolves the configuration. configFile, when set, overrides the search
// paths and must exist.
func (l *Loader) Load(configFile string) (Configuration, Loaded, error) {
	for _, envFile := range l.envFiles {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Configuration{}, Loaded{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	for _, path := range l.searchPaths {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix(EnvironmentPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Configuration{}, Loaded{}, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return Configuration{}, Loaded{}, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, Loaded{ConfigFileUsed: v.ConfigFileUsed()}, nil
}

// Provider returns the configured default provider.
func (c Configuration) Provider() (backend.Provider, error) {
	return backend.ParseProvider(c.Wizard.DefaultProvider)
}

// BackendOptions converts the backend section into client options.
func (c Configuration) BackendOptions() backend.Options {
	return backend.Options{
		BaseURL:        c.Backend.BaseURL,
		SubmitTimeout:  c.Backend.SubmitTimeout,
		AnalyzeTimeout: c.Backend.AnalyzeTimeout,
		PollTimeout:    c.Backend.PollTimeout,
	}
}
