package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conductor/internal/color"
	"conductor/internal/config"
	"conductor/internal/output"
	"conductor/internal/reporting"
	"conductor/internal/selector"
	"conductor/pkg/logging"
)

// Application is one invocation: a loaded project, the selected components
// and the output stream they share.
type Application struct {
	config     *Config
	project    *config.Project
	components []config.Component

	sink     *output.Sink
	reporter *reporting.ConsoleReporter
}

// NewApplication initializes logging, loads the project and computes the
// selection. Nothing is started yet.
func NewApplication(cfg *Config) (*Application, error) {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	logLevel := logging.LevelWarn
	if cfg.LogLevel != "" {
		lvl, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		logLevel = lvl
	}
	if cfg.Debug {
		logLevel = logging.LevelDebug
	}
	logging.InitForCLI(logLevel, cfg.Stderr)

	project, err := LoadProject(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.apply(project)
	logging.Info("Bootstrap", "loaded project %q with %d components from %s", project.Name, len(project.Components), project.Root)

	components, err := selector.Select(project, cfg.Component, cfg.Tags)
	if err != nil {
		return nil, err
	}
	logging.Debug("Bootstrap", "selected %v", selector.Names(components))

	sink := output.NewSink(cfg.Stdout, color.NewStyles(color.NewRenderer(cfg.Stdout, cfg.ColorMode)))
	if cfg.Align {
		sink.Align(selector.Names(components))
	}

	return &Application{
		config:     cfg,
		project:    project,
		components: components,
		sink:       sink,
		reporter:   reporting.NewConsoleReporter(sink),
	}, nil
}

// LoadProject loads the document at path, or discovers the default one
// when path is empty.
func LoadProject(path string) (*config.Project, error) {
	project, err := config.Discover(path)
	if err != nil {
		logging.Error("Bootstrap", err, "failed to load configuration")
		return nil, err
	}
	return project, nil
}

// Components returns the selection.
func (a *Application) Components() []config.Component {
	return a.components
}

// Project returns the loaded project with command line overrides applied.
func (a *Application) Project() *config.Project {
	return a.project
}

// Run executes the configured mode. SIGINT and SIGTERM cancel run and setup
// modes gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch a.config.Mode {
	case ModeRun:
		return a.runMode(ctx)
	case ModeSetup:
		return a.setupMode(ctx)
	case ModeList:
		return a.listMode()
	default:
		return fmt.Errorf("unknown mode %s", a.config.Mode)
	}
}
