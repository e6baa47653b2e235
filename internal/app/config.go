package app

import (
	"io"
	"os"
	"time"

	"conductor/internal/color"
	"conductor/internal/config"
)

// Mode selects what the application does with the selected components.
type Mode int

const (
	// ModeRun supervises the components' start commands.
	ModeRun Mode = iota
	// ModeSetup runs the setup pipelines.
	ModeSetup
	// ModeList prints the selection.
	ModeList
)

func (m Mode) String() string {
	switch m {
	case ModeRun:
		return "run"
	case ModeSetup:
		return "setup"
	case ModeList:
		return "list"
	default:
		return "unknown"
	}
}

// Config holds the command line layer of the configuration. Zero values
// leave the document's settings untouched.
type Config struct {
	Mode Mode

	// ConfigPath is the document to load; empty searches for
	// config.DefaultFileName.
	ConfigPath string

	// Component selects a single component by name and wins over Tags.
	Component string
	Tags      []string

	ColorMode color.Mode
	Align     bool

	GracePeriod time.Duration
	StopOn      config.StopPolicy
	Parallel    int

	// LogLevel names the diagnostic level ("debug", "info", "warn",
	// "error"); empty means warn. Debug forces debug.
	LogLevel string
	Debug    bool

	// Stdout receives the multiplexed stream, Stderr the diagnostics.
	Stdout io.Writer
	Stderr io.Writer
}

// NewConfig creates a configuration for mode with default streams.
func NewConfig(mode Mode) *Config {
	return &Config{
		Mode:      mode,
		ColorMode: color.ModeAuto,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// apply overlays the command line settings onto the loaded project.
func (c *Config) apply(p *config.Project) {
	if c.GracePeriod > 0 {
		p.GracePeriod = c.GracePeriod
	}
	if c.StopOn != "" {
		p.StopOn = c.StopOn
	}
}
