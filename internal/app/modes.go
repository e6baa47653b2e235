package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"conductor/internal/color"
	"conductor/internal/config"
	"conductor/internal/orchestrator"
	"conductor/internal/output"
	"conductor/internal/process"
	"conductor/internal/setup"
	"conductor/pkg/logging"

	"github.com/charmbracelet/lipgloss"
)

// runMode supervises the selected components until the stack stops.
func (a *Application) runMode(ctx context.Context) error {
	if len(a.components) == 0 {
		a.sink.System("No components selected")
		return nil
	}

	mux := output.NewMultiplexer(a.sink)
	sup := process.NewSupervisor(a.project.Root)

	orch := orchestrator.New(orchestrator.Options{
		Spawner:     &orchestrator.ProcessSpawner{Supervisor: sup, Output: mux},
		Reporter:    a.reporter,
		GracePeriod: a.project.GracePeriod,
		StopOn:      a.project.StopOn,
		Flush:       mux.Wait,
	})

	logging.Info("CLI", "running %d components", len(a.components))
	res := orch.Run(ctx, a.components)
	if res.ExitCode == 0 {
		return nil
	}
	if res.Err != nil {
		logging.Error("CLI", res.Err, "run aborted")
	}
	// Failures were already printed on the stream; the error only carries
	// the code.
	return &ExitError{Code: res.ExitCode}
}

// setupMode runs the setup pipelines of the selected components.
func (a *Application) setupMode(ctx context.Context) error {
	mux := output.NewMultiplexer(a.sink)
	runner := setup.NewRunner(setup.Options{
		Root:       a.project.Root,
		Parallel:   a.config.Parallel,
		Supervisor: process.NewSupervisor(a.project.Root),
		Output:     mux,
		Reporter:   a.reporter,
	})

	report := runner.Run(ctx, a.components)
	if len(report.Failed()) == 0 {
		a.sink.System(fmt.Sprintf("Setup complete for %d components", len(report.Results)))
		return nil
	}

	// Pipelines skipped by cancellation are not failures of their own.
	if failed := a.reporter.Failed(); len(failed) > 0 {
		a.sink.SystemError("Setup failed for " + strings.Join(failed, ", "))
	} else {
		a.sink.SystemError("Setup interrupted")
	}
	logging.Error("CLI", report.Err(), "setup failed")

	if ctx.Err() != nil {
		return &ExitError{Code: orchestrator.ExitInterrupted}
	}
	return &ExitError{Code: 1}
}

// listMode prints the selection, one component per line.
func (a *Application) listMode() error {
	styles := color.NewStyles(color.NewRenderer(a.config.Stdout, a.config.ColorMode))
	return writeList(a.config.Stdout, styles, a.project, a.components)
}

func writeList(w io.Writer, styles *color.Styles, project *config.Project, components []config.Component) error {
	width := 0
	for _, c := range components {
		width = max(width, lipgloss.Width(c.Name))
	}

	if _, err := fmt.Fprintf(w, "%s (%d components)\n", project.Name, len(components)); err != nil {
		return err
	}
	for _, c := range components {
		name := styles.Component(c.Color).Render(c.Name)
		pad := strings.Repeat(" ", width-lipgloss.Width(c.Name))

		var details []string
		if len(c.Tags) > 0 {
			details = append(details, "tags="+strings.Join(c.Tags, ","))
		}
		if c.Repo != "" {
			details = append(details, "repo="+setup.RedactURL(c.Repo))
		}
		if !c.Start.IsZero() {
			details = append(details, "start="+c.Start.String())
		}
		if len(c.Init) > 0 {
			details = append(details, fmt.Sprintf("init=%d", len(c.Init)))
		}

		line := strings.TrimRight(fmt.Sprintf("  %s%s  %s", name, pad, strings.Join(details, " ")), " ")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
