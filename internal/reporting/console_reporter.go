package reporting

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"conductor/pkg/logging"
)

// SystemWriter prints orchestration messages on the shared output stream.
// output.Sink implements it.
type SystemWriter interface {
	System(msg string)
	SystemError(msg string)
}

// ConsoleReporter turns updates into system messages on the output stream
// and diagnostic log records, and keeps the last state of every component.
type ConsoleReporter struct {
	out SystemWriter

	mu     sync.Mutex
	states map[string]State
}

// NewConsoleReporter creates a reporter printing to out.
func NewConsoleReporter(out SystemWriter) *ConsoleReporter {
	return &ConsoleReporter{
		out:    out,
		states: make(map[string]State),
	}
}

// Report prints the update and records the resulting component state.
func (c *ConsoleReporter) Report(update Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	if update.Component != "" {
		if s := update.State(); s != StateUnknown {
			c.mu.Lock()
			c.states[update.Component] = s
			c.mu.Unlock()
		}
	}

	msg, isError := Format(update)
	if msg != "" && c.out != nil {
		if isError {
			c.out.SystemError(msg)
		} else {
			c.out.System(msg)
		}
	}

	subsystem := "Reporter"
	if update.Component != "" {
		subsystem = "Component-" + update.Component
	}
	switch {
	case update.Err != nil:
		logging.Error(subsystem, update.Err, "%s: %s", update.Event, update.Detail)
	case update.Failed:
		logging.Warn(subsystem, "%s: %s", update.Event, update.Detail)
	default:
		logging.Debug(subsystem, "%s: %s", update.Event, update.Detail)
	}
}

// States returns a snapshot of the last known state per component.
func (c *ConsoleReporter) States() map[string]State {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]State, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// Failed lists the components whose last state is StateFailed, sorted.
func (c *ConsoleReporter) Failed() []string {
	var names []string
	for name, s := range c.States() {
		if s == StateFailed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Format renders the system message for an update and whether it reports
// a failure.
func Format(u Update) (msg string, isError bool) {
	switch u.Event {
	case EventStarted:
		return "Component started " + u.Component, false
	case EventStartFailed:
		return fmt.Sprintf("Failed to start %s: %v", u.Component, u.Err), true
	case EventExited:
		if u.Failed || u.Err != nil {
			return fmt.Sprintf("Component error [%s]: %s", u.Component, detail(u)), true
		}
		if u.Detail != "" {
			return fmt.Sprintf("Component shutdown %s (%s)", u.Component, u.Detail), false
		}
		return "Component shutdown " + u.Component, false
	case EventDraining:
		if u.Detail != "" {
			return "Shutting down: " + u.Detail, false
		}
		return "Shutting down", false
	case EventCloning:
		return fmt.Sprintf("Cloning %s %s", u.Component, u.Detail), false
	case EventCloned:
		return u.Component + " cloned", false
	case EventUpToDate:
		return u.Component + " already cloned", false
	case EventExecuting:
		return fmt.Sprintf("Executing [%s]: %s", u.Component, u.Detail), false
	case EventSetupDone:
		return u.Component + " ready", false
	case EventSetupFailed:
		return fmt.Sprintf("Setup failed [%s]: %s", u.Component, detail(u)), true
	case EventSkipped:
		if u.Detail != "" {
			return fmt.Sprintf("Skipping %s: %s", u.Component, u.Detail), false
		}
		return "Skipping " + u.Component, false
	default:
		return "", false
	}
}

func detail(u Update) string {
	switch {
	case u.Err != nil && u.Detail != "":
		return u.Detail + ": " + u.Err.Error()
	case u.Err != nil:
		return u.Err.Error()
	default:
		return u.Detail
	}
}
