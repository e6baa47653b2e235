package reporting

import (
	"fmt"
	"time"
)

// State is the lifecycle state of one component within a single invocation.
type State string

const (
	StateUnknown State = "Unknown"
	StateSetup   State = "Setup"
	StateReady   State = "Ready"
	StateRunning State = "Running"
	StateStopped State = "Stopped"
	StateFailed  State = "Failed"
	StateSkipped State = "Skipped"
)

// Event names what happened.
type Event string

const (
	// Run mode.
	EventStarted     Event = "Started"
	EventStartFailed Event = "StartFailed"
	EventExited      Event = "Exited"
	EventDraining    Event = "Draining"

	// Setup mode.
	EventCloning     Event = "Cloning"
	EventCloned      Event = "Cloned"
	EventUpToDate    Event = "UpToDate"
	EventExecuting   Event = "Executing"
	EventSetupDone   Event = "SetupDone"
	EventSetupFailed Event = "SetupFailed"
	EventSkipped     Event = "Skipped"
)

// Update carries one lifecycle event. Component is empty for events that
// concern the whole stack, such as EventDraining.
type Update struct {
	Timestamp time.Time
	Component string
	Event     Event
	// Detail is a human readable addition: a command line, an exit status,
	// the reason for draining.
	Detail string
	// Failed marks an unsuccessful outcome even when Err is nil, for
	// example a non-zero exit.
	Failed bool
	Err    error
}

// String provides a compact representation for debugging.
func (u Update) String() string {
	return fmt.Sprintf("Update(%s %s %q failed=%t err=%v)", u.Component, u.Event, u.Detail, u.Failed, u.Err)
}

// State maps the event to the component state it leads to.
func (u Update) State() State {
	switch u.Event {
	case EventStarted:
		return StateRunning
	case EventStartFailed, EventSetupFailed:
		return StateFailed
	case EventExited:
		if u.Failed || u.Err != nil {
			return StateFailed
		}
		return StateStopped
	case EventCloning, EventExecuting:
		return StateSetup
	case EventCloned, EventUpToDate:
		return StateSetup
	case EventSetupDone:
		return StateReady
	case EventSkipped:
		return StateSkipped
	default:
		return StateUnknown
	}
}

// Reporter receives lifecycle updates. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(update Update)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Update)

// Report calls f(update).
func (f ReporterFunc) Report(update Update) { f(update) }

// Discard drops every update.
var Discard Reporter = ReporterFunc(func(Update) {})
