package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conductor/internal/config"
	"conductor/internal/output"
	"conductor/internal/process"
	"conductor/internal/reporting"
	"conductor/pkg/logging"
)

// Handle is a running component as seen by the orchestrator.
// *process.Process implements it.
type Handle interface {
	Name() string
	Done() <-chan struct{}
	Status() process.ExitStatus
	Terminate(grace time.Duration)
}

// Spawner starts the long-running command of a component.
type Spawner interface {
	Spawn(component config.Component) (Handle, error)
}

// Terminator is implemented by spawners that can stop everything they
// started in one call. Draining then goes through it instead of the
// individual handles.
type Terminator interface {
	TerminateAll(grace time.Duration)
}

// ProcessSpawner spawns components through a process.Supervisor and feeds
// their output into a multiplexer.
type ProcessSpawner struct {
	Supervisor *process.Supervisor
	Output     *output.Multiplexer
}

// Spawn starts component.Start and attaches its streams.
func (s *ProcessSpawner) Spawn(component config.Component) (Handle, error) {
	p, err := s.Supervisor.Spawn(component, component.Start)
	if err != nil {
		return nil, err
	}
	s.Output.Attach(component.Name, component.Color, p.Stdout, p.Stderr)
	return p, nil
}

// TerminateAll stops every process the supervisor still tracks.
func (s *ProcessSpawner) TerminateAll(grace time.Duration) {
	s.Supervisor.TerminateAll(grace)
}

// Result describes how a run ended.
type Result struct {
	ExitCode int
	// Trigger names the component whose exit started draining, if any.
	Trigger       string
	TriggerStatus process.ExitStatus
	Interrupted   bool
	// Err is the first spawn failure, if any.
	Err error
	// Exits holds the final status of every component that was spawned.
	Exits map[string]process.ExitStatus
}

// Options configures an Orchestrator.
type Options struct {
	Spawner     Spawner
	Reporter    reporting.Reporter
	GracePeriod time.Duration
	StopOn      config.StopPolicy
	// Flush is called before Run returns, once every process exited.
	// It normally waits for the output multiplexer.
	Flush func()
}

// Orchestrator runs a set of components until the stop policy, an
// interrupt or a spawn failure ends the run, then drains the rest.
type Orchestrator struct {
	spawner  Spawner
	reporter reporting.Reporter
	grace    time.Duration
	policy   config.StopPolicy
	flush    func()
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		spawner:  opts.Spawner,
		reporter: opts.Reporter,
		grace:    opts.GracePeriod,
		policy:   opts.StopOn,
		flush:    opts.Flush,
	}
	if o.reporter == nil {
		o.reporter = reporting.Discard
	}
	if o.grace <= 0 {
		o.grace = config.DefaultGracePeriod
	}
	if o.policy == "" {
		o.policy = config.StopOnAny
	}
	return o
}

// Run launches every component concurrently and blocks until all of them
// exited. Cancelling ctx counts as an interrupt.
func (o *Orchestrator) Run(ctx context.Context, components []config.Component) Result {
	m := newMachine(len(components), o.policy)
	res := Result{Exits: make(map[string]process.ExitStatus)}
	if m.state == StateDone {
		return res
	}

	// Each component produces at most two events, so senders never block.
	events := make(chan event, len(components)*2)
	launchCtx, cancelLaunch := context.WithCancel(context.Background())
	defer cancelLaunch()

	for i, c := range components {
		go o.launch(launchCtx, i, c, events)
	}

	var terminations sync.WaitGroup
	terminate := func(h Handle) {
		terminations.Add(1)
		go func() {
			defer terminations.Done()
			h.Terminate(o.grace)
		}()
	}

	live := make(map[int]Handle, len(components))
	interrupt := ctx.Done()

	for m.state != StateDone {
		var ev event
		select {
		case <-interrupt:
			interrupt = nil
			ev = event{kind: evInterrupt}
		case ev = <-events:
		}

		prev := m.state
		o.observe(ev, prev, live, res.Exits)
		act := m.apply(ev)
		logging.Debug("Orchestrator", "event %s (%s) in %s -> %s", ev.kind, ev.name, prev, m.state)

		switch act {
		case actDrain:
			cancelLaunch()
			o.reporter.Report(reporting.Update{Event: reporting.EventDraining, Detail: drainReason(m)})
			if t, ok := o.spawner.(Terminator); ok {
				terminations.Add(1)
				go func() {
					defer terminations.Done()
					t.TerminateAll(o.grace)
				}()
			} else {
				for _, h := range live {
					terminate(h)
				}
			}
		case actTerminate:
			terminate(ev.handle)
		}
	}

	terminations.Wait()
	if o.flush != nil {
		o.flush()
	}

	res.ExitCode = m.exitCode()
	res.Trigger = m.trigger
	res.TriggerStatus = m.triggerStatus
	res.Interrupted = m.interrupted
	res.Err = m.spawnErr
	logging.Info("Orchestrator", "run finished with exit code %d", res.ExitCode)
	return res
}

// observe keeps the live set current and reports the event.
func (o *Orchestrator) observe(ev event, state State, live map[int]Handle, exits map[string]process.ExitStatus) {
	switch ev.kind {
	case evSpawned:
		live[ev.index] = ev.handle
		o.reporter.Report(reporting.Update{Component: ev.name, Event: reporting.EventStarted})
	case evSpawnFailed:
		o.reporter.Report(reporting.Update{Component: ev.name, Event: reporting.EventStartFailed, Err: ev.err})
	case evSkipped:
		o.reporter.Report(reporting.Update{Component: ev.name, Event: reporting.EventSkipped, Detail: "stack is shutting down"})
	case evExited:
		delete(live, ev.index)
		exits[ev.name] = ev.status
		stopped := state == StateDraining && ev.status.Signaled
		o.reporter.Report(reporting.Update{
			Component: ev.name,
			Event:     reporting.EventExited,
			Detail:    ev.status.String(),
			Failed:    !ev.status.Success() && !stopped,
			Err:       ev.status.Err,
		})
	}
}

// launch spawns one component after its start delay and reports the
// outcome. The exit of a spawned handle is reported as a second event.
func (o *Orchestrator) launch(ctx context.Context, index int, c config.Component, events chan<- event) {
	if d := c.StartDelay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	if ctx.Err() != nil {
		events <- event{kind: evSkipped, index: index, name: c.Name}
		return
	}

	h, err := o.spawner.Spawn(c)
	if err != nil {
		events <- event{kind: evSpawnFailed, index: index, name: c.Name, err: err}
		return
	}
	events <- event{kind: evSpawned, index: index, name: c.Name, handle: h}

	<-h.Done()
	events <- event{kind: evExited, index: index, name: c.Name, handle: h, status: h.Status()}
}

func drainReason(m *machine) string {
	switch m.cause {
	case causeInterrupt:
		return "interrupted"
	case causeSpawnFailure:
		return fmt.Sprintf("a component failed to start: %v", m.spawnErr)
	case causeExit:
		return fmt.Sprintf("%s exited (%s)", m.trigger, m.triggerStatus)
	default:
		return ""
	}
}
