package orchestrator

import (
	"conductor/internal/config"
	"conductor/internal/process"
)

// State is the lifecycle state of one run.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ExitInterrupted is returned after SIGINT or SIGTERM, as shells do for
// SIGINT.
const ExitInterrupted = 130

type eventKind int

const (
	evSpawned eventKind = iota
	evSpawnFailed
	evSkipped
	evExited
	evInterrupt
)

func (k eventKind) String() string {
	switch k {
	case evSpawned:
		return "spawned"
	case evSpawnFailed:
		return "spawnFailed"
	case evSkipped:
		return "skipped"
	case evExited:
		return "exited"
	case evInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

type event struct {
	kind   eventKind
	index  int
	name   string
	handle Handle
	status process.ExitStatus
	err    error
}

type action int

const (
	actNone action = iota
	// actDrain cancels pending launches and terminates every live handle.
	actDrain
	// actTerminate terminates the handle carried by the event only. It is
	// used for a launch that completed after draining began.
	actTerminate
	actFinish
)

type drainCause int

const (
	causeNone drainCause = iota
	causeExit
	causeSpawnFailure
	causeInterrupt
)

// machine holds the run state. apply is the only place where it changes.
type machine struct {
	state   State
	policy  config.StopPolicy
	pending int // launches not yet resolved
	live    int // spawned and not yet exited

	cause         drainCause
	trigger       string
	triggerStatus process.ExitStatus
	interrupted   bool
	spawnErr      error

	drainedCode    int
	hasDrainedCode bool
}

func newMachine(components int, policy config.StopPolicy) *machine {
	m := &machine{state: StateStarting, policy: policy, pending: components}
	if components == 0 {
		m.state = StateDone
	}
	return m
}

// apply advances the machine by one event and returns what the caller must
// do next.
func (m *machine) apply(ev event) action {
	if m.state == StateDone {
		return actNone
	}

	act := actNone
	switch ev.kind {
	case evSpawned:
		m.pending--
		m.live++
		if m.state == StateDraining {
			act = actTerminate
		} else if m.pending == 0 {
			m.state = StateRunning
		}

	case evSpawnFailed:
		m.pending--
		if m.spawnErr == nil {
			m.spawnErr = ev.err
		}
		act = m.drain(causeSpawnFailure)

	case evSkipped:
		m.pending--

	case evExited:
		m.live--
		if m.state == StateDraining {
			// Killed by our own termination signal does not count.
			if !m.hasDrainedCode && !ev.status.Signaled && ev.status.Code != 0 {
				m.drainedCode = ev.status.Code
				m.hasDrainedCode = true
			}
			break
		}
		if m.policy == config.StopOnFailure && ev.status.Success() {
			if m.pending == 0 {
				m.state = StateRunning
			}
			break
		}
		m.trigger = ev.name
		m.triggerStatus = ev.status
		act = m.drain(causeExit)

	case evInterrupt:
		m.interrupted = true
		act = m.drain(causeInterrupt)
	}

	if m.pending == 0 && m.live == 0 {
		m.state = StateDone
		return actFinish
	}
	return act
}

func (m *machine) drain(cause drainCause) action {
	if m.state == StateDraining {
		return actNone
	}
	m.state = StateDraining
	m.cause = cause
	return actDrain
}

// exitCode derives the process exit code of the whole run.
func (m *machine) exitCode() int {
	switch {
	case m.interrupted:
		return ExitInterrupted
	case m.cause == causeSpawnFailure:
		return 1
	case m.cause == causeExit && !m.triggerStatus.Success():
		if m.triggerStatus.Code > 0 {
			return m.triggerStatus.Code
		}
		return 1
	case m.hasDrainedCode:
		return m.drainedCode
	case m.spawnErr != nil:
		return 1
	default:
		return 0
	}
}
