package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"conductor/internal/config"
	"conductor/pkg/logging"
)

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 if the process did not exit normally.
	Code int
	// Signaled is set when the process was killed by a signal.
	Signaled bool
	// Err holds a wait failure that is not a plain non-zero exit.
	Err error
}

// Success reports a normal exit with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && !s.Signaled && s.Err == nil
}

func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("failed: %v", s.Err)
	case s.Signaled:
		return "killed by signal"
	default:
		return fmt.Sprintf("exit code %d", s.Code)
	}
}

// Process is one running child of the supervisor.
//
// Stdout and Stderr must be drained by the caller, usually by attaching
// them to an output.Multiplexer. They reach EOF only after the child exited
// and all of its output was delivered.
type Process struct {
	ID        string
	Component config.Component
	Command   config.Command

	Stdout io.Reader
	Stderr io.Reader

	cmd    *exec.Cmd
	outW   *io.PipeWriter
	errW   *io.PipeWriter
	done   chan struct{}
	status ExitStatus

	termOnce   sync.Once
	terminated atomic.Bool
}

// Name returns the component name.
func (p *Process) Name() string {
	return p.Component.Name
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process exited and its status is available.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exited and returns its status.
func (p *Process) Wait() ExitStatus {
	<-p.done
	return p.status
}

// Status returns the exit status. It is only meaningful after Done is closed.
func (p *Process) Status() ExitStatus {
	select {
	case <-p.done:
		return p.status
	default:
		return ExitStatus{Code: -1}
	}
}

// Terminated reports whether Terminate was called on this process.
func (p *Process) Terminated() bool {
	return p.terminated.Load()
}

// Terminate asks the process group to stop and escalates to a kill after
// grace. It returns once the process exited. Calling it again, or on a
// process that already exited, only waits.
func (p *Process) Terminate(grace time.Duration) {
	p.termOnce.Do(func() {
		p.terminated.Store(true)

		select {
		case <-p.done:
			return
		default:
		}

		logging.Debug("Process", "terminating %s (pid %d, id %s)", p.Name(), p.Pid(), p.ID)
		if err := terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logging.Warn("Process", "failed to signal %s: %v", p.Name(), err)
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-p.done:
		case <-timer.C:
			logging.Info("Process", "%s did not stop within %s, killing it", p.Name(), grace)
			if err := kill(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logging.Warn("Process", "failed to kill %s: %v", p.Name(), err)
			}
		}
	})
	<-p.done
}

// wait reaps the child, records its status and closes the output streams.
func (p *Process) wait() {
	err := p.cmd.Wait()
	p.status = exitStatus(p.cmd.ProcessState, err)

	// Every byte copied by exec has been written at this point.
	p.outW.Close()
	p.errW.Close()

	logging.Debug("Process", "%s (pid %d) ended: %s", p.Name(), p.Pid(), p.status)
	close(p.done)
}

func exitStatus(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1, Err: err}
	}

	status := ExitStatus{Code: state.ExitCode(), Signaled: !state.Exited()}

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.As(err, &exitErr):
	case errors.Is(err, exec.ErrWaitDelay):
		// Descendants kept the output pipes open after the child exited.
		logging.Debug("Process", "output pipes closed after wait delay")
	default:
		status.Err = err
	}
	return status
}
