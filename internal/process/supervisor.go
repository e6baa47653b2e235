package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"conductor/internal/config"
	"conductor/pkg/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultWaitDelay bounds how long output pipes stay open after a child
// exited while descendants still hold them.
const DefaultWaitDelay = 2 * time.Second

// SpawnError reports that a component's command could not be started.
type SpawnError struct {
	Component string
	Command   string
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s (%s): %v", e.Component, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Supervisor starts child processes and tracks the live ones.
type Supervisor struct {
	root      string
	environ   func() []string
	waitDelay time.Duration

	mu   sync.Mutex
	live map[string]*Process
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithEnviron replaces the inherited environment source.
func WithEnviron(fn func() []string) Option {
	return func(s *Supervisor) { s.environ = fn }
}

// NewSupervisor creates a supervisor resolving working directories against
// the project root.
func NewSupervisor(root string, opts ...Option) *Supervisor {
	s := &Supervisor{
		root:      root,
		environ:   os.Environ,
		waitDelay: DefaultWaitDelay,
		live:      make(map[string]*Process),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts command on behalf of component. The returned process is
// already running; a failure to start yields a *SpawnError.
func (s *Supervisor) Spawn(component config.Component, command config.Command) (*Process, error) {
	if command.IsZero() {
		return nil, &SpawnError{Component: component.Name, Command: "<none>", Err: fmt.Errorf("no command configured")}
	}

	cmd := exec.Command(command.Command, command.Args...)
	cmd.Dir = command.WorkDir(component, s.root)
	cmd.Env = config.Environ(s.environ(), component, command)
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = s.waitDelay

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return nil, &SpawnError{Component: component.Name, Command: command.String(), Err: err}
	}

	p := &Process{
		ID:        uuid.NewString(),
		Component: component,
		Command:   command,
		Stdout:    outR,
		Stderr:    errR,
		cmd:       cmd,
		outW:      outW,
		errW:      errW,
		done:      make(chan struct{}),
	}
	logging.Debug("Supervisor", "started %s: %s in %s (pid %d, id %s)", component.Name, command, cmd.Dir, p.Pid(), p.ID)

	s.mu.Lock()
	s.live[p.ID] = p
	s.mu.Unlock()

	go func() {
		p.wait()
		s.mu.Lock()
		delete(s.live, p.ID)
		s.mu.Unlock()
	}()

	return p, nil
}

// Live returns the processes that have not been reaped yet, ordered by
// component name.
func (s *Supervisor) Live() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Process, 0, len(s.live))
	for _, p := range s.live {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// TerminateAll terminates every live process concurrently and returns once
// all of them exited. Total latency is bounded by a single grace period.
func (s *Supervisor) TerminateAll(grace time.Duration) {
	var g errgroup.Group
	for _, p := range s.Live() {
		p := p
		g.Go(func() error {
			p.Terminate(grace)
			return nil
		})
	}
	_ = g.Wait()
}
