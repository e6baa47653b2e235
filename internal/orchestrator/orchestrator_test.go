package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"conductor/internal/config"
	"conductor/internal/process"
	"conductor/internal/reporting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeHandle is a process stand-in controlled by the test.
type fakeHandle struct {
	name string
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	status process.ExitStatus

	// onTerminate is the status reported when terminated.
	onTerminate process.ExitStatus
	termDelay   time.Duration
	terminated  atomic.Int32
}

func newFakeHandle(name string) *fakeHandle {
	return &fakeHandle{
		name:        name,
		done:        make(chan struct{}),
		onTerminate: process.ExitStatus{Code: -1, Signaled: true},
	}
}

func (h *fakeHandle) Name() string          { return h.name }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Status() process.ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *fakeHandle) exit(st process.ExitStatus) {
	h.once.Do(func() {
		h.mu.Lock()
		h.status = st
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *fakeHandle) Terminate(time.Duration) {
	h.terminated.Add(1)
	select {
	case <-h.done:
		return
	default:
	}
	time.Sleep(h.termDelay)
	h.exit(h.onTerminate)
}

type mockSpawner struct {
	mock.Mock
}

func (m *mockSpawner) Spawn(c config.Component) (Handle, error) {
	args := m.Called(c.Name)
	if h, ok := args.Get(0).(Handle); ok {
		return h, args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingReporter struct {
	mu      sync.Mutex
	updates []reporting.Update
}

func (r *recordingReporter) Report(u reporting.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recordingReporter) has(component string, ev reporting.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.updates {
		if u.Component == component && u.Event == ev {
			return true
		}
	}
	return false
}

func components(names ...string) []config.Component {
	out := make([]config.Component, len(names))
	for i, n := range names {
		out[i] = config.Component{Name: n}
	}
	return out
}

// runAsync starts the orchestrator and returns a channel with its result.
func runAsync(ctx context.Context, o *Orchestrator, cs []config.Component) <-chan Result {
	ch := make(chan Result, 1)
	go func() { ch <- o.Run(ctx, cs) }()
	return ch
}

func awaitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not finish")
		return Result{}
	}
}

// awaitStarted waits until every named component has been reported as
// started.
func awaitStarted(t *testing.T, rep *recordingReporter, names ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, n := range names {
			if !rep.has(n, reporting.EventStarted) {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRun_CleanExitDrainsOthers(t *testing.T) {
	api, web := newFakeHandle("api"), newFakeHandle("web")
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)
	spawner.On("Spawn", "web").Return(web, nil)
	rep := &recordingReporter{}

	o := New(Options{Spawner: spawner, Reporter: rep, GracePeriod: time.Second})
	ch := runAsync(context.Background(), o, components("api", "web"))
	awaitStarted(t, rep, "api", "web")

	api.exit(process.ExitStatus{})
	res := awaitResult(t, ch)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "api", res.Trigger)
	assert.False(t, res.Interrupted)
	assert.EqualValues(t, 1, web.terminated.Load())
	assert.True(t, res.Exits["web"].Signaled)
	assert.True(t, rep.has("", reporting.EventDraining))
	spawner.AssertExpectations(t)
}

// groupSpawner stops its handles through TerminateAll, like ProcessSpawner.
type groupSpawner struct {
	mockSpawner
	handles []*fakeHandle
	calls   atomic.Int32
}

func (s *groupSpawner) TerminateAll(grace time.Duration) {
	s.calls.Add(1)
	for _, h := range s.handles {
		h.Terminate(grace)
	}
}

func TestRun_DrainUsesTerminateAll(t *testing.T) {
	api, web := newFakeHandle("api"), newFakeHandle("web")
	spawner := &groupSpawner{handles: []*fakeHandle{api, web}}
	spawner.On("Spawn", "api").Return(api, nil)
	spawner.On("Spawn", "web").Return(web, nil)
	rep := &recordingReporter{}

	o := New(Options{Spawner: spawner, Reporter: rep})
	ch := runAsync(context.Background(), o, components("api", "web"))
	awaitStarted(t, rep, "api", "web")

	api.exit(process.ExitStatus{Code: 5})
	res := awaitResult(t, ch)

	assert.Equal(t, 5, res.ExitCode)
	assert.EqualValues(t, 1, spawner.calls.Load())
	assert.EqualValues(t, 1, web.terminated.Load())
	assert.True(t, res.Exits["web"].Signaled)
}

func TestRun_NonZeroExitPropagates(t *testing.T) {
	api, web := newFakeHandle("api"), newFakeHandle("web")
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)
	spawner.On("Spawn", "web").Return(web, nil)
	rep := &recordingReporter{}

	o := New(Options{Spawner: spawner, Reporter: rep})
	ch := runAsync(context.Background(), o, components("api", "web"))
	awaitStarted(t, rep, "api", "web")

	web.exit(process.ExitStatus{Code: 3})
	res := awaitResult(t, ch)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "web", res.Trigger)
	assert.EqualValues(t, 1, api.terminated.Load())
}

func TestRun_DrainedNonZeroExitCounts(t *testing.T) {
	api, web := newFakeHandle("api"), newFakeHandle("web")
	web.onTerminate = process.ExitStatus{Code: 2}
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)
	spawner.On("Spawn", "web").Return(web, nil)
	rep := &recordingReporter{}

	o := New(Options{Spawner: spawner, Reporter: rep})
	ch := runAsync(context.Background(), o, components("api", "web"))
	awaitStarted(t, rep, "api", "web")

	api.exit(process.ExitStatus{})
	res := awaitResult(t, ch)

	assert.Equal(t, 2, res.ExitCode)
}

func TestRun_InterruptTerminatesConcurrently(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	spawner := &mockSpawner{}
	handles := make([]*fakeHandle, 0, len(names))
	for _, n := range names {
		h := newFakeHandle(n)
		h.termDelay = 200 * time.Millisecond
		h.onTerminate = process.ExitStatus{Code: 1}
		handles = append(handles, h)
		spawner.On("Spawn", n).Return(h, nil)
	}
	rep := &recordingReporter{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := New(Options{Spawner: spawner, Reporter: rep})
	ch := runAsync(ctx, o, components(names...))
	awaitStarted(t, rep, names...)

	start := time.Now()
	cancel()
	res := awaitResult(t, ch)

	assert.Less(t, time.Since(start), 600*time.Millisecond, "terminations must overlap")
	assert.Equal(t, ExitInterrupted, res.ExitCode)
	assert.True(t, res.Interrupted)
	for _, h := range handles {
		assert.EqualValues(t, 1, h.terminated.Load(), h.name)
	}
}

func TestRun_SpawnFailureTerminatesStartedSubset(t *testing.T) {
	api := newFakeHandle("api")
	spawnErr := &process.SpawnError{Component: "web", Command: "nope", Err: errors.New("not found")}
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)
	spawner.On("Spawn", "web").Return(nil, spawnErr)
	rep := &recordingReporter{}

	o := New(Options{Spawner: spawner, Reporter: rep})
	res := awaitResult(t, runAsync(context.Background(), o, components("api", "web")))

	assert.Equal(t, 1, res.ExitCode)
	var se *process.SpawnError
	require.True(t, errors.As(res.Err, &se))
	assert.Equal(t, "web", se.Component)
	assert.True(t, rep.has("web", reporting.EventStartFailed))
	// api may have been skipped, or spawned before or after the failure.
	// If it was spawned it must have been stopped.
	spawnedAPI := false
	for _, call := range spawner.Calls {
		if call.Arguments.String(0) == "api" {
			spawnedAPI = true
		}
	}
	if spawnedAPI {
		select {
		case <-api.Done():
		default:
			t.Fatal("api still running")
		}
	} else {
		assert.True(t, rep.has("api", reporting.EventSkipped))
	}
}

func TestRun_DelayedLaunchIsSkippedWhenDraining(t *testing.T) {
	api := newFakeHandle("api")
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)
	rep := &recordingReporter{}

	cs := []config.Component{{Name: "api"}, {Name: "slow", Delay: 30}}
	o := New(Options{Spawner: spawner, Reporter: rep})
	ch := runAsync(context.Background(), o, cs)
	awaitStarted(t, rep, "api")

	api.exit(process.ExitStatus{Code: 4})
	res := awaitResult(t, ch)

	assert.Equal(t, 4, res.ExitCode)
	assert.True(t, rep.has("slow", reporting.EventSkipped))
	spawner.AssertNotCalled(t, "Spawn", "slow")
}

func TestRun_StopOnFailureIgnoresCleanExits(t *testing.T) {
	api, worker, web := newFakeHandle("api"), newFakeHandle("worker"), newFakeHandle("web")
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)
	spawner.On("Spawn", "worker").Return(worker, nil)
	spawner.On("Spawn", "web").Return(web, nil)
	rep := &recordingReporter{}

	o := New(Options{Spawner: spawner, Reporter: rep, StopOn: config.StopOnFailure})
	ch := runAsync(context.Background(), o, components("api", "worker", "web"))
	awaitStarted(t, rep, "api", "worker", "web")

	worker.exit(process.ExitStatus{})
	require.Eventually(t, func() bool { return rep.has("worker", reporting.EventExited) }, time.Second, 5*time.Millisecond)
	assert.Zero(t, api.terminated.Load())
	assert.Zero(t, web.terminated.Load())

	web.exit(process.ExitStatus{Code: 5})
	res := awaitResult(t, ch)

	assert.Equal(t, 5, res.ExitCode)
	assert.EqualValues(t, 1, api.terminated.Load())
}

func TestRun_StopOnFailureAllClean(t *testing.T) {
	api, web := newFakeHandle("api"), newFakeHandle("web")
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)
	spawner.On("Spawn", "web").Return(web, nil)
	rep := &recordingReporter{}

	o := New(Options{Spawner: spawner, Reporter: rep, StopOn: config.StopOnFailure})
	ch := runAsync(context.Background(), o, components("api", "web"))
	awaitStarted(t, rep, "api", "web")

	api.exit(process.ExitStatus{})
	web.exit(process.ExitStatus{})
	res := awaitResult(t, ch)

	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Trigger)
}

func TestRun_NoComponents(t *testing.T) {
	flushed := false
	o := New(Options{Spawner: &mockSpawner{}, Flush: func() { flushed = true }})

	res := o.Run(context.Background(), nil)

	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, flushed, "nothing ran, nothing to flush")
}

func TestRun_FlushesBeforeReturning(t *testing.T) {
	api := newFakeHandle("api")
	api.exit(process.ExitStatus{})
	spawner := &mockSpawner{}
	spawner.On("Spawn", "api").Return(api, nil)

	var flushed atomic.Bool
	o := New(Options{Spawner: spawner, Flush: func() { flushed.Store(true) }})
	res := o.Run(context.Background(), components("api"))

	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, flushed.Load())
}
