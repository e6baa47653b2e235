package setup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"conductor/internal/config"
	"conductor/internal/output"
	"conductor/internal/process"
	"conductor/internal/reporting"
	"conductor/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one component's setup pipeline.
type Result struct {
	Component string
	// Cloned is set when the repository was cloned during this run.
	Cloned bool
	// Steps counts the init commands that completed successfully.
	Steps int
	Err   error
}

// OK reports whether the pipeline completed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Skipped reports whether the pipeline was cut short by cancellation.
func (r Result) Skipped() bool {
	return errors.Is(r.Err, ErrSkipped)
}

// Report aggregates the results of one setup run in selection order.
type Report struct {
	Results []Result
}

// Failed returns the results that did not complete, skipped ones included.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err joins the errors of all failed pipelines, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.Component, res.Err))
	}
	return errors.Join(errs...)
}

// Options configures a Runner.
type Options struct {
	// Root is the project root; repositories and init steps resolve
	// against it.
	Root string
	// Parallel limits how many pipelines run at once. Zero means no limit.
	Parallel int
	// GitBinary defaults to "git".
	GitBinary  string
	Supervisor *process.Supervisor
	Output     *output.Multiplexer
	Reporter   reporting.Reporter
	// LookupEnv defaults to os.LookupEnv; used to detect clone credentials.
	LookupEnv func(string) (string, bool)
}

// Runner executes setup pipelines: repository acquisition followed by the
// component's init commands.
type Runner struct {
	root      string
	parallel  int
	git       string
	sup       *process.Supervisor
	mux       *output.Multiplexer
	reporter  reporting.Reporter
	lookupEnv func(string) (string, bool)
}

// NewRunner creates a Runner from opts, filling in defaults.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		root:      opts.Root,
		parallel:  opts.Parallel,
		git:       opts.GitBinary,
		sup:       opts.Supervisor,
		mux:       opts.Output,
		reporter:  opts.Reporter,
		lookupEnv: opts.LookupEnv,
	}
	if r.git == "" {
		r.git = "git"
	}
	if r.sup == nil {
		r.sup = process.NewSupervisor(r.root)
	}
	if r.mux == nil {
		r.mux = output.NewMultiplexer(output.NewSink(os.Stdout, nil))
	}
	if r.reporter == nil {
		r.reporter = reporting.Discard
	}
	if r.lookupEnv == nil {
		r.lookupEnv = os.LookupEnv
	}
	return r
}

// Run executes one pipeline per component concurrently and waits for all
// of them and for their output to be flushed. Failures stay isolated to
// their component. Cancelling ctx skips pipelines that have not started;
// started pipelines finish their current step and then stop.
func (r *Runner) Run(ctx context.Context, components []config.Component) Report {
	results := make([]Result, len(components))

	var g errgroup.Group
	if r.parallel > 0 {
		g.SetLimit(r.parallel)
	}
	for i, c := range components {
		i, c := i, c
		g.Go(func() error {
			results[i] = r.runPipeline(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	r.mux.Wait()

	return Report{Results: results}
}

func (r *Runner) runPipeline(ctx context.Context, c config.Component) Result {
	res := Result{Component: c.Name}

	if ctx.Err() != nil {
		res.Err = ErrSkipped
		r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventSkipped, Detail: "setup cancelled"})
		return res
	}

	logging.Debug("Setup", "starting pipeline for %s", c.Name)

	if repo := c.Repository(r.root); repo != nil {
		cloned, err := r.acquire(c, repo)
		if err != nil {
			res.Err = err
			r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventSetupFailed, Err: err})
			return res
		}
		res.Cloned = cloned
	}

	for i, step := range c.Init {
		if i > 0 && ctx.Err() != nil {
			res.Err = fmt.Errorf("%d of %d init steps not run: %w", len(c.Init)-i, len(c.Init), ErrSkipped)
			r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventSkipped, Detail: "setup cancelled"})
			return res
		}

		if err := r.runStep(c, i+1, step); err != nil {
			res.Err = err
			r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventSetupFailed, Err: err})
			return res
		}
		res.Steps++
	}

	r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventSetupDone})
	return res
}

// acquire makes the repository available at its target path. An existing
// checkout of the same remote is left untouched.
func (r *Runner) acquire(c config.Component, repo *config.Repository) (bool, error) {
	fail := func(err error) (bool, error) {
		return false, &AcquisitionError{Component: c.Name, URL: RedactURL(repo.URL), Path: repo.Path, Err: err}
	}

	state, err := inspectTarget(repo.Path)
	if err != nil {
		return fail(err)
	}

	if state == targetOccupied {
		origin, err := originURL(r.git, repo.Path)
		if err != nil {
			return fail(fmt.Errorf("directory already exists and is not a git checkout: %w", err))
		}
		if !sameRepository(origin, repo.URL) {
			return fail(fmt.Errorf("directory already exists with origin %s", RedactURL(origin)))
		}
		r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventUpToDate})
		return false, nil
	}

	_, hasToken := r.lookupEnv(EnvGitPAT)
	cmd := cloneCommand(r.git, repo, r.root, hasToken)
	r.reporter.Report(reporting.Update{
		Component: c.Name,
		Event:     reporting.EventCloning,
		Detail:    fmt.Sprintf("from %s into %s", RedactURL(repo.URL), repo.Path),
	})

	status, err := r.exec(cloneComponent(c, cmd), cmd)
	if err != nil {
		return fail(err)
	}
	if !status.Success() {
		return fail(fmt.Errorf("git clone: %s", status))
	}

	r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventCloned})
	return true, nil
}

func (r *Runner) runStep(c config.Component, n int, step config.Command) error {
	r.reporter.Report(reporting.Update{Component: c.Name, Event: reporting.EventExecuting, Detail: step.String()})

	status, err := r.exec(c, step)
	if err != nil {
		return &InitStepError{Component: c.Name, Step: n, Command: step.String(), Err: err}
	}
	if !status.Success() {
		return &InitStepError{Component: c.Name, Step: n, Command: step.String(), Status: status}
	}
	return nil
}

// exec runs one command to completion with its output multiplexed under
// the component's tag.
func (r *Runner) exec(c config.Component, cmd config.Command) (process.ExitStatus, error) {
	p, err := r.sup.Spawn(c, cmd)
	if err != nil {
		return process.ExitStatus{}, err
	}
	r.mux.Attach(c.Name, c.Color, p.Stdout, p.Stderr)
	return p.Wait(), nil
}
