// Package orchestrator runs the selected components as one stack and
// decides when and how the stack stops.
//
// # Lifecycle
//
// A run moves through four states:
//
//	Starting -> Running -> Draining -> Done
//
// Every component is launched concurrently, after its optional start delay.
// Once all launches resolved the run is Running. The first of an interrupt
// (cancellation of the context passed to Run), a component exit or a spawn
// failure moves it to Draining: pending launches are cancelled and every
// live process is terminated concurrently, so draining takes at most one
// grace period. Done is reached when nothing is pending and nothing is
// alive. Nothing is ever restarted.
//
// All transitions happen in machine.apply, driven by events from the launch
// goroutines and the context. The control loop only executes the returned
// action.
//
// # Stop Policies
//
//   - any (default): any component exit drains the stack.
//   - failure: clean exits only remove the component; a non-zero or
//     abnormal exit drains the stack.
//
// # Exit Codes
//
//   - 130 after an interrupt, whatever the components returned
//   - 1 when a component could not be spawned
//   - the triggering component's code when it exited non-zero
//   - otherwise the first non-zero code among the drained components,
//     ignoring those killed by the termination signal
//   - 0 otherwise
//
// # Usage Example
//
//	mux := output.NewMultiplexer(sink)
//	orch := orchestrator.New(orchestrator.Options{
//	    Spawner:     &orchestrator.ProcessSpawner{Supervisor: sup, Output: mux},
//	    Reporter:    reporter,
//	    GracePeriod: 5 * time.Second,
//	    Flush:       mux.Wait,
//	})
//	res := orch.Run(ctx, components)
//	os.Exit(res.ExitCode)
package orchestrator
