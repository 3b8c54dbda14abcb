// Package lifecycle acquires host resources in order and releases them in
// reverse.
//
// A run is a list of Steps. Manager.Acquire runs them one at a time; each
// step that succeeds may hand back a ReleaseFunc, which is pushed onto the
// run's Stack before the next step starts. If a step fails, everything
// already on the stack is released, newest first, and the step error is
// returned. Otherwise the caller owns the Stack and must call Release once
// the resources are no longer needed.
//
// Release is best-effort. Every action runs even when an earlier one fails;
// failures are returned as ReleaseErrors for the caller to report and never
// change the outcome of the run.
package lifecycle
