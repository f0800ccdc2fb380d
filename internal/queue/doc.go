// Package queue implements the asynchronous request queue that mediates all
// calls to the external inference service. It bounds concurrent in-flight
// calls, orders pending work by priority, retries transient failures with
// exponential backoff, supports cancellation of not-yet-dispatched work, and
// exposes live position and wait-time estimates to observers.
//
// All mutable state is owned by a single engine goroutine; public methods
// communicate with it over a command channel, so task records are never
// mutated concurrently.
package queue
