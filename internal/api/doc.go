// Package api exposes the queue engine to UI observers over HTTP: task
// submission, per-task status and event streaming, cancellation, aggregate
// stats, and wait-time estimates. Handlers are thin request/response glue;
// all queue semantics live in the queue package.
package api
