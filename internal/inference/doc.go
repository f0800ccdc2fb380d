// Package inference defines the boundary between the queue subsystem and
// external AI inference services. It provides the Invoker interface that
// concrete providers (e.g. Gemini) implement, the request/result types for
// the supported operation kinds, and the failure taxonomy the queue uses to
// decide whether a failed call is worth retrying.
package inference
