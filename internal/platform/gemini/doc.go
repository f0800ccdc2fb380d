// Package gemini implements the inference.Invoker interface using Google's
// Gemini API. It builds one prompt per operation kind (transcription, text
// analysis, translation), makes a single generation call, and maps provider
// errors onto the inference failure taxonomy so the queue can decide retry
// eligibility. Retry and concurrency control live in the queue engine, not
// here.
package gemini
