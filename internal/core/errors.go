package core

import "errors"

// Pipeline error taxonomy. Steps wrap these with fmt.Errorf("%w", ...) so the
// orchestrator can classify failures with errors.Is.
var (
	// ErrContentMismatch means the uploaded bytes do not hash to the
	// expected content hash. Fatal, never retried.
	ErrContentMismatch = errors.New("content hash mismatch")

	// ErrExtractionFailure means the binary format could not be parsed.
	// Fatal.
	ErrExtractionFailure = errors.New("document extraction failed")

	// ErrProvider means an LLM or embedding call failed. Retried up to the
	// step's retry budget, then fatal.
	ErrProvider = errors.New("provider call failed")

	// ErrNotFound means a workflow or file row is missing, which indicates
	// a race with deletion. Fatal.
	ErrNotFound = errors.New("not found")
)
