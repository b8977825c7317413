package models

import "errors"

// Sentinel errors for the activity pipeline.
// Use errors.Is() to classify errors returned by any layer.
var (
	// ErrValidation indicates a malformed request. Reported synchronously.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound indicates an unknown job id or a missing subject text file.
	ErrNotFound = errors.New("not found")

	// ErrEmbedding indicates the embedding service failed. Not retried.
	ErrEmbedding = errors.New("embedding failed")

	// ErrRetrieval indicates the similarity search failed.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrLLMTransport indicates the LLM call failed at the network or HTTP level.
	ErrLLMTransport = errors.New("llm transport error")

	// ErrLLMValidation indicates the LLM output did not parse or match the schema.
	ErrLLMValidation = errors.New("llm response invalid")

	// ErrPersistence indicates a job store write failed.
	ErrPersistence = errors.New("job store write failed")

	// ErrJobNotPending indicates a terminal update hit a job that already finished.
	ErrJobNotPending = errors.New("job is not pending")
)
