package domain

import "errors"

// Error kinds used across the pipeline. Adapters wrap these with %w so the
// orchestrator can classify failures with errors.Is and decide retry vs abort.
var (
	// ErrSourceUnavailable marks a transient failure reaching the operational
	// store, the IoT feed, or the weather API. Retryable.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSchemaMismatch marks a record that fails type or shape validation at
	// extraction. A data-quality defect: the affected date fails immediately
	// and is never retried.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrWriteFailure marks a transient transport or storage failure while
	// writing to the warehouse. Retryable with backoff.
	ErrWriteFailure = errors.New("write failure")
)
