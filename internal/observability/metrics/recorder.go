// Package metrics provides custom Prometheus metrics for the notification daemon.
package metrics

// Recorder defines a minimal interface for recording metrics.
// This interface improves testability by allowing components to depend on
// an abstraction rather than concrete metric implementations.
type Recorder interface {
	// RecordOperation records a generic operation with its status.
	// The operation parameter describes what was performed (e.g., "db_query:notes", "novelty_check").
	// The status parameter indicates the outcome (e.g., "success", "error").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	// The operation parameter describes what was measured (e.g., "summary", "db_query:notes").
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	// The operation parameter describes where the error occurred.
	// The errorType parameter categorizes the error (e.g., "validation", "timeout", "connection_error").
	RecordError(operation, errorType string)
}
