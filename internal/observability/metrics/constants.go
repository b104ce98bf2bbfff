// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation type constants used in switch statements across metrics.
// These constants define the categories of operations that can be recorded.
const (
	// OpDbQuery represents database query operations.
	OpDbQuery = "db_query"
	// OpDbInsert represents database insert operations.
	OpDbInsert = "db_insert"
	// OpDbUpdate represents database update operations.
	OpDbUpdate = "db_update"
	// OpDbDelete represents database delete operations.
	OpDbDelete = "db_delete"
	// OpNoveltyCheck represents novelty classification operations.
	OpNoveltyCheck = "novelty_check"
	// OpSummary represents summary window aggregation operations.
	OpSummary = "summary"
	// OpImageCache represents image cache lookup operations.
	OpImageCache = "image_cache"
	// OpHistory represents notification history operations.
	OpHistory = "history"
)

// Label value constants used for metric labels.
const (
	// LabelQuery is the operation label for query operations.
	LabelQuery = "query"
	// LabelGet is the operation label for get operations.
	LabelGet = "get"
	// LabelSuccess is the status label for successful operations.
	LabelSuccess = "success"
	// LabelError is the status label for failed operations.
	LabelError = "error"
)

// Histogram bucket configuration constants.
// These define the base values and factors for exponential bucket generation.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// Time and conversion constants.
const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
	// MillisecondsPerSecond is the conversion factor from seconds to milliseconds.
	MillisecondsPerSecond = 1000.0
)

// String parsing constants.
const (
	// SplitPartsCount is the expected number of parts when splitting operation strings.
	SplitPartsCount = 2
)
