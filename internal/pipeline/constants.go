package pipeline

import "time"

// Defaults for the model calls. Config overrides all of them.
const (
	// DefaultModelName is the default Gemini model used for receipts and insights.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultExtractTimeout bounds a single model call.
	DefaultExtractTimeout = 60 * time.Second

	// DefaultMirrorTimeout bounds the fan-out to all sinks after a record.
	DefaultMirrorTimeout = 15 * time.Second

	// DefaultInsightsTTL is how long a generated summary is reused.
	DefaultInsightsTTL = 10 * time.Minute
)

// Extraction results reported to metrics.
const (
	ExtractResultOK    = "ok"
	ExtractResultError = "error"
	ExtractResultOpen  = "circuit_open"
)
