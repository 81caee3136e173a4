package logger

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldRunID = "run_id"

	// Jobs
	FieldJob      = "job"
	FieldPriority = "priority"
	FieldState    = "state"
	FieldStage    = "stage"
	FieldScore    = "score"
	FieldStartAt  = "start_at"
	FieldEstimate = "estimate_s"
	FieldRepeats  = "repeats_remaining"

	// Equipment
	FieldDevice   = "device"
	FieldMethod   = "method"
	FieldStatus   = "status"
	FieldAttempt  = "attempt"
	FieldAltitude = "altitude"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldSleep      = "sleep"

	// Errors
	FieldError     = "error"
	FieldErrorKind = "error_kind"

	// Files and network
	FieldFile    = "file"
	FieldAddress = "address"
	FieldCount   = "count"

	FieldSymbol = "symbol" // subsystem glyph (꩜, ✿, ❀, etc.)
)
