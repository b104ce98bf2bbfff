package privacy

// SanitizedError wraps an error with a scrubbed message. Error() is safe
// to log while Unwrap keeps the original chain intact for errors.Is and
// errors.As.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

// Error returns the scrubbed message.
func (e *SanitizedError) Error() string {
	return e.sanitizedMsg
}

// Unwrap returns the original error.
func (e *SanitizedError) Unwrap() error {
	return e.original
}

// WrapError scrubs an error's message with ScrubMessage, preserving the
// original via Unwrap. Returns nil for a nil error. Delivery libraries
// echo the full destination URL in their errors, so wrap before the
// error reaches a logger or the telemetry reporter.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{
		original:     err,
		sanitizedMsg: ScrubMessage(err.Error()),
	}
}
