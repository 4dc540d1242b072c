// Package stage defines the discriminated result type shared by every L0-L9
// stage implementation, per the design notes' polymorphism guidance
// (tagged-union result types over inheritance hierarchies).
package stage

// Status is a stage-specific outcome tag. Each stage defines its own status
// constants (e.g. pipeline.StatusL0RateLimited) but every result also carries the
// two common fields below.
type Status string

// Result is embedded by every stage-specific result struct. Passed is the
// fast path a caller checks before looking at the payload; Status carries
// the reason when Passed is false (or a success sub-kind, e.g. "partial").
type Result struct {
	Passed bool
	Status Status
	// ErrorCode is the §7 taxonomy string to surface through L9 when Passed
	// is false. Empty when Passed is true.
	ErrorCode string
	// ErrorMessage is the short, non-technical sentence shown to the caller.
	ErrorMessage string
	// Reason carries internal-only detail (matched pattern tag, classifier
	// reason code) for audit logging; never serialized to the caller.
	Reason string
}

// Blocked is a convenience constructor for a failing stage result.
func Blocked(status Status, errorCode, errorMessage, reason string) Result {
	return Result{Passed: false, Status: status, ErrorCode: errorCode, ErrorMessage: errorMessage, Reason: reason}
}

// Passed is a convenience constructor for a successful stage result.
func Passed(status Status) Result {
	return Result{Passed: true, Status: status}
}
