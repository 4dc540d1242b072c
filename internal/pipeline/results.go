// Package pipeline implements the L0..L9 stage graph (§4): independent trust
// boundaries the orchestrator drives in order for one request. Each stage
// returns a tagged-union result embedding stage.Result, following the design
// notes' "prefer tagged-union result types over inheritance hierarchies"
// guidance, and is grounded on the corresponding layerN_*.py module in the
// Python reference, adapted onto the teacher gateway's llm.Client / zap
// idiom.
package pipeline

import (
	"time"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/domain/stage"
)

// Status constants. Each stage defines its own small enumeration of Status
// values layered on top of the shared Passed/ErrorCode fields.
const (
	StatusL0Passed              stage.Status = "passed"
	StatusL0RateLimited         stage.Status = "rate_limited"
	StatusL0RequestTooLarge     stage.Status = "request_too_large"
	StatusL0InvalidContentType  stage.Status = "invalid_content_type"
	StatusL0MissingMessage      stage.Status = "missing_message"

	StatusL1Passed        stage.Status = "passed"
	StatusL1EmptyInput    stage.Status = "empty_input"
	StatusL1TooLong       stage.Status = "input_too_long"
	StatusL1BlockedPattern stage.Status = "blocked_pattern"

	StatusL2Safe    stage.Status = "safe"
	StatusL2Blocked stage.Status = "blocked"
	StatusL2Error   stage.Status = "error"

	StatusL3Parsed    stage.Status = "parsed"
	StatusL3Ambiguous stage.Status = "ambiguous"
	StatusL3Error     stage.Status = "error"

	StatusL4Routed     stage.Status = "routed"
	StatusL4OutOfScope stage.Status = "out_of_scope"

	StatusL5Success     stage.Status = "success"
	StatusL5Partial     stage.Status = "partial"
	StatusL5Insufficient stage.Status = "insufficient"
	StatusL5NoContext   stage.Status = "no_context"

	StatusL6Success  stage.Status = "success"
	StatusL6ToolCall stage.Status = "tool_call"
	StatusL6Degraded stage.Status = "degraded"
	StatusL6Error    stage.Status = "error"

	StatusL7Revised stage.Status = "revised"
	StatusL7Skipped stage.Status = "skipped"
	StatusL7Passed  stage.Status = "passed"
	StatusL7Error   stage.Status = "error"

	StatusL8Safe   stage.Status = "safe"
	StatusL8Unsafe stage.Status = "unsafe"
	StatusL8Error  stage.Status = "error"
)

// L0Result is the network gateway's outcome (§4.2).
type L0Result struct {
	stage.Result
	IPHash     string
	RetryAfter time.Duration
}

// L1Result is the sanitization outcome (§4.3).
type L1Result struct {
	stage.Result
	SanitizedText string
}

// L2Result is the jailbreak classifier's outcome (§4.4).
type L2Result struct {
	stage.Result
	Reason     entity.JailbreakReason
	Confidence float64
}

// L3Result is the intent parser's outcome (§4.4).
type L3Result struct {
	stage.Result
	Intent entity.Intent
}

// L2L3Result is the fused classifier+parser outcome used by the fast
// orchestrator variant (§4.4 "Fused variant").
type L2L3Result struct {
	stage.Result
	Reason     entity.JailbreakReason
	Confidence float64
	Intent     entity.Intent
}

// L4Result is the domain router's outcome (§4.5).
type L4Result struct {
	stage.Result
	Domain     entity.Domain
	Confidence float64
}

// L5Result is the context retrieval outcome (§4.6); it wraps the shared
// entity.ContextResult blob with a stage.Result envelope so it composes with
// the rest of the pipeline's short-circuit handling.
type L5Result struct {
	stage.Result
	Context entity.ContextResult
}

// L6Result is the generator's outcome (§4.7). ToolCalls is non-empty when the
// orchestrator must run the tool-execution loop and re-invoke L6.
type L6Result struct {
	stage.Result
	Response  string
	ModelUsed string
	ToolCalls []entity.ToolCall
	Degraded  bool
}

// L7Result is the self-revision outcome (§4.8).
type L7Result struct {
	stage.Result
	Response      string
	WasRevised    bool
	RevisionNotes string
}

// L8Result is the output safety outcome (§4.9).
type L8Result struct {
	stage.Result
	Issues []entity.SafetyIssue
}
