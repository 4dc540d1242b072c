package entity

import "time"

// AuditEventType is the closed set of audit event kinds (§3 "Audit event").
type AuditEventType string

const (
	AuditUserMessage      AuditEventType = "user_message"
	AuditBotResponse      AuditEventType = "bot_response"
	AuditSafetyCheck      AuditEventType = "safety_check"
	AuditIntentParsed     AuditEventType = "intent_parsed"
	AuditDomainRouted     AuditEventType = "domain_routed"
	AuditContextRetrieved AuditEventType = "context_retrieved"
	AuditLLMCall          AuditEventType = "llm_call"
	AuditStageTimings     AuditEventType = "stage_timings"
	AuditRateLimitTrip    AuditEventType = "rate_limit_trip"
	AuditInjectionAttempt AuditEventType = "injection_attempt"
	AuditToolExecution    AuditEventType = "tool_execution"
	AuditRequestComplete  AuditEventType = "request_complete"
)

// AuditEvent is a typed, append-only record emitted to the logging sink.
// The pipeline never reads these back; they exist purely for the
// out-of-core analytics/admin surfaces.
type AuditEvent struct {
	Type           AuditEventType         `json:"type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	IPHash         string                 `json:"ip_hash,omitempty"`
	Stage          string                 `json:"stage,omitempty"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
}
