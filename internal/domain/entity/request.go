package entity

import "time"

// RequestEnvelope is created at ingress and mutated only by the orchestrator
// as it attaches each stage's result; it is destroyed once the response is
// emitted (§3).
type RequestEnvelope struct {
	RequestID      string
	ConversationID string // may be empty; assigned by the conversation store
	PeerAddr       string // the extracted client address, pre-hash
	ContentType    string
	ContentLength  int64
	Message        string // raw, pre-sanitization
	ReceivedAt     time.Time
}

// ResponseRecord is L9's output. Exactly one of Content/ErrorCode is set.
type ResponseRecord struct {
	Success        bool
	Content        string
	Domain         Domain
	ErrorCode      string
	ErrorMessage   string
	RequestID      string
	ConversationID string
	ResponseTimeMs int64
	LayerTimingsMs map[string]int64
	BlockedAtLayer string
	RetryAfterSeconds int64 // set only when ErrorCode is rate_limited
}
