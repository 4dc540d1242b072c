// Package audit implements the append-only audit sink (§3 "Audit event"):
// every typed AuditEvent is written as a structured zap field set on a
// dedicated logger, and mirrored to a JSON-lines file so external tooling
// can scan it without parsing log lines.
// Grounded on the Python reference's AuditLogger (utils/logging.py) and the
// reference gateway's zap logger setup.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

// Logger is the audit façade every pipeline stage writes through. It never
// reads events back; the pipeline has no dependency on its own history.
type Logger struct {
	zl *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger that emits to zl at Info level and, if path is
// non-empty, additionally appends each event as one JSON line to path.
func New(zl *zap.Logger, path string) (*Logger, error) {
	l := &Logger{zl: zl.Named("audit")}
	if path == "" {
		return l, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	l.file = f
	return l, nil
}

// Close flushes and closes the underlying JSON-lines file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Log emits one audit event to both sinks. Errors writing the JSON-lines
// file are logged but never propagated — a full disk must not block the
// request path.
func (l *Logger) Log(event entity.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.Time("timestamp", event.Timestamp),
		zap.String("request_id", event.RequestID),
	}
	if event.ConversationID != "" {
		fields = append(fields, zap.String("conversation_id", event.ConversationID))
	}
	if event.IPHash != "" {
		fields = append(fields, zap.String("ip_hash", event.IPHash))
	}
	if event.Stage != "" {
		fields = append(fields, zap.String("stage", event.Stage))
	}
	for k, v := range event.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	l.zl.Info("audit_event", fields...)

	l.appendJSONLine(event)
}

func (l *Logger) appendJSONLine(event entity.AuditEvent) {
	if l.file == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		l.zl.Warn("failed to marshal audit event", zap.Error(err))
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		l.zl.Warn("failed to append audit event", zap.Error(err))
	}
}

// InjectionAttempt is a convenience wrapper for the L1/L2 blocked-pattern
// and jailbreak-classifier paths, matching AuditLogger.log_injection_attempt.
func (l *Logger) InjectionAttempt(requestID, ipHash, stage, reason, preview string) {
	l.Log(entity.AuditEvent{
		Type:      entity.AuditInjectionAttempt,
		RequestID: requestID,
		IPHash:    ipHash,
		Stage:     stage,
		Fields: map[string]interface{}{
			"reason":         reason,
			"input_preview":  preview,
		},
	})
}

// RequestComplete is a convenience wrapper for L9's terminal audit event.
func (l *Logger) RequestComplete(requestID, conversationID string, blockedAtLayer string, responseTimeMs int64) {
	fields := map[string]interface{}{"response_time_ms": responseTimeMs}
	if blockedAtLayer != "" {
		fields["blocked_at_layer"] = blockedAtLayer
	}
	l.Log(entity.AuditEvent{
		Type:           entity.AuditRequestComplete,
		RequestID:      requestID,
		ConversationID: conversationID,
		Fields:         fields,
	})
}
