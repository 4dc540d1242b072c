package application

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
	"github.com/kellogg/sentrychat/internal/pipeline"
)

// StreamEvent is one increment of the streaming orchestrator's output: a
// content delta, or a terminal event (Done or Err set).
type StreamEvent struct {
	Content        string
	Done           bool
	Err            error
	Domain         entity.Domain
	ConversationID string
	RequestID      string
}

// streamBlockedError reports an L0..L4 short-circuit before any streaming
// began; the HTTP layer maps its Code() the same way it maps a non-streaming
// ResponseRecord's ErrorCode.
type streamBlockedError struct {
	code    string
	message string
}

func (e *streamBlockedError) Error() string { return e.message }
func (e *streamBlockedError) Code() string  { return e.code }

// ProcessStreaming reuses L0..L5 identically to Process, then streams L6's
// incremental output instead of waiting for the full text (§4.1 "Streaming
// variant"). Safety screening runs after the stream completes: a violation
// is logged but cannot be retracted from bytes already written to the wire.
// Conversation history is only appended once the stream closes cleanly, so
// a disconnect mid-stream never records a half-delivered turn. The returned
// channel is always closed by the time the caller observes the done/err
// event or an error is returned directly.
func (o *Orchestrator) ProcessStreaming(ctx context.Context, req entity.RequestEnvelope) (<-chan StreamEvent, error) {
	d := o.deps

	l0 := d.Gateway.Validate(req.PeerAddr, req.ContentType, req.ContentLength, req.Message != "")
	if !l0.Passed {
		return nil, &streamBlockedError{code: l0.ErrorCode, message: l0.ErrorMessage}
	}
	ipHash := l0.IPHash

	conv := d.ConvStore.GetOrCreate(req.ConversationID, ipHash)
	conversationID := conv.ID
	if d.ConvStore.AtTurnLimit(conversationID) {
		return nil, &streamBlockedError{code: "input_too_long", message: "This conversation has reached its maximum length."}
	}

	l1 := d.Sanitizer.Run(req.Message)
	if !l1.Passed {
		d.ConvStore.MarkBlocked(conversationID, "L1")
		return nil, &streamBlockedError{code: l1.ErrorCode, message: l1.ErrorMessage}
	}
	sanitized := l1.SanitizedText

	snapshot, _ := d.ConvStore.Snapshot(conversationID)
	history := snapshot.RecentTurns(6)

	var intent entity.Intent
	if o.mode.UseFusedClassifier {
		fused := d.Fused.Classify(ctx, sanitized, history)
		if !fused.Passed {
			d.ConvStore.MarkBlocked(conversationID, "L2")
			return nil, &streamBlockedError{code: fused.ErrorCode, message: fused.ErrorMessage}
		}
		intent = fused.Intent
	} else {
		l2 := d.Jailbreak.Detect(ctx, sanitized, history)
		if !l2.Passed {
			d.ConvStore.MarkBlocked(conversationID, "L2")
			return nil, &streamBlockedError{code: l2.ErrorCode, message: l2.ErrorMessage}
		}
		l3 := d.Intent.Parse(ctx, sanitized)
		intent = l3.Intent
	}

	l4 := d.Router.Route(intent, sanitized)
	domain := l4.Domain
	l5 := d.Context.Retrieve(ctx, domain, sanitized)

	out := make(chan StreamEvent, 16)

	if domain == entity.DomainOutOfScope {
		response := pipeline.FallbackResponse(domain)
		go o.emitWhole(context.Background(), out, req, conversationID, ipHash, sanitized, response, domain)
		return out, nil
	}

	chunks, err := d.Generator.Stream(ctx, sanitized, domain, l5.Context.Blob, l5.Context.Loaded, history)
	if err != nil {
		response := pipeline.FallbackResponse(domain)
		go o.emitWhole(context.Background(), out, req, conversationID, ipHash, sanitized, response, domain)
		return out, nil
	}

	go o.pumpStream(context.Background(), out, chunks, req, conversationID, ipHash, sanitized, domain)
	return out, nil
}

// emitWhole is used for the two cases that never touch the generator's
// streaming endpoint (out-of-scope, stream-open failure): it forwards the
// canned text as a single content event, then finishes exactly like a real
// stream would.
func (o *Orchestrator) emitWhole(ctx context.Context, out chan<- StreamEvent, req entity.RequestEnvelope, conversationID, ipHash, sanitized, response string, domain entity.Domain) {
	out <- StreamEvent{Content: response, Domain: domain, ConversationID: conversationID, RequestID: req.RequestID}
	o.finishStream(ctx, out, req, conversationID, sanitized, response, domain)
}

// pumpStream forwards each incremental chunk to the caller, accumulates the
// full text, then hands off to finishStream once the generator's channel
// closes or errors.
func (o *Orchestrator) pumpStream(ctx context.Context, out chan<- StreamEvent, chunks <-chan llm.StreamChunk, req entity.RequestEnvelope, conversationID, ipHash, sanitized string, domain entity.Domain) {
	var full strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			out <- StreamEvent{Err: chunk.Err, Domain: domain, ConversationID: conversationID, RequestID: req.RequestID}
			close(out)
			return
		}
		if chunk.Content != "" {
			full.WriteString(chunk.Content)
			out <- StreamEvent{Content: chunk.Content, Domain: domain, ConversationID: conversationID, RequestID: req.RequestID}
		}
		if chunk.Done {
			break
		}
	}

	response := full.String()
	if strings.TrimSpace(response) == "" {
		response = pipeline.FallbackResponse(domain)
	}
	o.finishStream(ctx, out, req, conversationID, sanitized, response, domain)
}

// finishStream runs the post-hoc safety screen, appends the turn to
// conversation history, and emits the terminal StreamEvent. It always
// closes out before returning.
func (o *Orchestrator) finishStream(ctx context.Context, out chan<- StreamEvent, req entity.RequestEnvelope, conversationID, sanitized, response string, domain entity.Domain) {
	defer close(out)

	d := o.deps
	var l8 pipeline.L8Result
	if o.mode.UseFastSafety {
		l8 = d.SafetyFast.Check(response)
	} else {
		l8 = d.SafetyLLM.Check(ctx, response, "")
	}
	if !l8.Passed {
		d.Logger.Warn("post-hoc safety violation on streamed response (not retractable)",
			zap.String("conversation_id", conversationID), zap.Any("issues", l8.Issues))
		d.Monitor.IncSafetyFailure()
	}

	now := time.Now()
	if err := d.ConvStore.AppendTurn(conversationID, sanitized, req.ReceivedAt, response, string(domain), now, 0); err != nil {
		d.Logger.Warn("failed to persist streamed conversation turn", zap.Error(err))
	}

	out <- StreamEvent{Done: true, Domain: domain, ConversationID: conversationID, RequestID: req.RequestID}
}
