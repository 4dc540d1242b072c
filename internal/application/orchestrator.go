package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/tool"
	"github.com/kellogg/sentrychat/internal/pipeline"
	pkgerrors "github.com/kellogg/sentrychat/pkg/errors"
)

// Mode selects which of the two pipeline shapes Process drives: the full
// nine-stage graph, or the latency-optimized variant that fuses L2+L3,
// skips L7, and replaces L8's LLM judge with the deterministic pattern
// screen (§4.1's "full" vs "fast" orchestrator).
type Mode struct {
	UseFusedClassifier bool
	SkipRevision       bool
	UseFastSafety      bool
}

// Orchestrator drives one request through L0..L9 against a fixed Mode and a
// shared Deps. It holds no per-request state; every field it reads is
// either immutable after construction or guarded by its own façade.
type Orchestrator struct {
	deps *Deps
	mode Mode
}

// NewFullOrchestrator builds the full variant: separate L2/L3, always runs
// L7, judges L8 with the verifier model.
func NewFullOrchestrator(deps *Deps) *Orchestrator {
	return &Orchestrator{deps: deps, mode: Mode{}}
}

// NewFastOrchestrator builds the latency-optimized variant described in
// §4.1's "fast" path.
func NewFastOrchestrator(deps *Deps) *Orchestrator {
	return &Orchestrator{deps: deps, mode: Mode{UseFusedClassifier: true, SkipRevision: true, UseFastSafety: true}}
}

// NewOrchestratorFromConfig builds a Mode directly from the three pipeline
// toggles in config, so a deployment can mix full/fast behavior per toggle
// rather than being locked to one of the two named presets.
func NewOrchestratorFromConfig(deps *Deps) *Orchestrator {
	p := deps.Config.Pipeline
	return &Orchestrator{deps: deps, mode: Mode{
		UseFusedClassifier: p.UseCombinedClassifier,
		SkipRevision:       p.SkipRevision,
		UseFastSafety:      p.UseFastSafetyCheck,
	}}
}

func preview(s string) string {
	const max = 200
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// Process runs one request through the full stage graph and returns the
// response the HTTP layer serializes. Every short-circuit path records the
// blocking stage and a terminal audit event; history is appended only on
// the success path, so a blocked request never pollutes a conversation
// (§7).
func (o *Orchestrator) Process(ctx context.Context, req entity.RequestEnvelope) entity.ResponseRecord {
	d := o.deps
	start := time.Now()
	timings := make(map[string]int64)

	d.Monitor.IncRequestTotal()
	d.Monitor.IncActiveRequests()
	defer d.Monitor.DecActiveRequests()

	measure := func(name string, fn func()) {
		t := time.Now()
		fn()
		elapsed := time.Since(t)
		timings[name] = elapsed.Milliseconds()
		d.Monitor.RecordStageLatency(name, elapsed)
	}

	fail := func(conversationID, code, message, blockedAt string) entity.ResponseRecord {
		d.Monitor.IncRequestFailed()
		d.Monitor.IncBlockedAtStage(blockedAt)
		elapsed := time.Since(start).Milliseconds()
		d.Audit.RequestComplete(req.RequestID, conversationID, blockedAt, elapsed)
		return entity.ResponseRecord{
			Success: false, ErrorCode: code, ErrorMessage: message,
			RequestID: req.RequestID, ConversationID: conversationID,
			ResponseTimeMs: elapsed, LayerTimingsMs: timings, BlockedAtLayer: blockedAt,
		}
	}

	// L0: network gateway.
	var l0 pipeline.L0Result
	measure("L0", func() {
		l0 = d.Gateway.Validate(req.PeerAddr, req.ContentType, req.ContentLength, req.Message != "")
	})
	if !l0.Passed {
		if l0.Status == pipeline.StatusL0RateLimited {
			d.Monitor.IncRateLimitTrip()
			d.Audit.Log(entity.AuditEvent{
				Type: entity.AuditRateLimitTrip, RequestID: req.RequestID, IPHash: l0.IPHash, Stage: "L0",
			})
		}
		resp := fail("", l0.ErrorCode, l0.ErrorMessage, "L0")
		resp.RetryAfterSeconds = int64(l0.RetryAfter.Seconds())
		return resp
	}
	ipHash := l0.IPHash

	conv := d.ConvStore.GetOrCreate(req.ConversationID, ipHash)
	conversationID := conv.ID

	if d.ConvStore.AtTurnLimit(conversationID) {
		elapsed := time.Since(start).Milliseconds()
		d.Audit.RequestComplete(req.RequestID, conversationID, "", elapsed)
		d.Monitor.IncRequestSuccess()
		return entity.ResponseRecord{
			Success: true, Domain: entity.DomainMeta,
			Content:        "This conversation has reached its maximum length. Please start a new one to keep chatting.",
			RequestID:      req.RequestID,
			ConversationID: conversationID,
			ResponseTimeMs: elapsed,
			LayerTimingsMs: timings,
		}
	}

	// L1: deterministic sanitization.
	var l1 pipeline.L1Result
	measure("L1", func() { l1 = d.Sanitizer.Run(req.Message) })
	if !l1.Passed {
		if l1.Status == pipeline.StatusL1BlockedPattern {
			d.Monitor.IncInjectionBlocked()
			d.Audit.InjectionAttempt(req.RequestID, ipHash, "L1", l1.Reason, preview(req.Message))
		}
		d.ConvStore.MarkBlocked(conversationID, "L1")
		return fail(conversationID, l1.ErrorCode, l1.ErrorMessage, "L1")
	}
	sanitized := l1.SanitizedText

	snapshot, _ := d.ConvStore.Snapshot(conversationID)
	history := snapshot.RecentTurns(6)

	d.Audit.Log(entity.AuditEvent{
		Type: entity.AuditUserMessage, RequestID: req.RequestID, ConversationID: conversationID, IPHash: ipHash,
		Fields: map[string]interface{}{"length": len(sanitized)},
	})

	// L2/L3: jailbreak classification and intent parsing, fused or separate
	// depending on Mode.
	var intent entity.Intent
	if o.mode.UseFusedClassifier {
		var fused pipeline.L2L3Result
		measure("L2L3", func() { fused = d.Fused.Classify(ctx, sanitized, history) })
		if !fused.Passed {
			d.Monitor.IncInjectionBlocked()
			d.Audit.InjectionAttempt(req.RequestID, ipHash, "L2", string(fused.Reason), preview(sanitized))
			d.ConvStore.MarkBlocked(conversationID, "L2")
			return fail(conversationID, fused.ErrorCode, fused.ErrorMessage, "L2")
		}
		intent = fused.Intent
	} else {
		var l2 pipeline.L2Result
		measure("L2", func() { l2 = d.Jailbreak.Detect(ctx, sanitized, history) })
		if !l2.Passed {
			d.Monitor.IncInjectionBlocked()
			d.Audit.InjectionAttempt(req.RequestID, ipHash, "L2", string(l2.Reason), preview(sanitized))
			d.ConvStore.MarkBlocked(conversationID, "L2")
			return fail(conversationID, l2.ErrorCode, l2.ErrorMessage, "L2")
		}

		var l3 pipeline.L3Result
		measure("L3", func() { l3 = d.Intent.Parse(ctx, sanitized) })
		intent = l3.Intent
	}

	d.Audit.Log(entity.AuditEvent{
		Type: entity.AuditIntentParsed, RequestID: req.RequestID, ConversationID: conversationID,
		Fields: map[string]interface{}{"topic": intent.Topic, "confidence": intent.Confidence},
	})

	// L4: domain routing. Never blocks; out-of-scope is a routed outcome.
	var l4 pipeline.L4Result
	measure("L4", func() { l4 = d.Router.Route(intent, sanitized) })
	domain := l4.Domain
	if domain == entity.DomainOutOfScope {
		d.Monitor.IncOutOfScope()
	}
	d.Monitor.IncDomain(string(domain))
	d.Audit.Log(entity.AuditEvent{
		Type: entity.AuditDomainRouted, RequestID: req.RequestID, ConversationID: conversationID,
		Fields: map[string]interface{}{"domain": domain, "confidence": l4.Confidence},
	})

	// L5: context retrieval. Out-of-scope short-circuits internally.
	var l5 pipeline.L5Result
	measure("L5", func() { l5 = d.Context.Retrieve(ctx, domain, sanitized) })
	d.Audit.Log(entity.AuditEvent{
		Type: entity.AuditContextRetrieved, RequestID: req.RequestID, ConversationID: conversationID,
		Fields: map[string]interface{}{"status": l5.Context.Status, "sources": l5.Context.Loaded},
	})

	// L6: generation, with a bounded tool-call loop.
	toolExec := d.ToolExecutorFor(conversationID, ipHash)
	known := toolExec.Known()

	var l6 pipeline.L6Result
	measure("L6", func() {
		l6 = d.Generator.Generate(ctx, sanitized, domain, l5.Context.Blob, l5.Context.Loaded, history, nil, known)
	})

	if !l6.Passed {
		if !l6.Degraded {
			d.ConvStore.MarkBlocked(conversationID, "L6")
			return fail(conversationID, l6.ErrorCode, l6.ErrorMessage, "L6")
		}
		// Degraded: substitute the per-domain canned reply rather than
		// hard-failing the request (§4.7).
		l6.Response = pipeline.FallbackResponse(domain)
	} else if l6.Status == pipeline.StatusL6ToolCall {
		l6.Response = o.runToolLoop(ctx, d, toolExec, known, l6, sanitized, domain, l5, history, req.RequestID, conversationID)
	}

	response := l6.Response

	// L7: self-revision, skipped entirely in fast mode.
	if !o.mode.SkipRevision {
		var l7 pipeline.L7Result
		measure("L7", func() { l7 = d.Reviser.Revise(ctx, response, l5.Context.Blob, sanitized) })
		response = l7.Response
	}

	// L8: output safety, LLM-judged or fast pattern screen per Mode.
	var l8 pipeline.L8Result
	measure("L8", func() {
		if o.mode.UseFastSafety {
			l8 = d.SafetyFast.Check(response)
		} else {
			l8 = d.SafetyLLM.Check(ctx, response, l5.Context.Blob)
		}
	})
	d.Audit.Log(entity.AuditEvent{
		Type: entity.AuditSafetyCheck, RequestID: req.RequestID, ConversationID: conversationID,
		Fields: map[string]interface{}{"safe": l8.Passed, "issues": l8.Issues},
	})
	if !l8.Passed {
		d.Monitor.IncSafetyFailure()
		d.ConvStore.MarkBlocked(conversationID, "L8")
		return fail(conversationID, string(pkgerrors.CodeSafetyFailed), l8.ErrorMessage, "L8")
	}

	// L9: record history and return success.
	elapsed := time.Since(start).Milliseconds()
	now := time.Now()
	if err := d.ConvStore.AppendTurn(conversationID, sanitized, req.ReceivedAt, response, string(domain), now, elapsed); err != nil {
		d.Logger.Warn("failed to persist conversation turn", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	d.Monitor.IncRequestSuccess()
	d.Monitor.RecordRequestLatency(time.Since(start))
	d.Audit.Log(entity.AuditEvent{
		Type: entity.AuditBotResponse, RequestID: req.RequestID, ConversationID: conversationID,
		Fields: map[string]interface{}{"domain": domain},
	})
	d.Audit.RequestComplete(req.RequestID, conversationID, "", elapsed)

	return entity.ResponseRecord{
		Success: true, Content: response, Domain: domain,
		RequestID: req.RequestID, ConversationID: conversationID,
		ResponseTimeMs: elapsed, LayerTimingsMs: timings,
	}
}

// runToolLoop re-invokes the generator after executing the tool calls it
// requested, bounded by the configured iteration count, feeding each round's
// tool results into the next generator call (§4.7). Returns the final
// visible response text.
func (o *Orchestrator) runToolLoop(ctx context.Context, d *Deps, exec *tool.Executor, known map[string]bool, first pipeline.L6Result, message string, domain entity.Domain, l5 pipeline.L5Result, history []entity.ConvMessage, requestID, conversationID string) string {
	maxIterations := d.Config.Pipeline.ToolMaxIterations
	if maxIterations <= 0 {
		maxIterations = 3
	}

	response := first.Response
	calls := first.ToolCalls
	var results []entity.ToolResult

	for i := 0; i < maxIterations && len(calls) > 0; i++ {
		round := exec.ExecuteAll(ctx, calls)
		for _, r := range round {
			d.Monitor.IncToolCallTotal()
			if r.Success {
				d.Monitor.IncToolCallSuccess()
			} else {
				d.Monitor.IncToolCallFailed()
			}
			d.Audit.Log(entity.AuditEvent{
				Type: entity.AuditToolExecution, RequestID: requestID, ConversationID: conversationID,
				Fields: map[string]interface{}{"tool": r.Tool, "success": r.Success},
			})
		}
		results = append(results, round...)

		follow := d.Generator.Generate(ctx, message, domain, l5.Context.Blob, l5.Context.Loaded, history, results, known)
		if !follow.Passed {
			break
		}
		response = follow.Response
		calls = follow.ToolCalls
		if follow.Status != pipeline.StatusL6ToolCall {
			break
		}
	}

	return response
}
