// Package application wires the L0..L9 pipeline stages (internal/pipeline)
// and their infrastructure substrates (internal/infrastructure/*) into the
// two orchestrator variants described in §4.1: a full nine-stage pipeline
// and a latency-optimized variant that fuses L2+L3, skips L7, and replaces
// L8's LLM judge with the deterministic pattern screen. Grounded on the
// reference gateway's internal/application wiring, generalized from a
// single REPL use case onto this pipeline's stage graph.
package application

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/infrastructure/audit"
	"github.com/kellogg/sentrychat/internal/infrastructure/config"
	"github.com/kellogg/sentrychat/internal/infrastructure/contact"
	"github.com/kellogg/sentrychat/internal/infrastructure/contextstore"
	"github.com/kellogg/sentrychat/internal/infrastructure/convstore"
	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
	"github.com/kellogg/sentrychat/internal/infrastructure/monitoring"
	"github.com/kellogg/sentrychat/internal/infrastructure/ratelimit"
	"github.com/kellogg/sentrychat/internal/infrastructure/sanitize"
	"github.com/kellogg/sentrychat/internal/infrastructure/tool"
	"github.com/kellogg/sentrychat/internal/pipeline"
)

// Deps bundles every stage implementation and shared substrate the
// orchestrator variants are built from. It is assembled once at startup and
// shared by every in-flight request; nothing in it is mutated per-request
// (§5, §9 "encapsulate each behind a single-mutex façade... construct at
// startup").
type Deps struct {
	Config *config.Config
	Logger *zap.Logger

	LLMClient llm.Client

	RateLimiter *ratelimit.Limiter
	ConvStore   *convstore.Store
	ContactStore *contact.Store
	Audit       *audit.Logger
	Monitor     *monitoring.Monitor
	ToolExec    *tool.Executor

	ContextRegistry *contextstore.Registry

	Gateway        *pipeline.Gateway
	Sanitizer      *pipeline.SanitizeStage
	Jailbreak      *pipeline.JailbreakClassifier
	Intent         *pipeline.IntentParser
	Fused          *pipeline.FusedClassifier
	Router         *pipeline.Router
	Context        *pipeline.ContextStage
	Generator      *pipeline.Generator
	Reviser        *pipeline.Reviser
	SafetyLLM      *pipeline.SafetyChecker
	SafetyFast     *pipeline.FastSafetyChecker
}

// BuildDeps wires every stage and substrate from cfg, following the
// reference gateway's own "construct everything in one wiring function,
// inject into the use case" shape.
func BuildDeps(cfg *config.Config, logger *zap.Logger) (*Deps, error) {
	llmClient := llm.NewHTTPClient(llm.Config{
		BaseURL:           cfg.Models.OllamaURL,
		MaxRetries:        cfg.Models.MaxRetries,
		RetryBaseWait:     cfg.Models.RetryBaseWait,
		ClassifierTimeout: cfg.Models.ClassifierTimeout,
		GeneratorTimeout:  cfg.Models.GeneratorTimeout,
	})

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		PerIPPerMinute:  cfg.RateLimit.PerIPPerMinute,
		PerIPPerHour:    cfg.RateLimit.PerIPPerHour,
		GlobalPerMinute: cfg.RateLimit.GlobalPerMinute,
	})

	convStore := convstore.New(cfg.Conversation.StorageDir, cfg.Conversation.MaxTurns, cfg.Conversation.IdleTTL)
	contactStore := contact.New(cfg.Pipeline.ContactStorageDir)

	auditLogger, err := audit.New(logger, cfg.Log.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("application: building audit logger: %w", err)
	}

	monitor := monitoring.NewMonitor(logger)

	registry, err := contextstore.NewRegistry("")
	if err != nil {
		return nil, fmt.Errorf("application: building context registry: %w", err)
	}
	basicRetriever := contextstore.NewBasicRetriever(registry, cfg.Context.RootDir, cfg.Context.MaxBlobLength)
	semanticRetriever := contextstore.NewSemanticRetriever(registry, cfg.Context.RootDir, llmClient, contextstore.SemanticConfig{
		CacheDir:          cfg.Context.CacheDir,
		CacheVersion:      cfg.Context.CacheVersion,
		ChunkTargetChars:  cfg.Context.ChunkTargetChars,
		ChunkOverlapChars: cfg.Context.ChunkOverlapChars,
		OverviewChunks:    cfg.Context.OverviewChunks,
		TopK:              cfg.Context.TopK,
		SimilarityFloor:   cfg.Context.SimilarityFloor,
		EmbeddingModel:    cfg.Models.EmbeddingModel,
	}, basicRetriever)

	toolExec := tool.NewExecutor(10 * time.Second)
	toolDefs := []tool.Definition{tool.SaveMessageTool}

	gateway := pipeline.NewGateway(limiter, cfg.Security.MaxRequestBytes)
	sanitizer := pipeline.NewSanitizeStage(sanitize.New(cfg.Security.MaxInputLength))

	return &Deps{
		Config:       cfg,
		Logger:       logger,
		LLMClient:    llmClient,
		RateLimiter:  limiter,
		ConvStore:    convStore,
		ContactStore: contactStore,
		Audit:        auditLogger,
		Monitor:      monitor,
		ToolExec:     toolExec,

		ContextRegistry: registry,

		Gateway:   gateway,
		Sanitizer: sanitizer,
		Jailbreak: pipeline.NewJailbreakClassifier(llmClient, cfg.Models.ClassifierModel),
		Intent:    pipeline.NewIntentParser(llmClient, cfg.Models.RouterModel),
		Fused:     pipeline.NewFusedClassifier(llmClient, cfg.Models.ClassifierModel),
		Router:    pipeline.NewRouter(cfg.Context.ProjectNames),
		Context:   pipeline.NewContextStage(basicRetriever, semanticRetriever, cfg.Context.UseSemantic),
		Generator: pipeline.NewGenerator(llmClient, cfg.Models.GeneratorModel, toolDefs),
		Reviser: pipeline.NewReviser(llmClient, cfg.Models.GeneratorModel,
			cfg.Pipeline.RevisionMinDraftChars, cfg.Pipeline.RevisionMinAcceptChars),
		SafetyLLM: pipeline.NewSafetyChecker(llmClient, cfg.Models.VerifierModel, cfg.Models.EmbeddingModel,
			cfg.Context.UseSemantic, cfg.Pipeline.GroundingSimilarityFloor, cfg.Pipeline.GroundingMinFailingSentences),
		SafetyFast: pipeline.NewFastSafetyChecker(cfg.Security.SafeEmailAllowlist),
	}, nil
}

// ToolExecutorFor wires the save-message tool against the contact store for
// a specific request's conversation id and hashed address. Built once per
// request rather than once at startup, since the handler closes over the
// conversation/ip pair it writes.
func (d *Deps) ToolExecutorFor(conversationID, ipHash string) *tool.Executor {
	exec := tool.NewExecutor(10 * time.Second)
	exec.Register(tool.SaveMessageTool.Name, tool.SaveMessageHandler(d.ContactStore, conversationID, ipHash))
	return exec
}
