package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/infrastructure/config"
	"github.com/kellogg/sentrychat/pkg/safego"
)

// App bundles the wired Deps, the orchestrator variant selected by config,
// and the background maintenance loops (§5 "opportunistically cleaned every
// 60s") into one object cmd/gateway constructs and shuts down. It holds no
// HTTP server of its own — internal/interfaces/http.Server wraps an *App.
type App struct {
	Deps         *Deps
	Orchestrator *Orchestrator
	logger       *zap.Logger

	stop chan struct{}
}

// NewApp wires every stage and substrate from cfg and selects the
// orchestrator Mode from the pipeline toggles (§4.1).
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	deps, err := BuildDeps(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		Deps:         deps,
		Orchestrator: NewOrchestratorFromConfig(deps),
		logger:       logger,
		stop:         make(chan struct{}),
	}, nil
}

// Start launches the 60s maintenance loops for the rate limiter and
// conversation store (§5, §9). Each runs behind pkg/safego so a panic in one
// sweep cannot take down the process.
func (a *App) Start(ctx context.Context) error {
	safego.Go(a.logger, "ratelimit-cleanup", func() { a.cleanupLoop("ratelimit", a.Deps.RateLimiter.Cleanup) })
	safego.Go(a.logger, "convstore-cleanup", func() { a.cleanupLoop("convstore", a.Deps.ConvStore.CleanupExpired) })
	return nil
}

func (a *App) cleanupLoop(name string, fn func()) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-a.stop:
			a.logger.Debug("maintenance loop stopped", zap.String("loop", name))
			return
		}
	}
}

// Stop signals the maintenance loops to exit and releases the LLM client and
// audit log file. It never discards in-flight conversation state: the
// conversation and contact stores write through on every turn, so there is
// nothing left to flush here.
func (a *App) Stop(ctx context.Context) error {
	close(a.stop)
	if err := a.Deps.Audit.Close(); err != nil {
		a.logger.Warn("failed to close audit log", zap.Error(err))
	}
	return a.Deps.LLMClient.Close()
}

// PreWarmContextCache materializes and caches semantic chunks for every
// domain the context registry knows about, so the first real request after
// a cold start does not pay the embedding cost (§4.6 "pre-warm").
func (a *App) PreWarmContextCache(ctx context.Context) {
	if !a.Deps.Config.Context.UseSemantic {
		return
	}
	for _, domain := range []entity.Domain{
		entity.DomainProfessional, entity.DomainProjects, entity.DomainHobbies,
		entity.DomainPhilosophy, entity.DomainLinkedIn, entity.DomainMeta,
	} {
		a.Deps.Context.Retrieve(ctx, domain, "prewarm")
	}
}
