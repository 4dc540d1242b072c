// Package http implements the gin-based ingress surface described in §6:
// POST /chat, POST /contact, GET /health, GET /metrics, and the websocket
// streaming variant of /chat. This package owns transport concerns only —
// routing, CORS, proxy-aware address extraction, and the metrics
// allowlist gate — never pipeline policy, which lives in
// internal/application and internal/pipeline.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/application"
	"github.com/kellogg/sentrychat/internal/infrastructure/config"
	"github.com/kellogg/sentrychat/internal/interfaces/http/handlers"
)

// Server wraps the gin engine and the underlying net/http.Server (the
// reference gateway's own Server shape, generalized from one POST /messages
// route onto this pipeline's ingress contract).
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer wires every route against app, following the reference
// gateway's "one wiring function, inject into handlers" pattern.
func NewServer(cfg *config.Config, app *application.App, logger *zap.Logger) *Server {
	if cfg.Server.Mode == "production" || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	trusted := newTrustedProxySet(cfg.Server.TrustedProxies)
	addrFn := func(c *gin.Context) string { return clientAddr(c.Request, trusted) }

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))

	messageHandler := handlers.NewMessageHandler(app.Orchestrator, logger, cfg.Conversation.MaxConversationIDLength, addrFn)
	contactHandler := handlers.NewContactHandler(app.Deps.ContactStore, app.Deps.Sanitizer.Sanitizer(), logger, addrFn)
	healthHandler := handlers.NewHealthHandler(app.Deps.LLMClient, app.Deps.ContextRegistry, cfg.Context.RootDir)

	router.POST("/chat", messageHandler.PostChat)
	router.POST("/contact", contactHandler.PostContact)
	router.GET("/health", healthHandler.GetHealth)

	if cfg.Server.MetricsEnabled {
		router.GET("/metrics", metricsGate(trusted), gin.WrapH(app.Deps.Monitor.PrometheusHandler()))
	}

	registerStreamRoute(router, app, logger, addrFn)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware enforces §6's CORS contract: a configured allowlist of
// origins, credentials disabled, methods limited to GET/POST/OPTIONS,
// headers limited to Content-Type and X-Request-ID. An empty allowlist
// disables CORS entirely (no Access-Control-* headers are set), which is
// the safe default for a same-origin deployment.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// metricsGate restricts GET /metrics to localhost or a configured
// trusted-proxy address (§6 "locked to localhost or a configured trusted
// proxy allowlist and gated by a feature flag" — the feature flag itself is
// enforced by NewServer only mounting this route when enabled).
func metricsGate(trusted trustedProxySet) gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		if host == "127.0.0.1" || host == "::1" || trusted.contains(host) {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusForbidden)
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
