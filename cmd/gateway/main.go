package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kellogg/sentrychat/internal/application"
	"github.com/kellogg/sentrychat/internal/infrastructure/analytics"
	"github.com/kellogg/sentrychat/internal/infrastructure/config"
	"github.com/kellogg/sentrychat/internal/infrastructure/logger"
	sentrychathttp "github.com/kellogg/sentrychat/internal/interfaces/http"
)

const (
	appName    = "sentrychat-gateway"
	appVersion = "0.1.0"
)

func main() {
	root := &cobra.Command{
		Use:     "gateway",
		Short:   "sentrychat gateway: zero-trust inference pipeline front door",
		Version: appVersion,
	}

	root.AddCommand(newServeCmd(), newPrewarmCacheCmd(), newVersionCmd(), newAnalyticsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newServeCmd wires and runs the full application: HTTP server, background
// maintenance loops, and a graceful shutdown on SIGINT/SIGTERM.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			app, err := application.NewApp(cfg, log)
			if err != nil {
				return fmt.Errorf("initializing application: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("starting maintenance loops: %w", err)
			}

			server := sentrychathttp.NewServer(cfg, app, log)
			if err := server.Start(ctx); err != nil {
				return fmt.Errorf("starting HTTP server: %w", err)
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit
			log.Info("received shutdown signal", zap.String("signal", sig.String()))

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := server.Stop(shutdownCtx); err != nil {
				log.Error("error stopping HTTP server", zap.Error(err))
			}
			if err := app.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("stopping application: %w", err)
			}

			log.Info("gateway stopped cleanly")
			return nil
		},
	}
}

// newPrewarmCacheCmd materializes the semantic context cache ahead of time
// so the first production request doesn't pay the embedding cost (§4.6).
func newPrewarmCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prewarm-cache",
		Short: "pre-compute and cache semantic context embeddings for every domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			app, err := application.NewApp(cfg, log)
			if err != nil {
				return fmt.Errorf("initializing application: %w", err)
			}
			defer app.Stop(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			log.Info("pre-warming semantic context cache")
			app.PreWarmContextCache(ctx)
			log.Info("cache pre-warm complete")
			return nil
		},
	}
}

// newAnalyticsCmd prints a day's summary from the flat-file conversation and
// contact trees, the thin CLI consumer the read-only analytics package is
// built for (SPEC_FULL §C.7) — it never mutates anything.
func newAnalyticsCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "print a day's conversation/contact summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				return fmt.Errorf("--date is required (YYYY-MM-DD)")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			reader := analytics.New(cfg.Conversation.StorageDir, cfg.Pipeline.ContactStorageDir)
			summary, err := reader.Summary(date)
			if err != nil {
				return fmt.Errorf("summarizing %s: %w", date, err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date to summarize, YYYY-MM-DD")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	}
}

// bootstrap loads configuration and builds the logger the same way for every
// subcommand, so serve and prewarm-cache never drift in log shape.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	log.Info("starting sentrychat gateway",
		zap.String("name", appName),
		zap.String("version", appVersion),
	)
	return cfg, log, nil
}
