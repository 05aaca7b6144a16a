package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/reviewlab/syncward"
	"github.com/reviewlab/syncward/internal/adapters/fswatch"
	"github.com/reviewlab/syncward/internal/cliconfig"
	"github.com/reviewlab/syncward/pkg/log"
	"github.com/reviewlab/syncward/pkg/metrics"
)

const helpDescription = `
Keep a review session's edits durably synchronized with the review service.

Highlights:
  - Watches a workspace directory; each file is one tracked field of the session.
  - Coalesces bursts of edits into debounced, rate-limited batch saves.
  - Survives flaky connectivity: failed writes queue durably and replay on
    reconnect, with precondition checks against the review workflow state.
  - Edits are gated on the server-authoritative review status; locked
    sessions never generate network writes.

Configure via file ($HOME/.syncward/config.toml), SYNCWARD_* environment
variables, or flags. Flags win over environment, environment over file.
`

var exampleUsage = strings.TrimSpace(`
  syncward --service-url https://review.example.com --auth-key <api-key> \
      --session-id session-42 --workspace ./session-42
  syncward --config $HOME/.syncward/config.toml --metrics-addr :9145
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "syncward",
		Short:   "Sync a review session workspace with the review service",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first, then apply env and flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment variables (SYNCWARD_*) override the file but lose
			// to explicitly set flags.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			// Log configuration (masking the API key)
			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			logger.Info().Interface("config", logCfg).Msg("configuration")

			opts := []syncward.Option{
				syncward.WithLogger(log.NewZerologAdapterWithLogger(logger)),
			}

			if cfg.MetricsAddr != "" {
				reg := prometheus.NewRegistry()
				opts = append(opts, syncward.WithMetrics(metrics.New(reg)))

				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error().Err(err).Msg("metrics server")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			eng, err := syncward.New(cfg.EngineConfig(), opts...)
			if err != nil {
				return fmt.Errorf("create engine: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			if err := eng.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}

			watcher := fswatch.New(cfg.Workspace, eng,
				log.NewZerologAdapterWithLogger(logger), 0)
			if err := watcher.Start(ctx); err != nil {
				_ = eng.Stop()
				return fmt.Errorf("watch workspace: %w", err)
			}

			<-sigCh
			logger.Info().Msg("received signal, stopping...")

			watcher.Stop()
			if err := eng.Stop(); err != nil {
				return fmt.Errorf("stop engine: %w", err)
			}
			return nil
		},
	}

	// Flags
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.syncward/config.toml)")
	root.Flags().StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "base URL of the review service")
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")
	root.Flags().StringVar(&cfg.SessionID, "session-id", cfg.SessionID, "editing session identifier")
	root.Flags().StringVar(&cfg.Workspace, "workspace", cfg.Workspace, "directory of session content files to watch")
	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for the durable queue and draft snapshots")

	root.Flags().DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "quiet period before edits trigger a save")
	root.Flags().DurationVar(&cfg.MinSaveInterval, "min-save-interval", cfg.MinSaveInterval, "minimum spacing between two batch saves")
	root.Flags().DurationVar(&cfg.ReviewPollInterval, "review-poll", cfg.ReviewPollInterval, "review status refresh interval")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")

	root.Flags().IntVar(&cfg.MaxQueueSize, "max-queue-size", cfg.MaxQueueSize, "capacity of the durable write queue")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (disabled when empty)")

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("syncward")
		os.Exit(1)
	}
}
