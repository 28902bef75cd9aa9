package deploybotcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haloydev/deploybot/internal/api"
	"github.com/haloydev/deploybot/internal/constants"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/logging"
	"github.com/haloydev/deploybot/internal/notify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(configPath *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the deploybot API server",
		Long: `Start the API server that accepts chat commands.

Commands are posted to /v1/commands and run in the background. Results are
sent to the configured Slack webhook, and to the responseUrl of the request
when one is given. On SIGINT or SIGTERM the server stops accepting commands and
waits for running ones up to server.shutdown_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, file, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Server.APIToken == "" {
				return fmt.Errorf("%w: set server.api_token or %s", deploytypes.ErrMisconfigured, constants.EnvVarAPIToken)
			}

			level := logging.ParseLevel(cfg.Log.Level)
			if debug || os.Getenv(constants.EnvVarDebug) == "true" {
				level = logging.ParseLevel("debug")
			}
			logger := logging.NewLogger(level, cfg.Log.Format, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := api.Options{
				Listen:            cfg.Server.Listen,
				APIToken:          cfg.Server.APIToken,
				RequestsPerSecond: cfg.Server.RequestsPerSecond,
				Burst:             cfg.Server.Burst,
				Pipelines:         a.orchestrator,
				Reply: func(responseURL string) deploytypes.NotificationSink {
					return notify.NewSlackResponse(responseURL, a.replyClient)
				},
				ReplyHosts: cfg.Slack.ResponseHosts,
				Logger:     logger,
			}
			if a.metrics != nil {
				opts.Metrics = a.metrics.Handler()
			}
			server := api.NewServer(opts)

			logger.Info("deploybot started", "version", constants.Version, "config", file, "lock", cfg.Lock.Backend)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(server.ListenAndServe)
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down", "timeout", cfg.Server.GetShutdownTimeout())
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.GetShutdownTimeout())
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("deploybot stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Log at debug level")

	return cmd
}
