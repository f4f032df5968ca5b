package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"sheetsync/internal/logging"
	"sheetsync/internal/metrics"
	"sheetsync/internal/service"
)

// shutdownGrace bounds how long watch waits for running jobs on exit.
const shutdownGrace = 30 * time.Second

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run schedule and file_watch jobs until interrupted",
		Long: `Arm every job with trigger "schedule" (cron expression) or "file_watch"
(runs when the source file changes) and keep running until SIGINT or
SIGTERM. Running jobs are allowed to finish on shutdown.

With --metrics-addr, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := metrics.New()
			a, err := openApp(ctx, rootOpts, nil, m)
			if err != nil {
				return err
			}
			defer a.Close()
			log := logging.FromContext(ctx)

			addr := metricsAddr
			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}
			if addr != "" {
				go func() {
					if err := m.Serve(ctx, addr); err != nil {
						log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
					}
				}()
			}

			armed, err := a.sync.RestartWatchers(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("some triggers could not be armed")
			}
			if armed == 0 {
				return commandError("no schedule or file_watch jobs to watch", err)
			}

			<-ctx.Done()
			log.Info().Msg("shutting down, waiting for running jobs")
			a.sync.Stop()
			waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			a.sync.WaitRunning(waitCtx)
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

var _ service.EventEmitter = (*metrics.Metrics)(nil)
