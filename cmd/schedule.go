package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/api"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run fetch-and-store and keep-alive on their intervals until interrupted",
		Long: `Registers the fetch-and-store and keep-alive jobs on independent fixed
intervals and serves /healthz, /readyz and /metrics on server.addr.
SIGINT or SIGTERM stops scheduling, waits for running jobs, and exits 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := a.Logger()

			sched, err := a.Scheduler()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sched.Start(ctx); err != nil {
				return err
			}
			cfg := a.Config()
			logger.Info("scheduler started",
				zap.Duration("poll_interval", cfg.Schedule.PollInterval),
				zap.Duration("keepalive_interval", cfg.Schedule.KeepAliveInterval),
				zap.Strings("cities", cfg.Cities),
			)

			srvDone := make(chan struct{})
			if cfg.Server.Addr != "" {
				srv := api.NewServer(a.Store(), func() string { return sched.State().String() }, logger.Named("api"))
				go func() {
					defer close(srvDone)
					if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
						logger.Error("ops server stopped", zap.Error(err))
					}
				}()
			} else {
				close(srvDone)
			}

			<-ctx.Done()
			logger.Info("shutdown initiated")
			sched.Stop()
			<-srvDone
			logger.Info("shutdown complete")
			return nil
		},
	}
}
