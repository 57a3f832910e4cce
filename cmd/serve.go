package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator API, event webhook, and background scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		metrics := monitoring.NewMetrics()
		a := &api{eng: env.Engine, secret: cfg.Server.WebhookSecret, metrics: metrics.Handler()}
		if a.secret == "" {
			zap.L().Warn("server.webhook_secret not set, inbound events are not verified")
		}

		go runTicker(ctx, env.Engine, cfg.Schedule.TickInterval)

		sched, err := startRequalifyCron(ctx, env.Engine, cfg.Schedule.RequalifyCron)
		if err != nil {
			return err
		}
		if sched != nil {
			defer sched.Stop()
		}

		if cfg.Monitoring.Enabled {
			collector := monitoring.NewCollector(env.Store, env.Store, env.Store)
			checker := monitoring.NewChecker(collector, env.Alerter, metrics, cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(a, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// runTicker advances due executions every interval until ctx is done.
func runTicker(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log := zap.L().With(zap.String("component", "scheduler.tick"))
	log.Info("starting workflow ticker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("workflow ticker stopped")
			return
		case <-ticker.C:
			o := eng.Orchestrator()
			sum, err := o.Tick(ctx, o.Now())
			if err != nil {
				log.Error("tick failed", zap.Error(err))
				continue
			}
			if sum.Due > 0 {
				log.Info("tick complete",
					zap.Int("due", sum.Due),
					zap.Int("sent", sum.Sent),
					zap.Int("failures", sum.Failures),
				)
			}
		}
	}
}

// startRequalifyCron schedules batch requalification. An empty schedule
// disables it.
func startRequalifyCron(ctx context.Context, eng *engine.Engine, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	c := cron.New()
	err := c.AddFunc(schedule, func() {
		if _, err := eng.RequalifyStale(ctx, ""); err != nil {
			zap.L().Error("scheduled requalify failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, eris.Wrapf(err, "schedule requalify %q", schedule)
	}
	c.Start()
	zap.L().Info("requalify scheduled", zap.String("cron", schedule))
	return c, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
