package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/ops"
	"github.com/fyrsmithlabs/patternd/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon with the ops server and background jobs",
	Long: `Start patternd: the ops HTTP server (health, metrics) plus the
background decay and anomaly sweep jobs. Shuts down gracefully on
SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting patternd",
		zap.String("version", version),
		zap.Int("port", a.cfg.Server.Port),
		zap.Bool("document_store", a.docstore != nil),
	)

	srv, err := ops.NewServer(a.storeProbe, a.docstoreProbe(), a.logger, ops.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if a.cfg.Scheduler.Enabled {
		sched, err = scheduler.New(a.engine, a.detector, a.registry, a.logger,
			scheduler.WithDecayInterval(a.cfg.Scheduler.DecayInterval),
			scheduler.WithSweepInterval(a.cfg.Scheduler.SweepInterval),
			scheduler.WithDecayThreshold(a.cfg.Quality.DecayThreshold),
		)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		a.logger.Error("ops server failed", zap.Error(err))
		if sched != nil {
			_ = sched.Stop()
		}
		return err
	}

	if sched != nil {
		_ = sched.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	a.logger.Info("shutdown complete")
	return nil
}
