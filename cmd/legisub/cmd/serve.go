package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jihoonkim/legisub/internal/registry"
	"github.com/jihoonkim/legisub/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the legisub engine",
	Long: `Start the legisub live-captioning engine.

This brings up the channel catalog, the live-status poller, the Auto-STT
supervisor, the subscriber hub, and the VOD batch worker, and serves them
over HTTP: a WebSocket feed per channel, a status change-feed, a
read-only introspection API, and the health/circuit-breaker endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := registry.New(cfgFile)
	if err != nil {
		return fmt.Errorf("constructing application: %w", err)
	}
	logger := app.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	autoSTT := app.Supervisor != nil && app.Config.AutoSTT.Enabled && app.Config.ASR.APIKey != ""
	if autoSTT {
		go app.Supervisor.Start(ctx)
	}
	sup := app.Supervisor
	if !autoSTT {
		sup = nil
	}
	if app.Refiner != nil {
		go app.Refiner.Run(ctx)
	}

	sched := scheduler.New(scheduler.Config{
		LiveStatusPollInterval: app.Config.LiveStatus.PollInterval,
		ReconcileInterval:      app.Config.AutoSTT.ReconcileInterval,
		VODTaskStateGCPeriod:   app.Config.VOD.TaskStateGCPeriod,
		VODTaskStateRetention:  app.Config.VOD.TaskStateRetention,
	}, app.Poller, sup, app.VOD, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	logger.Info("starting legisub server",
		slog.String("host", viper.GetString("server.host")),
		slog.Int("port", viper.GetInt("server.port")),
	)

	return app.Server.ListenAndServe(ctx)
}
