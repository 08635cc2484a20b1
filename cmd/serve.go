package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"debotbrowser/pkg/browser"
	"debotbrowser/pkg/bus"
	"debotbrowser/pkg/gateway"
	"debotbrowser/pkg/session"
)

var serveBotsPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve browser sessions over HTTP",
	Long:  "Runs the session gateway with health, readiness and metrics endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, appLogger, err := setup()
		if err != nil {
			fmt.Println(err)
			return
		}
		log := appLogger.With("component", "cmd.serve")

		factory, codec, err := newEngine(cfg.Engine, serveBotsPath)
		if err != nil {
			log.Error("Engine configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events := bus.New()
		defer events.Close()
		go browser.ObserveEvents(runCtx, events, appLogger)

		sessions, err := session.NewRegistry(session.Options{
			Factory: factory,
			Codec:   codec,
			Events:  events,
			Logger:  appLogger,
		})
		if err != nil {
			log.Error("Failed to initialize sessions", "error", err)
			return
		}

		svc, err := gateway.NewService(cfg, sessions, appLogger)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway starting", "engine", cfg.Engine.Kind, "endpoint", cfg.Network.Endpoint)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveBotsPath, "bots", "", "sim engine bot definitions (overrides engine.sim_bots)")
}
