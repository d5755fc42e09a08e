package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-plantid/internal/log"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var staticDir string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			log.Init(cfg.LogLevel)
			logger := log.L()

			app, err := newApplication(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer app.shutdown()

			runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger.Info("plantid starting",
				"addr", cfg.Addr(),
				"model", cfg.Model,
				"handheld", cfg.Handheld,
				"preset", cfg.Camera.Preset,
			)
			return app.serve(runCtx, staticDir)
		},
	}

	cmd.Flags().StringVar(&staticDir, "static", "", "Directory of presentation assets served at /")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	return cmd
}
