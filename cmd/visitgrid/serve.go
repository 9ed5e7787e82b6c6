package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eringen/visitgrid"
	"github.com/eringen/visitgrid/internal/logging"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analytics server",
		Long: `Serve collects page views at /api/analytics/collect and serves the admin
dashboard under /admin/analytics/.

Configuration is read from --config (YAML) and VISITGRID_* environment
variables; VISITGRID_ADMIN_PASSWORD and VISITGRID_SESSION_SECRET are required.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := visitgrid.LoadConfig(path)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			logging.Init(cfg.Log)

			app := visitgrid.New(cfg)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- app.Start() }()

			select {
			case err := <-errc:
				_ = app.Close()
				return err
			case <-ctx.Done():
			}

			logging.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return app.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
