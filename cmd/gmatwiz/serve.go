package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/obshttp"
)

func newServeCmd(a **app) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the observability HTTP surface (/health, /metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			app.metrics.MustRegister(prometheus.DefaultRegisterer)

			if !cmd.Flags().Changed("host") {
				host = app.cfg.Server.Host
			}
			if !cmd.Flags().Changed("port") {
				port = app.cfg.Server.Port
			}

			cfg := obshttp.Config{
				Host:         host,
				Port:         port,
				ReadTimeout:  app.cfg.Server.ReadTimeout,
				WriteTimeout: app.cfg.Server.WriteTimeout,
				IdleTimeout:  60 * time.Second,
			}
			srv := obshttp.NewServer(cfg, app.log, version)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "bind host")
	cmd.Flags().IntVar(&port, "port", 8080, "bind port")
	return cmd
}
