package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/example/go-nowledge-encoder/internal/encoder"
	"github.com/example/go-nowledge-encoder/internal/metrics"
	"github.com/example/go-nowledge-encoder/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			enc := newEncoder(cfg, encoder.WithLoadObserver(m.ObserveLoad))

			srv := server.New(cfg, enc,
				server.WithLogger(slog.Default()),
				server.WithMetrics(m, reg),
			)
			return srv.Start(cmd.Context())
		},
	}

	return cmd
}
