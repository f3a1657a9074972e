package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-nowledge-encoder/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the encode, count_tokens and chunk tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			srv := mcp.NewServer(newEncoder(cfg), version,
				mcp.WithMaxTextBytes(cfg.Server.MaxTextBytes),
				mcp.WithLogger(slog.Default()),
			)
			return srv.Listen(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	return cmd
}
