package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-nowledge-encoder/internal/doctor"
	"github.com/example/go-nowledge-encoder/internal/model"
)

func newModelVerifyCmd() *cobra.Command {
	var (
		dir       string
		skipSmoke bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check downloaded files against the lock manifest and run a smoke encode",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Paths.ModelDir
			}
			out := cmd.OutOrStdout()

			if err := model.VerifyLock(dir, out); err != nil {
				return fmt.Errorf("verify %s: %w", dir, err)
			}
			if skipSmoke {
				return nil
			}

			cfg.Paths.ModelDir = dir
			ids, err := newEncoder(cfg).Encode(doctor.SmokeText)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "smoke encode %q: %d ids %v\n", doctor.SmokeText, len(ids), ids)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Model directory holding the lock manifest (default --paths-model-dir)")
	cmd.Flags().BoolVar(&skipSmoke, "skip-smoke", false, "Only check checksums")

	return cmd
}
