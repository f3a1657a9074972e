package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-nowledge-encoder/internal/doctor"
	"github.com/example/go-nowledge-encoder/internal/model"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local model and tokenizer checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			enc := newEncoder(cfg)
			ref, err := model.ParseRef(enc.ModelID())
			if err != nil {
				return err
			}

			result := doctor.Run(doctor.Config{
				ModelID:          ref.ID,
				ModelDir:         cfg.Paths.ModelDir,
				SkipModelFiles:   ref.Kind == model.KindTikToken,
				ResolveTokenizer: func() (string, error) { return model.Resolve(ref, cfg.Paths.ModelDir) },
				Load:             enc.Warm,
				Encode:           enc.Encode,
			}, out)

			// Checksums are only checked when a lock manifest exists.
			if ref.Kind == model.KindHub {
				_, statErr := os.Stat(filepath.Join(cfg.Paths.ModelDir, model.LockFileName))
				switch {
				case errors.Is(statErr, fs.ErrNotExist):
					_, _ = fmt.Fprintf(out, "%s lock manifest: skipped (not present)\n", doctor.PassMark)
				case statErr != nil:
					result.AddFailure(fmt.Sprintf("lock manifest: %v", statErr))
					_, _ = fmt.Fprintf(out, "%s lock manifest: %v\n", doctor.FailMark, statErr)
				default:
					if err := model.VerifyLock(cfg.Paths.ModelDir, nil); err != nil {
						result.AddFailure(fmt.Sprintf("lock manifest: %v", err))
						_, _ = fmt.Fprintf(out, "%s lock manifest: %v\n", doctor.FailMark, err)
					} else {
						_, _ = fmt.Fprintf(out, "%s lock manifest: checksums match\n", doctor.PassMark)
					}
				}
			}

			if result.Failed() {
				return fmt.Errorf("doctor found %d problem(s)", len(result.Failures()))
			}
			return nil
		},
	}

	return cmd
}
