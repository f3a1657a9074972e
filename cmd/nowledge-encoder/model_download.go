package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-nowledge-encoder/internal/model"
)

// modelIDEnv overrides the repository fetched by model download.
const modelIDEnv = "NOWLEDGE_MODEL_ID"

func defaultDownloadRepo() string {
	if id := os.Getenv(modelIDEnv); id != "" {
		return id
	}
	return model.DefaultID
}

func newModelDownloadCmd() *cobra.Command {
	var (
		hfRepo   string
		outDir   string
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download tokenizer files from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if hfRepo == "" {
				hfRepo = defaultDownloadRepo()
			}
			if outDir == "" {
				outDir = cfg.Paths.ModelDir
			}
			if endpoint == "" {
				endpoint = cfg.HF.Endpoint
			}

			err = model.Download(cmd.Context(), model.DownloadOptions{
				Repo:     hfRepo,
				OutDir:   outDir,
				HFToken:  cfg.HF.Token,
				Endpoint: endpoint,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
			if err == nil {
				return nil
			}

			var denied *model.AccessDeniedError
			if errors.As(err, &denied) && cfg.HF.Token == "" {
				return fmt.Errorf("model download failed: %w (set HF_TOKEN for gated repositories)", err)
			}
			return fmt.Errorf("model download failed: %w", err)
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", "", "Hugging Face model repository (default $"+modelIDEnv+" or "+model.DefaultID+")")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory where model files are stored (default --paths-model-dir)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Hub endpoint (default --hf-endpoint)")

	return cmd
}
