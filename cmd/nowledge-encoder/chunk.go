package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-nowledge-encoder/internal/chunk"
)

func newChunkCmd() *cobra.Command {
	var (
		maxTokens int
		overlap   int
		format    string
	)

	cmd := &cobra.Command{
		Use:   "chunk [file]",
		Short: "Split markdown into token-budgeted chunks",
		Long: `Split markdown into chunks of at most --max-tokens tokens, cutting at blank
lines and never inside a fenced code block. Each chunk repeats about
--overlap tokens of whole paragraphs from the end of the previous one.

The markdown is read from file, or from stdin when file is omitted or "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if format != "json" && format != "text" {
				return fmt.Errorf("--format must be 'json' or 'text'")
			}

			opts := chunk.Options{MaxTokens: maxTokens, Overlap: overlap}
			if err := opts.Validate(); err != nil {
				return err
			}

			content, err := readDocument(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			enc := newEncoder(cfg)
			chunks, err := chunk.Split(enc, content, opts)
			if err != nil {
				return err
			}

			return writeChunks(cmd.OutOrStdout(), format, enc.ModelID(), chunks)
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max-tokens", chunk.DefaultMaxTokens, "Token budget per chunk")
	cmd.Flags().IntVar(&overlap, "overlap", chunk.DefaultOverlap, "Tokens repeated from the previous chunk")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json|text")

	return cmd
}

func readDocument(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(b), nil
}

func writeChunks(w io.Writer, format, modelID string, chunks []chunk.Chunk) error {
	if chunks == nil {
		chunks = []chunk.Chunk{}
	}

	if format == "text" {
		for _, c := range chunks {
			if _, err := fmt.Fprintf(w, "--- chunk %d (%d tokens) ---\n%s\n", c.Index, c.Tokens, c.Text); err != nil {
				return err
			}
		}
		return nil
	}

	return json.NewEncoder(w).Encode(struct {
		Model  string        `json:"model"`
		Chunks []chunk.Chunk `json:"chunks"`
	}{Model: modelID, Chunks: chunks})
}
