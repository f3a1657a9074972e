package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Encode text into token ids",
		Long: `Encode text into token ids, including the model's boundary tokens.

Arguments are joined with single spaces. With no arguments, or a single "-",
the text is read from stdin and one trailing newline is dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if format != "json" && format != "ids" && format != "count" {
				return fmt.Errorf("--format must be 'json', 'ids' or 'count'")
			}

			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			ids, err := newEncoder(cfg).Encode(text)
			if err != nil {
				return err
			}

			return writeIDs(cmd.OutOrStdout(), format, ids)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format: json|ids|count")

	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := string(b)
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	return text, nil
}

func writeIDs(w io.Writer, format string, ids []uint32) error {
	switch format {
	case "count":
		_, err := fmt.Fprintln(w, len(ids))
		return err
	case "ids":
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatUint(uint64(id), 10)
		}
		_, err := fmt.Fprintln(w, strings.Join(parts, " "))
		return err
	default:
		if ids == nil {
			ids = []uint32{}
		}
		return json.NewEncoder(w).Encode(struct {
			IDs   []uint32 `json:"ids"`
			Count int      `json:"count"`
		}{IDs: ids, Count: len(ids)})
	}
}
