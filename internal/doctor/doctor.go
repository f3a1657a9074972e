// Package doctor provides environment preflight checks for the encoder.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// SmokeText is encoded by the final check.
const SmokeText = "hello world"

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ModelID is printed in the header line.
	ModelID string
	// ModelDir is the directory searched for tokenizer files.
	ModelDir string
	// SkipModelFiles skips the directory and file checks for models that
	// need no files on disk.
	SkipModelFiles bool
	// ResolveTokenizer returns the tokenizer file the encoder would load.
	ResolveTokenizer func() (string, error)
	// Load constructs the tokenizer.
	Load func() error
	// Encode runs one encode with the loaded tokenizer.
	Encode func(text string) ([]uint32, error)
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	fmt.Fprintf(w, "model %s (%s %s/%s)\n", cfg.ModelID, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	// ---- model files ------------------------------------------------------
	if cfg.SkipModelFiles {
		fmt.Fprintf(w, "%s model files: skipped (none required)\n", PassMark)
	} else {
		if err := checkDir(cfg.ModelDir); err != nil {
			res.fail(fmt.Sprintf("model dir %q: %v", cfg.ModelDir, err))
			fmt.Fprintf(w, "%s model dir %s: %v\n", FailMark, cfg.ModelDir, err)
		} else {
			fmt.Fprintf(w, "%s model dir: %s\n", PassMark, cfg.ModelDir)
		}

		if cfg.ResolveTokenizer != nil {
			path, err := cfg.ResolveTokenizer()
			if err != nil {
				res.fail(fmt.Sprintf("tokenizer file: %v", err))
				fmt.Fprintf(w, "%s tokenizer file: %v\n", FailMark, err)
			} else {
				fmt.Fprintf(w, "%s tokenizer file: %s\n", PassMark, path)
			}
		}
	}

	// ---- tokenizer load ---------------------------------------------------
	loaded := true
	if cfg.Load != nil {
		start := time.Now()
		if err := cfg.Load(); err != nil {
			loaded = false
			res.fail(fmt.Sprintf("tokenizer load: %v", err))
			fmt.Fprintf(w, "%s tokenizer load: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s tokenizer load: %s\n", PassMark, time.Since(start).Round(time.Millisecond))
		}
	}

	// ---- smoke encode -----------------------------------------------------
	if cfg.Encode != nil {
		if !loaded {
			fmt.Fprintf(w, "%s smoke encode: skipped (tokenizer not loaded)\n", FailMark)
			return res
		}
		ids, err := cfg.Encode(SmokeText)
		if err == nil && len(ids) == 0 {
			err = errors.New("no token ids returned")
		}
		if err != nil {
			res.fail(fmt.Sprintf("smoke encode: %v", err))
			fmt.Fprintf(w, "%s smoke encode %q: %v\n", FailMark, SmokeText, err)
		} else {
			fmt.Fprintf(w, "%s smoke encode %q: %d ids %v\n", PassMark, SmokeText, len(ids), ids)
		}
	}

	return res
}

func checkDir(dir string) error {
	if dir == "" {
		return errors.New("not configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	return nil
}
