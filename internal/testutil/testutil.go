// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestRealTokenizer(t *testing.T) {
//	    path := testutil.RequireModel(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-nowledge-encoder/internal/model"
)

// ModelDir returns the directory integration tests load models from: the
// NOWLEDGE_MODEL_PATH environment variable, or the nearest "models"
// directory walking up from the working directory.
func ModelDir(tb testing.TB) string {
	tb.Helper()

	if p := os.Getenv("NOWLEDGE_MODEL_PATH"); p != "" {
		return p
	}

	dir, err := filepath.Abs(".")
	if err != nil {
		tb.Fatalf("abs path: %v", err)
	}

	for {
		candidate := filepath.Join(dir, "models")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}

// RequireModel skips the test unless the tokenizer file of the default model
// can be resolved from ModelDir, and returns its path.
func RequireModel(tb testing.TB) string {
	tb.Helper()

	dir := ModelDir(tb)
	if dir == "" {
		tb.Skip("no models directory found; run `nowledge-encoder model download` or set NOWLEDGE_MODEL_PATH")
	}

	ref, err := model.ParseRef(model.DefaultID)
	if err != nil {
		tb.Fatalf("parse default model id: %v", err)
	}

	path, err := model.Resolve(ref, dir)
	if err != nil {
		tb.Skipf("tokenizer for %s not available: %v", model.DefaultID, err)
	}

	return path
}
