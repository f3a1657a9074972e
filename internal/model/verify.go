package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrChecksumMismatch matches every file that failed VerifyLock.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// VerifyLock re-hashes every file recorded in dir's lock manifest and
// reports one line per file to w. It fails when the lock is missing, or
// when any file is absent or differs from its recorded sha256.
func VerifyLock(dir string, w io.Writer) error {
	if w == nil {
		w = io.Discard
	}

	lockPath := filepath.Join(dir, LockFileName)
	b, err := os.ReadFile(lockPath)
	if err != nil {
		return fmt.Errorf("read lock manifest: %w", err)
	}
	var lock lockManifest
	if err := json.Unmarshal(b, &lock); err != nil {
		return fmt.Errorf("decode lock manifest %s: %w", lockPath, err)
	}
	if len(lock.Files) == 0 {
		return fmt.Errorf("lock manifest %s lists no files", lockPath)
	}

	names := make([]string, 0, len(lock.Files))
	for name := range lock.Files {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		want := strings.ToLower(lock.Files[name].SHA256)
		got, err := fileSHA256(filepath.Join(dir, filepath.FromSlash(name)))
		switch {
		case err != nil:
			fmt.Fprintf(w, "missing %s\n", name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		case got != want:
			fmt.Fprintf(w, "mismatch %s (want %s got %s)\n", name, want, got)
			errs = append(errs, fmt.Errorf("%w for %s", ErrChecksumMismatch, name))
		default:
			fmt.Fprintf(w, "ok %s\n", name)
		}
	}

	return errors.Join(errs...)
}
