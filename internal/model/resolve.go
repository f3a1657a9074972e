package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// ErrModelNotFound matches every *NotFoundError.
var ErrModelNotFound = errors.New("model not found")

// NotFoundError reports that no tokenizer file for ID exists under Dir.
type NotFoundError struct {
	ID       string
	Dir      string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tokenizer for %s not found under %s (searched %d locations); run `model download` first",
		e.ID, e.Dir, len(e.Searched))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrModelNotFound
}

// Resolve returns the path of the tokenizer file for ref under dir. It never
// touches the network. Candidates are checked in this order:
//
//	dir/<file>                                  (download --out-dir layout)
//	dir/<org>/<name>/<file>
//	dir/models--<org>--<name>/snapshots/<rev>/<file>  (huggingface_hub cache)
//	<file> below any directory named <name> or models--<org>--<name>
//
// where <file> is tokenizer.json, then tokenizer.model. Tokenizer files
// belonging to other models in a shared dir are never picked up.
func Resolve(ref Ref, dir string) (string, error) {
	if ref.Kind != KindHub {
		return "", fmt.Errorf("model %s is %s-backed and has no files to resolve", ref.ID, ref.Kind)
	}

	if dir == "" {
		dir = "."
	}

	var searched []string

	for _, base := range candidateDirs(ref, dir) {
		for _, name := range TokenizerFiles {
			p := filepath.Join(base, name)
			searched = append(searched, p)

			if isFile(p) {
				return p, nil
			}
		}
	}

	if p, ok := walkForTokenizer(ref, dir); ok {
		return p, nil
	}

	return "", &NotFoundError{ID: ref.ID, Dir: dir, Searched: searched}
}

func candidateDirs(ref Ref, dir string) []string {
	dirs := []string{
		dir,
		filepath.Join(dir, ref.Org, ref.Name),
	}

	hub := filepath.Join(dir, ref.HubCacheDir())
	if rev := readHubRef(hub, "main"); rev != "" {
		dirs = append(dirs, filepath.Join(hub, "snapshots", rev))
	}

	snapshots, _ := filepath.Glob(filepath.Join(hub, "snapshots", "*"))
	sort.Strings(snapshots)

	return append(dirs, snapshots...)
}

func readHubRef(hubDir, name string) string {
	b, err := os.ReadFile(filepath.Join(hubDir, "refs", name))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(b))
}

// walkForTokenizer finds the first tokenizer file for ref below dir in
// lexical order, preferring tokenizer.json over tokenizer.model.
func walkForTokenizer(ref Ref, dir string) (string, bool) {
	found := make(map[string]string, len(TokenizerFiles))

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}

			return nil
		}

		if !slices.Contains(TokenizerFiles, d.Name()) || !underModelDir(ref, dir, path) {
			return nil
		}

		if _, seen := found[d.Name()]; !seen && isFile(path) {
			found[d.Name()] = path
		}

		return nil
	})

	for _, name := range TokenizerFiles {
		if p, ok := found[name]; ok {
			return p, true
		}
	}

	return "", false
}

// underModelDir reports whether path sits below a directory named after ref.
func underModelDir(ref Ref, root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return false
	}

	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.EqualFold(part, ref.Name) || part == ref.HubCacheDir() {
			return true
		}
	}

	return false
}

// isFile follows symlinks; huggingface_hub snapshots are links into blobs/.
func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
