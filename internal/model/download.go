package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/schollz/progressbar/v3"
)

// DefaultEndpoint is the Hugging Face hub base URL.
const DefaultEndpoint = "https://huggingface.co"

// LockFileName is the manifest of verified checksums written next to the
// downloaded files.
const LockFileName = "download-manifest.lock.json"

type DownloadOptions struct {
	Repo     string
	OutDir   string
	HFToken  string
	Endpoint string
	Stdout   io.Writer
	Stderr   io.Writer
}

type AccessDeniedError struct {
	Repo string
	Msg  string
}

func (e *AccessDeniedError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("access denied for %s", e.Repo)
}

var (
	errNoChecksum  = errors.New("no sha256 in hub metadata")
	errNotOnRemote = errors.New("file not present in repository")
)

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// hfClient talks to a hub endpoint with retries on transient failures.
type hfClient struct {
	http     *retryablehttp.Client
	endpoint string
}

func newHFClient(endpoint string) *hfClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = slog.Default()
	rc.HTTPClient.Timeout = 0

	return &hfClient{http: rc, endpoint: strings.TrimRight(endpoint, "/")}
}

func (c *hfClient) resolveURL(repo string, file ModelFile) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", c.endpoint, repo, file.Revision, file.Filename)
}

func (c *hfClient) do(ctx context.Context, method, url, token string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	setAuth(req.Request, token)

	return c.http.Do(req)
}

// Download provisions the manifest files for opts.Repo into opts.OutDir.
// Files whose checksum already matches are skipped.
func Download(ctx context.Context, opts DownloadOptions) error {
	if opts.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if opts.OutDir == "" {
		return fmt.Errorf("out dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	manifest, err := ManifestFor(opts.Repo)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockFileName)
	lock := readLockManifest(lockPath)
	if lock.Files == nil {
		lock.Files = make(map[string]lockRecord)
	}
	lock.Repo = manifest.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	client := newHFClient(opts.Endpoint)

	for _, f := range manifest.Files {
		expected := strings.ToLower(f.SHA256)
		if expected == "" {
			if lr, ok := lock.Files[f.Filename]; ok && lr.Revision == f.Revision && isSHA256Hex(lr.SHA256) {
				expected = strings.ToLower(lr.SHA256)
			} else {
				expected, err = resolveChecksumFromMetadata(ctx, client, manifest.Repo, f, opts.HFToken)
				switch {
				case errors.Is(err, errNotOnRemote) && f.Optional:
					fmt.Fprintf(opts.Stdout, "skip %s (not in repository)\n", f.Filename)
					continue
				case errors.Is(err, errNoChecksum):
					// Recorded from the first download below.
					expected = ""
				case err != nil:
					return err
				}
			}
		}

		localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("create local subdir: %w", err)
		}

		if expected != "" {
			if ok, err := existingMatches(localPath, expected); err != nil {
				return err
			} else if ok {
				fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
				lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: expected}
				continue
			}
		}

		fmt.Fprintf(opts.Stdout, "download %s@%s -> %s\n", f.Filename, f.Revision, localPath)
		actual, err := downloadWithProgress(ctx, client, manifest.Repo, f, opts.HFToken, localPath, opts.Stdout)
		if err != nil {
			if errors.Is(err, errNotOnRemote) && f.Optional {
				fmt.Fprintf(opts.Stdout, "skip %s (not in repository)\n", f.Filename)
				continue
			}
			return err
		}
		if expected == "" {
			fmt.Fprintf(opts.Stderr, "warning: no published checksum for %s; recording sha256=%s\n", f.Filename, actual)
			expected = actual
		}
		if actual != expected {
			_ = os.Remove(localPath)
			return fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Filename, expected, actual)
		}
		fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)
		lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: expected}
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)
	return nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}
	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func downloadWithProgress(ctx context.Context, client *hfClient, repo string, file ModelFile, token, outPath string, stdout io.Writer) (string, error) {
	resp, err := client.do(ctx, http.MethodGet, client.resolveURL(repo, file), token)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, repo, file, 299); err != nil {
		return "", err
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetWriter(stdout),
		progressbar.OptionSetDescription("  "+file.Filename),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(700*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(stdout) }),
	)

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(fh, h, bar), resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download read failed: %w", err)
	}
	_ = bar.Finish()

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func resolveChecksumFromMetadata(ctx context.Context, client *hfClient, repo string, f ModelFile, token string) (string, error) {
	resp, err := client.do(ctx, http.MethodHead, client.resolveURL(repo, f), token)
	if err != nil {
		return "", fmt.Errorf("metadata request failed for %s: %w", f.Filename, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, repo, f, 399); err != nil {
		return "", err
	}

	for _, key := range []string{"X-Linked-Etag", "X-Repo-Commit", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", fmt.Errorf("%w for %s", errNoChecksum, f.Filename)
}

func checkStatus(resp *http.Response, repo string, f ModelFile, maxOK int) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AccessDeniedError{
			Repo: repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
		}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s@%s", errNotOnRemote, repo, f.Filename, f.Revision)
	case resp.StatusCode < 200 || resp.StatusCode > maxOK:
		return fmt.Errorf("request failed for %s: %s", f.Filename, resp.Status)
	}
	return nil
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	b, err := os.ReadFile(path)
	if err != nil {
		return lockManifest{}
	}
	var out lockManifest
	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}
	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
