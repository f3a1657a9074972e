package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	return &fakeBinder{fs: fs}
}

// clearEnv hides any encoder settings inherited from the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		"NOWLEDGE_MODEL_PATH",
		"NOWLEDGE_PATHS_MODEL_DIR",
		"NOWLEDGE_LOG_LEVEL",
		"NOWLEDGE_SERVER_LISTEN_ADDR",
		"NOWLEDGE_SERVER_CACHE_SIZE",
		"NOWLEDGE_HF_TOKEN",
		"HF_TOKEN",
	} {
		t.Setenv(name, "")
	}
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.ModelDir != "models" {
		t.Errorf("Paths.ModelDir = %q; want %q", cfg.Paths.ModelDir, "models")
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}

	if cfg.Server.MaxTextBytes != 1<<20 {
		t.Errorf("Server.MaxTextBytes = %d; want %d", cfg.Server.MaxTextBytes, 1<<20)
	}

	if cfg.Server.CacheSize != 1024 {
		t.Errorf("Server.CacheSize = %d; want 1024", cfg.Server.CacheSize)
	}

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Server.ShutdownTimeout = %s; want 30s", cfg.Server.ShutdownTimeout)
	}

	if cfg.Server.Warm {
		t.Error("Server.Warm = true; want false")
	}

	if cfg.HF.Endpoint != "https://huggingface.co" {
		t.Errorf("HF.Endpoint = %q; want %q", cfg.HF.Endpoint, "https://huggingface.co")
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v; want nil", err)
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	checks := []struct {
		flag string
		want string
	}{
		{"paths-model-dir", "models"},
		{"server-listen-addr", ":8080"},
		{"server-max-text-bytes", "1048576"},
		{"server-cache-size", "1024"},
		{"server-shutdown-timeout", "30s"},
		{"server-warm", "false"},
		{"hf-endpoint", "https://huggingface.co"},
		{"log-level", "info"},
	}
	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}

	if fs.Lookup("hf-token") != nil {
		t.Error("flag --hf-token must not be registered")
	}
}

func TestFlagKeysCoverRegisteredFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	fs.VisitAll(func(f *pflag.Flag) {
		if _, ok := flagKeys[f.Name]; !ok {
			t.Errorf("flag %q has no configuration key", f.Name)
		}
	})
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != defaults {
		t.Errorf("Load() = %+v; want %+v", cfg, defaults)
	}
}

func TestLoad_NilCmd(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(LoadOptions{
		Cmd:      nil,
		Defaults: DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.ModelDir != "models" {
		t.Errorf("Paths.ModelDir = %q; want %q", cfg.Paths.ModelDir, "models")
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	clearEnv(t)

	defaults := DefaultConfig()
	b := newFlagBinder(defaults)

	err := b.fs.Parse([]string{
		"--paths-model-dir=/srv/models",
		"--server-cache-size=8",
		"--server-shutdown-timeout=5s",
		"--server-warm",
		"--log-level=debug",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg, err := Load(LoadOptions{
		Cmd:      b,
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.ModelDir != "/srv/models" {
		t.Errorf("Paths.ModelDir = %q; want %q", cfg.Paths.ModelDir, "/srv/models")
	}

	if cfg.Server.CacheSize != 8 {
		t.Errorf("Server.CacheSize = %d; want 8", cfg.Server.CacheSize)
	}

	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %s; want 5s", cfg.Server.ShutdownTimeout)
	}

	if !cfg.Server.Warm {
		t.Error("Server.Warm = false; want true")
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}

	// Untouched flags keep their defaults.
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOWLEDGE_LOG_LEVEL", "warn")
	t.Setenv("NOWLEDGE_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("NOWLEDGE_SERVER_CACHE_SIZE", "0")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}

	if cfg.Server.CacheSize != 0 {
		t.Errorf("Server.CacheSize = %d; want 0", cfg.Server.CacheSize)
	}
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOWLEDGE_LOG_LEVEL", "warn")

	defaults := DefaultConfig()
	b := newFlagBinder(defaults)
	if err := b.fs.Parse([]string{"--log-level=error"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}
}

func TestLoad_ModelPathEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOWLEDGE_MODEL_PATH", "/env/models")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Paths.ModelDir != "/env/models" {
		t.Errorf("Paths.ModelDir = %q; want %q", cfg.Paths.ModelDir, "/env/models")
	}
}

func TestLoad_HFTokenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HF_TOKEN", "hf_secret")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HF.Token != "hf_secret" {
		t.Errorf("HF.Token = %q; want %q", cfg.HF.Token, "hf_secret")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "nowledge.yaml")

	content := `
log_level: error
paths:
  model_dir: /data/models
server:
  listen_addr: ":7777"
  cache_size: 16
  shutdown_timeout: 10s
hf:
  endpoint: https://hf.example.test
`

	err := os.WriteFile(cfgFile, []byte(content), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}

	if cfg.Paths.ModelDir != "/data/models" {
		t.Errorf("Paths.ModelDir = %q; want %q", cfg.Paths.ModelDir, "/data/models")
	}

	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":7777")
	}

	if cfg.Server.CacheSize != 16 {
		t.Errorf("Server.CacheSize = %d; want 16", cfg.Server.CacheSize)
	}

	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %s; want 10s", cfg.Server.ShutdownTimeout)
	}

	if cfg.HF.Endpoint != "https://hf.example.test" {
		t.Errorf("HF.Endpoint = %q; want %q", cfg.HF.Endpoint, "https://hf.example.test")
	}

	// Absent from the file, so the default survives.
	if cfg.Server.MaxTextBytes != 1<<20 {
		t.Errorf("Server.MaxTextBytes = %d; want %d", cfg.Server.MaxTextBytes, 1<<20)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")
	// Write invalid YAML
	err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/nowledge.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	clearEnv(t)

	defaults := DefaultConfig()
	b := newFlagBinder(defaults)
	if err := b.fs.Parse([]string{"--server-max-text-bytes=0"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	_, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
	if err == nil || !strings.Contains(err.Error(), "max_text_bytes") {
		t.Errorf("Load() error = %v; want max_text_bytes validation error", err)
	}
}

// --- Validate ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty model dir", func(c *Config) { c.Paths.ModelDir = "  " }, "model_dir"},
		{"negative cache", func(c *Config) { c.Server.CacheSize = -1 }, "cache_size"},
		{"zero shutdown", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"upper log level", func(c *Config) { c.LogLevel = "DEBUG" }, ""},
		{"cache disabled", func(c *Config) { c.Server.CacheSize = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v; want nil", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v; want error containing %q", err, tt.wantErr)
			}
		})
	}
}
