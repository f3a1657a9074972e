// Package config loads encoder settings from flags, environment variables and
// an optional nowledge.{yaml,toml,json} file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "NOWLEDGE"

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Server   ServerConfig `mapstructure:"server"`
	HF       HFConfig     `mapstructure:"hf"`
	LogLevel string       `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelDir string `mapstructure:"model_dir"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	MaxTextBytes    int           `mapstructure:"max_text_bytes"`
	CacheSize       int           `mapstructure:"cache_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Warm            bool          `mapstructure:"warm"`
}

type HFConfig struct {
	Token    string `mapstructure:"token"`
	Endpoint string `mapstructure:"endpoint"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// flagKeys maps each registered flag to its configuration key.
var flagKeys = map[string]string{
	"paths-model-dir":         "paths.model_dir",
	"server-listen-addr":      "server.listen_addr",
	"server-max-text-bytes":   "server.max_text_bytes",
	"server-cache-size":       "server.cache_size",
	"server-shutdown-timeout": "server.shutdown_timeout",
	"server-warm":             "server.warm",
	"hf-endpoint":             "hf.endpoint",
	"log-level":               "log_level",
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelDir: "models",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxTextBytes:    1 << 20,
			CacheSize:       1024,
			ShutdownTimeout: 30 * time.Second,
			Warm:            false,
		},
		HF: HFConfig{
			Endpoint: "https://huggingface.co",
		},
		LogLevel: "info",
	}
}

// RegisterFlags adds the configuration flags to fs. The HF token has no flag
// so it never shows up in shell history; set HF_TOKEN or hf.token instead.
func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Directory searched for the tokenizer files")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum accepted request body size in bytes")
	fs.Int("server-cache-size", defaults.Server.CacheSize, "Number of recent encodings kept in memory (0 disables)")
	fs.Duration("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout")
	fs.Bool("server-warm", defaults.Server.Warm, "Load the tokenizer before accepting requests")
	fs.String("hf-endpoint", defaults.HF.Endpoint, "Hugging Face hub endpoint used by model download")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("hf.token", envPrefix+"_HF_TOKEN", "HF_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("bind hf token env vars: %w", err)
	}
	if err := v.BindEnv("paths.model_dir", envPrefix+"_PATHS_MODEL_DIR", envPrefix+"_MODEL_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind model dir env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("nowledge")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the server and encoder cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Paths.ModelDir) == "" {
		return errors.New("paths.model_dir must not be empty")
	}
	if c.Server.MaxTextBytes <= 0 {
		return fmt.Errorf("server.max_text_bytes must be positive, got %d", c.Server.MaxTextBytes)
	}
	if c.Server.CacheSize < 0 {
		return fmt.Errorf("server.cache_size must not be negative, got %d", c.Server.CacheSize)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q (expected debug|info|warn|error)", c.LogLevel)
	}

	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.cache_size", c.Server.CacheSize)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.warm", c.Server.Warm)
	v.SetDefault("hf.token", c.HF.Token)
	v.SetDefault("hf.endpoint", c.HF.Endpoint)
	v.SetDefault("log_level", c.LogLevel)
}
