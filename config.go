package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/cache"
	"github.com/dgnsrekt/speakcache/internal/tts"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

const (
	defaultModel         = "sonic-2"
	defaultSampleRate    = 44100
	defaultLanguage      = "ja"
	defaultProvider      = "claude"
	defaultProviderModel = "claude-sonnet-4-20250514"
	defaultMaxSizeMB     = 500
	defaultMaxEntries    = 10000
	defaultCompression   = 3
)

// Config is the resolved configuration of a synthesis run.
type Config struct {
	Synthesis tts.SynthesisConfig
	Engine    string

	Annotate       bool
	Provider       string
	ProviderModel  string
	ProviderAPIKey string

	DBPath      string
	CacheDir    string
	MaxBytes    int64
	MaxEntries  int64
	Compression int
	AutoEvict   bool
	Replay      bool
}

// envConfig holds the credentials read from the environment.
type envConfig struct {
	CartesiaAPIKey  string `env:"CARTESIA_API_KEY"`
	CartesiaVoiceID string `env:"CARTESIA_VOICE_ID"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

// loadEnv reads .env from the working directory, without overriding
// variables already set, then parses the credential variables.
func loadEnv() (envConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not parse .env file", "err", err)
	}
	return env.ParseAs[envConfig]()
}

// cliOverrides carries flags whose precedence is not expressed through
// viper bindings.
type cliOverrides struct {
	VoiceID    string
	VoiceIDSet bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", defaultModel)
	v.SetDefault("sampleRate", defaultSampleRate)
	v.SetDefault("language", defaultLanguage)
	v.SetDefault("engine", "cartesia")
	v.SetDefault("annotation.enabled", true)
	v.SetDefault("annotation.provider", defaultProvider)
	v.SetDefault("annotation.model", defaultProviderModel)
	v.SetDefault("cache.maxSizeMB", defaultMaxSizeMB)
	v.SetDefault("cache.maxEntries", defaultMaxEntries)
	v.SetDefault("cache.compression", defaultCompression)
	v.SetDefault("cache.autoEvict", true)
	v.SetDefault("cache.replay", true)
}

// resolveConfig merges viper (flags, config file, defaults), the
// environment and the CLI overrides.
//
// apiKey: env > config. voiceId: flag > env > config. Everything else:
// flag > config > default.
func resolveConfig(v *viper.Viper, e envConfig, cli cliOverrides) (*Config, error) {
	cfg := &Config{
		Synthesis: tts.SynthesisConfig{
			APIKey:     firstNonEmpty(e.CartesiaAPIKey, v.GetString("apiKey")),
			Model:      v.GetString("model"),
			SampleRate: v.GetInt("sampleRate"),
			Language:   v.GetString("language"),
		},
		Engine:         v.GetString("engine"),
		Annotate:       v.GetBool("annotation.enabled"),
		Provider:       v.GetString("annotation.provider"),
		ProviderModel:  v.GetString("annotation.model"),
		ProviderAPIKey: firstNonEmpty(v.GetString("annotation.apiKey"), e.AnthropicAPIKey),
		MaxBytes:       v.GetInt64("cache.maxSizeMB") * 1024 * 1024,
		MaxEntries:     v.GetInt64("cache.maxEntries"),
		Compression:    v.GetInt("cache.compression"),
		AutoEvict:      v.GetBool("cache.autoEvict"),
		Replay:         v.GetBool("cache.replay"),
	}

	if cli.VoiceIDSet {
		cfg.Synthesis.VoiceID = cli.VoiceID
	} else {
		cfg.Synthesis.VoiceID = firstNonEmpty(e.CartesiaVoiceID, v.GetString("voiceId"))
	}

	var err error
	if cfg.DBPath, err = pathOrDefault(v.GetString("cache.db"), defaultDBPath); err != nil {
		return nil, err
	}
	if cfg.CacheDir, err = pathOrDefault(v.GetString("cache.dir"), defaultCacheDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that do not depend on the engine.
func (c *Config) Validate() error {
	if !slices.Contains(tts.ValidSampleRates, c.Synthesis.SampleRate) {
		return tts.NewTTSError(tts.ErrorCodeInvalidFormat,
			fmt.Sprintf("sample rate must be one of %v, got %d", tts.ValidSampleRates, c.Synthesis.SampleRate), nil)
	}
	if c.MaxBytes < 0 || c.MaxEntries < 0 {
		return tts.NewTTSError(tts.ErrorCodeInvalidFormat, "cache limits must not be negative", cache.ErrInvalidLimits)
	}
	if c.Compression < 0 || c.Compression > 22 {
		return tts.NewTTSError(tts.ErrorCodeInvalidFormat,
			fmt.Sprintf("cache compression must be between 0 and 22, got %d", c.Compression), nil)
	}
	return nil
}

// CacheConfig returns the cache configuration for c.
func (c *Config) CacheConfig() *cache.CacheConfig {
	cc := cache.DefaultCacheConfig()
	cc.DBPath = c.DBPath
	cc.AudioDir = c.CacheDir
	cc.CompressionLevel = c.Compression
	cc.MaxBytes = c.MaxBytes
	cc.MaxEntries = c.MaxEntries
	return cc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func pathOrDefault(path string, fallback func() (string, error)) (string, error) {
	if path == "" {
		return fallback()
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("unable to expand path %q: %w", path, err)
	}
	return os.ExpandEnv(p), nil
}

func defaultDBPath() (string, error) {
	return gap.NewScope(gap.User, "speakcache").DataPath("speakcache.db")
}

func defaultCacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, "speakcache").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audio"), nil
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "speakcache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "speakcache")}, dirs...)
	}

	if c := os.Getenv("SPEAKCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("speakcache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("speakcache")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "speakcache.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
