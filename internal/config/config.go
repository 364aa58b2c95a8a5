// Package config loads clipforge settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/combo"
	"github.com/roach88/clipforge/internal/store"
)

// Environment variables that override the file.
const (
	EnvRenderURL      = "CLIPFORGE_RENDER_URL"
	EnvObjectStoreURL = "CLIPFORGE_OBJECTSTORE_URL"
	EnvDB             = "CLIPFORGE_DB"
	EnvLogLevel       = "CLIPFORGE_LOG_LEVEL"
	EnvLogFormat      = "CLIPFORGE_LOG_FORMAT"
	EnvAddr           = "CLIPFORGE_ADDR"
	EnvSamplerSeed    = "CLIPFORGE_SAMPLER_SEED"
	EnvMaxCombos      = "CLIPFORGE_MAX_COMBINATIONS"
)

// Config is the full settings tree.
type Config struct {
	Render      RenderConfig      `yaml:"render"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Estimate    EstimateConfig    `yaml:"estimate"`
	Guard       GuardConfig       `yaml:"guard"`
	Sampler     SamplerConfig     `yaml:"sampler"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
}

type RenderConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ObjectStoreConfig struct {
	URL       string `yaml:"url"`
	PublicURL string `yaml:"public_url"`
	Prefix    string `yaml:"prefix"`
}

type CheckpointConfig struct {
	DB  string `yaml:"db"`
	Key string `yaml:"key"`
}

// EstimateConfig feeds the simulated progress model.
type EstimateConfig struct {
	BaseSeconds      float64 `yaml:"base_seconds"`
	ImageFactor      float64 `yaml:"image_factor"`
	VideoFactor      float64 `yaml:"video_factor"`
	ImageSeconds     float64 `yaml:"image_seconds"`
	VideoMinSeconds  float64 `yaml:"video_min_seconds"`
	VideoMaxSeconds  float64 `yaml:"video_max_seconds"`
	RenderPerSecond  float64 `yaml:"render_per_second"`
	CapPercent       float64 `yaml:"cap_percent"`
	TickMilliseconds int     `yaml:"tick_ms"`
}

type GuardConfig struct {
	MaxCombinations int64 `yaml:"max_combinations"`
}

// SamplerConfig seeds the combination sampler. Seed 0 means time-based.
type SamplerConfig struct {
	Seed uint64 `yaml:"seed"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings.
func Default() Config {
	e := batch.DefaultEstimator
	return Config{
		Render:     RenderConfig{URL: "http://localhost:8090", Timeout: 5 * time.Minute},
		Checkpoint: CheckpointConfig{DB: "clipforge.db", Key: store.DefaultCheckpointKey},
		Estimate: EstimateConfig{
			BaseSeconds:      e.Base.Seconds(),
			ImageFactor:      e.ImageFactor,
			VideoFactor:      e.VideoFactor,
			ImageSeconds:     e.ImageSeconds,
			VideoMinSeconds:  e.VideoMinSeconds,
			VideoMaxSeconds:  e.VideoMaxSeconds,
			RenderPerSecond:  e.RenderPerSecond.Seconds(),
			CapPercent:       e.Cap,
			TickMilliseconds: int(batch.DefaultTickInterval / time.Millisecond),
		},
		Guard:  GuardConfig{MaxCombinations: combo.DefaultMaxCombinations},
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file is not an error; path "" skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// .env is optional; variables already set in the environment win.
	_ = LoadEnv()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEnv reads .env files into the environment. With no paths, ".env" is
// used. Existing variables are not overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

func (c *Config) applyEnv() {
	c.Render.URL = GetEnv(EnvRenderURL, c.Render.URL)
	c.ObjectStore.URL = GetEnv(EnvObjectStoreURL, c.ObjectStore.URL)
	c.Checkpoint.DB = GetEnv(EnvDB, c.Checkpoint.DB)
	c.Log.Level = GetEnv(EnvLogLevel, c.Log.Level)
	c.Log.Format = GetEnv(EnvLogFormat, c.Log.Format)
	c.Server.Addr = GetEnv(EnvAddr, c.Server.Addr)
	c.Guard.MaxCombinations = int64(GetEnvInt(EnvMaxCombos, int(c.Guard.MaxCombinations)))
	if s := os.Getenv(EnvSamplerSeed); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			c.Sampler.Seed = n
		}
	}
}

// Validate rejects settings the orchestrator cannot work with.
func (c Config) Validate() error {
	e := c.Estimate
	if e.VideoMinSeconds > e.VideoMaxSeconds {
		return fmt.Errorf("config: estimate.video_min_seconds (%v) exceeds video_max_seconds (%v)", e.VideoMinSeconds, e.VideoMaxSeconds)
	}
	if e.CapPercent <= 0 || e.CapPercent >= 100 {
		return fmt.Errorf("config: estimate.cap_percent must be in (0, 100), got %v", e.CapPercent)
	}
	if c.Guard.MaxCombinations < 0 {
		return fmt.Errorf("config: guard.max_combinations must not be negative")
	}
	if c.Checkpoint.DB == "" {
		return fmt.Errorf("config: checkpoint.db is required")
	}
	return nil
}

// Estimator converts the estimate settings.
func (c Config) Estimator() batch.Estimator {
	e := c.Estimate
	return batch.Estimator{
		Base:            seconds(e.BaseSeconds),
		ImageFactor:     e.ImageFactor,
		VideoFactor:     e.VideoFactor,
		ImageSeconds:    e.ImageSeconds,
		VideoMinSeconds: e.VideoMinSeconds,
		VideoMaxSeconds: e.VideoMaxSeconds,
		RenderPerSecond: seconds(e.RenderPerSecond),
		Cap:             e.CapPercent,
	}
}

// TickInterval is the simulated-progress period.
func (c Config) TickInterval() time.Duration {
	if c.Estimate.TickMilliseconds <= 0 {
		return batch.DefaultTickInterval
	}
	return time.Duration(c.Estimate.TickMilliseconds) * time.Millisecond
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt is GetEnv for integers. Unparseable values yield fallback.
func GetEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
