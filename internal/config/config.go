// Package config loads the service configuration: built-in defaults,
// then an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates all service settings.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	Redis       RedisConfig       `yaml:"redis"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Media       MediaConfig       `yaml:"media"`
	AI          AIConfig          `yaml:"ai"`
	Engine      EngineConfig      `yaml:"engine"`
	Remarketing RemarketingConfig `yaml:"remarketing"`
}

// RedisConfig describes the persistence backend. An empty address
// selects the in-memory stores.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GatewayConfig describes the messaging gateway websocket.
type GatewayConfig struct {
	URL string `yaml:"url"`
}

// MediaConfig describes the media pipeline.
type MediaConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
	TempDir    string `yaml:"temp_dir"`
}

// AIConfig describes the fallback responder. Disabled without an API
// key.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Enabled reports whether the responder should be wired.
func (c AIConfig) Enabled() bool {
	return c.APIKey != ""
}

// EngineConfig tunes dispatch behavior.
type EngineConfig struct {
	CooldownHours    int      `yaml:"cooldown_hours"`
	MaxHops          int      `yaml:"max_hops"`
	DedupSeconds     int      `yaml:"dedup_seconds"`
	StartLockSeconds int      `yaml:"start_lock_seconds"`
	StartKeywords    []string `yaml:"start_keywords"`
}

// Cooldown returns the configured quiet period, or zero when unset.
func (c EngineConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

// RemarketingConfig tunes the re-engagement job.
type RemarketingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load builds the configuration. path may be empty; a missing file at
// an explicit path is an error, a missing default file is not.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr:     ":8080",
		LogLevel: "info",
		Gateway:  GatewayConfig{URL: "ws://localhost:3001/ws"},
		Media:    MediaConfig{FFmpegPath: "ffmpeg", TempDir: os.TempDir()},
		AI:       AIConfig{Model: "llama3-8b-8192"},
		Remarketing: RemarketingConfig{
			Enabled: true,
		},
	}

	explicit := path != ""
	if path == "" {
		path = "zapflow.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnv(cfg)

	if !strings.Contains(cfg.Addr, ":") {
		cfg.Addr = ":" + cfg.Addr
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "ZAPFLOW_ADDR")
	setString(&cfg.LogLevel, "ZAPFLOW_LOG_LEVEL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Gateway.URL, "GATEWAY_URL")
	setString(&cfg.Media.FFmpegPath, "FFMPEG_PATH")
	setString(&cfg.Media.TempDir, "MEDIA_TEMP_DIR")
	setString(&cfg.AI.APIKey, "GROQ_API_KEY")
	setString(&cfg.AI.BaseURL, "GROQ_BASE_URL")
	setString(&cfg.AI.Model, "GROQ_MODEL")
	setInt(&cfg.Engine.CooldownHours, "ZAPFLOW_COOLDOWN_HOURS")
	setInt(&cfg.Engine.MaxHops, "ZAPFLOW_MAX_HOPS")
	setInt(&cfg.Engine.DedupSeconds, "ZAPFLOW_DEDUP_SECONDS")
	setInt(&cfg.Engine.StartLockSeconds, "ZAPFLOW_START_LOCK_SECONDS")
	setBool(&cfg.Remarketing.Enabled, "ZAPFLOW_REMARKETING")

	if raw := strings.TrimSpace(os.Getenv("ZAPFLOW_START_KEYWORDS")); raw != "" {
		var keywords []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		cfg.Engine.StartKeywords = keywords
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
