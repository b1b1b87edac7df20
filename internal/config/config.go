// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Alert   AlertConfig   `mapstructure:"alert"`
	Extract ExtractConfig `mapstructure:"extract"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Venue   VenueConfig   `mapstructure:"venue"`
	Places  PlacesConfig  `mapstructure:"places"`
	AI      AIConfig      `mapstructure:"ai"`
	DB      DBConfig      `mapstructure:"db"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the fetch orchestrator.
type CrawlerConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	MaxAttempts         int    `mapstructure:"max_attempts"`
	BaseDelayMs         int    `mapstructure:"base_delay_ms"`
	JitterMs            int    `mapstructure:"jitter_ms"`
	DefaultRPM          int    `mapstructure:"default_rpm"`
	DomainConcurrency   int    `mapstructure:"domain_concurrency"`
	DomainParallelism   int    `mapstructure:"domain_parallelism"`
	FailureThreshold    int    `mapstructure:"failure_threshold"`
	SuppressionMinutes  int    `mapstructure:"suppression_minutes"`
	BodyCapBytes        int    `mapstructure:"body_cap_bytes"`
	RobotsTTLHours      int    `mapstructure:"robots_ttl_hours"`
	HTTPTimeoutSeconds  int    `mapstructure:"http_timeout_seconds"`
}

// RetryConfig controls the backoff engine.
type RetryConfig struct {
	BaseMs int `mapstructure:"base_ms"`
	CapMs  int `mapstructure:"cap_ms"`
}

// AlertConfig points at the webhook sink.
type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// ExtractConfig tunes the extraction waterfall.
type ExtractConfig struct {
	HydrationMaxDepth int `mapstructure:"hydration_max_depth"`
}

// DedupConfig tunes the promotion rule.
type DedupConfig struct {
	PromotionMinGain int `mapstructure:"promotion_min_gain"`
}

// VenueConfig tunes the registry matcher and the enrichment budget.
type VenueConfig struct {
	FloorContainment  float64 `mapstructure:"floor_containment"`
	FloorEditDistance float64 `mapstructure:"floor_edit_distance"`
	DailyBudget       int     `mapstructure:"daily_budget"`
}

// PlacesConfig configures the external venue lookup.
type PlacesConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AIConfig configures the text-completion fallback.
type AIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Enabled bool   `mapstructure:"enabled"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("crawler.user_agent", "event-harvester/1.0")
	v.SetDefault("crawler.max_attempts", 5)
	v.SetDefault("crawler.base_delay_ms", 2000)
	v.SetDefault("crawler.jitter_ms", 750)
	v.SetDefault("crawler.default_rpm", 12)
	v.SetDefault("crawler.domain_concurrency", 1)
	v.SetDefault("crawler.domain_parallelism", 3)
	v.SetDefault("crawler.failure_threshold", 3)
	v.SetDefault("crawler.suppression_minutes", 30)
	v.SetDefault("crawler.body_cap_bytes", 50*1024)
	v.SetDefault("crawler.robots_ttl_hours", 24)
	v.SetDefault("crawler.http_timeout_seconds", 15)
	v.SetDefault("retry.base_ms", 500)
	v.SetDefault("retry.cap_ms", 30000)
	v.SetDefault("extract.hydration_max_depth", 5)
	v.SetDefault("dedup.promotion_min_gain", 50)
	v.SetDefault("venue.floor_containment", 0.75)
	v.SetDefault("venue.floor_edit_distance", 0.82)
	v.SetDefault("venue.daily_budget", 100)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("db.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.Crawler.DomainParallelism <= 0 {
		return fmt.Errorf("crawler.domain_parallelism must be > 0")
	}
	if c.Crawler.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.http_timeout_seconds must be > 0")
	}
	if c.Retry.BaseMs <= 0 || c.Retry.CapMs < c.Retry.BaseMs {
		return fmt.Errorf("retry.base_ms must be > 0 and <= retry.cap_ms")
	}
	if c.Venue.FloorContainment <= 0 || c.Venue.FloorContainment > 1 {
		return fmt.Errorf("venue.floor_containment must be in (0,1]")
	}
	if c.Venue.FloorEditDistance <= 0 || c.Venue.FloorEditDistance > 1 {
		return fmt.Errorf("venue.floor_edit_distance must be in (0,1]")
	}
	if c.AI.Enabled && c.AI.BaseURL == "" {
		return fmt.Errorf("ai.base_url must be set when ai is enabled")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Crawler.HTTPTimeoutSeconds) * time.Second
}

// SuppressionWindow converts the alert suppression knob into a duration.
func (c Config) SuppressionWindow() time.Duration {
	return time.Duration(c.Crawler.SuppressionMinutes) * time.Minute
}

// RobotsTTL converts the robots cache knob into a duration.
func (c Config) RobotsTTL() time.Duration {
	return time.Duration(c.Crawler.RobotsTTLHours) * time.Hour
}

// sourcesFile is the on-disk shape of a source list.
type sourcesFile struct {
	Sources []model.Source `mapstructure:"sources"`
}

// LoadSources reads the crawl-target list from a YAML/JSON file.
func LoadSources(path string) ([]model.Source, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	var f sourcesFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	for i := range f.Sources {
		if f.Sources[i].ID == "" || f.Sources[i].URL == "" {
			return nil, fmt.Errorf("source %d: id and url are required", i)
		}
	}
	return f.Sources, nil
}
