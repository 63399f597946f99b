package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Neo4j    Neo4jConfig    `yaml:"neo4j" mapstructure:"neo4j"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Cities   CitiesConfig   `yaml:"cities" mapstructure:"cities"`
}

// StoreConfig configures the relational store.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// Neo4jConfig configures the best-effort graph mirror. An empty URI disables it.
type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	MaxPool  int    `yaml:"max_pool" mapstructure:"max_pool"`
}

// Enabled reports whether a graph mirror is configured.
func (c Neo4jConfig) Enabled() bool { return c.URI != "" }

// SourcesConfig configures every source agent.
type SourcesConfig struct {
	Overpass     OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Google       GoogleConfig   `yaml:"google" mapstructure:"google"`
	Yelp         YelpConfig     `yaml:"yelp" mapstructure:"yelp"`
	Social       SocialConfig   `yaml:"social" mapstructure:"social"`
	PageDelayMs  int            `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	FullCap      int            `yaml:"full_cap" mapstructure:"full_cap"`
	IncrementCap int            `yaml:"incremental_cap" mapstructure:"incremental_cap"`
	TimeoutSecs  int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int            `yaml:"max_retries" mapstructure:"max_retries"`
}

// OverpassConfig holds OpenStreetMap Overpass API settings. No key is needed.
type OverpassConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	GeocodeURL string `yaml:"geocode_url" mapstructure:"geocode_url"`
}

// YelpConfig holds Yelp Fusion API settings.
type YelpConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SocialConfig holds credentials for the social signal source.
type SocialConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// PipelineConfig configures ingestion behavior.
type PipelineConfig struct {
	MatchThreshold      float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
	MaxConcurrentCities int     `yaml:"max_concurrent_cities" mapstructure:"max_concurrent_cities"`
	MinEventsForVenue   int     `yaml:"min_events_for_venue" mapstructure:"min_events_for_venue"`
	MaxGeocodes         int     `yaml:"max_geocodes" mapstructure:"max_geocodes"`
}

// MetricsConfig configures Prometheus metrics output.
type MetricsConfig struct {
	Namespace    string `yaml:"namespace" mapstructure:"namespace"`
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// ServerConfig configures the read-only HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CitiesConfig points at the city catalog file.
type CitiesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VENUES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.max_pool", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("sources.overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("sources.google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("sources.google.geocode_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("sources.yelp.base_url", "https://api.yelp.com/v3")
	v.SetDefault("sources.page_delay_ms", 200)
	v.SetDefault("sources.full_cap", 500)
	v.SetDefault("sources.incremental_cap", 100)
	v.SetDefault("sources.timeout_secs", 30)
	v.SetDefault("sources.max_retries", 2)
	v.SetDefault("pipeline.match_threshold", 0.85)
	v.SetDefault("pipeline.max_concurrent_cities", 2)
	v.SetDefault("pipeline.min_events_for_venue", 2)
	v.SetDefault("pipeline.max_geocodes", 200)
	v.SetDefault("metrics.namespace", "venues")
	v.SetDefault("cities.file", "cities.yaml")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on. Modes: ingest,
// migrate, runs, serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "ingest":
		errs = append(errs, c.requireStore()...)
		if c.Cities.File == "" {
			errs = append(errs, "cities.file is required")
		}
		if c.Sources.Overpass.URL == "" {
			errs = append(errs, "sources.overpass.url is required")
		}
		if c.Sources.FullCap < 1 || c.Sources.IncrementCap < 1 {
			errs = append(errs, "sources.full_cap and sources.incremental_cap must be >= 1")
		}
		if c.Sources.PageDelayMs < 0 {
			errs = append(errs, "sources.page_delay_ms must be >= 0")
		}
		if c.Pipeline.MatchThreshold <= 0 || c.Pipeline.MatchThreshold > 1 {
			errs = append(errs, fmt.Sprintf("pipeline.match_threshold must be in (0, 1], got %v", c.Pipeline.MatchThreshold))
		}
		if c.Pipeline.MaxConcurrentCities < 1 || c.Pipeline.MaxConcurrentCities > 16 {
			errs = append(errs, "pipeline.max_concurrent_cities must be between 1 and 16")
		}
	case "migrate", "runs":
		errs = append(errs, c.requireStore()...)
	case "serve":
		errs = append(errs, c.requireStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) requireStore() []string {
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
