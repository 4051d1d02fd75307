package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Research    ResearchConfig `mapstructure:"research"`
	Worker      WorkerConfig   `mapstructure:"worker"`
	Cleanup     CleanupConfig  `mapstructure:"cleanup"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ResearchConfig controls the market research engine: per-request source
// timeouts, relevance filter bounds, fallback pricing, and per-source trust
// weights. Defaults mirror the constants the valuation model was tuned with.
type ResearchConfig struct {
	RequestTimeout   string             `mapstructure:"request_timeout"`
	DefaultZipCode   string             `mapstructure:"default_zip_code"`
	MaxMileageDelta  int                `mapstructure:"max_mileage_delta"`
	MinListingPrice  float64            `mapstructure:"min_listing_price"`
	MaxListingPrice  float64            `mapstructure:"max_listing_price"`
	FallbackBaseMSRP float64            `mapstructure:"fallback_base_msrp"`
	SourceWeights    map[string]float64 `mapstructure:"source_weights"`
	CarGurusBaseURL  string             `mapstructure:"cargurus_base_url"`
	AutoTraderBase   string             `mapstructure:"autotrader_base_url"`
	AutoDevBaseURL   string             `mapstructure:"autodev_base_url"`
	AutoDevAPIKey    string             `mapstructure:"autodev_api_key"`
}

// Timeout returns the per-source request timeout, defaulting to 15s when the
// configured value fails to parse.
func (r ResearchConfig) Timeout() time.Duration {
	if d, err := time.ParseDuration(r.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return 15 * time.Second
}

// SourceWeight returns the static trust weight for a source, defaulting to
// 0.85 for sources without explicit configuration.
func (r ResearchConfig) SourceWeight(sourceName string) float64 {
	if w, ok := r.SourceWeights[sourceName]; ok {
		return w
	}
	return 0.85
}

type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	QueueKey    string `mapstructure:"queue_key"`
	PollTimeout string `mapstructure:"poll_timeout"`
}

type CleanupConfig struct {
	HistoryRetentionDays int    `mapstructure:"history_retention_days"`
	Schedule             string `mapstructure:"schedule"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The valuation API key only ever arrives via the environment
	if err := viper.BindEnv("research.autodev_api_key", "AUTODEV_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind AUTODEV_API_KEY environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if config.Research.MinListingPrice >= config.Research.MaxListingPrice {
		return nil, fmt.Errorf("research.min_listing_price (%.0f) must be below research.max_listing_price (%.0f)",
			config.Research.MinListingPrice, config.Research.MaxListingPrice)
	}
	if config.Worker.Concurrency < 1 {
		return nil, fmt.Errorf("worker.concurrency must be at least 1, got %d", config.Worker.Concurrency)
	}

	return &config, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "market_research")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.conn_max_lifetime", "300s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Research engine
	viper.SetDefault("research.request_timeout", "15s")
	viper.SetDefault("research.default_zip_code", "10001")
	viper.SetDefault("research.max_mileage_delta", 20000)
	viper.SetDefault("research.min_listing_price", 5000.0)
	viper.SetDefault("research.max_listing_price", 500000.0)
	viper.SetDefault("research.fallback_base_msrp", 35000.0)
	viper.SetDefault("research.source_weights", map[string]float64{
		"cargurus":   0.85,
		"autotrader": 0.85,
		"autodev":    0.90,
	})
	viper.SetDefault("research.cargurus_base_url", "https://www.cargurus.com")
	viper.SetDefault("research.autotrader_base_url", "https://www.autotrader.com")
	viper.SetDefault("research.autodev_base_url", "https://api.auto.dev")
	viper.SetDefault("research.autodev_api_key", "")

	// Worker
	viper.SetDefault("worker.concurrency", 2)
	viper.SetDefault("worker.queue_key", "research:jobs")
	viper.SetDefault("worker.poll_timeout", "5s")

	// Cleanup
	viper.SetDefault("cleanup.history_retention_days", 365)
	viper.SetDefault("cleanup.schedule", "@daily")
}
