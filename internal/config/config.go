package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when INSIGHTS_CONFIG is unset.
const DefaultPath = "config/insights.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the insights server and CLI.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Upstream  Upstream  `yaml:"upstream"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Insights  Insights  `yaml:"insights"`
	Cache     Cache     `yaml:"cache"`
	Strings   Strings   `yaml:"strings"`
	Logging   Logging   `yaml:"logging"`
	Dashboard Dashboard `yaml:"dashboard"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Upstream selects providers and controls how they are called.
type Upstream struct {
	PriceProvider   string        `yaml:"price_provider"` // alpaca | yahoo
	NewsProvider    string        `yaml:"news_provider"`  // insights | alpaca
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	Retries         int           `yaml:"retries"`
	MaxParallel     int           `yaml:"max_parallel"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Insights points at the news/sentiment/tweets analytics service.
type Insights struct {
	BaseURL  string `yaml:"base_url"`
	ClientID string `yaml:"client_id"`
}

// Cache selects the response cache backend.
type Cache struct {
	Backend       string `yaml:"backend"` // memory | redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// Strings locates the localized UI string files.
type Strings struct {
	Dir       string   `yaml:"dir"`
	Languages []string `yaml:"languages"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Dashboard tunes server-hosted dashboard sessions.
type Dashboard struct {
	SearchDebounce time.Duration `yaml:"search_debounce"`
	EntityLimit    int           `yaml:"entity_limit"`
	StreamBuffer   int           `yaml:"stream_buffer"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file location from INSIGHTS_CONFIG, or DefaultPath.
func Path() string {
	if v := os.Getenv("INSIGHTS_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration built from environment variables and
// defaults only, for running without a config file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}

	if v := os.Getenv("PRICE_PROVIDER"); v != "" {
		cfg.Upstream.PriceProvider = v
	}
	if v := os.Getenv("NEWS_PROVIDER"); v != "" {
		cfg.Upstream.NewsProvider = v
	}

	if v := os.Getenv("INSIGHTS_BASE_URL"); v != "" {
		cfg.Insights.BaseURL = v
	}
	if v := os.Getenv("INSIGHTS_CLIENT_ID"); v != "" {
		cfg.Insights.ClientID = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		if cfg.Cache.Backend == "" {
			cfg.Cache.Backend = "redis"
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/insights.db"
	}
	if cfg.Upstream.PriceProvider == "" {
		cfg.Upstream.PriceProvider = "alpaca"
	}
	if cfg.Upstream.NewsProvider == "" {
		cfg.Upstream.NewsProvider = "insights"
	}
	if cfg.Upstream.CacheTTL == 0 {
		cfg.Upstream.CacheTTL = 10 * time.Minute
	}
	if cfg.Upstream.RateLimitPerMin == 0 {
		cfg.Upstream.RateLimitPerMin = 200
	}
	if cfg.Upstream.RequestTimeout == 0 {
		cfg.Upstream.RequestTimeout = 15 * time.Second
	}
	if cfg.Upstream.Retries == 0 {
		cfg.Upstream.Retries = 3
	}
	if cfg.Upstream.MaxParallel == 0 {
		cfg.Upstream.MaxParallel = 8
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "insights:"
	}
	if cfg.Strings.Dir == "" {
		cfg.Strings.Dir = "config/strings"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Dashboard.SearchDebounce == 0 {
		cfg.Dashboard.SearchDebounce = 300 * time.Millisecond
	}
	if cfg.Dashboard.EntityLimit == 0 {
		cfg.Dashboard.EntityLimit = 50
	}
	if cfg.Dashboard.StreamBuffer == 0 {
		cfg.Dashboard.StreamBuffer = 64
	}
	if cfg.Dashboard.FetchTimeout == 0 {
		cfg.Dashboard.FetchTimeout = 30 * time.Second
	}
}
