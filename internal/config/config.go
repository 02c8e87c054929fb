package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/biomed-sul/leadscout/internal/classify"
)

// DefaultKeywords are the specialty queries issued for every location.
var DefaultKeywords = []string{
	"clínica reprodução humana",
	"fertilização in vitro FIV",
	"reprodução assistida",
	"laboratório genética",
	"laboratório citogenética",
	"laboratório andrologia",
	"diagnóstico molecular",
	"laboratório análises clínicas",
}

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Collect   CollectConfig   `yaml:"collect" mapstructure:"collect"`
	Geo       GeoConfig       `yaml:"geo" mapstructure:"geo"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Dedupe    DedupeConfig    `yaml:"dedupe" mapstructure:"dedupe"`
	Filters   FiltersConfig   `yaml:"filters" mapstructure:"filters"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SearchConfig holds web search API settings.
type SearchConfig struct {
	APIKey         string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string   `yaml:"base_url" mapstructure:"base_url"`
	Country        string   `yaml:"country" mapstructure:"country"`
	Language       string   `yaml:"language" mapstructure:"language"`
	ResultsPerPage int      `yaml:"results_per_query" mapstructure:"results_per_query"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Keywords       []string `yaml:"keywords" mapstructure:"keywords"`
}

// CollectConfig configures which locations are searched and how fast.
type CollectConfig struct {
	Regions           []string `yaml:"regions" mapstructure:"regions"`
	MinPopulation     int64    `yaml:"min_population" mapstructure:"min_population"`
	DelayMs           int      `yaml:"delay_ms" mapstructure:"delay_ms"`
	Concurrency       int      `yaml:"concurrency" mapstructure:"concurrency"`
	CooldownSecs      int      `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	ReferenceLocation string   `yaml:"reference_location" mapstructure:"reference_location"`
	MaxDistanceKm     float64  `yaml:"max_distance_km" mapstructure:"max_distance_km"`
}

// Delay returns the pause taken before every search query.
func (c CollectConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Cooldown returns the pause applied after a rate-limit response.
func (c CollectConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSecs) * time.Second
}

// GeoConfig points at the municipality and coordinate datasets.
type GeoConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	CoordinatesURL string `yaml:"coordinates_url" mapstructure:"coordinates_url"`
}

// DirectoryConfig configures the specialist directory scraper.
type DirectoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	URL     string `yaml:"url" mapstructure:"url"`
}

// EnrichConfig configures contact extraction.
type EnrichConfig struct {
	Concurrency       int    `yaml:"concurrency" mapstructure:"concurrency"`
	DelayMs           int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	BatchSize         int    `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBytes          int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxRedirects      int    `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxText           int    `yaml:"max_text" mapstructure:"max_text"`
	FollowContactPage bool   `yaml:"follow_contact_page" mapstructure:"follow_contact_page"`
	Cache             string `yaml:"cache" mapstructure:"cache"`
	CacheTTLHours     int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// Delay returns the pause taken before every page fetch.
func (c EnrichConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Timeout returns the per-page fetch timeout.
func (c EnrichConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheTTL returns how long extracted page results are reused.
func (c EnrichConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// RedisConfig holds the Redis connection used by the page cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// DedupeConfig configures the fuzzy deduplication pass.
type DedupeConfig struct {
	FuzzyEnabled   bool    `yaml:"fuzzy_enabled" mapstructure:"fuzzy_enabled"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	MaxPartition   int     `yaml:"max_partition" mapstructure:"max_partition"`
}

// FiltersConfig toggles classifier stages.
type FiltersConfig struct {
	classify.Filters `yaml:",inline" mapstructure:",squash"`
	LogRejections    bool   `yaml:"log_rejections" mapstructure:"log_rejections"`
	RulesPath        string `yaml:"rules_path" mapstructure:"rules_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/leads.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.base_url", "https://google.serper.dev")
	v.SetDefault("search.country", "br")
	v.SetDefault("search.language", "pt-br")
	v.SetDefault("search.results_per_query", 10)
	v.SetDefault("search.timeout_secs", 10)
	v.SetDefault("search.keywords", DefaultKeywords)
	v.SetDefault("collect.regions", []string{"RS", "SC", "PR"})
	v.SetDefault("collect.min_population", 30000)
	v.SetDefault("collect.delay_ms", 1000)
	v.SetDefault("collect.concurrency", 3)
	v.SetDefault("collect.cooldown_secs", 10)
	v.SetDefault("collect.reference_location", "")
	v.SetDefault("collect.max_distance_km", 0)
	v.SetDefault("geo.base_url", "https://servicodados.ibge.gov.br/api")
	v.SetDefault("geo.coordinates_url", "https://raw.githubusercontent.com/kelvins/Municipios-Brasileiros/main/csv/municipios.csv")
	v.SetDefault("directory.enabled", true)
	v.SetDefault("directory.url", "https://www.redlara.com/quem_somos.asp?MYPK3=Centros&centro_pais=Brasil")
	v.SetDefault("enrich.concurrency", 1)
	v.SetDefault("enrich.delay_ms", 500)
	v.SetDefault("enrich.batch_size", 50)
	v.SetDefault("enrich.timeout_secs", 10)
	v.SetDefault("enrich.max_bytes", 5<<20)
	v.SetDefault("enrich.max_redirects", 3)
	v.SetDefault("enrich.max_text", 50000)
	v.SetDefault("enrich.follow_contact_page", false)
	v.SetDefault("enrich.cache", "memory")
	v.SetDefault("enrich.cache_ttl_hours", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("dedupe.fuzzy_enabled", true)
	v.SetDefault("dedupe.fuzzy_threshold", 0.85)
	v.SetDefault("dedupe.max_partition", 500)
	for _, f := range []string{"pdf", "url_pattern", "domain_blacklist", "news", "academic", "generic_title", "topic", "log_rejections"} {
		v.SetDefault("filters."+f, true)
	}
	v.SetDefault("filters.rules_path", "")

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

// Validate checks the keys a command section cannot run without.
func (c *Config) Validate(section string) error {
	switch section {
	case "store":
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			return eris.Errorf("config: unsupported store.driver %q", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required")
		}
	case "search":
		if c.Search.APIKey == "" {
			return eris.New("config: search.api_key is required (set LEADSCOUT_SEARCH_API_KEY)")
		}
		if len(c.Search.Keywords) == 0 {
			return eris.New("config: search.keywords is empty")
		}
		if c.Collect.MaxDistanceKm > 0 && c.Collect.ReferenceLocation == "" {
			return eris.New("config: collect.reference_location is required with collect.max_distance_km")
		}
	case "dedupe":
		if c.Dedupe.FuzzyThreshold <= 0 || c.Dedupe.FuzzyThreshold > 1 {
			return eris.Errorf("config: dedupe.fuzzy_threshold %v out of range (0,1]", c.Dedupe.FuzzyThreshold)
		}
	case "enrich":
		if c.Enrich.BatchSize <= 0 {
			return eris.New("config: enrich.batch_size must be positive")
		}
		switch c.Enrich.Cache {
		case "memory", "redis", "none", "":
		default:
			return eris.Errorf("config: unsupported enrich.cache %q", c.Enrich.Cache)
		}
	default:
		return eris.Errorf("config: unknown section %q", section)
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
