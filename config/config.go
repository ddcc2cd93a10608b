package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"marketpulse/models"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Fred      FredConfig      `yaml:"fred"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Ranges    RangesConfig    `yaml:"ranges"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Writer    WriterConfig    `yaml:"writer"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Region    string `yaml:"region"`
}

type FredConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	Limit          int                  `yaml:"limit"`
	Proxies        []string             `yaml:"proxies"`
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Series         SeriesIDConfig       `yaml:"series"`
}

// SeriesIDConfig maps each dashboard series to its upstream identifier.
type SeriesIDConfig struct {
	SP500       string `yaml:"sp500"`
	Nasdaq      string `yaml:"nasdaq"`
	Treasury10Y string `yaml:"treasury_10y"`
	M2Supply    string `yaml:"m2_supply"`
}

// ID returns the upstream identifier configured for key.
func (s SeriesIDConfig) ID(key models.SeriesKey) string {
	switch key {
	case models.SeriesSP500:
		return s.SP500
	case models.SeriesNasdaq:
		return s.Nasdaq
	case models.SeriesTreasury:
		return s.Treasury10Y
	case models.SeriesM2Supply:
		return s.M2Supply
	default:
		return ""
	}
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type CircuitBreakerConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	RecoveryTimeout     time.Duration `yaml:"recovery_timeout"`
	HalfOpenMaxRequests int           `yaml:"half_open_max_requests"`
	Interval            time.Duration `yaml:"interval"`
}

type SyntheticConfig struct {
	// Seed fixes the random source; zero picks a time based seed.
	Seed   uint64          `yaml:"seed"`
	SP500  IndexWalkConfig `yaml:"sp500"`
	Nasdaq IndexWalkConfig `yaml:"nasdaq"`
}

type IndexWalkConfig struct {
	Base       float64 `yaml:"base"`
	Volatility float64 `yaml:"volatility"`
	Days       int     `yaml:"days"`
}

type WatchlistConfig struct {
	Defaults []string `yaml:"defaults"`
}

type RangesConfig struct {
	SP500       string `yaml:"sp500"`
	Nasdaq      string `yaml:"nasdaq"`
	Treasury10Y string `yaml:"treasury_10y"`
	M2Supply    string `yaml:"m2_supply"`
}

// Parsed converts the configured tags into time ranges, keeping the built in
// default for any tag left empty.
func (r RangesConfig) Parsed() (map[models.SeriesKey]models.TimeRange, error) {
	out := models.DefaultRanges()
	tags := map[models.SeriesKey]string{
		models.SeriesSP500:    r.SP500,
		models.SeriesNasdaq:   r.Nasdaq,
		models.SeriesTreasury: r.Treasury10Y,
		models.SeriesM2Supply: r.M2Supply,
	}
	for key, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		tr, err := models.ParseTimeRange(tag)
		if err != nil {
			return nil, fmt.Errorf("ranges.%s: %w", key, err)
		}
		out[key] = tr
	}
	return out, nil
}

type NarrativeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	Timeout     time.Duration `yaml:"timeout"`
}

type DashboardConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Address            string        `yaml:"address"`
	MetricsLimit       int           `yaml:"metrics_limit"`
	LogLimit           int           `yaml:"log_limit"`
	ResourceInterval   time.Duration `yaml:"resource_interval"`
	ResourceSampleSize int           `yaml:"resource_sample_size"`
}

type WriterConfig struct {
	Partitioning PartitioningConfig `yaml:"partitioning"`
	Formats      FormatsConfig      `yaml:"formats"`
	Timeout      time.Duration      `yaml:"timeout"`
}

type PartitioningConfig struct {
	Prefix     string `yaml:"prefix"`
	TimeFormat string `yaml:"time_format"`
}

type FormatsConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Compression string `yaml:"compression"`
	PageSize    int    `yaml:"page_size"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	ReportEvery   time.Duration          `yaml:"report_every"`
	DashboardName string                 `yaml:"dashboard_name"`
}

// Secrets are credentials that never live in the YAML file in production.
type Secrets struct {
	FredAPIKey         string `envconfig:"FRED_API_KEY"`
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `envconfig:"AWS_REGION"`
	S3Bucket           string `envconfig:"S3_BUCKET"`
}

const (
	DefaultFredBaseURL   = "https://api.stlouisfed.org/fred/series/observations"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-3-flash-preview"
)

// DefaultProxies are the two access tiers tried in order for every series.
var DefaultProxies = []string{
	"https://corsproxy.io/?{url}",
	"https://api.allorigins.win/raw?url={url}",
}

// Default returns the configuration used when a value is omitted from YAML.
func Default() Config {
	return Config{
		App: AppConfig{Name: "marketpulse", Version: "1.0.0"},
		Metrics: MetricsConfig{
			Prometheus: true,
			CloudWatch: CloudWatchConfig{Namespace: "MarketPulse"},
		},
		Fred: FredConfig{
			BaseURL: DefaultFredBaseURL,
			Limit:   3000,
			Proxies: append([]string(nil), DefaultProxies...),
			Timeout: 15 * time.Second,
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    16,
				MaxConnsPerHost: 8,
				IdleConnTimeout: 90 * time.Second,
			},
			RateLimit: RateLimitConfig{RequestsPerSecond: 4, BurstSize: 4},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:    3,
				RecoveryTimeout:     60 * time.Second,
				HalfOpenMaxRequests: 1,
				Interval:            60 * time.Second,
			},
			Series: SeriesIDConfig{
				SP500:       "SP500",
				Nasdaq:      "NASDAQCOM",
				Treasury10Y: "DGS10",
				M2Supply:    "M2SL",
			},
		},
		Synthetic: SyntheticConfig{
			SP500:  IndexWalkConfig{Base: 5920, Volatility: 45, Days: 2600},
			Nasdaq: IndexWalkConfig{Base: 19150, Volatility: 180, Days: 2600},
		},
		Watchlist: WatchlistConfig{Defaults: []string{"AAPL", "NVDA", "TSLA"}},
		Narrative: NarrativeConfig{
			Enabled:     true,
			BaseURL:     DefaultGeminiBaseURL,
			Model:       DefaultGeminiModel,
			Temperature: 0.6,
			TopP:        0.9,
			Timeout:     60 * time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled:            true,
			Address:            ":8080",
			MetricsLimit:       500,
			LogLimit:           500,
			ResourceInterval:   5 * time.Second,
			ResourceSampleSize: 120,
		},
		Writer: WriterConfig{
			Partitioning: PartitioningConfig{TimeFormat: "2006-01-02"},
			Formats:      FormatsConfig{Parquet: ParquetConfig{Compression: "snappy"}},
			Timeout:      30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applySecrets(&config); err != nil {
		return nil, err
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applySecrets overlays credentials from the environment onto cfg.
func applySecrets(cfg *Config) error {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return fmt.Errorf("failed to read secrets from environment: %w", err)
	}

	if v := strings.TrimSpace(s.FredAPIKey); v != "" {
		cfg.Fred.APIKey = v
	}
	if v := strings.TrimSpace(s.GeminiAPIKey); v != "" {
		cfg.Narrative.APIKey = v
	}
	if cfg.Storage.S3.Enabled {
		if v := strings.TrimSpace(s.AWSAccessKeyID); v != "" {
			cfg.Storage.S3.AccessKeyID = v
		}
		if v := strings.TrimSpace(s.AWSSecretAccessKey); v != "" {
			cfg.Storage.S3.SecretAccessKey = v
		}
		if v := strings.TrimSpace(s.AWSRegion); v != "" {
			cfg.Storage.S3.Region = v
		}
		if v := strings.TrimSpace(s.S3Bucket); v != "" {
			cfg.Storage.S3.Bucket = v
		}
	}
	if cfg.Metrics.CloudWatch.Region == "" {
		cfg.Metrics.CloudWatch.Region = strings.TrimSpace(s.AWSRegion)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if _, err := url.ParseRequestURI(cfg.Fred.BaseURL); err != nil {
		return fmt.Errorf("fred.base_url is invalid: %w", err)
	}
	if cfg.Fred.APIKey == "" && IsProductionLike(AppEnvironment()) {
		return fmt.Errorf("fred.api_key (or FRED_API_KEY) is required in %s", AppEnvironment())
	}
	if cfg.Fred.Limit <= 0 {
		return fmt.Errorf("fred.limit must be greater than 0")
	}
	if len(cfg.Fred.Proxies) == 0 {
		return fmt.Errorf("fred.proxies must list at least one access tier")
	}
	for i, p := range cfg.Fred.Proxies {
		if !strings.Contains(p, "{url}") {
			return fmt.Errorf("fred.proxies[%d] must contain the {url} placeholder", i)
		}
	}
	if cfg.Fred.Timeout <= 0 {
		return fmt.Errorf("fred.timeout must be greater than 0")
	}
	if cfg.Fred.RateLimit.RequestsPerSecond < 0 || cfg.Fred.RateLimit.BurstSize < 0 {
		return fmt.Errorf("fred.rate_limit values must not be negative")
	}
	for _, key := range models.SeriesKeys {
		if cfg.Fred.Series.ID(key) == "" {
			return fmt.Errorf("fred.series.%s is required", key)
		}
	}

	for name, walk := range map[string]IndexWalkConfig{"sp500": cfg.Synthetic.SP500, "nasdaq": cfg.Synthetic.Nasdaq} {
		if walk.Base <= 0 || walk.Volatility < 0 || walk.Days <= 0 {
			return fmt.Errorf("synthetic.%s requires positive base and days and a non-negative volatility", name)
		}
	}

	if _, err := cfg.Ranges.Parsed(); err != nil {
		return err
	}

	if cfg.Narrative.Enabled && cfg.Narrative.Model == "" {
		return fmt.Errorf("narrative.model is required when narrative is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
