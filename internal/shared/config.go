package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
// Environment variables override file values so the process can run fully
// env-configured inside a container.
type Config struct {
	Library     LibraryConfig     `toml:"library"`
	Fetcher     FetcherConfig     `toml:"fetcher"`
	Cache       CacheConfig       `toml:"cache"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Matching    MatchingConfig    `toml:"matching"`
	Performance PerformanceConfig `toml:"performance"`
	State       StateConfig       `toml:"state"`
	Sources     []SourceConfig    `toml:"sources"`
}

// SourceConfig names one recommendation feed. The first entry is the primary
// source; the rest are secondary feeds.
type SourceConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// LibraryConfig contains connection settings for the Subsonic-compatible library server.
type LibraryConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// FetcherConfig contains connection settings for the remote fetch trigger service.
type FetcherConfig struct {
	URL string `toml:"url"`
}

// CacheConfig contains rating cache database settings.
type CacheConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ScheduleConfig controls the run-cadence controller.
type ScheduleConfig struct {
	Cron                string  `toml:"cron"`
	MinRunIntervalHours float64 `toml:"min_run_interval_hours"`
}

// MatchingConfig contains fuzzy matching thresholds and the low-rating exclusion band.
type MatchingConfig struct {
	MatchThreshold      float64 `toml:"match_threshold"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	LowRatingMin        int     `toml:"low_rating_min"`
	LowRatingMax        int     `toml:"low_rating_max"`
}

// PerformanceConfig contains delays, limits and fan-out settings.
type PerformanceConfig struct {
	AlbumBatchSize       int     `toml:"album_batch_size"`
	MaxAlbumsScan        int     `toml:"max_albums_scan"`
	ScanTimeoutSeconds   int     `toml:"scan_timeout_seconds"`
	FetchDelaySeconds    int     `toml:"fetch_delay_seconds"`
	PostScanDelaySeconds int     `toml:"post_scan_delay_seconds"`
	ScanWorkers          int     `toml:"scan_workers"`
	ScanRateLimit        float64 `toml:"scan_rate_limit"`
}

// StateConfig contains the data directory for the run record and lock file.
type StateConfig struct {
	Dir string `toml:"dir"`
}

// LoadConfig reads and parses a TOML configuration file from the specified
// path, loads a .env file if one exists, and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	config.applyEnv()
	return &config, nil
}

// DefaultConfig returns a Config with defaults loaded from the embedded
// example config plus environment overrides.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads a .env file into the process environment if present.
// Missing files are not an error.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// applyEnv overrides config values from environment variables.
func (c *Config) applyEnv() {
	envStr(&c.Library.URL, "LIBRARY_URL")
	envStr(&c.Library.Username, "LIBRARY_USER")
	envStr(&c.Library.Password, "LIBRARY_PASSWORD")
	envStr(&c.Fetcher.URL, "FETCHER_URL")
	envStr(&c.Cache.Path, "CACHE_DB_PATH")
	envStr(&c.Schedule.Cron, "SCHEDULE_CRON")
	envFloat(&c.Schedule.MinRunIntervalHours, "MIN_RUN_INTERVAL_HOURS")
	envInt(&c.Performance.FetchDelaySeconds, "PERF_FETCH_DELAY")
	envInt(&c.Performance.PostScanDelaySeconds, "PERF_POST_SCAN_DELAY")
	envInt(&c.Performance.ScanTimeoutSeconds, "PERF_SCAN_TIMEOUT")
	envInt(&c.Performance.AlbumBatchSize, "PERF_ALBUM_BATCH_SIZE")
	envInt(&c.Performance.MaxAlbumsScan, "PERF_MAX_ALBUMS_SCAN")
	envStr(&c.State.Dir, "CURATOR_DATA_DIR")
}

// Validate checks that required collaborator settings are present.
func (c *Config) Validate() error {
	if c.Library.URL == "" {
		return fmt.Errorf("%w: library.url", ErrInvalidConfig)
	}
	if c.Library.Username == "" || c.Library.Password == "" {
		return fmt.Errorf("%w: library credentials", ErrMissingCredentials)
	}
	if c.Fetcher.URL == "" {
		return fmt.Errorf("%w: fetcher.url", ErrInvalidConfig)
	}
	if c.Matching.MatchThreshold <= 0 || c.Matching.MatchThreshold > 1 {
		return fmt.Errorf("%w: matching.match_threshold must be in (0,1]", ErrInvalidConfig)
	}
	if c.Matching.SimilarityThreshold <= 0 || c.Matching.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: matching.similarity_threshold must be in (0,1]", ErrInvalidConfig)
	}
	return nil
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
