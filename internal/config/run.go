package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/util"
)

const (
	DefaultEndpoint         = "https://t3.storage.dev"
	DefaultBucket           = "tigris-consistency-test-bucket"
	DefaultPayloadSize      = "1MiB"
	DefaultRequestTimeout   = "30s"
	DefaultRegionHeader     = "X-Tigris-Regions"
	DefaultConsistentHeader = "X-Tigris-Consistent"

	DefaultPollInterval    = 100 * time.Millisecond
	DefaultPollMaxDuration = 60 * time.Second

	// MaxPayloadSize is the largest object a single PUT may carry.
	MaxPayloadSize = 5 << 30
)

// DefaultRunConfig returns a RunConfig with default values.
func DefaultRunConfig() models.RunConfig {
	cacheBust := true
	return models.RunConfig{
		ResultsDir:        "results",
		Endpoint:          DefaultEndpoint,
		Bucket:            DefaultBucket,
		Regions:           []string{"sjc", "fra"},
		PayloadSize:       DefaultPayloadSize,
		Iterations:        10,
		NConcurrentTrials: 1,
		LogLevel:          "info",
		Transport: models.TransportConfig{
			RegionHeader:     DefaultRegionHeader,
			ConsistentHeader: DefaultConsistentHeader,
			SigningRegion:    "auto",
			SigningService:   "s3",
			RequestTimeout:   DefaultRequestTimeout,
			CacheBust:        &cacheBust,
		},
	}
}

// LoadRunConfig loads and parses a run.yaml file, then applies environment
// overrides and defaults. An empty path yields the defaults.
func LoadRunConfig(path string) (models.RunConfig, error) {
	cfg := DefaultRunConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading run config: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing run config: %w", err)
		}
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func ApplyEnv(cfg *models.RunConfig) {
	cfg.Bucket = getEnv("BUCKET", cfg.Bucket)
	cfg.Endpoint = getEnv("CONVERGENCE_ENDPOINT", cfg.Endpoint)
	cfg.Iterations = getEnvInt("CONVERGENCE_ITERATIONS", cfg.Iterations)
	cfg.LogLevel = getEnv("CONVERGENCE_LOG_LEVEL", cfg.LogLevel)
	if regions := getEnv("CONVERGENCE_REGIONS", ""); regions != "" {
		cfg.Regions = SplitList(regions)
	}
}

// ApplyDefaults fills zero values left behind by a partial config file.
func ApplyDefaults(cfg *models.RunConfig) {
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.PayloadSize == "" {
		cfg.PayloadSize = DefaultPayloadSize
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 10
	}
	if cfg.NConcurrentTrials == 0 {
		cfg.NConcurrentTrials = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Transport.RegionHeader == "" {
		cfg.Transport.RegionHeader = DefaultRegionHeader
	}
	if cfg.Transport.ConsistentHeader == "" {
		cfg.Transport.ConsistentHeader = DefaultConsistentHeader
	}
	if cfg.Transport.SigningRegion == "" {
		cfg.Transport.SigningRegion = "auto"
	}
	if cfg.Transport.SigningService == "" {
		cfg.Transport.SigningService = "s3"
	}
	if cfg.Transport.RequestTimeout == "" {
		cfg.Transport.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Transport.CacheBust == nil {
		cacheBust := true
		cfg.Transport.CacheBust = &cacheBust
	}
	if len(cfg.Scenarios) == 0 {
		cfg.Scenarios = []models.ScenarioRef{{Builtin: "overwrite-same-region"}}
	}
}

// Validate checks a fully defaulted run config.
func Validate(cfg models.RunConfig) error {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q: must be an absolute URL", cfg.Endpoint)
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if cfg.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative, got %d", cfg.Iterations)
	}
	if cfg.NConcurrentTrials < 0 {
		return fmt.Errorf("n_concurrent_trials must not be negative, got %d", cfg.NConcurrentTrials)
	}
	if size, err := PayloadBytes(cfg); err != nil {
		return err
	} else if size <= 0 {
		return fmt.Errorf("payload_size must be positive, got %q", cfg.PayloadSize)
	} else if size > MaxPayloadSize {
		return fmt.Errorf("payload_size %q exceeds the 5GiB single PUT limit", cfg.PayloadSize)
	}
	if _, err := PollOverrides(cfg); err != nil {
		return err
	}
	if _, err := RequestTimeout(cfg); err != nil {
		return err
	}
	if cfg.Transport.RequestsPerSecond < 0 {
		return fmt.Errorf("transport.requests_per_second must not be negative")
	}
	for i, ref := range cfg.Scenarios {
		hasBuiltin := ref.Builtin != ""
		hasPath := ref.Path != ""
		if !hasBuiltin && !hasPath {
			return fmt.Errorf("scenarios[%d]: must specify either 'builtin' or 'path'", i)
		}
		if hasBuiltin && hasPath {
			return fmt.Errorf("scenarios[%d]: cannot specify both 'builtin' and 'path'", i)
		}
	}
	return nil
}

// PayloadBytes returns the configured payload size in bytes.
func PayloadBytes(cfg models.RunConfig) (int64, error) {
	n, err := util.ParseBytes(cfg.PayloadSize)
	if err != nil {
		return 0, fmt.Errorf("payload_size: %w", err)
	}
	return n, nil
}

// DefaultPollConfig is used for any poll field a scenario leaves at zero.
func DefaultPollConfig() models.PollConfig {
	return models.PollConfig{
		Interval:    DefaultPollInterval,
		MaxDuration: DefaultPollMaxDuration,
	}
}

// PollOverrides parses the run-level poll settings that are set.
func PollOverrides(cfg models.RunConfig) (models.PollOverrides, error) {
	var o models.PollOverrides
	if cfg.Poll.Interval != nil {
		d, err := time.ParseDuration(*cfg.Poll.Interval)
		if err != nil {
			return o, fmt.Errorf("poll.interval: %w", err)
		}
		if d < 0 {
			return o, fmt.Errorf("poll.interval must not be negative")
		}
		o.Interval = &d
	}
	if cfg.Poll.MaxDuration != nil {
		d, err := time.ParseDuration(*cfg.Poll.MaxDuration)
		if err != nil {
			return o, fmt.Errorf("poll.max_duration: %w", err)
		}
		if d <= 0 {
			return o, fmt.Errorf("poll.max_duration must be positive")
		}
		o.MaxDuration = &d
	}
	if cfg.Poll.MaxAttempts != nil {
		if *cfg.Poll.MaxAttempts < 0 {
			return o, fmt.Errorf("poll.max_attempts must not be negative")
		}
		n := *cfg.Poll.MaxAttempts
		o.MaxAttempts = &n
	}
	return o, nil
}

// RequestTimeout returns the per-request transport timeout.
func RequestTimeout(cfg models.RunConfig) (time.Duration, error) {
	d, err := time.ParseDuration(cfg.Transport.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("transport.request_timeout: %w", err)
	}
	return d, nil
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
