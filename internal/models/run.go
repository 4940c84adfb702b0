package models

import "time"

// RunConfig represents the parsed run.yaml configuration.
type RunConfig struct {
	Name              *string         `yaml:"name,omitempty" json:"name,omitempty"`
	ResultsDir        string          `yaml:"results_dir" json:"results_dir"`
	Endpoint          string          `yaml:"endpoint" json:"endpoint"`
	Bucket            string          `yaml:"bucket" json:"bucket"`
	Regions           []string        `yaml:"regions" json:"regions"`
	PayloadSize       string          `yaml:"payload_size" json:"payload_size"`
	Iterations        int             `yaml:"iterations" json:"iterations"`
	NConcurrentTrials int             `yaml:"n_concurrent_trials" json:"n_concurrent_trials"`
	Consistent        bool            `yaml:"consistent" json:"consistent"`
	LogLevel          string          `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	MetricsAddr       string          `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	Poll              PollSettings    `yaml:"poll" json:"poll"`
	Transport         TransportConfig `yaml:"transport" json:"transport"`
	Tracing           TracingConfig   `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Scenarios         []ScenarioRef   `yaml:"scenarios" json:"scenarios"`
}

// PollSettings holds the run-level poll settings as written in run.yaml.
// A set field replaces the value every scenario carries; nil leaves it.
type PollSettings struct {
	Interval    *string `yaml:"interval,omitempty" json:"interval,omitempty"`
	MaxDuration *string `yaml:"max_duration,omitempty" json:"max_duration,omitempty"`
	MaxAttempts *int    `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
}

// PollOverrides is the parsed form of PollSettings.
type PollOverrides struct {
	Interval    *time.Duration
	MaxDuration *time.Duration
	MaxAttempts *int
}

type TransportConfig struct {
	RegionHeader      string  `yaml:"region_header" json:"region_header"`
	ConsistentHeader  string  `yaml:"consistent_header" json:"consistent_header"`
	SigningRegion     string  `yaml:"signing_region" json:"signing_region"`
	SigningService    string  `yaml:"signing_service" json:"signing_service"`
	RequestTimeout    string  `yaml:"request_timeout" json:"request_timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty" json:"burst,omitempty"`
	CacheBust         *bool   `yaml:"cache_bust,omitempty" json:"cache_bust,omitempty"`
	Unsigned          bool    `yaml:"unsigned,omitempty" json:"unsigned,omitempty"`
}

type TracingConfig struct {
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// ScenarioRef selects a scenario by built-in name or TOML file path.
type ScenarioRef struct {
	Builtin string `yaml:"builtin,omitempty" json:"builtin,omitempty"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// RunResult contains the ordered outcomes and per-scenario aggregates.
type RunResult struct {
	RunName          string                     `json:"run_name"`
	Cancelled        bool                       `json:"cancelled"`
	TotalTrials      int                        `json:"total_trials"`
	SkippedTrials    int                        `json:"skipped_trials"`
	PassedTrials     int                        `json:"passed_trials"`
	PassRate         float64                    `json:"pass_rate"`
	TotalDurationSec float64                    `json:"total_duration_sec"`
	StartedAt        time.Time                  `json:"started_at"`
	EndedAt          time.Time                  `json:"ended_at"`
	Scenarios        map[string]ScenarioSummary `json:"scenarios"`
	Outcomes         []TrialOutcome             `json:"outcomes"`
}

type ScenarioSummary struct {
	TotalTrials     int            `json:"total_trials"`
	Passed          int            `json:"passed"`
	Failed          int            `json:"failed"`
	TimedOut        int            `json:"timed_out"`
	Errored         int            `json:"errored"`
	PassRate        float64        `json:"pass_rate"`
	MeanConvergence float64        `json:"mean_convergence_ms"`
	P50Convergence  float64        `json:"p50_convergence_ms"`
	MaxConvergence  float64        `json:"max_convergence_ms"`
	Winners         map[string]int `json:"winners,omitempty"`
}
