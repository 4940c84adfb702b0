package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/spachava753/convergence/internal/config"
	"github.com/spachava753/convergence/internal/models"
)

func TestLoadScenarioConfig(t *testing.T) {
	scenarioToml := `name = "overwrite-fra"
description = "Overwrite in sjc, read from fra"
kind = "cross_region_read"
predicate = "expect_latest"

[[steps]]
action = "put"
region = "sjc"
writer = "initial"

[[steps]]
action = "put"
region = "sjc"
writer = "overwrite"

[[targets]]
region = "fra"
read = "head+get"
consistent = true

[poll]
interval = "250ms"
max_duration = "30s"
max_attempts = 40
`

	fsys := fstest.MapFS{
		"overwrite.toml": &fstest.MapFile{Data: []byte(scenarioToml)},
	}

	spec, err := config.LoadScenarioConfig(fsys, "overwrite.toml")
	if err != nil {
		t.Fatalf("LoadScenarioConfig failed: %v", err)
	}

	if spec.Name != "overwrite-fra" {
		t.Errorf("expected name overwrite-fra, got %s", spec.Name)
	}

	if spec.KeyPrefix != "overwrite-fra" {
		t.Errorf("expected key prefix to default to name, got %s", spec.KeyPrefix)
	}

	if spec.Kind != models.KindCrossRegionRead {
		t.Errorf("expected kind cross_region_read, got %s", spec.Kind)
	}

	if spec.Predicate != models.PredicateExpectLatest {
		t.Errorf("expected predicate expect_latest, got %s", spec.Predicate)
	}

	if len(spec.Steps) != 2 || spec.Steps[1].Writer != "overwrite" {
		t.Fatalf("expected 2 steps ending with writer overwrite, got %+v", spec.Steps)
	}

	if len(spec.Targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(spec.Targets))
	}

	target := spec.Targets[0]
	if target.Region != "fra" || !target.Consistent || target.Read != models.ReadHeadGet {
		t.Errorf("unexpected target %+v", target)
	}

	if spec.Poll.Interval != 250*time.Millisecond {
		t.Errorf("expected interval 250ms, got %s", spec.Poll.Interval)
	}

	if spec.Poll.MaxDuration != 30*time.Second {
		t.Errorf("expected max duration 30s, got %s", spec.Poll.MaxDuration)
	}

	if spec.Poll.MaxAttempts != 40 {
		t.Errorf("expected max attempts 40, got %d", spec.Poll.MaxAttempts)
	}
}

func TestLoadScenarioConfigLegacyMaxPollSeconds(t *testing.T) {
	fsys := fstest.MapFS{
		"delete.toml": &fstest.MapFile{Data: []byte(`kind = "delete_propagation"
predicate = "absent"

[[steps]]
action = "delete"

[[targets]]
read = "head"

[poll]
max_poll_seconds = 1.5
`)},
	}

	spec, err := config.LoadScenarioConfig(fsys, "delete.toml")
	if err != nil {
		t.Fatalf("LoadScenarioConfig failed: %v", err)
	}

	if spec.Name != "delete" {
		t.Errorf("expected name derived from file name, got %s", spec.Name)
	}

	if spec.Poll.MaxDuration != 1500*time.Millisecond {
		t.Errorf("expected max duration 1.5s, got %s", spec.Poll.MaxDuration)
	}
}

func TestLoadScenarioConfigRejectsUnknownKeys(t *testing.T) {
	fsys := fstest.MapFS{
		"typo.toml": &fstest.MapFile{Data: []byte(`predicte = "absent"`)},
	}

	if _, err := config.LoadScenarioConfig(fsys, "typo.toml"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadRunConfig(t *testing.T) {
	runYaml := `name: nightly
results_dir: out
endpoint: https://storage.example.com
bucket: consistency
regions: [iad, ams]
payload_size: 64KiB
iterations: 3
n_concurrent_trials: 2
consistent: true
poll:
  interval: 1s
  max_duration: 2m
  max_attempts: 5
transport:
  requests_per_second: 20
  burst: 4
scenarios:
  - builtin: concurrent-write
  - path: ./scenarios/custom.toml
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "run.yaml")
	if err := os.WriteFile(tmpFile, []byte(runYaml), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	t.Setenv("BUCKET", "")
	cfg, err := config.LoadRunConfig(tmpFile)
	if err != nil {
		t.Fatalf("LoadRunConfig failed: %v", err)
	}

	if *cfg.Name != "nightly" {
		t.Errorf("expected name nightly, got %s", *cfg.Name)
	}

	if cfg.Bucket != "consistency" {
		t.Errorf("expected bucket consistency, got %s", cfg.Bucket)
	}

	if len(cfg.Regions) != 2 || cfg.Regions[0] != "iad" {
		t.Errorf("expected regions [iad ams], got %v", cfg.Regions)
	}

	if cfg.NConcurrentTrials != 2 {
		t.Errorf("expected n_concurrent_trials 2, got %d", cfg.NConcurrentTrials)
	}

	if !cfg.Consistent {
		t.Error("expected consistent true")
	}

	size, err := config.PayloadBytes(cfg)
	if err != nil || size != 64*1024 {
		t.Errorf("expected 64KiB payload, got %d (%v)", size, err)
	}

	poll, err := config.PollOverrides(cfg)
	if err != nil {
		t.Fatalf("PollOverrides failed: %v", err)
	}
	if poll.Interval == nil || *poll.Interval != time.Second {
		t.Errorf("expected interval override 1s, got %v", poll.Interval)
	}
	if poll.MaxDuration == nil || *poll.MaxDuration != 2*time.Minute {
		t.Errorf("expected max duration override 2m, got %v", poll.MaxDuration)
	}
	if poll.MaxAttempts == nil || *poll.MaxAttempts != 5 {
		t.Errorf("expected max attempts override 5, got %v", poll.MaxAttempts)
	}

	if cfg.Transport.RegionHeader != config.DefaultRegionHeader {
		t.Errorf("expected default region header, got %s", cfg.Transport.RegionHeader)
	}

	if cfg.Transport.CacheBust == nil || !*cfg.Transport.CacheBust {
		t.Error("expected cache bust to default to true")
	}

	if len(cfg.Scenarios) != 2 || cfg.Scenarios[1].Path != "./scenarios/custom.toml" {
		t.Errorf("unexpected scenarios %+v", cfg.Scenarios)
	}
}

func TestLoadRunConfigEnvOverride(t *testing.T) {
	t.Setenv("BUCKET", "from-env")
	t.Setenv("CONVERGENCE_REGIONS", "lhr, nrt")

	cfg, err := config.LoadRunConfig("")
	if err != nil {
		t.Fatalf("LoadRunConfig failed: %v", err)
	}

	if cfg.Bucket != "from-env" {
		t.Errorf("expected bucket from-env, got %s", cfg.Bucket)
	}

	if len(cfg.Regions) != 2 || cfg.Regions[1] != "nrt" {
		t.Errorf("expected regions [lhr nrt], got %v", cfg.Regions)
	}
}

func TestLoadRunConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "relative endpoint", yaml: "endpoint: storage.local\n"},
		{name: "bad interval", yaml: "poll:\n  interval: soon\n"},
		{name: "zero max duration", yaml: "poll:\n  max_duration: 0s\n"},
		{name: "bad payload size", yaml: "payload_size: huge\n"},
		{name: "payload over single put limit", yaml: "payload_size: 6GiB\n"},
		{name: "negative max attempts", yaml: "poll:\n  max_attempts: -1\n"},
		{name: "scenario with both", yaml: "scenarios:\n  - builtin: a\n    path: b.toml\n"},
		{name: "scenario with neither", yaml: "scenarios:\n  - {}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "run.yaml")
			if err := os.WriteFile(tmpFile, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("writing temp file: %v", err)
			}
			if _, err := config.LoadRunConfig(tmpFile); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := config.DefaultRunConfig()

	if cfg.ResultsDir != "results" {
		t.Errorf("expected default results_dir 'results', got %s", cfg.ResultsDir)
	}

	if cfg.Iterations != 10 {
		t.Errorf("expected default iterations 10, got %d", cfg.Iterations)
	}

	if cfg.PayloadSize != "1MiB" {
		t.Errorf("expected default payload_size 1MiB, got %s", cfg.PayloadSize)
	}

	if cfg.Transport.SigningService != "s3" {
		t.Errorf("expected default signing service s3, got %s", cfg.Transport.SigningService)
	}

	if cfg.NConcurrentTrials != 1 {
		t.Errorf("expected sequential trials by default, got %d", cfg.NConcurrentTrials)
	}

	if cfg.Poll.Interval != nil || cfg.Poll.MaxDuration != nil || cfg.Poll.MaxAttempts != nil {
		t.Errorf("expected no poll overrides by default, got %+v", cfg.Poll)
	}
}

func TestPollOverridesUnset(t *testing.T) {
	o, err := config.PollOverrides(config.DefaultRunConfig())
	if err != nil {
		t.Fatalf("PollOverrides failed: %v", err)
	}
	if o.Interval != nil || o.MaxDuration != nil || o.MaxAttempts != nil {
		t.Errorf("expected empty overrides, got %+v", o)
	}

	d := config.DefaultPollConfig()
	if d.Interval != config.DefaultPollInterval || d.MaxDuration != config.DefaultPollMaxDuration || d.MaxAttempts != 0 {
		t.Errorf("unexpected default poll config %+v", d)
	}
}
