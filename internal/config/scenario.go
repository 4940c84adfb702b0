package config

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/spachava753/convergence/internal/models"
)

// scenarioFile mirrors the on-disk layout of a scenario TOML file.
type scenarioFile struct {
	Name        string              `toml:"name"`
	Description string              `toml:"description"`
	Kind        string              `toml:"kind"`
	KeyPrefix   string              `toml:"key_prefix"`
	Predicate   string              `toml:"predicate"`
	Steps       []models.Step       `toml:"steps"`
	Targets     []models.ReadTarget `toml:"targets"`
	Poll        scenarioPoll        `toml:"poll"`
}

type scenarioPoll struct {
	Interval    string `toml:"interval"`
	MaxDuration string `toml:"max_duration"`
	MaxAttempts int    `toml:"max_attempts"`
	// Deprecated: use max_duration.
	MaxPollSeconds float64 `toml:"max_poll_seconds"`
}

// LoadScenarioConfig loads and parses a scenario TOML file from the given
// filesystem. Unknown keys are rejected so typos do not silently change
// which predicate runs.
func LoadScenarioConfig(fsys fs.FS, name string) (models.ScenarioSpec, error) {
	var spec models.ScenarioSpec

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return spec, fmt.Errorf("reading %s: %w", name, err)
	}

	var f scenarioFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return spec, fmt.Errorf("parsing %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return spec, fmt.Errorf("parsing %s: unknown keys: %s", name, strings.Join(keys, ", "))
	}

	if f.Name == "" {
		f.Name = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	if f.KeyPrefix == "" {
		f.KeyPrefix = f.Name
	}

	spec = models.ScenarioSpec{
		Name:        f.Name,
		Description: f.Description,
		Kind:        models.ScenarioKind(f.Kind),
		KeyPrefix:   f.KeyPrefix,
		Predicate:   models.PredicateKind(f.Predicate),
		Steps:       f.Steps,
		Targets:     f.Targets,
	}

	if f.Poll.Interval != "" {
		d, err := time.ParseDuration(f.Poll.Interval)
		if err != nil {
			return spec, fmt.Errorf("parsing %s: poll.interval: %w", name, err)
		}
		spec.Poll.Interval = d
	}

	// Handle legacy 'max_poll_seconds' if 'max_duration' is not explicitly set
	switch {
	case md.IsDefined("poll", "max_duration"):
		d, err := time.ParseDuration(f.Poll.MaxDuration)
		if err != nil {
			return spec, fmt.Errorf("parsing %s: poll.max_duration: %w", name, err)
		}
		spec.Poll.MaxDuration = d
	case md.IsDefined("poll", "max_poll_seconds"):
		spec.Poll.MaxDuration = time.Duration(f.Poll.MaxPollSeconds * float64(time.Second))
	}

	if f.Poll.MaxAttempts < 0 {
		return spec, fmt.Errorf("parsing %s: poll.max_attempts must not be negative", name)
	}
	spec.Poll.MaxAttempts = f.Poll.MaxAttempts

	return spec, nil
}
