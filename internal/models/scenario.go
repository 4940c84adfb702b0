package models

import "time"

// ScenarioKind names the family a scenario belongs to.
type ScenarioKind string

const (
	KindSingleRegionWrite ScenarioKind = "single_region_write"
	KindConcurrentWrite   ScenarioKind = "concurrent_write"
	KindCrossRegionRead   ScenarioKind = "cross_region_read"
	KindDeletePropagation ScenarioKind = "delete_propagation"
)

// PredicateKind selects the convergence predicate evaluated on each attempt.
type PredicateKind string

const (
	// PredicateExpectLatest: one target serves the last sequential write.
	PredicateExpectLatest PredicateKind = "expect_latest"
	// PredicateAgreement: all targets serve identical etag and bytes.
	PredicateAgreement PredicateKind = "agreement"
	// PredicateAbsent: all targets report the object as not found.
	PredicateAbsent PredicateKind = "absent"
)

// Action is a prerequisite operation applied before polling.
type Action string

const (
	ActionPut    Action = "put"
	ActionDelete Action = "delete"
)

// Step is one prerequisite operation. Consecutive steps with Concurrent set
// form a group that is issued in parallel and joined before the next step.
type Step struct {
	Action     Action `toml:"action" yaml:"action" json:"action"`
	Region     string `toml:"region" yaml:"region" json:"region,omitempty"`
	Writer     string `toml:"writer" yaml:"writer" json:"writer,omitempty"`
	Consistent bool   `toml:"consistent" yaml:"consistent" json:"consistent,omitempty"`
	Concurrent bool   `toml:"concurrent" yaml:"concurrent" json:"concurrent,omitempty"`
}

// Options returns the routing directives for the step.
func (s Step) Options() RequestOptions {
	return RequestOptions{Region: s.Region, Consistent: s.Consistent}
}

// ReadTarget is one read path sampled on every poll attempt.
type ReadTarget struct {
	Region     string   `toml:"region" yaml:"region" json:"region,omitempty"`
	Consistent bool     `toml:"consistent" yaml:"consistent" json:"consistent,omitempty"`
	Read       ReadMode `toml:"read" yaml:"read" json:"read"`
}

// Options returns the routing directives for the target.
func (t ReadTarget) Options() RequestOptions {
	return RequestOptions{Region: t.Region, Consistent: t.Consistent}
}

// Label is a human readable name for the target.
func (t ReadTarget) Label() string {
	if t.Region == "" {
		return "default"
	}
	return t.Region
}

// PollConfig bounds a poll session.
type PollConfig struct {
	Interval    time.Duration `json:"interval"`
	MaxDuration time.Duration `json:"max_duration"`
	// MaxAttempts caps the number of sample rounds. Zero means no cap.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// ScenarioSpec describes one scenario variant consumed by the engine.
type ScenarioSpec struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Kind        ScenarioKind  `json:"kind"`
	KeyPrefix   string        `json:"key_prefix"`
	Predicate   PredicateKind `json:"predicate"`
	Steps       []Step        `json:"steps"`
	Targets     []ReadTarget  `json:"targets"`
	// Poll overrides the run-level poll settings field by field when non-zero.
	Poll PollConfig `json:"poll"`
}

// HasConcurrentWrites reports whether any put step runs in a parallel group.
func (s ScenarioSpec) HasConcurrentWrites() bool {
	for _, st := range s.Steps {
		if st.Concurrent && st.Action == ActionPut {
			return true
		}
	}
	return false
}

// StepGroups splits Steps into ordered groups. A group holds either one
// sequential step or a run of consecutive concurrent steps.
func (s ScenarioSpec) StepGroups() [][]Step {
	var groups [][]Step
	for i := 0; i < len(s.Steps); {
		if !s.Steps[i].Concurrent {
			groups = append(groups, []Step{s.Steps[i]})
			i++
			continue
		}
		j := i
		for j < len(s.Steps) && s.Steps[j].Concurrent {
			j++
		}
		groups = append(groups, s.Steps[i:j])
		i = j
	}
	return groups
}
