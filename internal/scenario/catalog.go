package scenario

import (
	"slices"
	"time"

	"github.com/spachava753/convergence/internal/models"
)

// Region role placeholders, resolved against the run's region list.
const (
	PrimaryRegion   = "{primary}"
	SecondaryRegion = "{secondary}"
)

// builtins is the catalog listed by the scenarios command.
var builtins = []models.ScenarioSpec{
	{
		Name:        "overwrite-same-region",
		Description: "Overwrite an object in one region and read it back from the same region",
		Kind:        models.KindSingleRegionWrite,
		KeyPrefix:   "overwrite-test",
		Predicate:   models.PredicateExpectLatest,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: "original"},
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: "overwrite"},
		},
		Targets: []models.ReadTarget{{Region: PrimaryRegion, Read: models.ReadHeadGet}},
		Poll:    models.PollConfig{Interval: 100 * time.Millisecond, MaxDuration: 5 * time.Second},
	},
	{
		Name:        "delete-same-region",
		Description: "Delete an object and read immediately from the same region",
		Kind:        models.KindDeletePropagation,
		KeyPrefix:   "delete-test",
		Predicate:   models.PredicateAbsent,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: SecondaryRegion, Writer: "upload"},
			{Action: models.ActionDelete, Region: SecondaryRegion},
		},
		Targets: []models.ReadTarget{{Region: SecondaryRegion, Read: models.ReadHead}},
		Poll:    models.PollConfig{Interval: 100 * time.Millisecond, MaxDuration: time.Second},
	},
	{
		Name:        "write-read-global",
		Description: "Write to one region and read through default routing",
		Kind:        models.KindCrossRegionRead,
		KeyPrefix:   "global-replication-test",
		Predicate:   models.PredicateExpectLatest,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: "upload"},
		},
		Targets: []models.ReadTarget{{Read: models.ReadHeadGet}},
		Poll:    models.PollConfig{Interval: 100 * time.Millisecond, MaxDuration: 60 * time.Second},
	},
	{
		Name:        "overwrite-cross-region",
		Description: "Overwrite an object in one region and read through default routing",
		Kind:        models.KindCrossRegionRead,
		KeyPrefix:   "overwrite-cross-region-test",
		Predicate:   models.PredicateExpectLatest,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: "initial"},
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: "overwrite"},
		},
		Targets: []models.ReadTarget{{Read: models.ReadHeadGet}},
		Poll:    models.PollConfig{Interval: 100 * time.Millisecond, MaxDuration: 60 * time.Second},
	},
	{
		Name:        "delete-cross-region",
		Description: "Delete an object in one region and read through default routing",
		Kind:        models.KindDeletePropagation,
		KeyPrefix:   "delete-cross-region-test",
		Predicate:   models.PredicateAbsent,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: "upload"},
			{Action: models.ActionDelete, Region: PrimaryRegion},
		},
		Targets: []models.ReadTarget{{Read: models.ReadHead}},
		Poll:    models.PollConfig{Interval: 100 * time.Millisecond, MaxDuration: 600 * time.Second},
	},
	{
		Name:        "concurrent-write",
		Description: "Write different payloads to two regions at once and wait for agreement",
		Kind:        models.KindConcurrentWrite,
		KeyPrefix:   "simultaneous-write-test",
		Predicate:   models.PredicateAgreement,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: PrimaryRegion, Concurrent: true},
			{Action: models.ActionPut, Region: SecondaryRegion, Writer: SecondaryRegion, Concurrent: true},
		},
		Targets: []models.ReadTarget{
			{Region: PrimaryRegion, Read: models.ReadHeadGet},
			{Region: SecondaryRegion, Read: models.ReadHeadGet},
		},
		Poll: models.PollConfig{Interval: time.Second, MaxDuration: 60 * time.Second},
	},
	{
		Name:        "strict-same-region",
		Description: "Write and read in the same region with strict consistency",
		Kind:        models.KindSingleRegionWrite,
		KeyPrefix:   "strict-consistency-test",
		Predicate:   models.PredicateExpectLatest,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: SecondaryRegion, Writer: "upload"},
		},
		Targets: []models.ReadTarget{{Region: SecondaryRegion, Consistent: true, Read: models.ReadHeadGet}},
		Poll:    models.PollConfig{Interval: 100 * time.Millisecond, MaxDuration: 5 * time.Second, MaxAttempts: 1},
	},
	{
		Name:        "strict-cross-region",
		Description: "Overwrite in one region and read from another with strict consistency",
		Kind:        models.KindCrossRegionRead,
		KeyPrefix:   "overwrite-consistent-cross-region",
		Predicate:   models.PredicateExpectLatest,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: "overwrite"},
		},
		Targets: []models.ReadTarget{{Region: SecondaryRegion, Consistent: true, Read: models.ReadGet}},
		Poll:    models.PollConfig{Interval: time.Second, MaxDuration: 60 * time.Second, MaxAttempts: 60},
	},
	{
		Name:        "concurrent-strict-write",
		Description: "Concurrent strictly consistent writes to two regions",
		Kind:        models.KindConcurrentWrite,
		KeyPrefix:   "concurrent-consistent-write",
		Predicate:   models.PredicateAgreement,
		Steps: []models.Step{
			{Action: models.ActionPut, Region: PrimaryRegion, Writer: PrimaryRegion, Consistent: true, Concurrent: true},
			{Action: models.ActionPut, Region: SecondaryRegion, Writer: SecondaryRegion, Consistent: true, Concurrent: true},
		},
		Targets: []models.ReadTarget{
			{Region: PrimaryRegion, Consistent: true, Read: models.ReadGet},
			{Region: SecondaryRegion, Consistent: true, Read: models.ReadGet},
		},
		Poll: models.PollConfig{Interval: time.Second, MaxDuration: 60 * time.Second},
	},
}

// Builtin returns a copy of the named built-in scenario.
func Builtin(name string) (models.ScenarioSpec, bool) {
	for _, s := range builtins {
		if s.Name == name {
			return clone(s), true
		}
	}
	return models.ScenarioSpec{}, false
}

// Builtins returns copies of every built-in scenario in catalog order.
func Builtins() []models.ScenarioSpec {
	out := make([]models.ScenarioSpec, len(builtins))
	for i, s := range builtins {
		out[i] = clone(s)
	}
	return out
}

// Names lists the built-in scenario names in catalog order.
func Names() []string {
	names := make([]string, len(builtins))
	for i, s := range builtins {
		names[i] = s.Name
	}
	return names
}

func clone(s models.ScenarioSpec) models.ScenarioSpec {
	s.Steps = slices.Clone(s.Steps)
	s.Targets = slices.Clone(s.Targets)
	return s
}
