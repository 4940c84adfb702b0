package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spachava753/convergence/internal/models"
)

// ErrInvalidScenario is wrapped by every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Validate checks that a resolved scenario can be executed.
func Validate(spec models.ScenarioSpec) error {
	if err := validate(spec); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidScenario, spec.Name, err)
	}
	return nil
}

func validate(spec models.ScenarioSpec) error {
	if spec.Name == "" {
		return errors.New("name is required")
	}
	if spec.KeyPrefix == "" {
		return errors.New("key_prefix is required")
	}

	switch spec.Kind {
	case models.KindSingleRegionWrite, models.KindConcurrentWrite, models.KindCrossRegionRead, models.KindDeletePropagation:
	default:
		return fmt.Errorf("unknown kind %q", spec.Kind)
	}

	if len(spec.Steps) == 0 {
		return errors.New("at least one step is required")
	}
	writers := make(map[string]bool)
	for i, st := range spec.Steps {
		switch st.Action {
		case models.ActionPut:
			if st.Writer == "" {
				return fmt.Errorf("steps[%d]: put requires a writer label", i)
			}
			if writers[st.Writer] {
				return fmt.Errorf("steps[%d]: duplicate writer %q", i, st.Writer)
			}
			writers[st.Writer] = true
		case models.ActionDelete:
			if st.Concurrent {
				return fmt.Errorf("steps[%d]: only puts may run concurrently", i)
			}
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, st.Action)
		}
		if isPlaceholder(st.Region) {
			return fmt.Errorf("steps[%d]: unresolved region %s", i, st.Region)
		}
	}

	if len(spec.Targets) == 0 {
		return errors.New("at least one read target is required")
	}
	for i, t := range spec.Targets {
		switch t.Read {
		case models.ReadHead, models.ReadGet, models.ReadHeadGet:
		default:
			return fmt.Errorf("targets[%d]: unknown read mode %q", i, t.Read)
		}
		if isPlaceholder(t.Region) {
			return fmt.Errorf("targets[%d]: unresolved region %s", i, t.Region)
		}
	}

	last := spec.Steps[len(spec.Steps)-1]
	switch spec.Predicate {
	case models.PredicateExpectLatest:
		if len(spec.Targets) != 1 {
			return fmt.Errorf("expect_latest needs exactly one target, got %d", len(spec.Targets))
		}
		if last.Action != models.ActionPut || last.Concurrent {
			return errors.New("expect_latest needs a final sequential put")
		}
	case models.PredicateAgreement:
		if len(spec.Targets) < 2 {
			return fmt.Errorf("agreement needs at least two targets, got %d", len(spec.Targets))
		}
		if !slices.ContainsFunc(spec.Targets, func(t models.ReadTarget) bool { return t.Read.ReadsBody() }) {
			return errors.New("agreement needs at least one get or head+get target")
		}
		if last.Action != models.ActionPut {
			return errors.New("agreement needs a final put")
		}
	case models.PredicateAbsent:
		if last.Action != models.ActionDelete {
			return errors.New("absent needs a final delete")
		}
	default:
		return fmt.Errorf("unknown predicate %q", spec.Predicate)
	}

	if spec.Poll.Interval < 0 || spec.Poll.MaxDuration < 0 || spec.Poll.MaxAttempts < 0 {
		return errors.New("poll settings must not be negative")
	}
	return nil
}

func isPlaceholder(region string) bool {
	return strings.HasPrefix(region, "{") && strings.HasSuffix(region, "}")
}
