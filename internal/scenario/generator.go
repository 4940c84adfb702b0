package scenario

import (
	"crypto/rand"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/spachava753/convergence/internal/models"
)

// TrialPlan is everything one trial needs: a fresh key, fresh payloads and
// the operations to apply before polling.
type TrialPlan struct {
	Scenario  models.ScenarioSpec
	Iteration int
	Ref       models.ObjectRef
	// Payloads maps writer labels to the bytes that writer puts.
	Payloads map[string][]byte
	Groups   [][]models.Step
	Poll     models.PollConfig
	// ExpectedWriter is the last sequential writer. Empty when the final group
	// is concurrent or a delete.
	ExpectedWriter string
}

// Writers returns the writer labels in step order.
func (p TrialPlan) Writers() []string {
	var out []string
	for _, st := range p.Scenario.Steps {
		if st.Action == models.ActionPut {
			out = append(out, st.Writer)
		}
	}
	return out
}

// Options configures a Generator.
type Options struct {
	Endpoint    string
	Bucket      string
	Regions     []string
	PayloadSize int64
	// Consistent forces strict consistency on every step and target.
	Consistent bool
	// PollOverrides replace the poll fields they set on every scenario.
	PollOverrides models.PollOverrides
	// PollDefaults fill any poll field still zero after overrides.
	PollDefaults models.PollConfig
	// Rand is the payload source. Defaults to crypto/rand.
	Rand io.Reader
}

// Generator turns scenario specs into trial plans.
type Generator struct {
	opts Options
	rand io.Reader
}

// NewGenerator creates a generator.
func NewGenerator(opts Options) *Generator {
	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	return &Generator{opts: opts, rand: r}
}

// Resolve substitutes region placeholders, fills default writer labels and
// read modes, applies the run-wide consistency and poll overrides and
// validates.
func (g *Generator) Resolve(spec models.ScenarioSpec) (models.ScenarioSpec, error) {
	spec = clone(spec)

	puts := 0
	for i := range spec.Steps {
		st := &spec.Steps[i]
		region, err := g.region(st.Region)
		if err != nil {
			return spec, fmt.Errorf("scenario %q: steps[%d]: %w", spec.Name, i, err)
		}
		st.Region = region
		if st.Action == models.ActionPut {
			puts++
			if st.Writer == "" {
				st.Writer = fmt.Sprintf("put-%d", puts)
			} else if w, err := g.region(st.Writer); err == nil {
				st.Writer = w
			}
		}
		if g.opts.Consistent {
			st.Consistent = true
		}
	}

	for i := range spec.Targets {
		t := &spec.Targets[i]
		region, err := g.region(t.Region)
		if err != nil {
			return spec, fmt.Errorf("scenario %q: targets[%d]: %w", spec.Name, i, err)
		}
		t.Region = region
		if t.Read == "" {
			t.Read = models.ReadHead
		}
		if g.opts.Consistent {
			t.Consistent = true
		}
	}

	spec.Poll = g.pollConfig(spec.Poll)

	if err := Validate(spec); err != nil {
		return spec, err
	}
	return spec, nil
}

// region maps a role placeholder to a configured region. Literal regions
// and the empty default route pass through unchanged.
func (g *Generator) region(s string) (string, error) {
	idx := -1
	switch s {
	case PrimaryRegion:
		idx = 0
	case SecondaryRegion:
		idx = 1
	default:
		if isPlaceholder(s) {
			return s, fmt.Errorf("unknown region placeholder %s", s)
		}
		return s, nil
	}
	if idx >= len(g.opts.Regions) {
		return s, fmt.Errorf("region %s needs at least %d configured regions, have %d", s, idx+1, len(g.opts.Regions))
	}
	return g.opts.Regions[idx], nil
}

// Plan builds a fresh plan for one iteration of a resolved scenario.
func (g *Generator) Plan(spec models.ScenarioSpec, iteration int) (TrialPlan, error) {
	if len(spec.Steps) == 0 {
		return TrialPlan{}, fmt.Errorf("scenario %q has no steps", spec.Name)
	}
	plan := TrialPlan{
		Scenario:  spec,
		Iteration: iteration,
		Ref: models.ObjectRef{
			Endpoint: g.opts.Endpoint,
			Bucket:   g.opts.Bucket,
			Key:      strings.TrimSuffix(spec.KeyPrefix, "-") + "-" + uuid.NewString(),
		},
		Payloads: make(map[string][]byte),
		Groups:   spec.StepGroups(),
		Poll:     g.pollConfig(spec.Poll),
	}

	for _, st := range spec.Steps {
		if st.Action != models.ActionPut {
			continue
		}
		payload, err := g.payload()
		if err != nil {
			return plan, fmt.Errorf("generating payload for writer %q: %w", st.Writer, err)
		}
		plan.Payloads[st.Writer] = payload
	}

	if last := spec.Steps[len(spec.Steps)-1]; last.Action == models.ActionPut && !last.Concurrent {
		plan.ExpectedWriter = last.Writer
	}
	return plan, nil
}

func (g *Generator) payload() ([]byte, error) {
	buf := make([]byte, g.opts.PayloadSize)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (g *Generator) pollConfig(p models.PollConfig) models.PollConfig {
	o := g.opts.PollOverrides
	if o.Interval != nil {
		p.Interval = *o.Interval
	}
	if o.MaxDuration != nil {
		p.MaxDuration = *o.MaxDuration
	}
	if o.MaxAttempts != nil {
		p.MaxAttempts = *o.MaxAttempts
	}

	d := g.opts.PollDefaults
	if p.Interval == 0 {
		p.Interval = d.Interval
	}
	if p.MaxDuration == 0 {
		p.MaxDuration = d.MaxDuration
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Regions returns the distinct regions a plan touches, for logging.
func (p TrialPlan) Regions() []string {
	var out []string
	for _, st := range p.Scenario.Steps {
		out = append(out, models.ReadTarget{Region: st.Region}.Label())
	}
	for _, t := range p.Scenario.Targets {
		out = append(out, t.Label())
	}
	slices.Sort(out)
	return slices.Compact(out)
}
