package executor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/convergence/internal/classify"
	"github.com/spachava753/convergence/internal/metrics"
	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/poller"
	"github.com/spachava753/convergence/internal/scenario"
	"github.com/spachava753/convergence/internal/tracing"
	"github.com/spachava753/convergence/internal/transport"
)

// Env bundles the collaborators every trial needs.
type Env struct {
	Transport transport.Transport
	Generator *scenario.Generator
	Clock     poller.Clock
	Logger    *slog.Logger
}

// DefaultTrialExecutor runs a single trial: prerequisite steps, then the
// poll session, then classification.
type DefaultTrialExecutor struct {
	env    Env
	poller *poller.Poller
}

// NewTrialExecutor creates a new trial executor.
func NewTrialExecutor(env Env) *DefaultTrialExecutor {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	if env.Clock == nil {
		env.Clock = poller.RealClock()
	}
	return &DefaultTrialExecutor{
		env:    env,
		poller: poller.New(env.Transport, env.Clock, env.Logger),
	}
}

// Execute runs the trial and returns its outcome. An error means the trial
// could not be planned; every other failure is reported in the outcome.
func (e *DefaultTrialExecutor) Execute(ctx context.Context, trial models.Trial) (*models.TrialOutcome, error) {
	startedAt := time.Now()

	plan, err := e.env.Generator.Plan(trial.Scenario, trial.Iteration)
	if err != nil {
		return nil, fmt.Errorf("planning trial %s: %w", trial.ID, err)
	}

	ctx, span := tracing.StartTrial(ctx, plan.Scenario.Name, plan.Iteration, plan.Ref.Key)
	defer span.End()

	logger := e.env.Logger.With(
		"scenario", plan.Scenario.Name,
		"iteration", plan.Iteration,
		"key", plan.Ref.Key,
	)
	logger.Debug("trial started", "regions", plan.Regions())

	// Phase 1: prerequisite writes and deletes
	writeStart := time.Now()
	writes, prereqErr := e.applySteps(ctx, plan)
	writeDur := time.Since(writeStart)
	metrics.WriteSeconds.WithLabelValues(plan.Scenario.Name).Observe(writeDur.Seconds())

	// Phase 2: poll
	var session *poller.Session
	if prereqErr != nil {
		logger.Warn("prerequisite step failed", "error", prereqErr)
	} else {
		session = poller.NewSession(plan.Scenario.Name, plan.Ref, plan.Scenario.Targets, expectation(plan, writes), plan.Poll)
		pollCtx, pollSpan := tracing.StartPoll(ctx, string(plan.Scenario.Predicate), len(plan.Scenario.Targets))
		e.poller.Run(pollCtx, session)
		pollSpan.SetAttributes(
			attribute.Int("poll.attempts", session.Attempts),
			attribute.String("poll.state", string(session.State)),
			attribute.Int("poll.transient_errors", session.TransientErrors),
		)
		pollSpan.End()
	}

	// Phase 3: classify
	outcome := classify.Classify(classify.Input{
		Plan:    plan,
		Writes:  writes,
		Prereq:  prereqErr,
		Session: session,
	})
	outcome.WriteMs = float64(writeDur.Microseconds()) / 1000
	outcome.StartedAt = startedAt
	outcome.EndedAt = time.Now()

	recordOutcome(outcome)
	span.SetAttributes(attribute.String("trial.status", string(outcome.Status)))
	if outcome.Error != nil {
		span.SetStatus(codes.Error, outcome.Error.Message)
	}

	attrs := []any{"status", outcome.Status, "attempts", outcome.Attempts}
	if outcome.ConvergenceMs != nil {
		attrs = append(attrs, "convergence_ms", *outcome.ConvergenceMs)
	}
	if outcome.Winner != "" {
		attrs = append(attrs, "winner", outcome.Winner)
	}
	if outcome.Error != nil {
		attrs = append(attrs, "error_type", outcome.Error.Type, "error", outcome.Error.Message)
	}
	logger.Info("trial finished", attrs...)

	return &outcome, nil
}

// applySteps issues the plan's step groups in order. A concurrent group is
// joined before the next group starts; one writer failing does not cancel its
// siblings. Records come back in step order.
func (e *DefaultTrialExecutor) applySteps(ctx context.Context, plan scenario.TrialPlan) ([]models.WriteRecord, error) {
	var writes []models.WriteRecord

	for _, group := range plan.Groups {
		recs := make([]*models.WriteRecord, len(group))
		errs := make([]error, len(group))

		if len(group) == 1 {
			recs[0], errs[0] = e.applyStep(ctx, plan, group[0])
		} else {
			var g errgroup.Group
			for i, st := range group {
				g.Go(func() error {
					recs[i], errs[i] = e.applyStep(ctx, plan, st)
					return nil
				})
			}
			g.Wait()
		}

		for _, rec := range recs {
			if rec != nil {
				writes = append(writes, *rec)
			}
		}
		for _, err := range errs {
			if err != nil {
				return writes, err
			}
		}
	}
	return writes, nil
}

func (e *DefaultTrialExecutor) applyStep(ctx context.Context, plan scenario.TrialPlan, st models.Step) (*models.WriteRecord, error) {
	switch st.Action {
	case models.ActionPut:
		rec, err := e.env.Transport.Write(ctx, plan.Ref, st.Options(), plan.Payloads[st.Writer])
		rec.Writer = st.Writer
		if err != nil {
			return &rec, &classify.PrerequisiteError{Action: st.Action, Writer: st.Writer, Region: st.Region, Err: err}
		}
		if !success(rec.StatusCode) {
			return &rec, &classify.PrerequisiteError{Action: st.Action, Writer: st.Writer, Region: st.Region, StatusCode: rec.StatusCode}
		}
		return &rec, nil
	case models.ActionDelete:
		status, err := e.env.Transport.Delete(ctx, plan.Ref, st.Options())
		if err != nil {
			return nil, &classify.PrerequisiteError{Action: st.Action, Region: st.Region, Err: err}
		}
		if !success(status) {
			return nil, &classify.PrerequisiteError{Action: st.Action, Region: st.Region, StatusCode: status}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown action %q", st.Action)
	}
}

// expectation builds the poll predicate input. The expected ETag is the one
// the final sequential PUT returned, or the MD5 of its payload when the
// store sent none.
func expectation(plan scenario.TrialPlan, writes []models.WriteRecord) poller.Expectation {
	exp := poller.Expectation{Predicate: plan.Scenario.Predicate}
	if plan.Scenario.Predicate != models.PredicateExpectLatest {
		return exp
	}

	exp.Payload = plan.Payloads[plan.ExpectedWriter]
	for _, w := range writes {
		if w.Writer == plan.ExpectedWriter {
			exp.ETag = w.ETag
		}
	}
	if exp.ETag == "" {
		sum := md5.Sum(exp.Payload)
		exp.ETag = hex.EncodeToString(sum[:])
	}
	return exp
}

func recordOutcome(o models.TrialOutcome) {
	metrics.TrialsTotal.WithLabelValues(o.Scenario, string(o.Status)).Inc()
	if o.ConvergenceMs != nil {
		metrics.ConvergenceSeconds.WithLabelValues(o.Scenario).Observe(*o.ConvergenceMs / 1000)
	}
	if o.Winner != "" && o.Winner != models.WinnerNotApplicable {
		metrics.WinnersTotal.WithLabelValues(o.Scenario, o.Winner).Inc()
	}
}

func success(status int) bool {
	return status >= 200 && status < 300
}
