package executor

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/spachava753/convergence/internal/config"
	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/poller"
	"github.com/spachava753/convergence/internal/scenario"
	"github.com/spachava753/convergence/internal/transport"
)

// TrialExecutor executes a single trial and returns its outcome.
type TrialExecutor interface {
	Execute(ctx context.Context, trial models.Trial) (*models.TrialOutcome, error)
}

// NewTrialExecutorFunc creates a TrialExecutor for one worker.
type NewTrialExecutorFunc func() TrialExecutor

// RunOrchestrator coordinates the execution of all trials in a run.
type RunOrchestrator struct {
	cfg         models.RunConfig
	scenarios   []models.ScenarioSpec
	newExecutor NewTrialExecutorFunc
	logger      *slog.Logger
}

// NewRunOrchestrator creates a new run orchestrator for resolved scenarios.
func NewRunOrchestrator(cfg models.RunConfig, scenarios []models.ScenarioSpec, executorFactory NewTrialExecutorFunc, logger *slog.Logger) *RunOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunOrchestrator{
		cfg:         cfg,
		scenarios:   scenarios,
		newExecutor: executorFactory,
		logger:      logger,
	}
}

// Run executes every iteration of every scenario. The returned result holds
// one outcome per started trial, ordered by scenario then iteration. A
// non-nil error means local state could not be written; the partial result
// is still returned when available.
func (o *RunOrchestrator) Run(ctx context.Context) (*models.RunResult, error) {
	startTime := time.Now()

	runName := startTime.Format("2006-01-02__15-04-05")
	if o.cfg.Name != nil {
		runName = *o.cfg.Name
	}
	runDir := filepath.Join(o.cfg.ResultsDir, runName)

	if _, err := os.Stat(runDir); err == nil {
		return nil, fmt.Errorf("run directory already exists: %s (will not overwrite existing results)", runDir)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	// Generate trials (scenarios × iterations)
	var trials []models.Trial
	for _, spec := range o.scenarios {
		for iteration := 1; iteration <= o.cfg.Iterations; iteration++ {
			trials = append(trials, models.Trial{
				ID:        fmt.Sprintf("%s__%d", spec.Name, iteration),
				Scenario:  spec,
				Iteration: iteration,
				OutputDir: filepath.Join(runDir, spec.Name),
			})
		}
	}

	// Save run config and the resolved scenarios
	if err := writeJSON(filepath.Join(runDir, "config.json"), o.cfg); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(runDir, "scenarios.json"), o.scenarios); err != nil {
		return nil, err
	}

	nWorkers := o.cfg.NConcurrentTrials
	if nWorkers <= 0 {
		nWorkers = 1
	}
	if nWorkers > len(trials) {
		nWorkers = max(len(trials), 1)
	}

	o.logger.Info("run started", "run", runName, "trials", len(trials), "workers", nWorkers, "dir", runDir)

	outcomes, skipped, fatal := o.runConcurrent(ctx, trials, nWorkers)

	result := o.aggregateResults(runName, outcomes, startTime)
	result.SkippedTrials = skipped
	if skipped > 0 || ctx.Err() != nil {
		result.Cancelled = true
	}

	if err := writeJSON(filepath.Join(runDir, "result.json"), result); err != nil {
		fatal = errors.Join(fatal, err)
	}

	o.logger.Info("run finished",
		"run", runName,
		"trials", result.TotalTrials,
		"passed", result.PassedTrials,
		"skipped", result.SkippedTrials,
		"duration_sec", result.TotalDurationSec)

	return result, fatal
}

// runConcurrent executes trials using a fan-out/fan-in pattern.
// Returns collected outcomes, the count of skipped trials and the first
// fatal error, which also stops feeding new trials.
func (o *RunOrchestrator) runConcurrent(ctx context.Context, trials []models.Trial, nWorkers int) ([]models.TrialOutcome, int, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	trialChan := make(chan models.Trial) // unbuffered
	resultChan := make(chan models.TrialOutcome, len(trials))

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	setFatal := func(err error) {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		if fatalErr == nil {
			fatalErr = err
			cancel(err)
		}
	}

	// Start workers
	for range nWorkers {
		wg.Go(func() {
			executor := o.newExecutor()

			for trial := range trialChan {
				outcome, err := executor.Execute(runCtx, trial)
				if err != nil {
					now := time.Now()
					outcome = &models.TrialOutcome{
						Scenario:  trial.Scenario.Name,
						Iteration: trial.Iteration,
						Status:    models.StatusError,
						Error: &models.TrialError{
							Type:    models.ErrInternalError,
							Message: err.Error(),
						},
						StartedAt: now,
						EndedAt:   now,
					}
					setFatal(err)
				}

				if err := os.MkdirAll(trial.OutputDir, 0755); err != nil {
					setFatal(fmt.Errorf("creating trial directory: %w", err))
				} else if err := writeJSON(filepath.Join(trial.OutputDir, strconv.Itoa(trial.Iteration)+".json"), outcome); err != nil {
					setFatal(err)
				}

				resultChan <- *outcome
			}
		})
	}

	// Feeder goroutine: sends trials to workers, respects context cancellation
	go func() {
		defer close(trialChan)
		for _, trial := range trials {
			select {
			case <-runCtx.Done():
				return
			case trialChan <- trial:
			}
		}
	}()

	// Wait for workers to finish, then close result channel
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var outcomes []models.TrialOutcome
	for outcome := range resultChan {
		outcomes = append(outcomes, outcome)
	}

	skipped := max(len(trials)-len(outcomes), 0)

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return outcomes, skipped, fatalErr
}

func (o *RunOrchestrator) aggregateResults(runName string, outcomes []models.TrialOutcome, startTime time.Time) *models.RunResult {
	order := make(map[string]int, len(o.scenarios))
	for i, s := range o.scenarios {
		order[s.Name] = i
	}
	slices.SortFunc(outcomes, func(a, b models.TrialOutcome) int {
		return cmp.Or(cmp.Compare(order[a.Scenario], order[b.Scenario]), cmp.Compare(a.Iteration, b.Iteration))
	})

	rr := &models.RunResult{
		RunName:     runName,
		TotalTrials: len(outcomes),
		StartedAt:   startTime,
		EndedAt:     time.Now(),
		Scenarios:   make(map[string]models.ScenarioSummary),
		Outcomes:    outcomes,
	}
	rr.TotalDurationSec = rr.EndedAt.Sub(rr.StartedAt).Seconds()

	byScenario := make(map[string][]models.TrialOutcome)
	for _, out := range outcomes {
		byScenario[out.Scenario] = append(byScenario[out.Scenario], out)
		if out.Status == models.StatusPass {
			rr.PassedTrials++
		}
	}
	if rr.TotalTrials > 0 {
		rr.PassRate = float64(rr.PassedTrials) / float64(rr.TotalTrials)
	}

	for name, outs := range byScenario {
		rr.Scenarios[name] = Summarize(outs)
	}
	return rr
}

// Summarize aggregates the outcomes of one scenario. Convergence statistics
// only cover trials that converged; p50 is the nearest-rank median.
func Summarize(outcomes []models.TrialOutcome) models.ScenarioSummary {
	s := models.ScenarioSummary{TotalTrials: len(outcomes)}
	var converged []float64

	for _, out := range outcomes {
		switch out.Status {
		case models.StatusPass:
			s.Passed++
		case models.StatusFail:
			s.Failed++
		case models.StatusTimeout:
			s.TimedOut++
		case models.StatusError:
			s.Errored++
		}
		if out.ConvergenceMs != nil {
			converged = append(converged, *out.ConvergenceMs)
		}
		if out.Winner != "" && out.Winner != models.WinnerNotApplicable {
			if s.Winners == nil {
				s.Winners = make(map[string]int)
			}
			s.Winners[out.Winner]++
		}
	}

	if s.TotalTrials > 0 {
		s.PassRate = float64(s.Passed) / float64(s.TotalTrials)
	}
	if len(converged) > 0 {
		slices.Sort(converged)
		var sum float64
		for _, ms := range converged {
			sum += ms
		}
		s.MeanConvergence = sum / float64(len(converged))
		s.P50Convergence = converged[(len(converged)-1)/2]
		s.MaxConvergence = converged[len(converged)-1]
	}
	return s
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// NewEnv builds the transport, generator and clock a run needs from its
// configuration.
func NewEnv(ctx context.Context, cfg models.RunConfig, logger *slog.Logger) (Env, error) {
	if logger == nil {
		logger = slog.Default()
	}

	payloadSize, err := config.PayloadBytes(cfg)
	if err != nil {
		return Env{}, err
	}
	pollOverrides, err := config.PollOverrides(cfg)
	if err != nil {
		return Env{}, err
	}
	timeout, err := config.RequestTimeout(cfg)
	if err != nil {
		return Env{}, err
	}

	var signer transport.Signer = transport.UnsignedSigner{}
	if !cfg.Transport.Unsigned {
		signer, err = transport.NewSigV4Signer(ctx, cfg.Transport.SigningRegion, cfg.Transport.SigningService)
		if err != nil {
			return Env{}, fmt.Errorf("creating request signer: %w", err)
		}
	}

	cacheBust := cfg.Transport.CacheBust == nil || *cfg.Transport.CacheBust
	client := transport.NewClient(transport.Options{
		RegionHeader:      cfg.Transport.RegionHeader,
		ConsistentHeader:  cfg.Transport.ConsistentHeader,
		CacheBust:         cacheBust,
		Timeout:           timeout,
		RequestsPerSecond: cfg.Transport.RequestsPerSecond,
		Burst:             cfg.Transport.Burst,
	}, signer, logger)

	gen := scenario.NewGenerator(scenario.Options{
		Endpoint:      cfg.Endpoint,
		Bucket:        cfg.Bucket,
		Regions:       cfg.Regions,
		PayloadSize:   payloadSize,
		Consistent:    cfg.Consistent,
		PollOverrides: pollOverrides,
		PollDefaults:  config.DefaultPollConfig(),
	})

	return Env{
		Transport: client,
		Generator: gen,
		Clock:     poller.RealClock(),
		Logger:    logger,
	}, nil
}

// RunFromConfig loads the scenarios a run config names and executes the run.
// Relative scenario paths resolve against baseDir.
func RunFromConfig(ctx context.Context, cfg models.RunConfig, baseDir string, logger *slog.Logger) (*models.RunResult, error) {
	env, err := NewEnv(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	specs, err := scenario.Load(env.Generator, cfg.Scenarios, baseDir)
	if err != nil {
		return nil, fmt.Errorf("loading scenarios: %w", err)
	}

	orchestrator := NewRunOrchestrator(cfg, specs, func() TrialExecutor {
		return NewTrialExecutor(env)
	}, env.Logger)

	return orchestrator.Run(ctx)
}
