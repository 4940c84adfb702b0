// Package poller samples an object through one or more read paths until a
// convergence predicate holds, the deadline passes, or the attempt cap is
// reached.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spachava753/convergence/internal/metrics"
	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/transport"
)

// ErrVerificationMismatch means the metadata agreed but the bytes did not.
var ErrVerificationMismatch = errors.New("verification mismatch")

// State is the lifecycle state of a poll session.
type State string

const (
	StatePolling   State = "polling"
	StateConverged State = "converged"
	StateTimedOut  State = "timed_out"
	StateErrored   State = "errored"
)

// Session is the state of one poll loop. It is owned by the Poller while
// Run executes and is read-only afterwards.
type Session struct {
	Scenario    string
	Ref         models.ObjectRef
	Targets     []models.ReadTarget
	Expect      Expectation
	Interval    time.Duration
	MaxDuration time.Duration
	// MaxAttempts caps sample rounds. Zero means no cap.
	MaxAttempts int

	Start    time.Time
	Deadline time.Time
	State    State
	// Attempts counts issued sample rounds; the first round is attempt 1.
	Attempts int
	// Elapsed is set only when the session converged.
	Elapsed time.Duration
	// Samples holds the round that ended the session, if any.
	Samples         []models.ReadSample
	TransientErrors int
	Err             error
}

// NewSession creates a session from a poll configuration.
func NewSession(scenario string, ref models.ObjectRef, targets []models.ReadTarget, expect Expectation, cfg models.PollConfig) *Session {
	return &Session{
		Scenario:    scenario,
		Ref:         ref,
		Targets:     targets,
		Expect:      expect,
		Interval:    cfg.Interval,
		MaxDuration: cfg.MaxDuration,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// Poller drives sessions against a transport.
type Poller struct {
	transport transport.Transport
	clock     Clock
	logger    *slog.Logger
}

// New creates a poller. A nil clock uses real time.
func New(t transport.Transport, clock Clock, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{transport: t, clock: clock, logger: logger}
}

// Run polls until s reaches a terminal state.
func (p *Poller) Run(ctx context.Context, s *Session) {
	s.Start = p.clock.Now()
	s.Deadline = s.Start.Add(s.MaxDuration)
	s.State = StatePolling
	logger := p.logger.With("key", s.Ref.Key, "predicate", s.Expect.Predicate)

	defer func() {
		metrics.PollAttempts.WithLabelValues(s.Scenario).Observe(float64(s.Attempts))
	}()

	for p.clock.Now().Before(s.Deadline) {
		if s.MaxAttempts > 0 && s.Attempts >= s.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			s.fail(err)
			return
		}

		s.Attempts++
		samples, err := p.sampleRound(ctx, s)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			s.fail(ctx.Err())
			return
		case transport.IsStructural(err):
			logger.Warn("structural transport error ends poll", "attempt", s.Attempts, "error", err)
			s.fail(err)
			return
		default:
			s.TransientErrors++
			metrics.PollTransientErrors.WithLabelValues(s.Scenario).Inc()
			logger.Debug("transient transport error", "attempt", s.Attempts, "error", err)
		}

		if err == nil {
			switch s.Expect.evaluate(samples) {
			case converged:
				elapsed := p.clock.Now().Sub(s.Start)
				if elapsed >= s.MaxDuration {
					// The round finished past the deadline.
					s.State = StateTimedOut
					logger.Debug("converged after deadline", "attempts", s.Attempts, "elapsed", elapsed)
					return
				}
				s.Elapsed = elapsed
				s.Samples = samples
				s.State = StateConverged
				logger.Debug("converged", "attempts", s.Attempts, "elapsed", s.Elapsed)
				return
			case mismatch:
				s.Samples = samples
				s.fail(fmt.Errorf("%w at attempt %d", ErrVerificationMismatch, s.Attempts))
				return
			}
			logger.Debug("not converged", "attempt", s.Attempts)
		}

		if s.MaxAttempts > 0 && s.Attempts >= s.MaxAttempts {
			break
		}
		wait := s.Deadline.Sub(p.clock.Now())
		if wait <= 0 {
			break
		}
		if s.Interval < wait {
			wait = s.Interval
		}
		if err := p.clock.Sleep(ctx, wait); err != nil {
			s.fail(err)
			return
		}
	}

	s.State = StateTimedOut
	logger.Debug("poll timed out", "attempts", s.Attempts)
}

func (s *Session) fail(err error) {
	s.State = StateErrored
	s.Err = err
}

// sampleRound issues one read per target, in order, and returns once all
// samples are in.
func (p *Poller) sampleRound(ctx context.Context, s *Session) ([]models.ReadSample, error) {
	samples := make([]models.ReadSample, 0, len(s.Targets))
	for _, target := range s.Targets {
		sample, err := p.sample(ctx, s, target)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", target.Label(), err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (p *Poller) sample(ctx context.Context, s *Session, target models.ReadTarget) (models.ReadSample, error) {
	if target.Read != models.ReadHeadGet {
		return p.transport.Read(ctx, s.Ref, target)
	}

	headTarget := target
	headTarget.Read = models.ReadHead
	head, err := p.transport.Read(ctx, s.Ref, headTarget)
	if err != nil {
		return head, err
	}
	head.Target = target
	head.HeadStatusCode = head.StatusCode
	if !s.Expect.admitsHead(head) {
		return head, nil
	}

	getTarget := target
	getTarget.Read = models.ReadGet
	get, err := p.transport.Read(ctx, s.Ref, getTarget)
	if err != nil {
		return get, err
	}
	get.Target = target
	get.HeadStatusCode = head.StatusCode
	return get, nil
}
