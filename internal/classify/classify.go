// Package classify turns what happened during a trial into a TrialOutcome.
package classify

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/poller"
	"github.com/spachava753/convergence/internal/scenario"
	"github.com/spachava753/convergence/internal/transport"
)

// PrerequisiteError reports a write or delete that did not succeed. Exactly
// one of StatusCode (non-2xx response) or Err (no usable response) is set.
type PrerequisiteError struct {
	Action     models.Action
	Writer     string
	Region     string
	StatusCode int
	Err        error
}

func (e *PrerequisiteError) Error() string {
	region := models.ReadTarget{Region: e.Region}.Label()
	if e.Err != nil {
		return fmt.Sprintf("%s to %s: %v", e.Action, region, e.Err)
	}
	return fmt.Sprintf("%s to %s returned status %d", e.Action, region, e.StatusCode)
}

func (e *PrerequisiteError) Unwrap() error {
	return e.Err
}

// Input is everything the classifier looks at.
type Input struct {
	Plan   scenario.TrialPlan
	Writes []models.WriteRecord
	// Prereq is the first failure while applying steps. When set, Session is nil.
	Prereq  error
	Session *poller.Session
}

// Classify maps a finished trial onto exactly one of PASS, FAIL, TIMEOUT or
// ERROR. Timing fields owned by the executor are left zero.
func Classify(in Input) models.TrialOutcome {
	out := models.TrialOutcome{
		Scenario:  in.Plan.Scenario.Name,
		Iteration: in.Plan.Iteration,
		Key:       in.Plan.Ref.Key,
		Writes:    in.Writes,
	}
	concurrent := in.Plan.Scenario.HasConcurrentWrites()
	if concurrent {
		out.Winner = models.WinnerNotApplicable
	}

	if in.Prereq != nil {
		out.Status, out.Error = prerequisiteFailure(in.Prereq)
		return out
	}
	if in.Session == nil {
		out.Status = models.StatusError
		out.Error = &models.TrialError{Type: models.ErrInternalError, Message: "trial finished without a poll session"}
		return out
	}

	s := in.Session
	out.Attempts = s.Attempts

	switch s.State {
	case poller.StateConverged:
		ms := float64(s.Elapsed.Microseconds()) / 1000
		out.Status = models.StatusPass
		out.ConvergenceMs = &ms
		if concurrent {
			out.Winner = ResolveWinner(s.Samples, in.Plan.Payloads, in.Writes)
		}
	case poller.StateTimedOut:
		out.Status = models.StatusTimeout
		out.Error = &models.TrialError{
			Type:    models.ErrConvergenceTimeout,
			Message: fmt.Sprintf("no convergence after %d attempts within %s", s.Attempts, s.MaxDuration),
		}
	case poller.StateErrored:
		out.Status, out.Error = pollFailure(s.Err)
	default:
		out.Status = models.StatusError
		out.Error = &models.TrialError{Type: models.ErrInternalError, Message: fmt.Sprintf("poll session left in state %q", s.State)}
	}
	return out
}

func prerequisiteFailure(err error) (models.Status, *models.TrialError) {
	var perr *PrerequisiteError
	if !errors.As(err, &perr) {
		return errorStatus(err)
	}
	if perr.Err != nil {
		return errorStatus(err)
	}

	errType := models.ErrWriteFailed
	if perr.Action == models.ActionDelete {
		errType = models.ErrDeleteFailed
	}
	return models.StatusFail, &models.TrialError{Type: errType, Message: err.Error()}
}

func pollFailure(err error) (models.Status, *models.TrialError) {
	if errors.Is(err, poller.ErrVerificationMismatch) {
		return models.StatusFail, &models.TrialError{Type: models.ErrVerificationMismatch, Message: err.Error()}
	}
	return errorStatus(err)
}

// errorStatus classifies errors that leave the trial without a verdict.
func errorStatus(err error) (models.Status, *models.TrialError) {
	errType := models.ErrInternalError
	var terr *transport.Error
	switch {
	case err == nil:
		err = errors.New("unknown error")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errType = models.ErrCancelled
	case transport.IsStructural(err):
		errType = models.ErrMalformedResponse
	case errors.As(err, &terr):
		errType = models.ErrTransport
	}
	return models.StatusError, &models.TrialError{Type: errType, Message: err.Error()}
}

// ResolveWinner names the writer whose payload the replicas converged on.
// Bodies are compared when any sample carries one; otherwise the served
// ETag is matched against the ETags the writes returned. Anything other
// than exactly one match is Unknown.
func ResolveWinner(samples []models.ReadSample, payloads map[string][]byte, writes []models.WriteRecord) string {
	for _, s := range samples {
		if !s.HasBody {
			continue
		}
		var matches []string
		for writer, payload := range payloads {
			if bytes.Equal(s.Body, payload) {
				matches = append(matches, writer)
			}
		}
		return single(matches)
	}

	for _, s := range samples {
		if s.ETag == "" {
			continue
		}
		var matches []string
		for _, w := range writes {
			if w.ETag == s.ETag && w.StatusCode >= 200 && w.StatusCode < 300 {
				matches = append(matches, w.Writer)
			}
		}
		return single(matches)
	}
	return models.WinnerUnknown
}

func single(matches []string) string {
	if len(matches) == 1 {
		return matches[0]
	}
	return models.WinnerUnknown
}
