package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/poller"
	"github.com/spachava753/convergence/internal/scenario"
	"github.com/spachava753/convergence/internal/transport"
)

func sequentialPlan() scenario.TrialPlan {
	return scenario.TrialPlan{
		Scenario: models.ScenarioSpec{
			Name:      "overwrite",
			Predicate: models.PredicateExpectLatest,
			Steps: []models.Step{
				{Action: models.ActionPut, Region: "sjc", Writer: "original"},
				{Action: models.ActionPut, Region: "sjc", Writer: "overwrite"},
			},
		},
		Iteration:      2,
		Ref:            models.ObjectRef{Key: "overwrite-test-1"},
		Payloads:       map[string][]byte{"original": []byte("one"), "overwrite": []byte("two")},
		ExpectedWriter: "overwrite",
	}
}

func concurrentPlan() scenario.TrialPlan {
	return scenario.TrialPlan{
		Scenario: models.ScenarioSpec{
			Name:      "concurrent",
			Predicate: models.PredicateAgreement,
			Steps: []models.Step{
				{Action: models.ActionPut, Region: "sjc", Writer: "A", Concurrent: true},
				{Action: models.ActionPut, Region: "fra", Writer: "B", Concurrent: true},
			},
		},
		Iteration: 1,
		Ref:       models.ObjectRef{Key: "simultaneous-write-test-1"},
		Payloads:  map[string][]byte{"A": []byte("PA"), "B": []byte("PB")},
	}
}

func bodySample(body string) models.ReadSample {
	return models.ReadSample{StatusCode: 200, ETag: "e", Body: []byte(body), HasBody: true}
}

func TestClassifyPass(t *testing.T) {
	s := &poller.Session{State: poller.StateConverged, Attempts: 4, Elapsed: 1500 * time.Microsecond}
	out := Classify(Input{Plan: sequentialPlan(), Session: s})

	assert.Equal(t, models.StatusPass, out.Status)
	assert.Equal(t, "overwrite", out.Scenario)
	assert.Equal(t, 2, out.Iteration)
	assert.Equal(t, "overwrite-test-1", out.Key)
	assert.Equal(t, 4, out.Attempts)
	require.True(t, out.Converged())
	assert.InDelta(t, 1.5, *out.ConvergenceMs, 1e-9)
	assert.Nil(t, out.Error)
	assert.Empty(t, out.Winner)
}

func TestClassifyTimeout(t *testing.T) {
	s := &poller.Session{State: poller.StateTimedOut, Attempts: 50, MaxDuration: 5 * time.Second}

	out := Classify(Input{Plan: sequentialPlan(), Session: s})
	assert.Equal(t, models.StatusTimeout, out.Status)
	assert.False(t, out.Converged())
	assert.Equal(t, 50, out.Attempts)
	require.NotNil(t, out.Error)
	assert.Equal(t, models.ErrConvergenceTimeout, out.Error.Type)
	assert.Empty(t, out.Winner)

	out = Classify(Input{Plan: concurrentPlan(), Session: s})
	assert.Equal(t, models.WinnerNotApplicable, out.Winner)
}

func TestClassifyPrerequisiteFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus models.Status
		wantType   models.ErrorType
	}{
		{
			name:       "put non-2xx",
			err:        &PrerequisiteError{Action: models.ActionPut, Region: "sjc", StatusCode: 503},
			wantStatus: models.StatusFail,
			wantType:   models.ErrWriteFailed,
		},
		{
			name:       "delete non-2xx",
			err:        &PrerequisiteError{Action: models.ActionDelete, Region: "sjc", StatusCode: 403},
			wantStatus: models.StatusFail,
			wantType:   models.ErrDeleteFailed,
		},
		{
			name: "put transport error",
			err: &PrerequisiteError{Action: models.ActionPut, Err: &transport.Error{
				Op: "PUT", URL: "u", Err: errors.New("connection refused"),
			}},
			wantStatus: models.StatusError,
			wantType:   models.ErrTransport,
		},
		{
			name: "put cancelled",
			err: &PrerequisiteError{Action: models.ActionPut, Err: &transport.Error{
				Op: "PUT", URL: "u", Err: context.Canceled,
			}},
			wantStatus: models.StatusError,
			wantType:   models.ErrCancelled,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: models.StatusError,
			wantType:   models.ErrInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Classify(Input{Plan: sequentialPlan(), Prereq: tt.err})
			assert.Equal(t, tt.wantStatus, out.Status)
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.wantType, out.Error.Type)
			assert.False(t, out.Converged())
			assert.Zero(t, out.Attempts)
		})
	}
}

func TestClassifyPollErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus models.Status
		wantType   models.ErrorType
	}{
		{"mismatch", fmt.Errorf("%w at attempt 2", poller.ErrVerificationMismatch), models.StatusFail, models.ErrVerificationMismatch},
		{"structural", &transport.Error{Op: "HEAD", Err: fmt.Errorf("%w: content-length", transport.ErrMalformedResponse)}, models.StatusError, models.ErrMalformedResponse},
		{"cancelled", context.Canceled, models.StatusError, models.ErrCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &poller.Session{State: poller.StateErrored, Attempts: 2, Err: tt.err}
			out := Classify(Input{Plan: sequentialPlan(), Session: s})
			assert.Equal(t, tt.wantStatus, out.Status)
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.wantType, out.Error.Type)
			assert.Equal(t, 2, out.Attempts)
		})
	}
}

func TestClassifyWithoutSession(t *testing.T) {
	out := Classify(Input{Plan: sequentialPlan()})
	assert.Equal(t, models.StatusError, out.Status)
	assert.Equal(t, models.ErrInternalError, out.Error.Type)
}

func TestClassifyConcurrentWinner(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"PA", "A"},
		{"PB", "B"},
		{"PC", models.WinnerUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			s := &poller.Session{
				State:    poller.StateConverged,
				Attempts: 1,
				Samples:  []models.ReadSample{bodySample(tt.body), bodySample(tt.body)},
			}
			out := Classify(Input{Plan: concurrentPlan(), Session: s})
			assert.Equal(t, models.StatusPass, out.Status)
			assert.Equal(t, tt.want, out.Winner)
		})
	}
}

func TestResolveWinnerIdenticalPayloadsIsUnknown(t *testing.T) {
	payloads := map[string][]byte{"A": []byte("same"), "B": []byte("same")}
	got := ResolveWinner([]models.ReadSample{bodySample("same")}, payloads, nil)
	assert.Equal(t, models.WinnerUnknown, got)
}

func TestResolveWinnerByETag(t *testing.T) {
	writes := []models.WriteRecord{
		{Writer: "A", ETag: "etag-a", StatusCode: 200},
		{Writer: "B", ETag: "etag-b", StatusCode: 200},
		{Writer: "C", ETag: "etag-c", StatusCode: 500},
	}
	head := func(etag string) []models.ReadSample {
		return []models.ReadSample{{StatusCode: 200, ETag: etag}}
	}

	assert.Equal(t, "B", ResolveWinner(head("etag-b"), nil, writes))
	assert.Equal(t, models.WinnerUnknown, ResolveWinner(head("etag-c"), nil, writes))
	assert.Equal(t, models.WinnerUnknown, ResolveWinner(nil, nil, writes))
}

func TestPrerequisiteErrorMessage(t *testing.T) {
	err := &PrerequisiteError{Action: models.ActionPut, StatusCode: 500}
	assert.Equal(t, "put to default returned status 500", err.Error())

	cause := errors.New("reset")
	wrapped := &PrerequisiteError{Action: models.ActionDelete, Region: "fra", Err: cause}
	assert.Equal(t, "delete to fra: reset", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}
