package models

import "time"

// Status is the final classification of a trial.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusTimeout Status = "TIMEOUT"
	StatusError   Status = "ERROR"
)

// WinnerUnknown is reported when converged content matches no single writer.
const WinnerUnknown = "Unknown"

// WinnerNotApplicable is reported for concurrent-write trials that never converged.
const WinnerNotApplicable = "N/A"

// Trial is one scheduled execution of a scenario.
type Trial struct {
	ID        string // unique identifier
	Scenario  ScenarioSpec
	Iteration int // 1-based
	OutputDir string
}

// TrialOutcome is the immutable record of how a trial ended.
type TrialOutcome struct {
	Scenario  string      `json:"scenario"`
	Iteration int         `json:"iteration"`
	Key       string      `json:"key"`
	Status    Status      `json:"status"`
	Attempts  int         `json:"attempts"`
	Winner    string      `json:"winner,omitempty"`
	Error     *TrialError `json:"error"`
	// ConvergenceMs is nil when the trial did not converge.
	ConvergenceMs *float64      `json:"convergence_ms"`
	WriteMs       float64       `json:"write_ms"`
	Writes        []WriteRecord `json:"writes,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
}

// Converged reports whether a convergence time was recorded.
func (o TrialOutcome) Converged() bool {
	return o.ConvergenceMs != nil
}

type TrialError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}
