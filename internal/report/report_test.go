package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/convergence/internal/models"
)

func ptr[T any](v T) *T { return &v }

func sampleResult() *models.RunResult {
	return &models.RunResult{
		RunName:      "nightly",
		TotalTrials:  4,
		PassedTrials: 2,
		PassRate:     0.5,
		Outcomes: []models.TrialOutcome{
			{Scenario: "concurrent-write", Iteration: 1, Status: models.StatusPass, Attempts: 6, ConvergenceMs: ptr(5000.0), Winner: "fra"},
			{Scenario: "concurrent-write", Iteration: 2, Status: models.StatusTimeout, Attempts: 60, Winner: models.WinnerNotApplicable,
				Error: &models.TrialError{Type: models.ErrConvergenceTimeout, Message: "no convergence"}},
			{Scenario: "strict-same-region", Iteration: 1, Status: models.StatusPass, Attempts: 1, ConvergenceMs: ptr(12.3456)},
			{Scenario: "strict-same-region", Iteration: 2, Status: models.StatusFail,
				Error: &models.TrialError{Type: models.ErrWriteFailed, Message: "put to sjc returned status 503"}},
		},
		Scenarios: map[string]models.ScenarioSummary{
			"concurrent-write":   {TotalTrials: 2, Passed: 1, TimedOut: 1, PassRate: 0.5, MeanConvergence: 5000, P50Convergence: 5000, MaxConvergence: 5000, Winners: map[string]int{"fra": 1}},
			"strict-same-region": {TotalTrials: 2, Passed: 1, Failed: 1, PassRate: 0.5, MeanConvergence: 12.3456, P50Convergence: 12.3456, MaxConvergence: 12.3456},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sampleResult())
	require.Len(t, rows, 4)

	assert.Equal(t, Row{Iteration: 1, Scenario: "concurrent-write", Convergence: "5000.00", Attempts: 6, Winner: "fra", Status: models.StatusPass}, rows[0])
	assert.Equal(t, Timeout, rows[1].Convergence)
	assert.Equal(t, models.WinnerNotApplicable, rows[1].Winner)
	assert.Equal(t, "convergence_timeout", rows[1].Error)
	assert.Equal(t, "12.35", rows[2].Convergence)
	assert.Empty(t, rows[2].Winner)
	assert.Equal(t, "-", rows[3].Convergence)
	assert.Equal(t, models.StatusFail, rows[3].Status)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleResult()))
	out := buf.String()

	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "ITERATION"))
	assert.Contains(t, lines[1], "concurrent-write")
	assert.Contains(t, lines[1], "fra")
	assert.Contains(t, lines[2], "TIMEOUT")
	assert.Contains(t, lines[4], "FAIL (write_failed)")

	assert.Contains(t, out, "fra=1")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "Run: nightly")
	assert.NotContains(t, out, "cancelled")
	assert.Less(t, strings.Index(out, "concurrent-write  "), strings.Index(out, "strict-same-region  "))
}

func TestWriteJSON(t *testing.T) {
	result := sampleResult()
	result.Cancelled = true

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, result))

	var decoded struct {
		RunName   string `json:"run_name"`
		Cancelled bool   `json:"cancelled"`
		Rows      []Row  `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "nightly", decoded.RunName)
	assert.True(t, decoded.Cancelled)
	assert.Equal(t, Rows(result), decoded.Rows)
}
