// Package report renders run results for people and for other programs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spachava753/convergence/internal/models"
)

// Timeout is shown in place of a convergence time for timed-out trials.
const Timeout = "TIMEOUT"

// Row is one reported trial.
type Row struct {
	Iteration   int           `json:"iteration"`
	Scenario    string        `json:"scenario"`
	Convergence string        `json:"convergence"`
	Attempts    int           `json:"attempts"`
	Winner      string        `json:"winner,omitempty"`
	Status      models.Status `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// Rows converts outcomes to rows, keeping their order. Convergence is the
// elapsed time in milliseconds for converged trials, TIMEOUT for timed-out
// ones and "-" otherwise.
func Rows(result *models.RunResult) []Row {
	rows := make([]Row, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		row := Row{
			Iteration:   o.Iteration,
			Scenario:    o.Scenario,
			Convergence: "-",
			Attempts:    o.Attempts,
			Winner:      o.Winner,
			Status:      o.Status,
		}
		switch {
		case o.ConvergenceMs != nil:
			row.Convergence = strconv.FormatFloat(*o.ConvergenceMs, 'f', 2, 64)
		case o.Status == models.StatusTimeout:
			row.Convergence = Timeout
		}
		if o.Error != nil {
			row.Error = string(o.Error.Type)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteText writes the trial table followed by per-scenario totals.
func WriteText(w io.Writer, result *models.RunResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ITERATION\tSCENARIO\tCONVERGENCE (ms)\tATTEMPTS\tWINNER\tSTATUS")
	for _, r := range Rows(result) {
		winner := r.Winner
		if winner == "" {
			winner = "-"
		}
		status := string(r.Status)
		if r.Error != "" {
			status += " (" + r.Error + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", r.Iteration, r.Scenario, r.Convergence, r.Attempts, winner, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tTRIALS\tPASS\tFAIL\tTIMEOUT\tERROR\tPASS RATE\tMEAN (ms)\tP50 (ms)\tMAX (ms)\tWINNERS")
	for _, name := range scenarioOrder(result) {
		s := result.Scenarios[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.1f%%\t%.2f\t%.2f\t%.2f\t%s\n",
			name, s.TotalTrials, s.Passed, s.Failed, s.TimedOut, s.Errored, s.PassRate*100,
			s.MeanConvergence, s.P50Convergence, s.MaxConvergence, winners(s.Winners))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nRun: %s\n", result.RunName)
	fmt.Fprintf(w, "Trials: %d (skipped %d)\n", result.TotalTrials, result.SkippedTrials)
	fmt.Fprintf(w, "Pass rate: %.2f%%\n", result.PassRate*100)
	fmt.Fprintf(w, "Duration: %.2fs\n", result.TotalDurationSec)
	if result.Cancelled {
		fmt.Fprintln(w, "Run was cancelled before every trial finished.")
	}
	return nil
}

type jsonReport struct {
	RunName   string                            `json:"run_name"`
	Cancelled bool                              `json:"cancelled"`
	PassRate  float64                           `json:"pass_rate"`
	Rows      []Row                             `json:"rows"`
	Scenarios map[string]models.ScenarioSummary `json:"scenarios"`
}

// WriteJSON writes the rows and per-scenario totals as one JSON document.
func WriteJSON(w io.Writer, result *models.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		RunName:   result.RunName,
		Cancelled: result.Cancelled,
		PassRate:  result.PassRate,
		Rows:      Rows(result),
		Scenarios: result.Scenarios,
	})
}

// scenarioOrder lists scenario names in the order they first appear among
// the outcomes.
func scenarioOrder(result *models.RunResult) []string {
	var names []string
	for _, o := range result.Outcomes {
		if !slices.Contains(names, o.Scenario) {
			names = append(names, o.Scenario)
		}
	}
	return names
}

func winners(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, counts[name])
	}
	return strings.Join(parts, " ")
}
