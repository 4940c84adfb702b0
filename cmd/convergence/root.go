package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/spachava753/convergence/internal/config"
	"github.com/spachava753/convergence/internal/executor"
	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/report"
	"github.com/spachava753/convergence/internal/scenario"
	"github.com/spachava753/convergence/internal/tracing"
)

var (
	// CLI flags for the run command. Set flags override run.yaml values.
	configPath   string        // Path to run.yaml
	runName      string        // Run name (results subdirectory)
	resultsDir   string        // Directory holding run results
	endpoint     string        // Storage endpoint URL
	bucket       string        // Bucket to test against
	regions      []string      // Regions, primary first
	payloadSize  string        // Payload size per write, e.g. 1MiB
	iterations   int           // Trials per scenario
	nConcurrent  int           // Trials executed in parallel
	consistent   bool          // Force strict consistency on every request
	pollInterval time.Duration // Poll interval for every scenario
	maxPoll      time.Duration // Poll deadline for every scenario
	maxAttempts  int           // Poll attempt cap for every scenario, 0 lifts it
	builtins     []string      // Built-in scenarios to run
	scenarioPath []string      // Scenario TOML files to run
	logLevel     string        // Log verbosity level
	metricsAddr  string        // Address for the Prometheus endpoint
	outputFormat string        // Result rendering: text or json
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:          "convergence",
	Short:        "Measure how quickly a multi-region object store converges",
	SilenceUsage: true,
}

// runCmd executes the configured scenarios
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run convergence scenarios and report per-trial outcomes",
	RunE:  runScenarios,
}

// scenariosCmd lists the built-in catalog
var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List built-in scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tPREDICATE\tINTERVAL\tMAX DURATION\tDESCRIPTION")
		for _, s := range scenario.Builtins() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, s.Kind, s.Predicate, s.Poll.Interval, s.Poll.MaxDuration, s.Description)
		}
		return tw.Flush()
	},
}

func runScenarios(cmd *cobra.Command, args []string) error {
	if err := checkOutput(outputFormat); err != nil {
		return err
	}
	cfg, err := config.LoadRunConfig(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(cmd.Context())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("interrupt received, shutting down gracefully...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	shutdown, err := tracing.Init(ctx, "convergence", cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, logger)
		defer stop()
	}

	baseDir := ""
	if configPath != "" {
		baseDir = filepath.Dir(configPath)
	}
	result, err := executor.RunFromConfig(ctx, cfg, baseDir, logger)
	if result != nil {
		if renderErr := render(cmd, result); renderErr != nil {
			err = errors.Join(err, renderErr)
		}
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		return err
	}
	if result.Cancelled {
		return errors.New("run cancelled")
	}
	return nil
}

// applyFlags copies explicitly set flags over file and environment values.
func applyFlags(cmd *cobra.Command, cfg *models.RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Name = &runName
	}
	if flags.Changed("results-dir") {
		cfg.ResultsDir = resultsDir
	}
	if flags.Changed("endpoint") {
		cfg.Endpoint = endpoint
	}
	if flags.Changed("bucket") {
		cfg.Bucket = bucket
	}
	if flags.Changed("regions") {
		cfg.Regions = regions
	}
	if flags.Changed("payload-size") {
		cfg.PayloadSize = payloadSize
	}
	if flags.Changed("iterations") {
		cfg.Iterations = iterations
	}
	if flags.Changed("n-concurrent") {
		cfg.NConcurrentTrials = nConcurrent
	}
	if flags.Changed("consistent") {
		cfg.Consistent = consistent
	}
	if flags.Changed("poll-interval") {
		s := pollInterval.String()
		cfg.Poll.Interval = &s
	}
	if flags.Changed("max-poll") {
		s := maxPoll.String()
		cfg.Poll.MaxDuration = &s
	}
	if flags.Changed("max-attempts") {
		n := maxAttempts
		cfg.Poll.MaxAttempts = &n
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("scenario") || flags.Changed("scenario-file") {
		cfg.Scenarios = nil
		for _, name := range builtins {
			cfg.Scenarios = append(cfg.Scenarios, models.ScenarioRef{Builtin: name})
		}
		for _, p := range scenarioPath {
			cfg.Scenarios = append(cfg.Scenarios, models.ScenarioRef{Path: p})
		}
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// serveMetrics exposes /metrics until the returned stop function is called.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}

// checkOutput rejects result formats render cannot produce.
func checkOutput(format string) error {
	switch strings.ToLower(format) {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text or json)", format)
}

func render(cmd *cobra.Command, result *models.RunResult) error {
	switch strings.ToLower(outputFormat) {
	case "json":
		return report.WriteJSON(cmd.OutOrStdout(), result)
	case "text":
		return report.WriteText(cmd.OutOrStdout(), result)
	}
	return checkOutput(outputFormat)
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to run.yaml (defaults apply when omitted)")
	runCmd.Flags().StringVar(&runName, "name", "", "Run name, used as the results subdirectory")
	runCmd.Flags().StringVar(&resultsDir, "results-dir", "results", "Directory holding run results")
	runCmd.Flags().StringVar(&endpoint, "endpoint", config.DefaultEndpoint, "Storage endpoint URL")
	runCmd.Flags().StringVar(&bucket, "bucket", config.DefaultBucket, "Bucket to test against")
	runCmd.Flags().StringSliceVar(&regions, "regions", []string{"sjc", "fra"}, "Comma-separated regions, primary first")
	runCmd.Flags().StringVar(&payloadSize, "payload-size", config.DefaultPayloadSize, "Payload size per write")
	runCmd.Flags().IntVarP(&iterations, "iterations", "n", 10, "Trials per scenario")
	runCmd.Flags().IntVar(&nConcurrent, "n-concurrent", 1, "Trials executed in parallel")
	runCmd.Flags().BoolVar(&consistent, "consistent", false, "Send the strict consistency directive on every request")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", config.DefaultPollInterval, "Poll interval, overriding every scenario")
	runCmd.Flags().DurationVar(&maxPoll, "max-poll", config.DefaultPollMaxDuration, "Poll deadline per trial, overriding every scenario")
	runCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Poll attempt cap per trial, overriding every scenario (0 means no cap)")
	runCmd.Flags().StringSliceVarP(&builtins, "scenario", "s", nil, "Built-in scenario to run (repeatable)")
	runCmd.Flags().StringSliceVar(&scenarioPath, "scenario-file", nil, "Scenario TOML file to run (repeatable)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Result format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scenariosCmd)
}
