package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/faultsim/sim/experiment"
)

var (
	// Global flags
	logLevel    string // Log verbosity level
	metricsFile string // Prometheus text-format output written on exit

	// Experiment flags, shared by run and sweep
	configPath   string  // Experiment YAML file
	seed         int64   // Overrides the config seed
	replications int     // Overrides the number of replications per row
	horizon      float64 // Overrides the simulated time per replication
	workers      int     // Overrides the number of concurrent replications

	// Sweep flags
	sweepParam string  // Experiment parameter to vary
	sweepStart float64 // First swept value
	sweepEnd   float64 // Last swept value (inclusive)
	sweepStep  float64 // Increment between swept values
	csvPath    string  // Optional CSV export of the statistics rows
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "faultsim",
	Short: "Discrete-event simulator for failure and recovery processes",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd runs the replications of one experiment, ignoring any sweep in the config
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run replications of an experiment and report summary statistics",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd.Flags().Changed, false)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		cfg.Sweep = nil
		if err := execute(cmd.Context(), cfg, os.Stdout, ""); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
	},
}

// sweepCmd repeats the experiment for each value of a swept parameter
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep an experiment parameter and report one statistics row per value",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd.Flags().Changed, true)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if cfg.Sweep == nil {
			logrus.Fatalf("No sweep configured: add a sweep section to %s or pass --param, --start, --end and --step", configPath)
		}
		if err := execute(cmd.Context(), cfg, os.Stdout, csvPath); err != nil {
			logrus.Fatalf("Sweep failed: %v", err)
		}
	},
}

// kindsCmd lists the process kinds and statistics a config may name
var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List process kinds and statistic names",
	Run: func(cmd *cobra.Command, args []string) {
		listKinds(os.Stdout)
	},
}

// loadConfig reads --config and applies every flag the user set on top of it.
func loadConfig(changed func(string) bool, sweep bool) (*experiment.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := experiment.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, changed)
	if sweep {
		applySweepOverrides(cfg, changed)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags for %s: %w", configPath, err)
	}
	return cfg, nil
}

// applyOverrides copies explicitly set experiment flags into cfg. Flags left at their
// defaults never mask the file's values.
func applyOverrides(cfg *experiment.Config, changed func(string) bool) {
	if changed("seed") {
		s := seed
		cfg.Seed = &s
		logrus.Infof("CLI --seed %d overrides config seed", seed)
	}
	if changed("replications") {
		cfg.Replications = replications
	}
	if changed("horizon") {
		cfg.Horizon = horizon
	}
	if changed("workers") {
		cfg.Workers = workers
	}
}

func applySweepOverrides(cfg *experiment.Config, changed func(string) bool) {
	if !changed("param") && !changed("start") && !changed("end") && !changed("step") {
		return
	}
	if cfg.Sweep == nil {
		cfg.Sweep = &experiment.SweepSpec{}
	}
	if changed("param") {
		cfg.Sweep.Parameter = sweepParam
	}
	if changed("start") {
		cfg.Sweep.Start = sweepStart
	}
	if changed("end") {
		cfg.Sweep.End = sweepEnd
	}
	if changed("step") {
		cfg.Sweep.Step = sweepStep
	}
}

// execute runs cfg, prints the report to out, and writes the optional CSV and metrics files.
// Rows closed before a failure are still reported.
func execute(ctx context.Context, cfg *experiment.Config, out io.Writer, csvOut string) error {
	reg := prometheus.NewRegistry()
	e, err := experiment.New(cfg, reg)
	if err != nil {
		return err
	}

	startTime := time.Now()
	_, runErr := e.Run(ctx)

	keyHeader := "row"
	if cfg.Sweep != nil {
		keyHeader = cfg.Sweep.Parameter
	}
	if err := writeReport(out, e, keyHeader); err != nil {
		return err
	}
	if csvOut != "" {
		if err := writeCSVFile(csvOut, e, keyHeader); err != nil {
			return err
		}
		logrus.Infof("Statistics written to %s", csvOut)
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return fmt.Errorf("writing metrics to %s: %w", metricsFile, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	logrus.Infof("Simulation complete in %v", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func writeCSVFile(path string, e *experiment.Experiment, keyHeader string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := experiment.WriteCSV(f, e.Collector, keyHeader); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Execute runs the CLI root command. An interrupt cancels outstanding replications.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	for _, c := range []*cobra.Command{runCmd, sweepCmd} {
		c.Flags().StringVar(&configPath, "config", "", "Path to the experiment YAML file")
		c.Flags().Int64Var(&seed, "seed", 0, "Random seed (overrides the config seed)")
		c.Flags().IntVar(&replications, "replications", 0, "Replications per statistics row (overrides the config)")
		c.Flags().Float64Var(&horizon, "horizon", 0, "Simulated time per replication (overrides the config)")
		c.Flags().IntVar(&workers, "workers", 0, "Concurrent replications (overrides the config)")
	}

	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "Experiment parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepStart, "start", 0, "First swept value")
	sweepCmd.Flags().Float64Var(&sweepEnd, "end", 0, "Last swept value (inclusive)")
	sweepCmd.Flags().Float64Var(&sweepStep, "step", 0, "Increment between swept values")
	sweepCmd.Flags().StringVar(&csvPath, "csv", "", "Also write the statistics rows as CSV to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(kindsCmd)
}
