// Command fleetctl is a thin reference consumer of pkg/engine, mirroring
// cmd/warren/main.go's persistent-flags + cobra.OnInitialize(initLogging)
// pattern. It parses flags into a types.RunConfig and calls engine.Run;
// argument-parsing mechanics live here, not in the engine, per spec §1's
// Non-goals.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/fleetop/pkg/clock"
	"github.com/cuemby/fleetop/pkg/engine"
	"github.com/cuemby/fleetop/pkg/fleetsvc/httpadapter"
	"github.com/cuemby/fleetop/pkg/log"
	"github.com/cuemby/fleetop/pkg/metrics"
	"github.com/cuemby/fleetop/pkg/report"
	"github.com/cuemby/fleetop/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "fleetctl - bounded-concurrency upgrade/rollback orchestrator for managed notebook instances",
	Long: `fleetctl moves a fleet of managed notebook compute instances between
software versions: upgrading to the provider's current-upgradeable version,
or rolling back to the previously captured one, within a bounded
maintenance window.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleetctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("project", "", "Cloud project/tenancy identifier (required)")
	cmd.Flags().StringSlice("location", nil, "Zone identifier to operate in (repeatable, required)")
	cmd.Flags().String("instance", "", "Restrict the run to a single instance's short name")
	cmd.Flags().Bool("dry-run", false, "Perform discovery and decision logic only; no mutations")
	cmd.Flags().Int("max-parallel", 10, "Maximum concurrent in-flight instance workers")
	cmd.Flags().Duration("operation-timeout", types.DefaultOperationTimeout, "Per-instance wall-clock budget for a mutation")
	cmd.Flags().Duration("poll-interval", types.DefaultPollInterval, "Operation/health poll cadence")
	cmd.Flags().Duration("health-check-timeout", types.DefaultHealthCheckTimeout, "Post-mutation health verification budget")
	cmd.Flags().Duration("stagger-delay", types.DefaultStaggerDelay, "Minimum spacing between successive worker dispatches")
	cmd.Flags().String("base-url", "", "Cloud provider control-plane base URL (required)")
	cmd.Flags().String("output-dir", ".", "Directory to write the JSON report into")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("base-url")
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade a fleet of instances to the provider's current-upgradeable version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFleet(cmd, types.OperationUpgrade)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll a fleet of instances back to their previously captured version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFleet(cmd, types.OperationRollback)
	},
}

func init() {
	addRunFlags(upgradeCmd)
	upgradeCmd.Flags().Bool("rollback-on-failure", false, "Automatically roll back an instance whose upgrade fails")

	addRunFlags(rollbackCmd)
}

func runFleet(cmd *cobra.Command, op types.OperationKind) error {
	cfg, baseURL, outputDir, err := buildRunConfig(cmd, op)
	if err != nil {
		return err
	}

	metricsAddr, _ := rootCmd.PersistentFlags().GetString("metrics-addr")
	if metricsAddr != "" {
		metrics.Serve(metricsAddr)
		fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)
	}

	svc := httpadapter.New(httpadapter.Config{
		BaseURL:     baseURL,
		BreakerName: "fleetctl",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.WithComponent("fleetctl")
	rpt, err := engine.Run(ctx, cfg, svc, clock.New(), logger)
	if err != nil {
		return fmt.Errorf("fleet run: %w", err)
	}

	path, err := report.WriteJSON(outputDir, rpt)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := report.WriteHuman(os.Stdout, rpt); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	fmt.Printf("\nReport written to %s\n", path)

	if rpt.Statistics.Failed > 0 {
		os.Exit(1)
	}
	return nil
}

func buildRunConfig(cmd *cobra.Command, op types.OperationKind) (types.RunConfig, string, string, error) {
	project, _ := cmd.Flags().GetString("project")
	locations, _ := cmd.Flags().GetStringSlice("location")
	instance, _ := cmd.Flags().GetString("instance")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	maxParallel, _ := cmd.Flags().GetInt("max-parallel")
	operationTimeout, _ := cmd.Flags().GetDuration("operation-timeout")
	pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
	healthCheckTimeout, _ := cmd.Flags().GetDuration("health-check-timeout")
	staggerDelay, _ := cmd.Flags().GetDuration("stagger-delay")
	baseURL, _ := cmd.Flags().GetString("base-url")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	var rollbackOnFailure bool
	if op == types.OperationUpgrade {
		rollbackOnFailure, _ = cmd.Flags().GetBool("rollback-on-failure")
	}

	cfg := types.RunConfig{
		Operation:          op,
		Project:            project,
		Locations:          locations,
		DryRun:             dryRun,
		MaxParallel:        maxParallel,
		OperationTimeout:   operationTimeout,
		PollInterval:       pollInterval,
		HealthCheckTimeout: healthCheckTimeout,
		StaggerDelay:       staggerDelay,
		RollbackOnFailure:  rollbackOnFailure,
	}
	if instance != "" {
		cfg.Instance = &instance
	}

	if err := cfg.Validate(); err != nil {
		return types.RunConfig{}, "", "", fmt.Errorf("%s: %w", types.ErrorConfigInvalid, err)
	}
	if baseURL == "" {
		return types.RunConfig{}, "", "", fmt.Errorf("%s: --base-url is required", types.ErrorConfigInvalid)
	}
	return cfg, baseURL, outputDir, nil
}
