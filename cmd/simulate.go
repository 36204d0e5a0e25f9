package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridsim/app"
	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/core/monitoring"
	"github.com/kilianp07/gridsim/infra/logger"
)

var (
	simSteps int
	simDelay time.Duration
	simSeed  uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the configured grid for a number of steps",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simSteps, "steps", 0, "number of steps (overrides simulation.steps)")
	simulateCmd.Flags().DurationVar(&simDelay, "delay", 0, "delay between steps (overrides simulation.step_delay_ms)")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "random seed (overrides simulation.seed)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applySimulateFlags(cmd, cfg)
	if err := cfg.Simulation.Validate(); err != nil {
		return err
	}

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer monitoring.Recover()
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

func applySimulateFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Simulation.Steps = simSteps
	}
	if flags.Changed("delay") {
		cfg.Simulation.StepDelayMS = int(simDelay / time.Millisecond)
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed = simSeed
	}
}
