// Package main implements the Kaya CLI: the Cobra-based command surface
// over the Router and Orchestrator core (§6).
//
// # File Index
//
//	main.go        - entry point, rootCmd, global flags, app bootstrap/teardown
//	cmd_status.go  - status
//	cmd_route.go   - route
//	cmd_run.go     - run, review
//	cmd_kaya.go    - kaya "<command>" (natural-language entry point)
//	cmd_hitl.go    - hitl list|get|resolve
//	cmd_metrics.go - metrics summary|<query>|trend
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose    bool
	workspace  string
	configPath string
	opTimeout  time.Duration

	logger  *zap.Logger
	kayaApp *app
)

var rootCmd = &cobra.Command{
	Use:   "kaya",
	Short: "Kaya - voice/text-driven test-authoring orchestrator",
	Long: `Kaya turns a high-level intent ("write a test for checkout", "fix all
test failures") into a routed, budget-aware pipeline of specialist workers:
Scribe authors tests, Critic reviews them, Runner executes them, Medic
repairs failures, and Gemini validates the result visually.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := bootstrap(ctx, ws, configPath)
		if err != nil {
			return fmt.Errorf("starting kaya: %w", err)
		}
		kayaApp = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if kayaApp != nil {
			kayaApp.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "policy document path (default: <workspace>/kaya.yaml)")
	rootCmd.PersistentFlags().DurationVar(&opTimeout, "timeout", 5*time.Minute, "operation timeout")

	rootCmd.AddCommand(
		statusCmd,
		routeCmd,
		runCmd,
		reviewCmd,
		kayaCmd,
		hitlCmd,
		metricsCmd,
	)
}

// commandContext derives a cancellable, timeout-bounded context from cmd
// and wires SIGINT/SIGTERM so an in-flight pipeline gets a chance to
// persist its last transition through the Hot Store instead of being
// killed mid-write.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
