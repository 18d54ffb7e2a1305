package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kaya/internal/clock"
	"kaya/internal/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Run the Runner specialist once against a test file",
	Long: `Executes a single test file through the Runner specialist and prints
its WorkerResult, without going through the Router or the Orchestrator's
fix loop (§4.3, §6).`,
	Args: cobra.ExactArgs(1),
	RunE: runRunnerOnce,
}

var reviewCmd = &cobra.Command{
	Use:   "review <path>",
	Short: "Run the Critic specialist once against a test file",
	Long: `Runs Critic's static-analysis rubric against a single generated test
file and prints its WorkerResult (approved/rejected plus issues),
without going through the Scribe<->Critic rewrite loop (§4.3, §6).`,
	Args: cobra.ExactArgs(1),
	RunE: runCriticOnce,
}

func printWorkerResult(result domain.WorkerResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding worker result: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("worker reported failure: %s", result.Error)
	}
	return nil
}

func runRunnerOnce(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	req := domain.WorkerRequest{
		TaskID:    clock.NewID(),
		SessionID: clock.NewID(),
		Kind:      "execute_test",
		Payload:   map[string]interface{}{"test_path": args[0]},
	}
	return printWorkerResult(kayaApp.runnerWorker.Run(ctx, req))
}

func runCriticOnce(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	req := domain.WorkerRequest{
		TaskID:    clock.NewID(),
		SessionID: clock.NewID(),
		Kind:      "pre_validate",
		Payload:   map[string]interface{}{"test_path": args[0]},
	}
	return printWorkerResult(kayaApp.criticWorker.Run(ctx, req))
}
