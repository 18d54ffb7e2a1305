package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	routePath    string
	routeExplain bool
)

var routeCmd = &cobra.Command{
	Use:   "route <task_type> \"<description>\"",
	Short: "Print the RouteDecision for a task without executing it",
	Long: `Runs the Router's policy against task_type/description/path and prints
the resulting worker assignment, model tier, and cost cap — the same
decision RunFullPipeline and RunIterativeFixPipeline would make, but
without invoking a worker (§4.1, §6).`,
	Args: cobra.ExactArgs(2),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routePath, "path", "", "candidate file path, for cost-override matching")
	routeCmd.Flags().BoolVar(&routeExplain, "explain", false, "also print the complexity verdict driving this decision")
}

func runRoute(cmd *cobra.Command, args []string) error {
	taskType, description := args[0], args[1]
	decision := kayaApp.router.Decide(taskType, description, routePath, "")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		return fmt.Errorf("encoding route decision: %w", err)
	}

	if routeExplain {
		fmt.Printf("complexity verdict: %s\n", complexityOf(description))
	}
	return nil
}
