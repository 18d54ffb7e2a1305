package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print queue depths, dropped events, and circuit breaker states (no session budget)",
	Long: `Reports the state of the process Kaya is currently running as: Task
Queue and HITL Queue depth, and the breaker state for every external
dependency named in the resilience policy (§4.5, §4.8, §4.9).

Since the Hot Store lives only for the current process, status reflects
this invocation's state, not a long-running daemon's — Kaya's CLI
commands are one-shot by design (§1 Non-goals).`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}

type statusReport struct {
	TaskQueueDepth int                    `json:"task_queue_depth"`
	HITLQueueDepth int                    `json:"hitl_queue_depth"`
	EventsDropped  int64                  `json:"events_dropped"`
	Breakers       map[string]interface{} `json:"breakers"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a := kayaApp
	breakerNames := []string{"anthropic_api", "gemini_api", "browser_tool"}
	breakers := make(map[string]interface{}, len(breakerNames))
	for _, name := range breakerNames {
		breakers[name] = a.circuits.Get(name).State()
	}

	stats, err := a.hitl.QueueStats()
	if err != nil {
		return fmt.Errorf("reading hitl queue stats: %w", err)
	}

	report := statusReport{
		TaskQueueDepth: a.hot.QueueDepth(),
		HITLQueueDepth: stats.QueueDepth,
		EventsDropped:  a.bus.DroppedCount(),
		Breakers:       breakers,
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Println("Kaya Status")
	fmt.Println("===========")
	fmt.Printf("Task queue depth:  %d\n", report.TaskQueueDepth)
	fmt.Printf("HITL queue depth:  %d\n", report.HITLQueueDepth)
	fmt.Printf("Events dropped:    %d\n", report.EventsDropped)
	fmt.Println()
	fmt.Println("Circuit breakers:")
	for _, name := range breakerNames {
		state := breakers[name]
		fmt.Printf("  %-14s %+v\n", name, state)
	}
	return nil
}
