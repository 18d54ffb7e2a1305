package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kaya/internal/hitl"
)

var hitlAnnotation string

var hitlCmd = &cobra.Command{
	Use:   "hitl",
	Short: "HITL Queue operations (§4.8)",
}

var hitlListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued HITL tasks, highest priority first",
	RunE:  runHITLList,
}

var hitlGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one HITL task by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runHITLGet,
}

var hitlResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a HITL task with a human annotation",
	Long: `Attaches an Annotation (root cause, fix strategy, notes) to a HITL task
and archives it permanently to the Cold Store's hitl_annotations
collection (§4.7, §4.8). --annotation takes a JSON object matching
hitl.Annotation's fields.`,
	Args: cobra.ExactArgs(1),
	RunE: runHITLResolve,
}

func init() {
	hitlResolveCmd.Flags().StringVar(&hitlAnnotation, "annotation", "{}", "JSON-encoded hitl.Annotation")
	hitlResolveCmd.MarkFlagRequired("annotation")
	hitlCmd.AddCommand(hitlListCmd, hitlGetCmd, hitlResolveCmd)
}

func runHITLList(cmd *cobra.Command, args []string) error {
	tasks, err := kayaApp.hitl.List(0)
	if err != nil {
		return fmt.Errorf("listing hitl tasks: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tasks)
}

func runHITLGet(cmd *cobra.Command, args []string) error {
	task, err := kayaApp.hitl.Get(args[0])
	if err != nil {
		return fmt.Errorf("getting hitl task %s: %w", args[0], err)
	}
	if task == nil {
		return fmt.Errorf("hitl task %s not found", args[0])
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(task)
}

func runHITLResolve(cmd *cobra.Command, args []string) error {
	var ann hitl.Annotation
	if err := json.Unmarshal([]byte(hitlAnnotation), &ann); err != nil {
		return fmt.Errorf("parsing --annotation: %w", err)
	}
	resolvedBy := os.Getenv("USER")
	if resolvedBy == "" {
		resolvedBy = "operator"
	}
	if err := kayaApp.hitl.Resolve(args[0], resolvedBy, ann); err != nil {
		return fmt.Errorf("resolving hitl task %s: %w", args[0], err)
	}
	fmt.Printf("resolved %s\n", args[0])
	return nil
}
