package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kaya/internal/clock"
	"kaya/internal/domain"
	"kaya/internal/orchestrator"
)

const brainstormSystemPrompt = "You are Kaya, a test-authoring assistant. Answer briefly and concretely."

var kayaCmd = &cobra.Command{
	Use:   "kaya \"<command>\"",
	Short: "Parse a natural-language command and run the matching pipeline",
	Long: `The natural-language entry point (§4.4.3): classifies the given text
into an intent (create_test, iterative_fix, run_test, validate, status, or
the brainstorm fallback) and dispatches to the matching pipeline or
specialist. This is the same classifier the voice/text front end would
call before handing off to the orchestrator.`,
	Args: cobra.ExactArgs(1),
	RunE: runKaya,
}

func runKaya(cmd *cobra.Command, args []string) error {
	intent := orchestrator.ParseIntent(args[0])

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a := kayaApp

	switch intent.Kind {
	case orchestrator.KindCreateTest:
		feature := intent.Slots["feature"]
		sess, task := newSessionAndTask(a, feature)
		result := a.orc.RunFullPipeline(ctx, sess, task, intent.Slots["description"], feature)
		return printPipelineResult(result)

	case orchestrator.KindIterativeFix:
		sess, task := newSessionAndTask(a, "iterative_fix")
		result := a.orc.RunIterativeFixPipeline(ctx, sess, task, intent.Slots["path"])
		return printPipelineResult(result)

	case orchestrator.KindRunTest:
		req := domain.WorkerRequest{
			TaskID: clock.NewID(), SessionID: clock.NewID(), Kind: "execute_test",
			Payload: map[string]interface{}{"test_path": intent.Slots["path"]},
		}
		return printWorkerResult(a.runnerWorker.Run(ctx, req))

	case orchestrator.KindValidate:
		feature := intent.Slots["feature"]
		sess, task := newSessionAndTask(a, feature)
		result := a.orc.RunValidatePipeline(ctx, sess, task, orchestrator.DefaultTargetURL, feature, intent.Critical)
		return printPipelineResult(result)

	case orchestrator.KindStatus:
		return runStatus(cmd, args)

	default:
		return runBrainstorm(ctx, args[0])
	}
}

func newSessionAndTask(a *app, feature string) (*domain.Session, *domain.Task) {
	sess := domain.NewSession(clock.NewID(), a.clock.Now())
	_ = a.hot.PutSession(sess)
	task := &domain.Task{
		TaskID:    clock.NewID(),
		SessionID: sess.SessionID,
		Feature:   feature,
		CreatedAt: a.clock.Now(),
		Status:    domain.TaskQueued,
	}
	_ = a.hot.PutTask(task)
	return sess, task
}

func printPipelineResult(result orchestrator.PipelineResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding pipeline result: %w", err)
	}
	if result.Status != domain.TaskSucceeded {
		return fmt.Errorf("pipeline ended in %s: %s", result.Status, result.Reason)
	}
	return nil
}

// runBrainstorm handles any text that doesn't match a named intent (§4.4.3):
// a plain model completion on the cheapest tier, outside both pipelines.
func runBrainstorm(ctx context.Context, text string) error {
	reply, err := kayaApp.llm.Complete(ctx, kayaApp.cfg.Router.CheapestModel, brainstormSystemPrompt, text)
	if err != nil {
		return fmt.Errorf("brainstorm: %w", err)
	}
	fmt.Println(reply)
	return nil
}
