package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"kaya/internal/clock"
	"kaya/internal/coldstore"
	"kaya/internal/config"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/hitl"
	"kaya/internal/hotstore"
	"kaya/internal/ledger"
	"kaya/internal/logging"
	"kaya/internal/metrics"
	"kaya/internal/router"
)

// MaxRewriteAttempts bounds the Scribe<->Critic loop in the Full Pipeline
// (§4.4.1): beyond this many rejections, the task fails outright.
const MaxRewriteAttempts = 3

// MaxMedicInvocations bounds Medic calls per task across both the
// Runner-fail loop and the single post-validation retry (§4.4.1). Medic
// itself enforces the same ceiling per task_id via its own attempt
// counter and self-escalates past it; this is kept as a second,
// orchestrator-local backstop in case a task is replayed against a fresh
// Medic instance with no attempt history of its own.
const MaxMedicInvocations = 3

// MaxIterations bounds the Iterative Fix Pipeline (§4.4.2).
const MaxIterations = 5

// DefaultIterativeFixTimeout is the per-iteration Runner deadline
// (§4.4.2: "timeout=180s").
const DefaultIterativeFixTimeout = 180 * time.Second

// DefaultTargetURL is used for Gemini's browser validation when a
// pipeline run does not specify one. Kaya orchestrates test authoring
// against a dev server; which URL that server listens on is outside this
// package's scope (§1's "concrete vendor/app wiring is a non-goal"), so
// this is a reasonable default rather than a discovered value.
const DefaultTargetURL = "http://localhost:3000"

// ScribeWorker is the subset of the Scribe specialist the orchestrator needs.
type ScribeWorker interface {
	Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult
}

// CriticWorker is the subset of the Critic specialist the orchestrator needs.
type CriticWorker interface {
	Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult
}

// RunnerWorker is the subset of the Runner specialist the orchestrator needs.
type RunnerWorker interface {
	Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult
}

// MedicWorker is the subset of the Medic specialist the orchestrator needs.
type MedicWorker interface {
	Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult
}

// GeminiWorker is the subset of the Gemini specialist the orchestrator needs.
type GeminiWorker interface {
	Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult
}

// ColdStore is the subset of the Cold Store contract the orchestrator
// needs to archive a succeeded test's pattern (§4.4.1 step 7).
type ColdStore interface {
	Store(collection, id, text string, metadata map[string]interface{}) error
}

// Orchestrator wires the Router, the five specialists, and Kaya's shared
// state components (Hot Store, Cold Store, Cost Ledger, HITL Queue,
// Metrics Aggregator, Event Bus) into the two pipelines named in §4.4.
// It holds no shared mutable Task/Session state of its own (§5): every
// status transition and cost accumulation goes through the Hot Store.
type Orchestrator struct {
	router *router.Router
	hot    *hotstore.Store
	cold   ColdStore
	ledger *ledger.Ledger
	hitl   *hitl.Queue
	metrics *metrics.Recorder
	bus    *events.Bus
	clock  clock.Clock
	log    *logging.Logger

	scribe ScribeWorker
	critic CriticWorker
	runner RunnerWorker
	medic  MedicWorker
	gemini GeminiWorker

	criticalGlobs []string
}

// Deps bundles everything New needs. Cold may be nil (pattern archival
// and HITL annotation archival then silently no-op, mirroring how Scribe
// treats a nil Cold Store as "skip RAG" rather than an error).
type Deps struct {
	Router  *router.Router
	Hot     *hotstore.Store
	Cold    ColdStore
	Ledger  *ledger.Ledger
	HITL    *hitl.Queue
	Metrics *metrics.Recorder
	Bus     *events.Bus
	Clock   clock.Clock

	Scribe ScribeWorker
	Critic CriticWorker
	Runner RunnerWorker
	Medic  MedicWorker
	Gemini GeminiWorker

	// RouterConfig supplies the cost-override path globs used to decide
	// whether a budget-exceeding step is allowed to proceed anyway
	// (§4.4.4: "unless the task path matches a critical-path override").
	RouterConfig config.RouterConfig
}

// New builds an Orchestrator from deps.
func New(d Deps) *Orchestrator {
	c := d.Clock
	if c == nil {
		c = clock.Real
	}
	globs := make([]string, 0, len(d.RouterConfig.CostOverrides))
	for _, ov := range d.RouterConfig.CostOverrides {
		globs = append(globs, ov.PathGlob)
	}
	return &Orchestrator{
		router:        d.Router,
		hot:           d.Hot,
		cold:          d.Cold,
		ledger:        d.Ledger,
		hitl:          d.HITL,
		metrics:       d.Metrics,
		bus:           d.Bus,
		clock:         c,
		log:           logging.Get(logging.CategoryOrchestrator),
		scribe:        d.Scribe,
		critic:        d.Critic,
		runner:        d.Runner,
		medic:         d.Medic,
		gemini:        d.Gemini,
		criticalGlobs: globs,
	}
}

// PipelineResult is what either pipeline returns: the task's terminal
// status plus whatever detail explains it.
type PipelineResult struct {
	TaskID             string
	Status             domain.TaskStatus
	Reason             string
	TestPath           string
	IterationSummaries []string
}

var nonWordRun = regexp.MustCompile(`[^a-z0-9]+`)

// deriveTestPath mirrors Scribe's own output-path convention
// (tests/<feature>.spec.js) so the orchestrator has a concrete path to
// feed the Router's cost-override glob matching before Scribe has run
// even once.
func deriveTestPath(feature string) string {
	slug := strings.Trim(nonWordRun.ReplaceAllString(strings.ToLower(feature), "-"), "-")
	if slug == "" {
		slug = "feature"
	}
	return filepath.Join("tests", slug+".spec.js")
}

// deriveValidatePath mirrors deriveTestPath but appends a "-critical"
// marker when the intent carried an explicit critical flag (§4.4.3
// Scenario F: `validate payment flow - critical`), so the synthesized
// path (tests/<slug>-critical.spec.js) matches the default policy's
// `**/*-critical*` cost-override glob instead of the critical flag being
// accepted but never acted on.
func deriveValidatePath(feature string, critical bool) string {
	path := deriveTestPath(feature)
	if !critical {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-critical" + ext
}

func (o *Orchestrator) isCritical(path string) bool {
	if path == "" {
		return false
	}
	for _, g := range o.criticalGlobs {
		if ok, err := filepath.Match(g, path); err == nil && ok {
			return true
		}
		// Cost-override globs use doublestar "**" segments the stdlib
		// matcher does not understand; fall back to a prefix check on
		// the glob's literal segment before the first wildcard.
		if i := strings.IndexAny(g, "*?"); i > 0 && strings.HasPrefix(path, g[:i]) {
			return true
		}
	}
	return false
}

// checkBudget enforces §4.4.4's "session.cost_used + next.max_cost >
// session.cost_cap_total" rule. proceed is false only when the step must
// be refused outright; a warning band crossing still returns proceed=true
// after emitting budget_warning once.
func (o *Orchestrator) checkBudget(sess *domain.Session, path string, nextMaxCost float64) (proceed bool, reason string) {
	projected := sess.CostUsed + nextMaxCost
	if projected > sess.CostCapTotal && !o.isCritical(path) {
		o.bus.Emit(events.BudgetExceeded, map[string]interface{}{
			"session_id": sess.SessionID, "cost_used": sess.CostUsed, "next_max_cost": nextMaxCost,
		})
		return false, "budget_exceeded"
	}
	if projected >= sess.CostCapWarn && !sess.BudgetWarned {
		sess.BudgetWarned = true
		o.bus.Emit(events.BudgetWarning, map[string]interface{}{
			"session_id": sess.SessionID, "cost_used": sess.CostUsed, "cost_cap_warn": sess.CostCapWarn,
		})
		if err := o.hot.PutSession(sess); err != nil {
			o.log.Warn("could not persist budget_warned flag for session %s: %v", sess.SessionID, err)
		}
	}
	return true, ""
}

// recordCost folds a worker result's cost into the session and task
// totals, appends a Cost Ledger entry, and feeds the Metrics Aggregator
// (§4.4.4, §4.6, §4.12).
func (o *Orchestrator) recordCost(sess *domain.Session, taskID string, worker domain.WorkerID, modelID string, result domain.WorkerResult) {
	newTotal, err := o.hot.AddSessionCost(sess.SessionID, result.CostUSD)
	if err != nil {
		o.log.Warn("could not record session cost for %s: %v", sess.SessionID, err)
	} else {
		sess.CostUsed = newTotal
	}
	if _, err := o.hot.AddTaskCost(taskID, result.CostUSD); err != nil {
		o.log.Warn("could not record task cost for %s: %v", taskID, err)
	}
	o.ledger.Log(domain.CostEntry{
		Timestamp: o.clock.Now(),
		SessionID: sess.SessionID,
		TaskID:    taskID,
		Worker:    worker,
		Model:     modelID,
		CostUSD:   result.CostUSD,
	})
	o.metrics.RecordModelUsage(modelID, result.DurationMS, result.CostUSD)
	o.metrics.RecordAgentDuration(string(worker), result.DurationMS)

	if sess.CostUsed >= sess.CostCapWarn && !sess.BudgetWarned {
		sess.BudgetWarned = true
		o.bus.Emit(events.BudgetWarning, map[string]interface{}{
			"session_id": sess.SessionID, "cost_used": sess.CostUsed, "cost_cap_warn": sess.CostCapWarn,
		})
		if err := o.hot.PutSession(sess); err != nil {
			o.log.Warn("could not persist budget_warned flag for session %s: %v", sess.SessionID, err)
		}
	}
}

func (o *Orchestrator) transition(taskID string, expected, next domain.TaskStatus) error {
	if err := o.hot.CompareAndSetStatus(taskID, expected, next); err != nil {
		o.log.Warn("task %s status transition %s->%s failed: %v", taskID, expected, next, err)
		return err
	}
	return nil
}

func (o *Orchestrator) fail(task *domain.Task, from domain.TaskStatus, reason string) PipelineResult {
	o.transition(task.TaskID, from, domain.TaskFailed)
	return PipelineResult{TaskID: task.TaskID, Status: domain.TaskFailed, Reason: reason}
}

// RunFullPipeline implements §4.4.1's create_test pipeline end to end.
func (o *Orchestrator) RunFullPipeline(ctx context.Context, sess *domain.Session, task *domain.Task, description, feature string) PipelineResult {
	if err := o.transition(task.TaskID, domain.TaskQueued, domain.TaskInProgress); err != nil {
		return PipelineResult{TaskID: task.TaskID, Status: domain.TaskFailed, Reason: "could not start task"}
	}

	testPath := deriveTestPath(feature)
	rewriteAttempts := 0
	medicInvocations := 0
	validateRetried := false
	status := domain.TaskInProgress

	// Step 1/2: Scribe, with the Scribe<->Critic rewrite loop of step 3
	// wrapped around it.
writeLoop:
	for {
		r1 := o.router.Decide("write_test", description, testPath, "")
		if proceed, reason := o.checkBudget(sess, testPath, r1.MaxCostUS); !proceed {
			o.transition(task.TaskID, status, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: testPath}
		}

		scribeResult := o.scribe.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "write_test",
			Payload: map[string]interface{}{"description": description, "feature": feature, "output_path": testPath},
			BudgetUSD: r1.MaxCostUS, Deadline: task.CreatedAt,
		}, r1.ModelID)
		o.recordCost(sess, task.TaskID, domain.WorkerScribe, r1.ModelID, scribeResult)

		if !scribeResult.OK {
			o.hot.IncrementAttemptCount(task.TaskID)
			return o.fail(task, status, fmt.Sprintf("scribe failed: %s", scribeResult.Error))
		}
		if p, ok := scribeResult.Data["test_path"].(string); ok && p != "" {
			testPath = p
		}

		// Step 3: Critic pre-validation.
		r2 := o.router.Decide("pre_validate", description, testPath, "")
		if proceed, reason := o.checkBudget(sess, testPath, r2.MaxCostUS); !proceed {
			o.transition(task.TaskID, status, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: testPath}
		}
		criticResult := o.critic.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "pre_validate",
			Payload: map[string]interface{}{"test_path": testPath, "critical_path": o.isCritical(testPath)},
		})
		decision, _ := criticResult.Data["decision"].(string)
		o.metrics.RecordCriticDecision(decision == "approved")

		if decision != "rejected" {
			break writeLoop
		}

		rewriteAttempts++
		if rewriteAttempts > MaxRewriteAttempts {
			return o.fail(task, status, "critic_rejected_max_retries")
		}
		issues, _ := criticResult.Data["issues"].([]string)
		description = description + "\nAddress these issues: " + strings.Join(issues, "; ")
	}

	// Steps 4/5: Runner<->Medic loop.
runLoop:
	for {
		r3 := o.router.Decide("execute_test", description, testPath, "")
		if proceed, reason := o.checkBudget(sess, testPath, r3.MaxCostUS); !proceed {
			o.transition(task.TaskID, status, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: testPath}
		}
		runResult := o.runner.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "execute_test",
			Payload: map[string]interface{}{"test_path": testPath},
		})
		o.recordCost(sess, task.TaskID, domain.WorkerRunner, r3.ModelID, runResult)

		runStatus, _ := runResult.Data["status"].(string)
		if runStatus == "pass" {
			break runLoop
		}

		if medicInvocations >= MaxMedicInvocations {
			o.hot.IncrementAttemptCount(task.TaskID)
			return o.fail(task, status, "medic_invocation_limit_reached")
		}

		failures, _ := runResult.Data["failures"].([]domain.FailureRecord)
		failureMessage, failureExcerpt := firstFailure(failures)

		r4 := o.router.Decide("fix_bug", description, testPath, "")
		if proceed, reason := o.checkBudget(sess, testPath, r4.MaxCostUS); !proceed {
			o.transition(task.TaskID, status, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: testPath}
		}
		medicResult := o.medic.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "fix_bug",
			Payload: map[string]interface{}{
				"test_path": testPath, "feature": feature,
				"failure_message": failureMessage, "failure_excerpt": failureExcerpt,
			},
		}, r4.ModelID)
		o.recordCost(sess, task.TaskID, domain.WorkerMedic, r4.ModelID, medicResult)
		medicInvocations++

		outcome, _ := medicResult.Data["outcome"].(string)
		if outcome == "escalated_to_hitl" {
			return o.escalate(task, status, medicResult, testPath)
		}
		// fix_applied: loop back to step 4 with the same test path.
	}

	// Step 6: Gemini validation.
	for {
		r5 := o.router.Decide("validate", description, testPath, "")
		if proceed, reason := o.checkBudget(sess, testPath, r5.MaxCostUS); !proceed {
			o.transition(task.TaskID, status, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: testPath}
		}
		geminiResult := o.gemini.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "validate",
			Payload: map[string]interface{}{"target_url": DefaultTargetURL, "test_path": testPath, "enable_ai_analysis": true},
		}, r5.ModelID)
		o.recordCost(sess, task.TaskID, domain.WorkerGemini, r5.ModelID, geminiResult)

		passed, _ := geminiResult.Data["passed"].(bool)
		o.metrics.RecordValidation(passed)
		if passed {
			break
		}

		if validateRetried || medicInvocations >= MaxMedicInvocations {
			return o.fail(task, status, "validation_failed_after_retry")
		}
		validateRetried = true

		r4 := o.router.Decide("fix_bug", description, testPath, "")
		if proceed, reason := o.checkBudget(sess, testPath, r4.MaxCostUS); !proceed {
			o.transition(task.TaskID, status, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: testPath}
		}
		reasons, _ := geminiResult.Data["reasons"].([]string)
		medicResult := o.medic.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "fix_bug",
			Payload: map[string]interface{}{
				"test_path": testPath, "feature": feature,
				"failure_message": "gemini rubric failed", "failure_excerpt": strings.Join(reasons, "; "),
			},
		}, r4.ModelID)
		o.recordCost(sess, task.TaskID, domain.WorkerMedic, r4.ModelID, medicResult)
		medicInvocations++

		outcome, _ := medicResult.Data["outcome"].(string)
		if outcome == "escalated_to_hitl" {
			return o.escalate(task, status, medicResult, testPath)
		}
		// fix_applied: re-run Runner once before re-validating through the
		// top of this loop.
		r3 := o.router.Decide("execute_test", description, testPath, "")
		if proceed, reason := o.checkBudget(sess, testPath, r3.MaxCostUS); !proceed {
			o.transition(task.TaskID, status, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: testPath}
		}
		runResult := o.runner.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "execute_test",
			Payload: map[string]interface{}{"test_path": testPath},
		})
		o.recordCost(sess, task.TaskID, domain.WorkerRunner, r3.ModelID, runResult)
		if runStatus, _ := runResult.Data["status"].(string); runStatus != "pass" {
			// The patch fixed the rubric's concern but not this failure:
			// out of budget for this path, since only one post-validation
			// retry is allowed (§4.4.1 step 6).
			return o.fail(task, status, "fix_did_not_resolve_failure")
		}
	}

	// Step 7: archive pattern, mark succeeded.
	if o.cold != nil {
		meta := map[string]interface{}{"feature": feature, "test_path": testPath}
		if err := o.cold.Store(coldstore.CollectionTestSuccess, task.TaskID, description, meta); err != nil {
			o.log.Warn("could not archive succeeded pattern for task %s: %v", task.TaskID, err)
		}
	}
	o.transition(task.TaskID, status, domain.TaskSucceeded)

	finalTask, ok, _ := o.hot.GetTask(task.TaskID)
	attempts := task.AttemptCount
	totalCost := sess.CostUsed
	if ok {
		attempts = finalTask.AttemptCount
		totalCost = finalTask.TotalCost
	}
	o.metrics.RecordFeatureCompletion(feature, totalCost, attempts, o.clock.Now().Sub(task.CreatedAt).Milliseconds())

	return PipelineResult{TaskID: task.TaskID, Status: domain.TaskSucceeded, TestPath: testPath}
}

// RunValidatePipeline implements the standalone validate intent (§4.4.3
// Scenario F): a single Gemini validation run through the Router and
// session budget machinery, the same way RunFullPipeline's own step 6
// does, instead of calling the Gemini worker directly and skipping both.
func (o *Orchestrator) RunValidatePipeline(ctx context.Context, sess *domain.Session, task *domain.Task, targetURL, feature string, critical bool) PipelineResult {
	if err := o.transition(task.TaskID, domain.TaskQueued, domain.TaskInProgress); err != nil {
		return PipelineResult{TaskID: task.TaskID, Status: domain.TaskFailed, Reason: "could not start task"}
	}

	path := deriveValidatePath(feature, critical)

	r := o.router.Decide("validate", feature, path, "")
	if proceed, reason := o.checkBudget(sess, path, r.MaxCostUS); !proceed {
		o.transition(task.TaskID, domain.TaskInProgress, domain.TaskBudgetExceeded)
		return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: path}
	}

	geminiResult := o.gemini.Run(ctx, domain.WorkerRequest{
		TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "validate",
		Payload: map[string]interface{}{"target_url": targetURL, "test_path": path, "enable_ai_analysis": true},
	}, r.ModelID)
	o.recordCost(sess, task.TaskID, domain.WorkerGemini, r.ModelID, geminiResult)

	if !geminiResult.OK {
		return o.fail(task, domain.TaskInProgress, fmt.Sprintf("gemini failed: %s", geminiResult.Error))
	}

	passed, _ := geminiResult.Data["passed"].(bool)
	o.metrics.RecordValidation(passed)
	if !passed {
		reasons, _ := geminiResult.Data["reasons"].([]string)
		return o.fail(task, domain.TaskInProgress, "validation_failed: "+strings.Join(reasons, "; "))
	}

	o.transition(task.TaskID, domain.TaskInProgress, domain.TaskSucceeded)
	return PipelineResult{TaskID: task.TaskID, Status: domain.TaskSucceeded, TestPath: path}
}

func (o *Orchestrator) escalate(task *domain.Task, from domain.TaskStatus, medicResult domain.WorkerResult, testPath string) PipelineResult {
	reason, _ := medicResult.Data["reason"].(string)
	confidence, _ := medicResult.Data["confidence"].(float64)
	history, _ := o.hot.MedicHistory(task.TaskID)

	hitlTask := &domain.HITLTask{
		TaskID:         task.TaskID,
		Feature:        task.Feature,
		Paths:          []string{testPath},
		Attempts:       len(history),
		Severity:       severityFor(domain.HITLReason(reason)),
		Reason:         domain.HITLReason(reason),
		AttemptHistory: history,
		AIConfidence:   confidence,
		CreatedAt:      o.clock.Now(),
	}
	if len(history) > 0 {
		hitlTask.AIDiagnosis = history[len(history)-1].Diagnosis
		hitlTask.Artifacts = domain.HITLArtifacts{Diff: history[len(history)-1].DiffExcerpt}
	}
	if err := o.hitl.Enqueue(hitlTask); err != nil {
		o.log.Error("could not enqueue hitl task for %s: %v", task.TaskID, err)
	}
	o.bus.Emit(events.HITLEscalated, map[string]interface{}{"task_id": task.TaskID, "reason": reason})
	o.transition(task.TaskID, from, domain.TaskEscalated)
	return PipelineResult{TaskID: task.TaskID, Status: domain.TaskEscalated, Reason: reason, TestPath: testPath}
}

func severityFor(reason domain.HITLReason) domain.HITLSeverity {
	switch reason {
	case domain.ReasonRegressionDetected:
		return domain.SeverityHigh
	case domain.ReasonMaxRetriesExceeded:
		return domain.SeverityMedium
	case domain.ReasonLowConfidence:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func firstFailure(failures []domain.FailureRecord) (message, excerpt string) {
	if len(failures) == 0 {
		return "", ""
	}
	return failures[0].Message, failures[0].Excerpt
}

// RunIterativeFixPipeline implements §4.4.2's iterative_fix pipeline: up
// to MaxIterations rounds of Runner-then-Medic, terminating as soon as a
// round comes back clean.
func (o *Orchestrator) RunIterativeFixPipeline(ctx context.Context, sess *domain.Session, task *domain.Task, path string) PipelineResult {
	if err := o.transition(task.TaskID, domain.TaskQueued, domain.TaskInProgress); err != nil {
		return PipelineResult{TaskID: task.TaskID, Status: domain.TaskFailed, Reason: "could not start task"}
	}

	var summaries []string
	for i := 1; i <= MaxIterations; i++ {
		r := o.router.Decide("execute_test", "", path, "")
		if proceed, reason := o.checkBudget(sess, path, r.MaxCostUS); !proceed {
			o.transition(task.TaskID, domain.TaskInProgress, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: path, IterationSummaries: summaries}
		}

		runResult := o.runner.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "execute_test",
			Payload: map[string]interface{}{"test_path": path, "timeout_ms": int(DefaultIterativeFixTimeout / time.Millisecond)},
		})
		o.recordCost(sess, task.TaskID, domain.WorkerRunner, r.ModelID, runResult)

		failedCount, _ := runResult.Data["failed_count"].(int)
		summaries = append(summaries, fmt.Sprintf("iteration %d: failed_count=%d", i, failedCount))

		if failedCount == 0 {
			o.transition(task.TaskID, domain.TaskInProgress, domain.TaskSucceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskSucceeded, TestPath: path, IterationSummaries: summaries}
		}

		failures, _ := runResult.Data["failures"].([]domain.FailureRecord)
		failureMessage, failureExcerpt := firstFailure(failures)

		r4 := o.router.Decide("fix_bug", "", path, "")
		if proceed, reason := o.checkBudget(sess, path, r4.MaxCostUS); !proceed {
			o.transition(task.TaskID, domain.TaskInProgress, domain.TaskBudgetExceeded)
			return PipelineResult{TaskID: task.TaskID, Status: domain.TaskBudgetExceeded, Reason: reason, TestPath: path, IterationSummaries: summaries}
		}
		medicResult := o.medic.Run(ctx, domain.WorkerRequest{
			TaskID: task.TaskID, SessionID: sess.SessionID, Kind: "fix_bug",
			Payload: map[string]interface{}{
				"test_path": path, "feature": task.Feature,
				"failure_message": failureMessage, "failure_excerpt": failureExcerpt,
			},
		}, r4.ModelID)
		o.recordCost(sess, task.TaskID, domain.WorkerMedic, r4.ModelID, medicResult)

		outcome, _ := medicResult.Data["outcome"].(string)
		if outcome == "escalated_to_hitl" {
			result := o.escalate(task, domain.TaskInProgress, medicResult, path)
			result.IterationSummaries = summaries
			return result
		}
	}

	o.transition(task.TaskID, domain.TaskInProgress, domain.TaskFailed)
	return PipelineResult{TaskID: task.TaskID, Status: domain.TaskFailed, Reason: "max_iterations_reached", TestPath: path, IterationSummaries: summaries}
}
