// Package domain holds the data model shared across Kaya's components —
// Task, Session, RouteDecision, the worker request/result envelope, and
// the records the HITL queue and cost ledger persist. Keeping these in
// one leaf package lets the orchestrator, hot store, cold store, and
// workers all depend on the same shapes without importing each other.
package domain

import "time"

// TaskStatus is a node in the task status DAG: queued → in_progress →
// {succeeded, failed, escalated, budget_exceeded}.
type TaskStatus string

const (
	TaskQueued           TaskStatus = "queued"
	TaskInProgress       TaskStatus = "in_progress"
	TaskAwaitingFix      TaskStatus = "awaiting_fix"
	TaskAwaitingValidate TaskStatus = "awaiting_validation"
	TaskSucceeded        TaskStatus = "succeeded"
	TaskFailed           TaskStatus = "failed"
	TaskEscalated        TaskStatus = "escalated"
	TaskBudgetExceeded   TaskStatus = "budget_exceeded"
)

// validTaskTransitions encodes the DAG in §3: terminal statuses have no
// outgoing edges, and the two awaiting statuses may return to in_progress.
var validTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskQueued:           {TaskInProgress},
	TaskInProgress:       {TaskAwaitingFix, TaskAwaitingValidate, TaskSucceeded, TaskFailed, TaskEscalated, TaskBudgetExceeded},
	TaskAwaitingFix:      {TaskInProgress, TaskFailed, TaskEscalated, TaskBudgetExceeded},
	TaskAwaitingValidate: {TaskInProgress, TaskSucceeded, TaskFailed, TaskEscalated, TaskBudgetExceeded},
	TaskSucceeded:        {},
	TaskFailed:           {},
	TaskEscalated:        {},
	TaskBudgetExceeded:   {},
}

// CanTransition reports whether moving from s to next is legal in the
// task status DAG.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range validTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Task is a unit of work tracked end-to-end (§3).
type Task struct {
	TaskID        string     `json:"task_id"`
	SessionID     string     `json:"session_id"`
	Feature       string     `json:"feature"`
	CreatedAt     time.Time  `json:"created_at"`
	Status        TaskStatus `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	TotalCost     float64    `json:"total_cost"`
	LastError     string     `json:"last_error,omitempty"`
	ArtifactPaths []string   `json:"artifact_paths,omitempty"`
}

// Session is the enclosing conversation/budget scope (§3).
type Session struct {
	SessionID     string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	CostUsed      float64   `json:"cost_used"`
	CostCapTotal  float64   `json:"cost_cap_total"`
	CostCapWarn   float64   `json:"cost_cap_warn"`
	Trail         []string  `json:"trail,omitempty"`
	BudgetWarned  bool      `json:"budget_warned"`
}

// DefaultCostCapTotal and DefaultCostCapWarn are the session budget
// defaults named in §3.
const (
	DefaultCostCapTotal = 5.0
	DefaultCostCapWarn  = 4.0
)

// NewSession builds a session with the default budget caps.
func NewSession(sessionID string, startedAt time.Time) *Session {
	return &Session{
		SessionID:    sessionID,
		StartedAt:    startedAt,
		CostCapTotal: DefaultCostCapTotal,
		CostCapWarn:  DefaultCostCapWarn,
	}
}

// WorkerID enumerates the five specialists (§2, §4.3).
type WorkerID string

const (
	WorkerScribe WorkerID = "scribe"
	WorkerCritic WorkerID = "critic"
	WorkerRunner WorkerID = "runner"
	WorkerMedic  WorkerID = "medic"
	WorkerGemini WorkerID = "gemini"
)

// RouteDecision is the Router's output (§4.1): an immutable value.
type RouteDecision struct {
	Worker    WorkerID `json:"worker"`
	ModelID   string   `json:"model_id"`
	MaxCostUS float64  `json:"max_cost_usd"`
	Reason    string   `json:"reason"`
}

// WorkerRequest is the uniform input envelope every specialist accepts (§4.3).
type WorkerRequest struct {
	TaskID    string                 `json:"task_id"`
	SessionID string                 `json:"session_id"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload"`
	BudgetUSD float64                `json:"budget_usd"`
	Deadline  time.Time              `json:"deadline"`
}

// WorkerResult is the uniform output envelope (§4.3). Workers must never
// throw across the boundary — failures are encoded here, not panics.
type WorkerResult struct {
	OK         bool                   `json:"ok"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Category   FailureCategory        `json:"category,omitempty"`
	CostUSD    float64                `json:"cost_usd"`
	DurationMS int64                  `json:"duration_ms"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// FailureCategory classifies why a worker or pipeline step failed (§7).
type FailureCategory string

const (
	FailureTransient        FailureCategory = "transient"
	FailureRateLimit        FailureCategory = "rate_limit"
	FailureTimeout          FailureCategory = "timeout"
	FailureNetwork          FailureCategory = "network"
	FailureServiceError     FailureCategory = "service_error"
	FailureAuth             FailureCategory = "auth"
	FailureInvalidInput     FailureCategory = "invalid_input"
	FailurePermanent        FailureCategory = "permanent"
	FailureSubprocessTimeout FailureCategory = "subprocess_timeout"
	FailureCircuitOpen      FailureCategory = "circuit_open"
	FailureBudgetExceeded   FailureCategory = "budget_exceeded"
	FailureValidationFailed FailureCategory = "validation_failed"
	FailureRegressionDetected FailureCategory = "regression_detected"
	FailureLowConfidence    FailureCategory = "low_confidence"
	FailureNotFound         FailureCategory = "not_found"
	FailureConflict         FailureCategory = "conflict"
	FailureDegradedStore    FailureCategory = "degraded_store"
	FailureUnknown          FailureCategory = "unknown"
)

// ValidatorRecord is produced by the browser-validating worker (§3).
type ValidatorRecord struct {
	BrowserLaunched  bool     `json:"browser_launched"`
	TestExecuted     bool     `json:"test_executed"`
	TestPassed       bool     `json:"test_passed"`
	Screenshots      []string `json:"screenshots"`
	ConsoleErrors    []string `json:"console_errors,omitempty"`
	NetworkFailures  []string `json:"network_failures,omitempty"`
	ExecutionTimeMS  int      `json:"execution_time_ms"`
	AIAnalysis       *AIAnalysis `json:"ai_analysis,omitempty"`
}

// AIAnalysis is the ValidatorRecord's optional screenshot-analysis payload.
type AIAnalysis struct {
	UICorrect        bool    `json:"ui_correct"`
	VisualRegressions bool   `json:"visual_regressions"`
	Confidence       float64 `json:"confidence"` // 0-100
	Notes            string  `json:"notes,omitempty"`
}

// FailureRecord is attached to a failing Runner result (§3).
type FailureRecord struct {
	Category FailureCategory `json:"category"`
	Message  string          `json:"message"`
	Excerpt  string          `json:"excerpt,omitempty"`
}

// Attempt is a Medic-tracked attempt record, kept as a ring of the last
// 10 per task (§3).
type Attempt struct {
	Timestamp      time.Time `json:"timestamp"`
	Diagnosis      string    `json:"diagnosis"`
	Confidence     float64   `json:"confidence"`
	DiffExcerpt    string    `json:"diff_excerpt,omitempty"`
	PreFixBaseline string    `json:"pre_fix_baseline,omitempty"`
	PostFixResult  string    `json:"post_fix_result,omitempty"`
	RegressionDelta int      `json:"regression_delta"`
}

// HITLSeverity ranks how urgently a human should look at an escalation.
type HITLSeverity string

const (
	SeverityLow      HITLSeverity = "low"
	SeverityMedium   HITLSeverity = "medium"
	SeverityHigh     HITLSeverity = "high"
	SeverityCritical HITLSeverity = "critical"
)

// HITLReason names why a task escalated to a human (§3).
type HITLReason string

const (
	ReasonMaxRetriesExceeded HITLReason = "max_retries_exceeded"
	ReasonRegressionDetected HITLReason = "regression_detected"
	ReasonLowConfidence      HITLReason = "low_confidence"
	ReasonOther              HITLReason = "other"
)

// HITLArtifacts bundles the before/after evidence attached to an escalation.
type HITLArtifacts struct {
	Diff       string `json:"diff,omitempty"`
	Baseline   string `json:"baseline,omitempty"`
	AfterFix   string `json:"after_fix,omitempty"`
	Comparison string `json:"comparison,omitempty"`
}

// HITLTask is what is queued for a human when escalation fires (§3).
type HITLTask struct {
	TaskID        string         `json:"task_id"`
	Feature       string         `json:"feature"`
	Paths         []string       `json:"paths"`
	Attempts      int            `json:"attempts"`
	LastError     string         `json:"last_error"`
	Severity      HITLSeverity   `json:"severity"`
	Reason        HITLReason     `json:"reason"`
	Priority      float64        `json:"priority"`
	AttemptHistory []Attempt     `json:"attempt_history,omitempty"`
	AIDiagnosis   string         `json:"ai_diagnosis,omitempty"`
	AIConfidence  float64        `json:"ai_confidence,omitempty"`
	Artifacts     HITLArtifacts  `json:"artifacts"`
	CreatedAt     time.Time      `json:"created_at"`
	Resolution    *HITLResolution `json:"resolution,omitempty"`
}

// HITLResolution records a human's disposition of an HITLTask.
type HITLResolution struct {
	ResolvedAt time.Time `json:"resolved_at"`
	ResolvedBy string    `json:"resolved_by"`
	Outcome    string    `json:"outcome"`
	Notes      string    `json:"notes,omitempty"`
}

// CostEntry is one append-only cost-ledger line (§3).
type CostEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	TaskID       string    `json:"task_id"`
	Worker       WorkerID  `json:"worker"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// CircuitState is a circuit breaker's current disposition (§4.9).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerState is the per-named-dependency breaker record (§3).
type CircuitBreakerState struct {
	Name             string       `json:"name"`
	State            CircuitState `json:"state"`
	FailureCount     int          `json:"failure_count"`
	SuccessCount     int          `json:"success_count"`
	LastFailureAt    time.Time    `json:"last_failure_at"`
	HalfOpenAttempts int          `json:"half_open_attempts"`
}
