// Package runner implements the Runner specialist (§4.3): launches the
// external test process through the bounded subprocess pool with a
// fast-fail flag, parses its structured JSON report, and on timeout
// runs a self-diagnostic (backend/frontend port reachability, browser
// tool presence) appending an actionable FailureRecord per failed check.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/logging"
	"kaya/internal/procpool"
	"kaya/internal/resilience"
)

// DefaultTimeout matches §4.3's stated default; the orchestrator may pass
// up to 180s.
const DefaultTimeout = 120 * time.Second

const excerptLimit = 2000

// Config describes how Runner launches the external test process and
// what it checks during timeout self-diagnosis. Command is a template:
// "{test_path}" is substituted with the task's test path, and
// FastFailFlag, when set, is appended after the last argument.
type Config struct {
	Command          []string
	FastFailFlag     string
	BackendPort      int
	FrontendPort     int
	BrowserToolCheck []string // e.g. {"npx", "playwright", "--version"}
}

// DefaultConfig assumes a Playwright-style CLI with a JSON reporter,
// mirroring the convention Scribe's generated tests target.
func DefaultConfig() Config {
	return Config{
		Command:          []string{"npx", "playwright", "test", "{test_path}", "--reporter=json"},
		FastFailFlag:     "--max-failures=1",
		BrowserToolCheck: []string{"npx", "playwright", "--version"},
	}
}

// report mirrors the JSON shape Runner expects on stdout: a single
// trailing JSON object summarizing the run.
type report struct {
	PassedCount int           `json:"passed_count"`
	FailedCount int           `json:"failed_count"`
	Failures    []failureLine `json:"failures"`
}

type failureLine struct {
	Message string `json:"message"`
	Excerpt string `json:"excerpt"`
}

// Worker is the Runner specialist.
type Worker struct {
	pool   *procpool.Pool
	cfg    Config
	bus    *events.Bus
	jitter *resilience.JitterSource
	log    *logging.Logger
}

// New creates a Runner worker bound to the given subprocess pool.
func New(pool *procpool.Pool, cfg Config, bus *events.Bus) *Worker {
	return &Worker{pool: pool, cfg: cfg, bus: bus, jitter: resilience.NewJitterSource(), log: logging.Get(logging.CategoryRunner)}
}

// Run implements the worker contract (§4.3). Payload carries
// {"test_path": string, optional "timeout_ms": int}.
func (w *Worker) Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult {
	start := time.Now()
	w.bus.Emit(events.AgentStarted, map[string]interface{}{"worker": "runner", "task_id": req.TaskID})

	testPath, _ := req.Payload["test_path"].(string)
	timeout := DefaultTimeout
	if ms, ok := req.Payload["timeout_ms"].(int); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	name, args := w.buildCommand(testPath)
	var procResult procpool.Result
	call := resilience.Do(ctx, resilience.RunnerPolicy, w.jitter, func(int) resilience.Attempt {
		var launchErr error
		procResult, launchErr = w.pool.Run(ctx, name, args, "", timeout)
		if launchErr != nil {
			return resilience.Attempt{Err: launchErr, Category: resilience.Classify(launchErr.Error(), 0, procResult.TimedOut)}
		}
		return resilience.Attempt{}
	})
	err := call.Err

	status := "pass"
	var failures []domain.FailureRecord
	passedCount, failedCount := 0, 0

	switch {
	case procResult.TimedOut:
		status = "timeout"
		failures = w.selfDiagnose()
		failedCount = len(failures)
	case err != nil:
		status = "error"
		failures = []domain.FailureRecord{{
			Category: domain.FailureSubprocessTimeout,
			Message:  err.Error(),
			Excerpt:  truncate(procResult.Stderr, excerptLimit),
		}}
		failedCount = 1
	default:
		rep, parseErr := parseReport(procResult.Stdout)
		if parseErr != nil {
			status = "error"
			failures = []domain.FailureRecord{{
				Category: domain.FailureServiceError,
				Message:  fmt.Sprintf("could not parse test report: %v", parseErr),
				Excerpt:  truncate(procResult.Stdout, excerptLimit),
			}}
			failedCount = 1
		} else {
			passedCount, failedCount = rep.PassedCount, rep.FailedCount
			if failedCount > 0 {
				status = "fail"
				for _, f := range rep.Failures {
					failures = append(failures, domain.FailureRecord{
						Category: domain.FailureUnknown,
						Message:  f.Message,
						Excerpt:  truncate(f.Excerpt, excerptLimit),
					})
				}
			}
		}
	}

	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "runner", "task_id": req.TaskID, "status": "success"})
	return domain.WorkerResult{
		OK: true,
		Data: map[string]interface{}{
			"status":            status,
			"passed_count":      passedCount,
			"failed_count":      failedCount,
			"failures":          failures,
			"execution_time_ms": procResult.Duration.Milliseconds(),
			"stdout_excerpt":    truncate(procResult.Stdout, excerptLimit),
			"stderr_excerpt":    truncate(procResult.Stderr, excerptLimit),
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func (w *Worker) buildCommand(testPath string) (string, []string) {
	cmd := make([]string, len(w.cfg.Command))
	copy(cmd, w.cfg.Command)
	for i, tok := range cmd {
		if tok == "{test_path}" {
			cmd[i] = testPath
		}
	}
	if w.cfg.FastFailFlag != "" {
		cmd = append(cmd, w.cfg.FastFailFlag)
	}
	return cmd[0], cmd[1:]
}

// selfDiagnose runs the three timeout checks named in §4.3: backend port
// reachable, frontend port reachable, browser tool installed.
func (w *Worker) selfDiagnose() []domain.FailureRecord {
	var failures []domain.FailureRecord

	if w.cfg.BackendPort > 0 && !portReachable(w.cfg.BackendPort) {
		failures = append(failures, domain.FailureRecord{
			Category: domain.FailureSubprocessTimeout,
			Message:  fmt.Sprintf("backend port %d is not reachable", w.cfg.BackendPort),
			Excerpt:  "start the backend service before running the test suite",
		})
	}
	if w.cfg.FrontendPort > 0 && !portReachable(w.cfg.FrontendPort) {
		failures = append(failures, domain.FailureRecord{
			Category: domain.FailureSubprocessTimeout,
			Message:  fmt.Sprintf("frontend port %d is not reachable", w.cfg.FrontendPort),
			Excerpt:  "start the frontend dev server before running the test suite",
		})
	}
	if len(w.cfg.BrowserToolCheck) > 0 && !browserToolInstalled(w.cfg.BrowserToolCheck) {
		failures = append(failures, domain.FailureRecord{
			Category: domain.FailureSubprocessTimeout,
			Message:  "browser automation tool is not installed",
			Excerpt:  fmt.Sprintf("install it, e.g. `%s`", strings.Join(w.cfg.BrowserToolCheck, " ")),
		})
	}
	if len(failures) == 0 {
		failures = append(failures, domain.FailureRecord{
			Category: domain.FailureSubprocessTimeout,
			Message:  "test process exceeded its deadline for an unknown reason",
		})
	}
	return failures
}

func portReachable(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func browserToolInstalled(check []string) bool {
	if len(check) == 0 {
		return true
	}
	cmd := exec.Command(check[0], check[1:]...)
	return cmd.Run() == nil
}

func parseReport(stdout string) (report, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		var rep report
		if err := json.Unmarshal([]byte(trimmed), &rep); err != nil {
			return report{}, err
		}
		return rep, nil
	}
	return report{}, fmt.Errorf("no JSON report line found in stdout")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
