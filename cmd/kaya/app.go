// Package main implements the Kaya CLI — the Cobra-based command surface
// over the orchestrator core (§6). This file owns process-wide bootstrap:
// reading the policy document, wiring every store/worker/service exactly
// once per invocation, and tearing it down cleanly on exit.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kaya/internal/browserdriver"
	"kaya/internal/clock"
	"kaya/internal/coldstore"
	"kaya/internal/complexity"
	"kaya/internal/config"
	"kaya/internal/events"
	"kaya/internal/hitl"
	"kaya/internal/hotstore"
	"kaya/internal/ledger"
	"kaya/internal/llm"
	"kaya/internal/logging"
	"kaya/internal/metrics"
	"kaya/internal/orchestrator"
	"kaya/internal/procpool"
	"kaya/internal/resilience"
	"kaya/internal/router"
	"kaya/internal/workers/critic"
	"kaya/internal/workers/gemini"
	"kaya/internal/workers/medic"
	"kaya/internal/workers/runner"
	"kaya/internal/workers/scribe"
)

// app bundles every wired dependency a subcommand might need. One app is
// built per process invocation in rootCmd's PersistentPreRunE and torn
// down in PersistentPostRun — CLI commands are one-shot, so there is no
// benefit to a longer-lived singleton, and a fresh Hot Store means each
// invocation starts with a clean in-memory cache (the Hot Store's job is
// request-scoped dedup/budget tracking, not cross-process state; only the
// Cost Ledger and Cold Store files persist across runs).
type app struct {
	cfg      *config.Config
	clock    clock.Clock
	bus      *events.Bus
	fileSink *events.FileSink
	hot      *hotstore.Store
	cold     *coldstore.Store
	router   *router.Router
	ledger   *ledger.Ledger
	hitl     *hitl.Queue
	metrics  *metrics.Recorder
	circuits *resilience.Registry
	driver   browserdriver.Driver
	llm      llm.Client
	orc      *orchestrator.Orchestrator

	// Per-worker handles, exposed directly so `run`/`review` can invoke a
	// single specialist without going through the Orchestrator's pipelines.
	scribeWorker *scribe.Worker
	criticWorker *critic.Worker
	runnerWorker *runner.Worker
	medicWorker  *medic.Worker
	geminiWorker *gemini.Worker
}

// geminiAPIKeyEnv and its fallback are the only places a secret is read;
// §6 forbids embedding secrets in any event or log payload, so neither
// name nor value is ever passed to logging.Get(...).Info/Warn/Error.
const (
	geminiAPIKeyEnv         = "KAYA_GEMINI_API_KEY"
	geminiAPIKeyFallbackEnv = "GEMINI_API_KEY"
)

func resolveAPIKey() string {
	if k := os.Getenv(geminiAPIKeyEnv); k != "" {
		return k
	}
	return os.Getenv(geminiAPIKeyFallbackEnv)
}

// bootstrap reads the policy document rooted at ws and wires every
// collaborator the orchestrator needs. configPath, if non-empty,
// overrides the default "<ws>/kaya.yaml" lookup.
func bootstrap(ctx context.Context, ws, configPath string) (*app, error) {
	if configPath == "" {
		configPath = filepath.Join(ws, "kaya.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := logging.Initialize(ws); err != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging not initialized: %v\n", err)
	}

	for _, dir := range []string{cfg.Store.TestsDir, cfg.Store.ArtifactsDir, cfg.Store.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Join(ws, dir), 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	c := clock.Real
	bus := events.NewBus(c, 0)
	bus.AddSink(events.NewConsoleSink(os.Stderr))
	fileSink, err := events.NewFileSink(filepath.Join(ws, cfg.Store.LogsDir, "events.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	bus.AddSink(fileSink)

	hot := hotstore.New(c)

	coldCfg := cfg.Store
	coldCfg.ColdStorePath = filepath.Join(ws, cfg.Store.ColdStorePath)
	cold, err := coldstore.New(coldCfg)
	if err != nil {
		return nil, fmt.Errorf("opening cold store: %w", err)
	}

	r, err := router.New(cfg.Router, bus)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}

	ledgerWriter, err := ledger.NewFileWriter(filepath.Join(ws, cfg.Store.LogsDir, "cost_ledger.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("opening cost ledger: %w", err)
	}
	led := ledger.New(c, ledgerWriter)

	queue := hitl.New(hot, cold)
	rec := metrics.New(hot, c)
	circuits := resilience.NewRegistry(c)

	var llmClient llm.Client
	if key := resolveAPIKey(); key != "" {
		genaiClient, err := llm.NewGenAIClient(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("building model client: %w", err)
		}
		llmClient = genaiClient
	} else {
		llmClient = noModelClient{}
	}

	driver := browserdriver.New(browserdriver.DefaultConfig())

	pool := procpool.New(procpool.ExecLauncher{}, int64(cfg.Concurrency.ProcessPoolSize))

	scribeWorker := scribe.New(llmClient, cold, bus, cfg.Workers.Scribe, ws)
	criticWorker := critic.New(bus)
	runnerWorker := runner.New(pool, runner.DefaultConfig(), bus)
	medicWorker := medic.New(llmClient, hot, runnerWorker, bus, nil)
	geminiWorker := gemini.New(driver, llmClient, filepath.Join(ws, cfg.Store.ArtifactsDir), bus)

	orc := orchestrator.New(orchestrator.Deps{
		Router: r, Hot: hot, Cold: cold, Ledger: led, HITL: queue, Metrics: rec, Bus: bus, Clock: c,
		Scribe: scribeWorker, Critic: criticWorker, Runner: runnerWorker, Medic: medicWorker, Gemini: geminiWorker,
		RouterConfig: cfg.Router,
	})

	return &app{
		cfg: cfg, clock: c, bus: bus, fileSink: fileSink,
		hot: hot, cold: cold, router: r, ledger: led, hitl: queue, metrics: rec,
		circuits: circuits, driver: driver, llm: llmClient, orc: orc,
		scribeWorker: scribeWorker, criticWorker: criticWorker, runnerWorker: runnerWorker,
		medicWorker: medicWorker, geminiWorker: geminiWorker,
	}, nil
}

// Close releases every resource opened by bootstrap, flushing the Cost
// Ledger's buffer and draining the event bus (§4.6, §4.11).
func (a *app) Close() {
	if a.ledger != nil {
		a.ledger.Shutdown()
	}
	if a.driver != nil {
		a.driver.Close()
	}
	if a.cold != nil {
		a.cold.Close()
	}
	if a.hot != nil {
		a.hot.Close()
	}
	if a.fileSink != nil {
		a.fileSink.Close()
	}
	if a.bus != nil {
		a.bus.Shutdown(2 * time.Second)
	}
}

// noModelClient is the degraded-mode model client used when no API key
// is configured — §4.9's graceful degradation applies to Kaya's own
// startup too: commands that never touch a worker needing a model
// (status, route --explain, hitl, metrics) still work without one.
type noModelClient struct{}

func (noModelClient) Complete(ctx context.Context, modelID, systemPrompt, prompt string) (string, error) {
	return "", fmt.Errorf("no model client configured: set %s or %s", geminiAPIKeyEnv, geminiAPIKeyFallbackEnv)
}

// complexityOf is a small CLI-only convenience so `route` can print the
// verdict it used without duplicating the Router's internal estimate.
func complexityOf(description string) complexity.Verdict {
	_, verdict := complexity.Estimate(description, 0)
	return verdict
}
