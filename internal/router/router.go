// Package router implements the Router (§4.1): policy-driven
// (task_type, complexity) → (worker, model, max_cost) decisions, with an
// LRU decision cache and glob-based cost overrides.
package router

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar"
	lru "github.com/hashicorp/golang-lru/v2"

	"kaya/internal/complexity"
	"kaya/internal/config"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/logging"
)

// CacheStats reports the decision cache's hit/miss/size counters.
type CacheStats struct {
	Hits  int64
	Misses int64
	Size  int
}

// Router evaluates routing policy to produce RouteDecisions. Safe for
// concurrent use; ReplacePolicy may be called from the config Watcher's
// callback to hot-reload rules without restarting the process.
type Router struct {
	cfg   atomic.Pointer[config.RouterConfig]
	cache *lru.Cache[string, domain.RouteDecision]
	bus   *events.Bus
	log   *logging.Logger

	mu    sync.Mutex
	hits  int64
	misses int64
}

// New creates a Router from an initial policy. bus may be nil (no events
// emitted, useful in tests).
func New(cfg config.RouterConfig, bus *events.Bus) (*Router, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}
	cache, err := lru.New[string, domain.RouteDecision](size)
	if err != nil {
		return nil, fmt.Errorf("creating decision cache: %w", err)
	}
	r := &Router{cache: cache, bus: bus, log: logging.Get(logging.CategoryRouter)}
	r.cfg.Store(&cfg)
	return r, nil
}

// ReplacePolicy swaps in a freshly reloaded policy (§4.1's hot-reload
// requirement). A config.Watcher OnChange callback can call it; no code in
// this module registers such a callback. The decision cache is kept —
// stale entries age out naturally as the new rules are consulted for
// inputs not already cached under the old policy's answers. Callers that
// need an immediate clean slate should call ResetCache too.
func (r *Router) ReplacePolicy(cfg config.RouterConfig) {
	r.cfg.Store(&cfg)
}

// ResetCache clears the decision cache, e.g. after a policy reload that
// should not serve decisions made under the previous rules.
func (r *Router) ResetCache() {
	r.cache.Purge()
}

// Decide evaluates the routing policy for (taskType, description, path).
// scope is reserved for future rule dimensions; it is accepted for
// contract-shape parity with §4.1 but not currently matched on.
func (r *Router) Decide(taskType, description, path, scope string) domain.RouteDecision {
	cacheKey := taskType + "\x00" + normalize(description) + "\x00" + path
	if cached, ok := r.cache.Get(cacheKey); ok {
		r.mu.Lock()
		r.hits++
		r.mu.Unlock()
		return cached
	}
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()

	cfg := r.cfg.Load()
	_, verdict := complexity.Estimate(description, 0)

	decision := r.firstMatch(cfg, taskType, verdict)
	decision.MaxCostUS = r.costCapFor(cfg, path, decision.MaxCostUS)

	r.cache.Add(cacheKey, decision)
	r.emitDecision(taskType, path, decision)
	return decision
}

func (r *Router) firstMatch(cfg *config.RouterConfig, taskType string, verdict complexity.Verdict) domain.RouteDecision {
	for _, rule := range cfg.Rules {
		if rule.TaskType != taskType {
			continue
		}
		if rule.Complexity != "any" && rule.Complexity != string(verdict) {
			continue
		}
		return domain.RouteDecision{
			Worker:    domain.WorkerID(rule.Worker),
			ModelID:   rule.Model,
			MaxCostUS: cfg.MaxCostPerFeatureUSD,
			Reason:    rule.Reason,
		}
	}
	// Fallback: route to the orchestrator itself with the cheapest model (§4.1).
	r.log.Warn("no routing rule matched task_type=%s complexity=%s; falling back to orchestrator", taskType, verdict)
	return domain.RouteDecision{
		Worker:    "orchestrator",
		ModelID:   cfg.CheapestModel,
		MaxCostUS: cfg.MaxCostPerFeatureUSD,
		Reason:    "no matching rule: fallback to orchestrator with cheapest model",
	}
}

func (r *Router) costCapFor(cfg *config.RouterConfig, path string, dflt float64) float64 {
	if path == "" {
		return dflt
	}
	for _, ov := range cfg.CostOverrides {
		matched, err := doublestar.Match(ov.PathGlob, path)
		if err != nil {
			r.log.Warn("invalid cost override glob %q: %v", ov.PathGlob, err)
			continue
		}
		if matched {
			return ov.MaxCostUSD
		}
	}
	return dflt
}

func (r *Router) emitDecision(taskType, path string, d domain.RouteDecision) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(events.RoutingDecision, map[string]interface{}{
		"task_type": taskType,
		"path":      path,
		"worker":    string(d.Worker),
		"model_id":  d.ModelID,
		"max_cost_usd": d.MaxCostUS,
		"reason":    d.Reason,
	})
}

// Stats reports the decision cache's hit/miss/size counters.
func (r *Router) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CacheStats{Hits: r.hits, Misses: r.misses, Size: r.cache.Len()}
}

func normalize(description string) string {
	return strings.Join(strings.Fields(strings.ToLower(description)), " ")
}
