// Package hitl implements the HITL Queue (§4.8): enqueue/list/get/resolve
// over the Hot Store's priority sorted set, with resolved annotations
// written permanently to the Cold Store's hitl_annotations collection.
package hitl

import (
	"encoding/json"
	"fmt"

	"kaya/internal/domain"
	"kaya/internal/hotstore"
	"kaya/internal/logging"
)

// Severity base scores and the attempts contribution cap (§4.8).
const (
	severityBaseLow      = 0.1
	severityBaseMedium   = 0.3
	severityBaseHigh     = 0.5
	severityBaseCritical = 0.7

	attemptsContributionCap = 0.3
	maxPriority             = 1.0
)

// Priority computes the §4.8 formula:
// min(severity_base + attempts/10, 1.0), with attempts/10 itself capped
// at 0.3 before the outer min is applied.
func Priority(severity domain.HITLSeverity, attempts int) float64 {
	base := severityBase(severity)
	attemptsContribution := float64(attempts) / 10
	if attemptsContribution > attemptsContributionCap {
		attemptsContribution = attemptsContributionCap
	}
	p := base + attemptsContribution
	if p > maxPriority {
		p = maxPriority
	}
	return p
}

func severityBase(s domain.HITLSeverity) float64 {
	switch s {
	case domain.SeverityLow:
		return severityBaseLow
	case domain.SeverityMedium:
		return severityBaseMedium
	case domain.SeverityHigh:
		return severityBaseHigh
	case domain.SeverityCritical:
		return severityBaseCritical
	default:
		return severityBaseLow
	}
}

// ColdStore is the subset of the Cold Store contract the HITL Queue needs
// to archive resolved annotations (§4.7's hitl_annotations collection).
type ColdStore interface {
	Store(collection, id, text string, metadata map[string]interface{}) error
}

// Annotation is what a human attaches when resolving an HITLTask (§4.8).
type Annotation struct {
	RootCauseCategory   string  `json:"root_cause_category"`
	FixStrategy         string  `json:"fix_strategy"`
	Severity            string  `json:"severity"`
	HumanNotes          string  `json:"human_notes"`
	PatchDiff           string  `json:"patch_diff"`
	TimeToResolveMinutes float64 `json:"time_to_resolve_minutes"`
}

// Stats summarizes the current queue (§4.8).
type Stats struct {
	QueueDepth  int                            `json:"queue_depth"`
	AvgPriority float64                         `json:"avg_priority"`
	BySeverity  map[domain.HITLSeverity]int     `json:"by_severity"`
}

// Queue is the HITL Queue service.
type Queue struct {
	store *hotstore.Store
	cold  ColdStore
	log   *logging.Logger
}

// New creates a Queue backed by store, archiving resolutions to cold.
func New(store *hotstore.Store, cold ColdStore) *Queue {
	return &Queue{store: store, cold: cold, log: logging.Get(logging.CategoryHITL)}
}

// Enqueue computes the task's priority and stores it.
func (q *Queue) Enqueue(task *domain.HITLTask) error {
	task.Priority = Priority(task.Severity, task.Attempts)
	if err := q.store.EnqueueHITL(task); err != nil {
		return fmt.Errorf("enqueue hitl task: %w", err)
	}
	q.log.Info("hitl task enqueued: task_id=%s severity=%s priority=%.2f reason=%s", task.TaskID, task.Severity, task.Priority, task.Reason)
	return nil
}

// List returns up to limit queued tasks, highest priority first. limit<=0
// defaults to 50 (§4.8).
func (q *Queue) List(limit int) ([]*domain.HITLTask, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.store.ListHITL(limit)
}

// Get returns a single task by id, nil if not found.
func (q *Queue) Get(taskID string) (*domain.HITLTask, error) {
	t, ok, err := q.store.GetHITL(taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return t, nil
}

// ErrNotFound and ErrConflict mirror the Hot Store's sentinels at this
// layer's API boundary.
var (
	ErrNotFound = hotstore.ErrNotFound
	ErrConflict = hotstore.ErrConflict
)

// Resolve attaches ann's disposition, archives the resolved task to the
// Cold Store's hitl_annotations collection, and removes it from the
// priority sorted set.
func (q *Queue) Resolve(taskID, resolvedBy string, ann Annotation) error {
	task, err := q.store.ResolveHITL(taskID, domain.HITLResolution{
		ResolvedBy: resolvedBy,
		Outcome:    ann.FixStrategy,
		Notes:      ann.HumanNotes,
	})
	if err != nil {
		return err
	}

	metadata := map[string]interface{}{
		"task_id":             task.TaskID,
		"feature":             task.Feature,
		"root_cause_category": ann.RootCauseCategory,
		"fix_strategy":        ann.FixStrategy,
		"severity":            ann.Severity,
		"time_to_resolve_min": ann.TimeToResolveMinutes,
	}
	text, marshalErr := json.Marshal(struct {
		Task       *domain.HITLTask `json:"task"`
		Annotation Annotation       `json:"annotation"`
	}{task, ann})
	if marshalErr != nil {
		return fmt.Errorf("marshal hitl annotation: %w", marshalErr)
	}

	if q.cold != nil {
		if err := q.cold.Store("hitl_annotations", taskID, string(text), metadata); err != nil {
			q.log.Warn("failed to archive resolved hitl task %s to cold store: %v", taskID, err)
		}
	}
	return nil
}

// QueueStats computes the §4.8 stats() summary.
func (q *Queue) QueueStats() (Stats, error) {
	tasks, err := q.store.ListHITL(0)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{QueueDepth: len(tasks), BySeverity: make(map[domain.HITLSeverity]int)}
	var total float64
	for _, t := range tasks {
		total += t.Priority
		stats.BySeverity[t.Severity]++
	}
	if len(tasks) > 0 {
		stats.AvgPriority = total / float64(len(tasks))
	}
	return stats, nil
}
