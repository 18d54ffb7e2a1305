package hotstore

import (
	"encoding/json"
	"fmt"
	"time"

	"kaya/internal/domain"
)

// HITLTaskTTL is the TTL applied to hitl:task:{task_id} (§4.5). Resolved
// records are additionally copied permanently to the Cold Store, which is
// the caller's responsibility (hitl.Queue.Resolve), not this store's.
const HITLTaskTTL = 24 * time.Hour

// HITLQueueKey is the sorted-set key holding task_ids scored by priority.
const HITLQueueKey = "hitl:queue"

func hitlTaskKey(taskID string) string { return "hitl:task:" + taskID }

// EnqueueHITL stores the HITLTask and adds it to the priority sorted set.
func (s *Store) EnqueueHITL(t *domain.HITLTask) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal hitl task: %w", err)
	}
	s.setBytes(hitlTaskKey(t.TaskID), data, HITLTaskTTL)
	s.zAdd(HITLQueueKey, t.TaskID, t.Priority, HITLTaskTTL)
	return nil
}

// GetHITL reads a queued or resolved HITLTask.
func (s *Store) GetHITL(taskID string) (*domain.HITLTask, bool, error) {
	raw, ok := s.getBytes(hitlTaskKey(taskID))
	if !ok {
		return nil, false, nil
	}
	var t domain.HITLTask
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, fmt.Errorf("unmarshal hitl task: %w", err)
	}
	return &t, true, nil
}

// ListHITL returns up to limit queued tasks ordered highest-priority first.
// limit<=0 returns the whole queue.
func (s *Store) ListHITL(limit int) ([]*domain.HITLTask, error) {
	members := s.zRangeDesc(HITLQueueKey, limit)
	out := make([]*domain.HITLTask, 0, len(members))
	for _, m := range members {
		t, ok, err := s.GetHITL(m.Member)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// HITLQueueDepth reports how many tasks are currently queued.
func (s *Store) HITLQueueDepth() int {
	return s.zCard(HITLQueueKey)
}

// ResolveHITL marks a queued HITLTask resolved and removes it from the
// priority sorted set, returning the updated record for the caller to
// archive into the Cold Store. Returns ErrNotFound if absent, and
// ErrConflict if already resolved (resolution is a one-shot operation).
func (s *Store) ResolveHITL(taskID string, res domain.HITLResolution) (*domain.HITLTask, error) {
	t, ok, err := s.GetHITL(taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if t.Resolution != nil {
		return nil, ErrConflict
	}
	t.Resolution = &res
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal hitl task: %w", err)
	}
	s.setBytes(hitlTaskKey(taskID), data, HITLTaskTTL)
	s.zRem(HITLQueueKey, taskID)
	return t, nil
}
