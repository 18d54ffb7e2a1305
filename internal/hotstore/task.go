package hotstore

import (
	"encoding/json"
	"fmt"
	"time"

	"kaya/internal/domain"
)

// TaskTTL is the TTL applied to task:{id} and task:{id}:status (§4.5).
const TaskTTL = 24 * time.Hour

// QueueTasksKey is the list of queued task_ids (§4.5).
const QueueTasksKey = "queue:tasks"

func taskKey(id string) string       { return "task:" + id }
func taskStatusKey(id string) string { return "task:" + id + ":status" }

// PutTask writes a task record and its status mirror key, both refreshed
// to the full 24h TTL.
func (s *Store) PutTask(t *domain.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	s.setBytes(taskKey(t.TaskID), data, TaskTTL)
	s.setBytes(taskStatusKey(t.TaskID), []byte(t.Status), TaskTTL)
	return nil
}

// GetTask reads a task record.
func (s *Store) GetTask(id string) (*domain.Task, bool, error) {
	raw, ok := s.getBytes(taskKey(id))
	if !ok {
		return nil, false, nil
	}
	var t domain.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, true, nil
}

// EnqueueTask appends task_id to the queue:tasks list (no TTL — entries
// leave the list only through DequeueTask, not by age).
func (s *Store) EnqueueTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lists[QueueTasksKey]
	if !ok {
		e = &listEntry{}
		s.lists[QueueTasksKey] = e
	}
	e.items = append(e.items, taskID)
}

// DequeueTask removes and returns the oldest queued task_id, ok=false if
// the queue is empty.
func (s *Store) DequeueTask() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lists[QueueTasksKey]
	if !ok || len(e.items) == 0 {
		return "", false
	}
	id := e.items[0]
	e.items = e.items[1:]
	return id, true
}

// QueueDepth reports how many task_ids are currently queued.
func (s *Store) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lists[QueueTasksKey]
	if !ok {
		return 0
	}
	return len(e.items)
}

// CompareAndSetStatus atomically moves a task's status from expected to
// next, honoring the status DAG (§3) and retrying up to 3 times on
// conflict as required by §5's "read-modify-write with retry" concurrency
// rule. Each attempt is itself a single locked critical section, so a
// conflict can only arise from genuinely concurrent callers racing on the
// same task_id — which is exactly the case this retry budget covers.
func (s *Store) CompareAndSetStatus(taskID string, expected, next domain.TaskStatus) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ok, err := s.tryCompareAndSetStatus(taskID, expected, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrStatusConflict
}

func (s *Store) tryCompareAndSetStatus(taskID string, expected, next domain.TaskStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.kv[taskKey(taskID)]
	if !ok {
		return false, ErrNotFound
	}
	var t domain.Task
	if err := json.Unmarshal(e.value, &t); err != nil {
		return false, fmt.Errorf("unmarshal task: %w", err)
	}
	if t.Status != expected {
		return false, nil
	}
	if !t.Status.CanTransition(next) {
		return false, ErrInvalidTransition
	}
	t.Status = next
	data, err := json.Marshal(&t)
	if err != nil {
		return false, fmt.Errorf("marshal task: %w", err)
	}
	s.kv[taskKey(taskID)] = kvEntry{value: data, expiresAt: s.expiryAt(TaskTTL)}
	s.kv[taskStatusKey(taskID)] = kvEntry{value: []byte(next), expiresAt: s.expiryAt(TaskTTL)}
	return true, nil
}

// IncrementAttemptCount bumps a task's attempt_count by one and returns the
// new value. attempt_count is monotonically non-decreasing (§3).
func (s *Store) IncrementAttemptCount(taskID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.kv[taskKey(taskID)]
	if !ok {
		return 0, ErrNotFound
	}
	var t domain.Task
	if err := json.Unmarshal(e.value, &t); err != nil {
		return 0, fmt.Errorf("unmarshal task: %w", err)
	}
	t.AttemptCount++
	data, err := json.Marshal(&t)
	if err != nil {
		return 0, fmt.Errorf("marshal task: %w", err)
	}
	s.kv[taskKey(taskID)] = kvEntry{value: data, expiresAt: s.expiryAt(TaskTTL)}
	return t.AttemptCount, nil
}

// AddTaskCost adds delta (which must be >= 0, cost is monotonic per §3)
// to a task's total_cost and returns the new total.
func (s *Store) AddTaskCost(taskID string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.kv[taskKey(taskID)]
	if !ok {
		return 0, ErrNotFound
	}
	var t domain.Task
	if err := json.Unmarshal(e.value, &t); err != nil {
		return 0, fmt.Errorf("unmarshal task: %w", err)
	}
	if delta > 0 {
		t.TotalCost += delta
	}
	data, err := json.Marshal(&t)
	if err != nil {
		return 0, fmt.Errorf("marshal task: %w", err)
	}
	s.kv[taskKey(taskID)] = kvEntry{value: data, expiresAt: s.expiryAt(TaskTTL)}
	return t.TotalCost, nil
}
