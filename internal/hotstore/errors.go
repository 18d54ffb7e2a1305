package hotstore

import "errors"

// ErrNotFound is returned when a requested key does not exist or has expired.
var ErrNotFound = errors.New("hotstore: not found")

// ErrStatusConflict is returned when CompareAndSetStatus's expected status
// does not match the stored status after all retries are exhausted.
var ErrStatusConflict = errors.New("hotstore: task status conflict")

// ErrInvalidTransition is returned when the requested status move is not
// permitted by the task status DAG (§3), regardless of conflicts.
var ErrInvalidTransition = errors.New("hotstore: invalid task status transition")

// ErrConflict is returned by one-shot operations (e.g. resolving an HITL
// task) when called a second time against an already-settled record.
var ErrConflict = errors.New("hotstore: conflict")
