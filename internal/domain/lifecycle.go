package domain

import (
	"fmt"
	"time"
)

// transitions is the directed lifecycle graph. Terminal states have no outgoing edges.
// PROCESSING -> PROCESSING is a reclaim of a job whose previous worker died mid-flight.
var transitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether a cancel request is legal from the current status.
func (j *Job) CanCancel() bool {
	return CanTransition(j.Status, StatusCancelled)
}

func (j *Job) transition(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrJobConflict, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// Claim asserts worker ownership: PROCESSING, lockedAt set, progress at least ClaimProgress.
func (j *Job) Claim(now time.Time) error {
	if err := j.transition(StatusProcessing, now); err != nil {
		return err
	}
	j.LockedAt = &now
	if j.Progress < ClaimProgress {
		j.Progress = ClaimProgress
	}
	return nil
}

// Advance records stage progress. Progress never decreases and is capped at MaxProgress.
func (j *Job) Advance(progress int, now time.Time) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: cannot advance %s job", ErrJobConflict, j.Status)
	}
	if progress > MaxProgress {
		progress = MaxProgress
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = now
	return nil
}

// Complete moves a processing job to COMPLETED with progress 100 and releases the lock.
func (j *Job) Complete(now time.Time) error {
	if err := j.transition(StatusCompleted, now); err != nil {
		return err
	}
	j.Progress = MaxProgress
	j.LockedAt = nil
	return nil
}

// Fail moves a processing job to FAILED and releases the lock. Progress is kept.
func (j *Job) Fail(now time.Time) error {
	if err := j.transition(StatusFailed, now); err != nil {
		return err
	}
	j.LockedAt = nil
	return nil
}

// Cancel moves a pending or processing job to CANCELLED and releases the lock.
// Progress is frozen at its last persisted value.
func (j *Job) Cancel(now time.Time) error {
	if err := j.transition(StatusCancelled, now); err != nil {
		return err
	}
	j.LockedAt = nil
	return nil
}
