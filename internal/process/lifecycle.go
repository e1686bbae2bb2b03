// internal/process/lifecycle.go
package process

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

var (
	ErrInvalidStatus = errors.New("invalid job status")
	ErrRegression    = errors.New("job status moved backwards")
)

// Rank orders statuses: pending < processing < completed = failed.
func Rank(s schema.JobStatus) int {
	switch s {
	case schema.StatusPending:
		return 0
	case schema.StatusProcessing:
		return 1
	case schema.StatusCompleted, schema.StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether a job in status from may next be seen in
// status to. Staying put is always allowed; terminal states are absorbing.
func CanTransition(from, to schema.JobStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	return Rank(to) > Rank(from)
}

// NewRecord returns a pending record created at now.
func NewRecord(jobID, requestID string, opts *schema.Options, now time.Time) *schema.JobRecord {
	return &schema.JobRecord{
		JobID:     jobID,
		Status:    schema.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Options:   opts,
		RequestID: requestID,
	}
}

func MarkProcessing(j *schema.JobRecord, now time.Time) error {
	return transition(j, schema.StatusProcessing, now)
}

func MarkCompleted(j *schema.JobRecord, res schema.Result, now time.Time) error {
	if err := transition(j, schema.StatusCompleted, now); err != nil {
		return err
	}
	j.Result = &res
	j.Error = ""
	return nil
}

func MarkFailed(j *schema.JobRecord, cause error, now time.Time) error {
	if err := transition(j, schema.StatusFailed, now); err != nil {
		return err
	}
	j.Result = nil
	if cause != nil {
		j.Error = cause.Error()
	}
	return nil
}

func transition(j *schema.JobRecord, to schema.JobStatus, now time.Time) error {
	if j.Status == to {
		return nil
	}
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrRegression, j.Status, to)
	}
	j.Status = to
	if now.After(j.UpdatedAt) {
		j.UpdatedAt = now
	}
	return nil
}

// CheckRecord verifies the shape invariants of a record read from the
// registry: a known status, a result only when completed and an error only
// when failed.
func CheckRecord(j *schema.JobRecord) error {
	if j == nil {
		return fmt.Errorf("%w: empty record", ErrInvalidStatus)
	}
	if j.JobID == "" {
		return errors.New("job record has no id")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, j.Status)
	}
	if j.Result != nil && j.Status != schema.StatusCompleted {
		return fmt.Errorf("job %s carries a result while %s", j.JobID, j.Status)
	}
	if j.Error != "" && j.Status != schema.StatusFailed {
		return fmt.Errorf("job %s carries an error while %s", j.JobID, j.Status)
	}
	return nil
}

// Observer follows the statuses seen for one job and rejects regressions.
type Observer struct {
	history []schema.JobStatus
}

func (o *Observer) Observe(s schema.JobStatus) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	if n := len(o.history); n > 0 {
		last := o.history[n-1]
		if !CanTransition(last, s) {
			return fmt.Errorf("%w: %s -> %s", ErrRegression, last, s)
		}
	}
	o.history = append(o.history, s)
	return nil
}

// Last returns the most recently observed status, or "" when nothing was seen.
func (o *Observer) Last() schema.JobStatus {
	if len(o.history) == 0 {
		return ""
	}
	return o.history[len(o.history)-1]
}

func (o *Observer) History() []schema.JobStatus {
	out := make([]schema.JobStatus, len(o.history))
	copy(out, o.history)
	return out
}
