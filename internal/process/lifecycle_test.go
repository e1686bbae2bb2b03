package process

import (
	"errors"
	"testing"
	"time"

	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to schema.JobStatus
		want     bool
	}{
		{schema.StatusPending, schema.StatusPending, true},
		{schema.StatusPending, schema.StatusProcessing, true},
		{schema.StatusPending, schema.StatusCompleted, true},
		{schema.StatusProcessing, schema.StatusFailed, true},
		{schema.StatusProcessing, schema.StatusPending, false},
		{schema.StatusCompleted, schema.StatusCompleted, true},
		{schema.StatusCompleted, schema.StatusFailed, false},
		{schema.StatusFailed, schema.StatusProcessing, false},
		{schema.StatusPending, "running", false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestMarkCompletedAdvancesUpdatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := NewRecord("job-1", "req-1", nil, created)

	if err := MarkProcessing(job, created.Add(time.Second)); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := MarkCompleted(job, schema.Result{Content: "# hi"}, created.Add(2*time.Second)); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if job.Status != schema.StatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Result == nil || job.Result.Content != "# hi" {
		t.Fatalf("result not recorded: %+v", job.Result)
	}
	if !job.UpdatedAt.Equal(created.Add(2 * time.Second)) {
		t.Fatalf("updatedAt not advanced: %s", job.UpdatedAt)
	}
	if err := CheckRecord(job); err != nil {
		t.Fatalf("CheckRecord: %v", err)
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	now := time.Now()
	job := NewRecord("job-2", "", nil, now)
	if err := MarkFailed(job, errors.New("boom"), now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	err := MarkCompleted(job, schema.Result{Content: "late"}, now)
	if !errors.Is(err, ErrRegression) {
		t.Fatalf("expected regression error, got %v", err)
	}
	if job.Status != schema.StatusFailed || job.Error != "boom" || job.Result != nil {
		t.Fatalf("failed job mutated: %+v", job)
	}
}

func TestMarkFailedWithoutCauseKeepsErrorEmpty(t *testing.T) {
	job := NewRecord("job-3", "", nil, time.Now())
	if err := MarkFailed(job, nil, time.Now()); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if job.Error != "" {
		t.Fatalf("expected empty error string, got %q", job.Error)
	}
}

func TestCheckRecordRejectsMismatchedPayload(t *testing.T) {
	job := &schema.JobRecord{JobID: "job-4", Status: schema.StatusProcessing, Result: &schema.Result{}}
	if err := CheckRecord(job); err == nil {
		t.Fatal("expected error for result on a processing job")
	}
	job = &schema.JobRecord{JobID: "job-4", Status: schema.StatusCompleted, Error: "x"}
	if err := CheckRecord(job); err == nil {
		t.Fatal("expected error for error on a completed job")
	}
	job = &schema.JobRecord{JobID: "job-4", Status: "done"}
	if err := CheckRecord(job); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestObserverRejectsRegression(t *testing.T) {
	var o Observer
	for _, s := range []schema.JobStatus{schema.StatusPending, schema.StatusPending, schema.StatusProcessing} {
		if err := o.Observe(s); err != nil {
			t.Fatalf("Observe(%s): %v", s, err)
		}
	}
	if err := o.Observe(schema.StatusPending); !errors.Is(err, ErrRegression) {
		t.Fatalf("expected regression, got %v", err)
	}
	if o.Last() != schema.StatusProcessing {
		t.Fatalf("last = %s", o.Last())
	}
	if got := len(o.History()); got != 3 {
		t.Fatalf("history length = %d", got)
	}
}
