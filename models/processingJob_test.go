package models

import (
	"testing"
	"time"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	statuses := []ProcessingJobStatus{
		JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusManualReview,
	}
	legal := map[ProcessingJobStatus]map[ProcessingJobStatus]bool{
		JobStatusQueued:       {JobStatusProcessing: true},
		JobStatusProcessing:   {JobStatusCompleted: true, JobStatusFailed: true, JobStatusManualReview: true},
		JobStatusFailed:       {JobStatusCompleted: true},
		JobStatusManualReview: {JobStatusCompleted: true},
		JobStatusCompleted:    {JobStatusCompleted: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := legal[from][to]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestApplyTransition_RejectsResurrection(t *testing.T) {
	job := &ProcessingJob{ReceiptId: 1, Status: JobStatusCompleted}
	if err := job.ApplyTransition(JobStatusQueued, "", time.Now()); err == nil {
		t.Fatal("completed -> queued must be rejected")
	}
	if job.Status != JobStatusCompleted {
		t.Errorf("failed transition mutated status to %s", job.Status)
	}
}

func TestApplyTransition_TimestampsSetOnce(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Second)
	t2 := t0.Add(time.Hour)

	job := &ProcessingJob{ReceiptId: 1, Status: JobStatusQueued}
	if err := job.ApplyTransition(JobStatusProcessing, "", t0); err != nil {
		t.Fatal(err)
	}
	if job.ProcessingStartedAt == nil || !job.ProcessingStartedAt.Equal(t0) {
		t.Fatalf("started at = %v", job.ProcessingStartedAt)
	}
	if err := job.ApplyTransition(JobStatusManualReview, ExtractionMethodVision, t1); err != nil {
		t.Fatal(err)
	}
	if job.ProcessingCompletedAt == nil || !job.ProcessingCompletedAt.Equal(t1) {
		t.Fatalf("completed at = %v", job.ProcessingCompletedAt)
	}

	// The correction path re-enters completed without resetting timestamps.
	if err := job.ApplyTransition(JobStatusCompleted, ExtractionMethodManual, t2); err != nil {
		t.Fatal(err)
	}
	if !job.ProcessingStartedAt.Equal(t0) || !job.ProcessingCompletedAt.Equal(t1) {
		t.Errorf("correction reset timestamps: started=%v completed=%v", job.ProcessingStartedAt, job.ProcessingCompletedAt)
	}
	if job.Method != ExtractionMethodManual {
		t.Errorf("method = %s, want %s", job.Method, ExtractionMethodManual)
	}
}

func TestApplyTransition_CompletedIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	job := &ProcessingJob{ReceiptId: 1, Status: JobStatusProcessing}
	if err := job.ApplyTransition(JobStatusCompleted, ExtractionMethodVision, now); err != nil {
		t.Fatal(err)
	}
	if err := job.ApplyTransition(JobStatusCompleted, ExtractionMethodManual, now.Add(time.Minute)); err != nil {
		t.Fatalf("completed -> completed should be a legal no-op edge: %v", err)
	}
	if job.Status != JobStatusCompleted {
		t.Errorf("status = %s", job.Status)
	}
}

func TestApplyTransition_KeepsMethodWhenBlank(t *testing.T) {
	job := &ProcessingJob{ReceiptId: 1, Status: JobStatusProcessing, Method: ExtractionMethodVision}
	if err := job.ApplyTransition(JobStatusFailed, "", time.Now()); err != nil {
		t.Fatal(err)
	}
	if job.Method != ExtractionMethodVision {
		t.Errorf("blank method overwrote %s", job.Method)
	}
}
