package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ProcessingJobStatus is the per-receipt pipeline state. Transitions are
// monotonic forward, except that the correction flow may re-enter completed
// from either terminal-but-actionable state.
type ProcessingJobStatus string

const (
	JobStatusQueued       ProcessingJobStatus = "queued"
	JobStatusProcessing   ProcessingJobStatus = "processing"
	JobStatusCompleted    ProcessingJobStatus = "completed"
	JobStatusFailed       ProcessingJobStatus = "failed"
	JobStatusManualReview ProcessingJobStatus = "manual_review"
)

func (s ProcessingJobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusManualReview:
		return true
	}
	return false
}

// CanTransition enumerates the legal edges of the state machine. A job is
// never resurrected from completed back to queued.
func (s ProcessingJobStatus) CanTransition(to ProcessingJobStatus) bool {
	switch s {
	case JobStatusQueued:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusManualReview
	case JobStatusFailed, JobStatusManualReview:
		return to == JobStatusCompleted
	case JobStatusCompleted:
		// Corrections on an already-completed receipt re-enter at completed.
		return to == JobStatusCompleted
	}
	return false
}

var ErrorJobExists = errors.New("processing job already exists for receipt")

// ProcessingJob tracks pipeline state for exactly one receipt. The unique
// index on receipt_id is what makes double-processing impossible.
type ProcessingJob struct {
	ID                    int                 `gorm:"primary_key" json:"id"`
	ReceiptId             int                 `gorm:"uniqueIndex;not null" json:"receipt_id"`
	BusinessId            string              `gorm:"index;size:64;not null" json:"business_id"`
	Status                ProcessingJobStatus `gorm:"size:20;not null;default:'queued'" json:"status"`
	Method                ExtractionMethod    `gorm:"size:30" json:"method"`
	LastError             string              `gorm:"size:512" json:"last_error"`
	ProcessingStartedAt   *time.Time          `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time          `json:"processing_completed_at"`
	CreatedAt             time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApplyTransition mutates the job for one legal transition. Timestamps are
// set exactly once per forward transition; corrections do not reset them.
func (j *ProcessingJob) ApplyTransition(to ProcessingJobStatus, method ExtractionMethod, now time.Time) error {
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("illegal job transition %s -> %s (receipt %d)", j.Status, to, j.ReceiptId)
	}
	j.Status = to
	if method != "" {
		j.Method = method
	}
	if to == JobStatusProcessing && j.ProcessingStartedAt == nil {
		j.ProcessingStartedAt = &now
	}
	if to.IsTerminal() && j.ProcessingCompletedAt == nil {
		j.ProcessingCompletedAt = &now
	}
	return nil
}

// JobDB is the gorm-backed processing queue store.
type JobDB struct {
	db *gorm.DB
}

func NewJobDB(db *gorm.DB) *JobDB {
	return &JobDB{db: db}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// Enqueue creates the job in queued state. A second enqueue for the same
// receipt is rejected via the unique key, whatever state the first is in.
func (s *JobDB) Enqueue(ctx context.Context, job *ProcessingJob) error {
	if job.Status == "" {
		job.Status = JobStatusQueued
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrorJobExists
		}
		return err
	}
	return nil
}

// Transition loads the job, validates the edge centrally and persists the
// result in one transaction.
func (s *JobDB) Transition(ctx context.Context, receiptId int, to ProcessingJobStatus, method ExtractionMethod, lastError string) (*ProcessingJob, error) {
	var job ProcessingJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", receiptId).Take(&job).Error; err != nil {
			return err
		}
		if err := job.ApplyTransition(to, method, time.Now().UTC()); err != nil {
			return err
		}
		if lastError != "" {
			job.LastError = lastError
		}
		return tx.Model(&ProcessingJob{ID: job.ID}).Updates(map[string]interface{}{
			"status":                  job.Status,
			"method":                  job.Method,
			"last_error":              job.LastError,
			"processing_started_at":   job.ProcessingStartedAt,
			"processing_completed_at": job.ProcessingCompletedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobDB) GetByReceipt(ctx context.Context, receiptId int) (*ProcessingJob, error) {
	var job ProcessingJob
	if err := s.db.WithContext(ctx).Where("receipt_id = ?", receiptId).Take(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobDB) CountByStatusSince(ctx context.Context, businessId string, since time.Time) (map[ProcessingJobStatus]int, error) {
	type row struct {
		Status ProcessingJobStatus
		N      int
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&ProcessingJob{}).
		Select("status, COUNT(*) AS n").
		Where("business_id = ? AND created_at >= ?", businessId, since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[ProcessingJobStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// StatusesSince maps receipt id to job status for one business, used by
// the receipt export.
func (s *JobDB) StatusesSince(ctx context.Context, businessId string, since time.Time) (map[int]ProcessingJobStatus, error) {
	type row struct {
		ReceiptId int
		Status    ProcessingJobStatus
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&ProcessingJob{}).
		Select("receipt_id, status").
		Where("business_id = ? AND created_at >= ?", businessId, since).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	statuses := make(map[int]ProcessingJobStatus, len(rows))
	for _, r := range rows {
		statuses[r.ReceiptId] = r.Status
	}
	return statuses, nil
}

// ListStuck surfaces jobs that never reached a terminal state, for ops
// tooling. The pipeline itself never drives jobs from this query.
func (s *JobDB) ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]ProcessingJob, error) {
	var jobs []ProcessingJob
	cutoff := time.Now().UTC().Add(-olderThan)
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []ProcessingJobStatus{JobStatusQueued, JobStatusProcessing}, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ListNeedsReview lists jobs parked in manual_review for a business.
func (s *JobDB) ListNeedsReview(ctx context.Context, businessId string, limit int) ([]ProcessingJob, error) {
	var jobs []ProcessingJob
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND status = ?", businessId, JobStatusManualReview).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
