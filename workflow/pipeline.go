package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

// ReceiptStore persists receipt records and their extraction payloads.
type ReceiptStore interface {
	Create(ctx context.Context, receipt *models.Receipt) error
	GetForOwner(ctx context.Context, businessId string, receiptId int) (*models.Receipt, error)
	SaveExtraction(ctx context.Context, receiptId int, data *models.ExtractionOutput, processedAt time.Time) error
	SaveThumbnailURL(ctx context.Context, receiptId int, thumbnailURL string) error
	Delete(ctx context.Context, receipt *models.Receipt) error
	ListSince(ctx context.Context, businessId string, since time.Time) ([]models.Receipt, error)
}

// JobStore tracks the processing job attached to each receipt.
type JobStore interface {
	Enqueue(ctx context.Context, job *models.ProcessingJob) error
	Transition(ctx context.Context, receiptId int, to models.ProcessingJobStatus, method models.ExtractionMethod, lastError string) (*models.ProcessingJob, error)
	GetByReceipt(ctx context.Context, receiptId int) (*models.ProcessingJob, error)
	CountByStatusSince(ctx context.Context, businessId string, since time.Time) (map[models.ProcessingJobStatus]int, error)
}

// ObjectStore holds the raw receipt images.
type ObjectStore interface {
	Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, accessURL string) error
}

// Extractor turns a receipt image into structured data.
type Extractor interface {
	Extract(ctx context.Context, imageURL string, imageData []byte, contentType string) (*models.ExtractionOutput, models.ExtractionMethod, error)
}

// ExpenseCreator posts a bookkeeping entry for an extracted receipt.
type ExpenseCreator interface {
	CreateFromReceipt(ctx context.Context, input *models.NewExpense) (*models.Expense, error)
}

// UsageStore answers quota questions and records usage counters.
type UsageStore interface {
	TierFor(ctx context.Context, businessId string) (models.AccountTier, error)
	MonthlyCount(ctx context.Context, businessId string, feature string, month string) (int, error)
	IncrementMonthly(ctx context.Context, businessId string, feature string, month string) error
	IncrementProgress(ctx context.Context, businessId string, name string) error
}

// CorrectionStore appends user corrections for later model evaluation.
type CorrectionStore interface {
	Append(ctx context.Context, log *models.CorrectionLog) error
}

// ProgressPublisher pushes usage events to the event bus.
type ProgressPublisher interface {
	Publish(ctx context.Context, event config.ProgressEvent) (string, error)
}

// ReceiptPipeline runs the scan flow end to end: quota gate, intake
// validation, object upload, extraction, bookkeeping and reporting.
// All collaborators are injected so the pipeline can run against fakes.
type ReceiptPipeline struct {
	receipts    ReceiptStore
	jobs        JobStore
	objects     ObjectStore
	extractor   Extractor
	expenses    ExpenseCreator
	usage       UsageStore
	corrections CorrectionStore
	publisher   ProgressPublisher
	logger      *logrus.Logger

	// dispatch runs best-effort side work. Defaults to `go fn()`;
	// tests swap in a synchronous runner.
	dispatch func(fn func())
	now      func() time.Time
}

type PipelineDeps struct {
	Receipts    ReceiptStore
	Jobs        JobStore
	Objects     ObjectStore
	Extractor   Extractor
	Expenses    ExpenseCreator
	Usage       UsageStore
	Corrections CorrectionStore
	Publisher   ProgressPublisher
	Logger      *logrus.Logger
	Dispatch    func(fn func())
	Now         func() time.Time
}

func NewReceiptPipeline(deps PipelineDeps) *ReceiptPipeline {
	p := &ReceiptPipeline{
		receipts:    deps.Receipts,
		jobs:        deps.Jobs,
		objects:     deps.Objects,
		extractor:   deps.Extractor,
		expenses:    deps.Expenses,
		usage:       deps.Usage,
		corrections: deps.Corrections,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		dispatch:    deps.Dispatch,
		now:         deps.Now,
	}
	if p.logger == nil {
		p.logger = config.GetLogger()
	}
	if p.dispatch == nil {
		p.dispatch = func(fn func()) { go fn() }
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// SubmitOptions carries the caller's bookkeeping preferences for a scan.
type SubmitOptions struct {
	CreateExpense bool
	WalletId      int
	Category      string
	Description   string
}

// ReceiptProcessingResult is what the caller gets back from Submit and
// Correct. Error is populated instead of failing the call when the
// pipeline degrades after the receipt record already exists.
type ReceiptProcessingResult struct {
	Receipt       *models.Receipt            `json:"receipt"`
	ExtractedData *models.ExtractionOutput   `json:"extractedData"`
	Expense       *models.Expense            `json:"expense,omitempty"`
	JobStatus     models.ProcessingJobStatus `json:"jobStatus"`
	Success       bool                       `json:"success"`
	Error         string                     `json:"error,omitempty"`
}

// Submit accepts an uploaded receipt image and runs it through the full
// pipeline. Intake failures (quota, media type, size, storage) abort the
// call with an error; once the receipt record exists, extraction failures
// degrade into a failed job on the returned result instead.
func (p *ReceiptPipeline) Submit(ctx context.Context, businessId string, data []byte, fileName string, opts SubmitOptions) (*ReceiptProcessingResult, error) {
	if err := p.checkQuota(ctx, businessId); err != nil {
		return nil, err
	}

	contentType, err := ValidateImage(data)
	if err != nil {
		return nil, err
	}

	objectKey := utils.GenerateObjectKey(businessId, objectExtension(fileName, contentType))
	imageURL, err := p.objects.Put(ctx, objectKey, data, contentType)
	if err != nil {
		return nil, err
	}

	receipt := &models.Receipt{
		BusinessId: businessId,
		ImageURL:   imageURL,
	}
	if err := p.receipts.Create(ctx, receipt); err != nil {
		config.LogError(p.logger, "workflow", "Submit", "create receipt record", logrus.Fields{"businessId": businessId}, err)
		return nil, errors.Join(utils.ErrStorageError, err)
	}

	job := &models.ProcessingJob{
		ReceiptId:  receipt.ID,
		BusinessId: businessId,
		Status:     models.JobStatusQueued,
	}
	if err := p.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	p.generateThumbnail(receipt, data)

	if _, err := p.jobs.Transition(ctx, receipt.ID, models.JobStatusProcessing, "", ""); err != nil {
		return nil, err
	}

	extraction, method, err := p.extractor.Extract(ctx, imageURL, data, contentType)
	if err != nil {
		job, terr := p.jobs.Transition(ctx, receipt.ID, models.JobStatusFailed, method, err.Error())
		if terr != nil {
			config.LogError(p.logger, "workflow", "Submit", "record extraction failure", logrus.Fields{"receiptId": receipt.ID}, terr)
		}
		p.report(businessId, receipt.ID, "failed")
		result := &ReceiptProcessingResult{
			Receipt:   receipt,
			JobStatus: models.JobStatusFailed,
			Error:     err.Error(),
		}
		if job != nil {
			result.JobStatus = job.Status
		}
		return result, nil
	}

	processedAt := p.now()
	if err := p.receipts.SaveExtraction(ctx, receipt.ID, extraction, processedAt); err != nil {
		config.LogError(p.logger, "workflow", "Submit", "persist extraction", logrus.Fields{"receiptId": receipt.ID}, err)
		return nil, errors.Join(utils.ErrStorageError, err)
	}
	receipt.ExtractedData = extraction
	receipt.ProcessedAt = &processedAt

	status := models.JobStatusCompleted
	outcome := "completed"
	if extraction.IsLowConfidence() {
		status = models.JobStatusManualReview
		outcome = "manual_review"
	}
	if _, err := p.jobs.Transition(ctx, receipt.ID, status, method, ""); err != nil {
		return nil, err
	}

	expense := p.reconcile(ctx, receipt, extraction, opts)

	p.report(businessId, receipt.ID, outcome)

	return &ReceiptProcessingResult{
		Receipt:       receipt,
		ExtractedData: extraction,
		Expense:       expense,
		JobStatus:     status,
		Success:       true,
	}, nil
}

// Delete removes the receipt record and its stored image. Correction
// history stays behind for evaluation.
func (p *ReceiptPipeline) Delete(ctx context.Context, businessId string, receiptId int) error {
	receipt, err := p.receipts.GetForOwner(ctx, businessId, receiptId)
	if err != nil {
		return err
	}
	if err := p.objects.Delete(ctx, receipt.ImageURL); err != nil {
		return err
	}
	if receipt.ThumbnailURL != "" {
		if err := p.objects.Delete(ctx, receipt.ThumbnailURL); err != nil {
			config.LogError(p.logger, "workflow", "Delete", "remove thumbnail object", logrus.Fields{"receiptId": receiptId}, err)
		}
	}
	return p.receipts.Delete(ctx, receipt)
}

// report records usage and progress counters and publishes a progress
// event. All of it is best effort: failures are logged, never surfaced.
func (p *ReceiptPipeline) report(businessId string, receiptId int, outcome string) {
	occurredAt := p.now()
	p.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.usage.IncrementMonthly(ctx, businessId, models.FeatureReceiptScan, models.UsageMonth(occurredAt)); err != nil {
			config.LogError(p.logger, "workflow", "report", "increment monthly usage", logrus.Fields{"businessId": businessId}, err)
		}
		if err := p.usage.IncrementProgress(ctx, businessId, "receipts_scanned"); err != nil {
			config.LogError(p.logger, "workflow", "report", "increment progress counter", logrus.Fields{"businessId": businessId}, err)
		}
		if p.publisher != nil {
			event := config.ProgressEvent{
				BusinessId: businessId,
				ReceiptId:  receiptId,
				Feature:    models.FeatureReceiptScan,
				Outcome:    outcome,
				OccurredAt: occurredAt,
			}
			if _, err := p.publisher.Publish(ctx, event); err != nil {
				config.LogError(p.logger, "workflow", "report", "publish progress event", logrus.Fields{"businessId": businessId}, err)
			}
		}
	})
}

// ReceiptStats summarises scan activity over a trailing window.
type ReceiptStats struct {
	WindowDays     int             `json:"windowDays"`
	TotalReceipts  int             `json:"totalReceipts"`
	Completed      int             `json:"completed"`
	ManualReview   int             `json:"manualReview"`
	Failed         int             `json:"failed"`
	TotalExtracted decimal.Decimal `json:"totalExtracted"`
}

func (p *ReceiptPipeline) Stats(ctx context.Context, businessId string, windowDays int) (*ReceiptStats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := p.now().AddDate(0, 0, -windowDays)

	receipts, err := p.receipts.ListSince(ctx, businessId, since)
	if err != nil {
		return nil, err
	}
	counts, err := p.jobs.CountByStatusSince(ctx, businessId, since)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, receipt := range receipts {
		if receipt.ExtractedData != nil && receipt.ExtractedData.TotalAmount != nil {
			total = total.Add(*receipt.ExtractedData.TotalAmount)
		}
	}

	return &ReceiptStats{
		WindowDays:     windowDays,
		TotalReceipts:  len(receipts),
		Completed:      counts[models.JobStatusCompleted],
		ManualReview:   counts[models.JobStatusManualReview],
		Failed:         counts[models.JobStatusFailed],
		TotalExtracted: total,
	}, nil
}
