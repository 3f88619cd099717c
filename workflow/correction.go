package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

// Correct applies a user's fixes to a receipt's extracted data. The
// incoming payload goes through the same per-field sanitizer as model
// output, only the fields the caller mentioned are overlaid, and the
// before/after diff is recorded before the receipt is touched so a
// failed append never loses the correction history.
//
// A successful correction moves the job to completed, so a failed or
// manual_review receipt is resolved by correcting it.
func (p *ReceiptPipeline) Correct(ctx context.Context, businessId string, receiptId int, payload map[string]any) (*ReceiptProcessingResult, error) {
	receipt, err := p.receipts.GetForOwner(ctx, businessId, receiptId)
	if err != nil {
		return nil, err
	}

	job, err := p.jobs.GetByReceipt(ctx, receiptId)
	if err != nil {
		return nil, err
	}
	if !job.Status.CanTransition(models.JobStatusCompleted) {
		return nil, utils.NewValidationError("status", "receipt is still processing")
	}

	sanitized, fields := models.SanitizeExtractionPayload(payload)
	if len(fields) == 0 {
		return nil, utils.NewValidationError("corrections", "no valid fields to apply")
	}

	merged := receipt.ExtractedData.Merge(sanitized, fields)
	diff := receipt.ExtractedData.Diff(merged)

	if len(diff) > 0 {
		err := p.corrections.Append(ctx, &models.CorrectionLog{
			BusinessId: businessId,
			ReceiptId:  receiptId,
			Changes:    diff,
		})
		if err != nil {
			return nil, err
		}
	}

	processedAt := p.now()
	if err := p.receipts.SaveExtraction(ctx, receiptId, merged, processedAt); err != nil {
		return nil, err
	}
	receipt.ExtractedData = merged
	receipt.ProcessedAt = &processedAt

	job, err = p.jobs.Transition(ctx, receiptId, models.JobStatusCompleted, models.ExtractionMethodManual, "")
	if err != nil {
		return nil, err
	}

	return &ReceiptProcessingResult{
		Receipt:       receipt,
		ExtractedData: merged,
		JobStatus:     job.Status,
		Success:       true,
	}, nil
}
