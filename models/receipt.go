package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
	"gorm.io/gorm"
)

// Receipt is the durable record of a captured receipt image. The row is
// created at intake with no extraction output and is never rolled back by
// later pipeline failures; it stays as evidence for retry or manual review.
type Receipt struct {
	ID            int               `gorm:"primary_key" json:"id"`
	BusinessId    string            `gorm:"index;size:64;not null" json:"business_id"`
	ImageURL      string            `gorm:"size:512;not null" json:"image_url"`
	ThumbnailURL  string            `gorm:"size:512" json:"thumbnail_url"`
	ExtractedData *ExtractionOutput `gorm:"type:json" json:"extracted_data"`
	ProcessedAt   *time.Time        `json:"processed_at"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// ReceiptDB is the gorm-backed receipt store injected into the pipeline.
type ReceiptDB struct {
	db *gorm.DB
}

func NewReceiptDB(db *gorm.DB) *ReceiptDB {
	return &ReceiptDB{db: db}
}

func (s *ReceiptDB) Create(ctx context.Context, receipt *Receipt) error {
	return s.db.WithContext(ctx).Create(receipt).Error
}

// GetForOwner enforces the ownership check shared by correction and deletion:
// a receipt belonging to another business is indistinguishable from a missing one.
func (s *ReceiptDB) GetForOwner(ctx context.Context, businessId string, id int) (*Receipt, error) {
	var receipt Receipt
	err := s.db.WithContext(ctx).
		Where("id = ? AND business_id = ?", id, businessId).
		Take(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFoundOrForbidden
		}
		return nil, err
	}
	return &receipt, nil
}

func (s *ReceiptDB) SaveExtraction(ctx context.Context, id int, data *ExtractionOutput, processedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&Receipt{ID: id}).Updates(map[string]interface{}{
		"extracted_data": data,
		"processed_at":   processedAt,
	}).Error
}

func (s *ReceiptDB) SaveThumbnailURL(ctx context.Context, id int, thumbnailURL string) error {
	return s.db.WithContext(ctx).Model(&Receipt{ID: id}).
		Update("thumbnail_url", thumbnailURL).Error
}

// Delete removes the receipt row and its processing job. Correction logs are
// kept: they feed downstream extraction-quality evaluation.
func (s *ReceiptDB) Delete(ctx context.Context, receipt *Receipt) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", receipt.ID).Delete(&ProcessingJob{}).Error; err != nil {
			return err
		}
		return tx.Delete(receipt).Error
	})
}

func (s *ReceiptDB) ListSince(ctx context.Context, businessId string, since time.Time) ([]Receipt, error) {
	var receipts []Receipt
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND created_at >= ?", businessId, since).
		Order("created_at DESC").
		Find(&receipts).Error
	return receipts, err
}
