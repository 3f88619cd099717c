package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeatureUsage is the per-business, per-calendar-month invocation counter the
// usage gate reads. Month is "2006-01".
type FeatureUsage struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"uniqueIndex:idx_usage_month;size:64;not null" json:"business_id"`
	Feature    string    `gorm:"uniqueIndex:idx_usage_month;size:40;not null" json:"feature"`
	Month      string    `gorm:"uniqueIndex:idx_usage_month;size:7;not null" json:"month"`
	Count      int       `gorm:"not null;default:0" json:"count"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProgressCounter is a lifetime counter consumed by the gamification
// collaborator ("receipts processed").
type ProgressCounter struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"uniqueIndex:idx_progress_name;size:64;not null" json:"business_id"`
	Name       string    `gorm:"uniqueIndex:idx_progress_name;size:40;not null" json:"name"`
	Count      int       `gorm:"not null;default:0" json:"count"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func UsageMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

type UsageDB struct {
	db *gorm.DB
}

func NewUsageDB(db *gorm.DB) *UsageDB {
	return &UsageDB{db: db}
}

func (s *UsageDB) MonthlyCount(ctx context.Context, businessId, feature, month string) (int, error) {
	var usage FeatureUsage
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND feature = ? AND month = ?", businessId, feature, month).
		Take(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return usage.Count, nil
}

func (s *UsageDB) TierFor(ctx context.Context, businessId string) (AccountTier, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("id ASC").
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AccountTierFree, nil
		}
		return AccountTierFree, err
	}
	return user.Tier, nil
}

// IncrementMonthly bumps the month counter atomically via upsert; the counter
// survives racing increments without a read-modify-write.
func (s *UsageDB) IncrementMonthly(ctx context.Context, businessId, feature, month string) error {
	usage := FeatureUsage{
		BusinessId: businessId,
		Feature:    feature,
		Month:      month,
		Count:      1,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}, {Name: "feature"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1")}),
	}).Create(&usage).Error
}

func (s *UsageDB) IncrementProgress(ctx context.Context, businessId, name string) error {
	counter := ProgressCounter{
		BusinessId: businessId,
		Name:       name,
		Count:      1,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}, {Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1")}),
	}).Create(&counter).Error
}
