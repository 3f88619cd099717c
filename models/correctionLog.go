package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ChangeSet maps extraction field names to their before/after values.
type ChangeSet map[string]FieldChange

func (c *ChangeSet) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ChangeSet", value)
	}
	return json.Unmarshal(b, c)
}

func (c ChangeSet) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// CorrectionLog captures one human-correction event for downstream
// extraction-quality evaluation. Rows are immutable once written; a second
// correction produces a new row, never an overwrite. The pipeline itself
// never reads these back.
type CorrectionLog struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;size:64;not null" json:"business_id"`
	ReceiptId  int       `gorm:"index;not null" json:"receipt_id"`
	Changes    ChangeSet `gorm:"type:json;not null" json:"changes"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type CorrectionDB struct {
	db *gorm.DB
}

func NewCorrectionDB(db *gorm.DB) *CorrectionDB {
	return &CorrectionDB{db: db}
}

func (s *CorrectionDB) Append(ctx context.Context, log *CorrectionLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}
