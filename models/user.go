package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// User is the minimal session collaborator: the pipeline needs an owner
// (business id) and an account tier, nothing more. Full account management
// lives outside this service.
type User struct {
	ID           int         `gorm:"primary_key" json:"id"`
	BusinessId   string      `gorm:"index;size:64;not null" json:"business_id"`
	Username     string      `gorm:"uniqueIndex;size:100;not null" json:"username"`
	PasswordHash string      `gorm:"size:100;not null" json:"-"`
	Role         string      `gorm:"size:30;default:'owner'" json:"role"`
	Tier         AccountTier `gorm:"type:enum('free','paid');default:'free';not null" json:"tier"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*User, error) {
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
