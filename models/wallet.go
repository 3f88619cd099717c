package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet is one cash/bank/e-wallet balance. The expense reconciler is the
// only actor in this subsystem that decrements it, and the decrement happens
// as a single guarded UPDATE at the storage layer.
type Wallet struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;size:64;not null" json:"business_id"`
	Name       string          `gorm:"size:100;not null" json:"name"`
	Type       WalletType      `gorm:"type:enum('cash','bank','ewallet');default:'cash';not null" json:"type"`
	Balance    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// WalletTransaction is the audit trail for every balance mutation.
type WalletTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;size:64;not null" json:"business_id"`
	WalletId        int             `gorm:"index;not null" json:"wallet_id"`
	TransactionType string          `gorm:"size:30;not null" json:"transaction_type"`
	Description     string          `gorm:"size:255" json:"description"`
	Withdrawal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"withdrawal"`
	Deposit         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deposit"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

var ErrorInsufficientBalance = errors.New("wallet not found or insufficient balance")

// debitWalletTx serializes the read-modify-write inside MySQL: a single
// guarded UPDATE, never an application-level round trip. Concurrent debits
// against the same wallet cannot lose updates.
func debitWalletTx(tx *gorm.DB, businessId string, walletId int, amount decimal.Decimal) error {
	result := tx.Model(&Wallet{}).
		Where("id = ? AND business_id = ? AND is_active = 1 AND balance >= ?", walletId, businessId, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrorInsufficientBalance
	}
	return nil
}

type WalletDB struct {
	db *gorm.DB
}

func NewWalletDB(db *gorm.DB) *WalletDB {
	return &WalletDB{db: db}
}

func (s *WalletDB) Get(ctx context.Context, businessId string, id int) (*Wallet, error) {
	var wallet Wallet
	err := s.db.WithContext(ctx).
		Where("id = ? AND business_id = ?", id, businessId).
		Take(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *WalletDB) Create(ctx context.Context, wallet *Wallet) error {
	return s.db.WithContext(ctx).Create(wallet).Error
}
