package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Expense struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;size:64;not null" json:"business_id"`
	ReceiptId   *int            `gorm:"index" json:"receipt_id"`
	WalletId    int             `gorm:"index;not null" json:"wallet_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Category    string          `gorm:"size:60;not null" json:"category"`
	Description string          `gorm:"size:255" json:"description"`
	ExpenseDate time.Time       `gorm:"not null" json:"expense_date"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	BusinessId  string          `json:"business_id" binding:"required"`
	ReceiptId   *int            `json:"receipt_id"`
	WalletId    int             `json:"wallet_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ExpenseDate time.Time       `json:"expense_date"`
}

type ExpenseDB struct {
	db *gorm.DB
}

func NewExpenseDB(db *gorm.DB) *ExpenseDB {
	return &ExpenseDB{db: db}
}

func (input *NewExpense) validate() error {
	if input.BusinessId == "" {
		return errors.New("business id is required")
	}
	if input.WalletId <= 0 {
		return errors.New("wallet id is required")
	}
	if !input.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if input.Category == "" || !IsValidCategory(input.Category) {
		return errors.New("category not found")
	}
	return nil
}

// CreateFromReceipt creates the expense and debits the designated wallet in
// one DB transaction. A redis lock around the wallet is a best-effort
// optimization only; the guarded UPDATE in debitWalletTx is the guarantee.
//
// An expense is created at most once per receipt: retried reconciliations
// return the existing row instead of double-debiting.
func (s *ExpenseDB) CreateFromReceipt(ctx context.Context, input *NewExpense) (*Expense, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("wallet-post:%d", input.WalletId), 10*time.Second, nil)
		if err == nil {
			defer lock.Release(context.Background())
		}
	}

	expenseDate := input.ExpenseDate
	if expenseDate.IsZero() {
		expenseDate = time.Now().UTC()
	}

	var expense Expense
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.ReceiptId != nil {
			var existing Expense
			err := tx.Where("business_id = ? AND receipt_id = ?", input.BusinessId, *input.ReceiptId).
				Take(&existing).Error
			if err == nil {
				expense = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		expense = Expense{
			BusinessId:  input.BusinessId,
			ReceiptId:   input.ReceiptId,
			WalletId:    input.WalletId,
			Amount:      input.Amount,
			Category:    input.Category,
			Description: input.Description,
			ExpenseDate: expenseDate,
		}
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}

		if err := debitWalletTx(tx, input.BusinessId, input.WalletId, input.Amount); err != nil {
			return err
		}

		walletTxn := WalletTransaction{
			BusinessId:      input.BusinessId,
			WalletId:        input.WalletId,
			TransactionType: "expense",
			Description:     input.Description,
			Withdrawal:      input.Amount,
		}
		return tx.Create(&walletTxn).Error
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *ExpenseDB) GetByReceipt(ctx context.Context, businessId string, receiptId int) (*Expense, error) {
	var expense Expense
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND receipt_id = ?", businessId, receiptId).
		Take(&expense).Error
	if err != nil {
		return nil, err
	}
	return &expense, nil
}
