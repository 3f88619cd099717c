package workflow

import (
	"context"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
)

// reconcile posts an expense against the caller's wallet when the
// extraction produced a usable total and the caller opted in. A failed
// posting never unwinds the scan: the receipt stays, the error is logged
// and the result simply carries no expense.
func (p *ReceiptPipeline) reconcile(ctx context.Context, receipt *models.Receipt, extraction *models.ExtractionOutput, opts SubmitOptions) *models.Expense {
	if !opts.CreateExpense || opts.WalletId <= 0 {
		return nil
	}
	if extraction == nil || !extraction.HasUsableTotal() {
		return nil
	}

	category := opts.Category
	if !models.IsValidCategory(category) {
		category = extraction.Category
	}
	if !models.IsValidCategory(category) {
		category = models.CategoryOther
	}

	description := opts.Description
	if description == "" {
		description = extraction.StoreName
	}
	if description == "" {
		description = "Scanned receipt"
	}

	expenseDate := p.now()
	if extraction.Date != nil {
		expenseDate = *extraction.Date
	}

	receiptId := receipt.ID
	expense, err := p.expenses.CreateFromReceipt(ctx, &models.NewExpense{
		BusinessId:  receipt.BusinessId,
		ReceiptId:   &receiptId,
		WalletId:    opts.WalletId,
		Amount:      *extraction.TotalAmount,
		Category:    category,
		Description: description,
		ExpenseDate: expenseDate,
	})
	if err != nil {
		config.LogError(p.logger, "workflow", "reconcile", "post expense from receipt", logrus.Fields{
			"receiptId": receipt.ID,
			"walletId":  opts.WalletId,
		}, err)
		return nil
	}
	return expense
}
