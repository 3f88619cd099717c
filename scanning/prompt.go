package scanning

import (
	"strings"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
)

// receiptScanPrompt is the fixed natural-language instruction sent with every
// receipt image. It pins the exact JSON shape the engine knows how to parse.
var receiptScanPrompt = buildReceiptScanPrompt()

func buildReceiptScanPrompt() string {
	lines := []string{
		"You are a receipts parser for a small-business bookkeeping app.",
		"Analyze this receipt image and return ONLY a JSON object with this exact shape:",
		"{",
		`  "store_name": "merchant name as printed",`,
		`  "total_amount": 15.30,`,
		`  "date": "YYYY-MM-DD",`,
		`  "items": [{"name": "item name", "price": 2.50, "quantity": 2}],`,
		`  "payment_method": "cash | card | ewallet as printed",`,
		`  "gst_amount": 0.90,`,
		`  "category": "one of the allowed categories",`,
		"}",
		"Allowed categories (enum): " + strings.Join(models.ExpenseCategories, ", ") + ".",
		"If uncertain about the category, use \"Other\".",
		"Amounts are plain numbers with at most 2 decimal places, no currency symbols.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Never output null. If a field is not readable, omit it.",
		"Do not wrap the JSON in markdown code fences or add commentary.",
	}
	return strings.Join(lines, "\n")
}
