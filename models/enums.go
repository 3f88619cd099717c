package models

type AccountTier string

const (
	AccountTierFree AccountTier = "free"
	AccountTierPaid AccountTier = "paid"
)

const (
	UserRoleOwner = "owner"
	UserRoleAdmin = "admin"
)

type WalletType string

const (
	WalletTypeCash    WalletType = "cash"
	WalletTypeBank    WalletType = "bank"
	WalletTypeEWallet WalletType = "ewallet"
)

// ExpenseCategory is the closed category set for scanned receipts. Anything
// the extractor returns outside this set is coerced to CategoryOther.
type ExpenseCategory = string

const CategoryOther ExpenseCategory = "Other"

var ExpenseCategories = []ExpenseCategory{
	"Food & Beverages",
	"Groceries",
	"Transportation",
	"Utilities",
	"Rent",
	"Office Supplies",
	"Marketing",
	"Equipment",
	"Professional Services",
	CategoryOther,
}

var expenseCategorySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ExpenseCategories))
	for _, c := range ExpenseCategories {
		m[c] = struct{}{}
	}
	return m
}()

func IsValidCategory(category string) bool {
	_, ok := expenseCategorySet[category]
	return ok
}

// ExtractionMethod tags which strategy produced a receipt's extraction output.
type ExtractionMethod string

const (
	ExtractionMethodVision ExtractionMethod = "gemini_vision"
	ExtractionMethodCanned ExtractionMethod = "canned_fallback"
	ExtractionMethodManual ExtractionMethod = "manual_correction"
)

const FeatureReceiptScan = "receipt_scan"

// FreeTierMonthlyScanLimit is the hard ceiling of receipt scans per calendar
// month for free-tier accounts. Paid accounts are effectively unlimited.
const FreeTierMonthlyScanLimit = 30
