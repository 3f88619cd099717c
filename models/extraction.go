package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxMonetaryAmount caps total_amount; the extractor occasionally hallucinates
// phone numbers and barcodes into money fields.
var MaxMonetaryAmount = decimal.RequireFromString("999999.99")

// ExtractionOutput is the validated structure pulled out of a receipt image.
// All fields are optional: a field that fails validation is dropped, never
// allowed to corrupt the rest of the record.
type ExtractionOutput struct {
	StoreName     string           `json:"store_name,omitempty"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	Date          *time.Time       `json:"date,omitempty"`
	Items         []ExtractionItem `json:"items,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	TaxAmount     *decimal.Decimal `json:"gst_amount,omitempty"`
	Category      string           `json:"category,omitempty"`
}

type ExtractionItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  *int            `json:"quantity,omitempty"`
}

// Scan / Value let gorm persist the output as a nullable JSON column on receipts.
func (e *ExtractionOutput) Scan(value interface{}) error {
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
		return fmt.Errorf("cannot scan %T into ExtractionOutput", value)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, e)
}

func (e ExtractionOutput) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// Extraction field names as they appear on the wire and in correction requests.
const (
	FieldStoreName     = "store_name"
	FieldTotalAmount   = "total_amount"
	FieldDate          = "date"
	FieldItems         = "items"
	FieldPaymentMethod = "payment_method"
	FieldTaxAmount     = "gst_amount"
	FieldCategory      = "category"
)

// ParseMoney accepts the loose money representations the vision model (and
// users) produce: 15.3, "15.30", "RM 1,234.50". Only finite, non-negative
// values with at most 2 decimal places survive.
func ParseMoney(v any) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch t := v.(type) {
	case float64:
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, err
		}
		d = parsed
	case string:
		s := strings.TrimSpace(t)
		s = strings.ReplaceAll(s, ",", "")
		// Strip common currency markers, keep digits, '.' and a leading '-'.
		neg := strings.HasPrefix(s, "-")
		var b strings.Builder
		b.Grow(len(s) + 1)
		for _, r := range s {
			if (r >= '0' && r <= '9') || r == '.' {
				b.WriteRune(r)
			}
		}
		clean := b.String()
		if clean == "" {
			return decimal.Zero, fmt.Errorf("not a number: %q", t)
		}
		if neg {
			clean = "-" + clean
		}
		parsed, err := decimal.NewFromString(clean)
		if err != nil {
			return decimal.Zero, err
		}
		d = parsed
	default:
		return decimal.Zero, fmt.Errorf("unsupported money type %T", v)
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount")
	}
	if !d.Round(2).Equal(d) {
		return decimal.Zero, fmt.Errorf("more than 2 decimal places")
	}
	return d, nil
}

var extractionDateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"02-01-2006",
	"01/02/2006",
	"02 Jan 2006",
}

func parseExtractionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, format := range extractionDateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// SanitizeExtractionPayload runs per-field validation over a raw decoded
// payload. It returns the validated output plus the names of the fields that
// were present and kept; invalid fields are dropped field-locally. The same
// rules apply to fresh extractions and to human corrections.
func SanitizeExtractionPayload(raw map[string]any) (*ExtractionOutput, []string) {
	out := &ExtractionOutput{}
	var kept []string

	if v, ok := raw[FieldStoreName]; ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out.StoreName = strings.TrimSpace(s)
			kept = append(kept, FieldStoreName)
		}
	}

	if v, ok := raw[FieldTotalAmount]; ok && v != nil {
		if d, err := ParseMoney(v); err == nil && d.Cmp(MaxMonetaryAmount) <= 0 {
			out.TotalAmount = &d
			kept = append(kept, FieldTotalAmount)
		}
	}

	if v, ok := raw[FieldDate]; ok {
		if s, ok := v.(string); ok {
			if d, err := parseExtractionDate(s); err == nil {
				out.Date = &d
				kept = append(kept, FieldDate)
			}
		}
	}

	if v, ok := raw[FieldItems]; ok {
		if items := sanitizeItems(v); len(items) > 0 {
			out.Items = items
			kept = append(kept, FieldItems)
		}
	}

	if v, ok := raw[FieldPaymentMethod]; ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out.PaymentMethod = strings.TrimSpace(s)
			kept = append(kept, FieldPaymentMethod)
		}
	}

	if v, ok := raw[FieldTaxAmount]; ok && v != nil {
		if d, err := ParseMoney(v); err == nil {
			out.TaxAmount = &d
			kept = append(kept, FieldTaxAmount)
		}
	}

	if v, ok := raw[FieldCategory]; ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			category := strings.TrimSpace(s)
			if !IsValidCategory(category) {
				category = CategoryOther
			}
			out.Category = category
			kept = append(kept, FieldCategory)
		}
	}

	return out, kept
}

func sanitizeItems(v any) []ExtractionItem {
	rawItems, ok := v.([]any)
	if !ok {
		return nil
	}
	items := make([]ExtractionItem, 0, len(rawItems))
	for _, rawItem := range rawItems {
		m, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		price, err := ParseMoney(m["price"])
		if err != nil {
			continue
		}
		item := ExtractionItem{Name: name, UnitPrice: price}
		if qv, ok := m["quantity"]; ok {
			if q, ok := toPositiveInt(qv); ok {
				item.Quantity = &q
			}
		}
		items = append(items, item)
	}
	return items
}

func toPositiveInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		n := int(t)
		if float64(n) == t && n > 0 {
			return n, true
		}
	case int:
		if t > 0 {
			return t, true
		}
	case json.Number:
		if n, err := t.Int64(); err == nil && n > 0 {
			return int(n), true
		}
	}
	return 0, false
}

// Merge overlays the named correction fields over the receiver. Fields not
// mentioned are untouched; corrections win field by field.
func (e *ExtractionOutput) Merge(corrections *ExtractionOutput, fields []string) *ExtractionOutput {
	merged := ExtractionOutput{}
	if e != nil {
		merged = *e
	}
	for _, field := range fields {
		switch field {
		case FieldStoreName:
			merged.StoreName = corrections.StoreName
		case FieldTotalAmount:
			merged.TotalAmount = corrections.TotalAmount
		case FieldDate:
			merged.Date = corrections.Date
		case FieldItems:
			merged.Items = corrections.Items
		case FieldPaymentMethod:
			merged.PaymentMethod = corrections.PaymentMethod
		case FieldTaxAmount:
			merged.TaxAmount = corrections.TaxAmount
		case FieldCategory:
			merged.Category = corrections.Category
		}
	}
	return &merged
}

// FieldChange records one corrected field for downstream model evaluation.
type FieldChange struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// Diff compares two outputs field by field and returns only the fields whose
// rendered values differ.
func (e *ExtractionOutput) Diff(corrected *ExtractionOutput) map[string]FieldChange {
	changes := map[string]FieldChange{}
	original := ExtractionOutput{}
	if e != nil {
		original = *e
	}
	updated := ExtractionOutput{}
	if corrected != nil {
		updated = *corrected
	}

	compare := func(field, before, after string) {
		if before != after {
			changes[field] = FieldChange{Original: before, Corrected: after}
		}
	}

	compare(FieldStoreName, original.StoreName, updated.StoreName)
	compare(FieldTotalAmount, renderMoney(original.TotalAmount), renderMoney(updated.TotalAmount))
	compare(FieldDate, renderDate(original.Date), renderDate(updated.Date))
	compare(FieldItems, renderItems(original.Items), renderItems(updated.Items))
	compare(FieldPaymentMethod, original.PaymentMethod, updated.PaymentMethod)
	compare(FieldTaxAmount, renderMoney(original.TaxAmount), renderMoney(updated.TaxAmount))
	compare(FieldCategory, original.Category, updated.Category)

	return changes
}

// IsLowConfidence implements the confidence policy: an extraction missing both
// the total and the store name is too sparse to trust automatically.
func (e *ExtractionOutput) IsLowConfidence() bool {
	if e == nil {
		return true
	}
	return e.TotalAmount == nil && e.StoreName == ""
}

// HasUsableTotal reports whether the output carries a total the reconciler
// can turn into an expense.
func (e *ExtractionOutput) HasUsableTotal() bool {
	return e != nil && e.TotalAmount != nil && e.TotalAmount.IsPositive()
}

func renderMoney(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func renderDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func renderItems(items []ExtractionItem) string {
	if len(items) == 0 {
		return ""
	}
	b, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(b)
}
