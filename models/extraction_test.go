package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustMoney(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return &d
}

func TestParseMoney_AcceptsLooseRepresentations(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{15.3, "15.3"},
		{"15.30", "15.3"},
		{"RM 1,234.50", "1234.5"},
		{"MYR 9.99", "9.99"},
		{0.0, "0"},
		{"999999.99", "999999.99"},
	}
	for _, c := range cases {
		got, err := ParseMoney(c.in)
		if err != nil {
			t.Fatalf("ParseMoney(%v): unexpected error %v", c.in, err)
		}
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("ParseMoney(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParseMoney_RejectsBadValues(t *testing.T) {
	cases := []any{
		-1.0,
		"-5.00",
		"15.305", // 3 decimal places
		"not money",
		"",
		nil,
		[]any{"15.30"},
	}
	for _, c := range cases {
		if _, err := ParseMoney(c); err == nil {
			t.Errorf("ParseMoney(%v): expected error, got none", c)
		}
	}
}

func TestSanitizeExtractionPayload_DropsInvalidFieldsLocally(t *testing.T) {
	out, kept := SanitizeExtractionPayload(map[string]any{
		"store_name":   "99 Speedmart",
		"total_amount": "phone 012-3456789", // parses as a huge number, over the cap
		"date":         "yesterday",
		"gst_amount":   0.92,
		"category":     "Snacks", // not in whitelist
	})

	if out.StoreName != "99 Speedmart" {
		t.Errorf("store name = %q", out.StoreName)
	}
	if out.TotalAmount != nil {
		t.Errorf("corrupt total should be dropped, got %s", out.TotalAmount)
	}
	if out.Date != nil {
		t.Errorf("unparseable date should be dropped, got %v", out.Date)
	}
	if out.TaxAmount == nil || !out.TaxAmount.Equal(decimal.RequireFromString("0.92")) {
		t.Errorf("gst = %v, want 0.92", out.TaxAmount)
	}
	if out.Category != CategoryOther {
		t.Errorf("unknown category should coerce to %q, got %q", CategoryOther, out.Category)
	}

	keptSet := map[string]bool{}
	for _, f := range kept {
		keptSet[f] = true
	}
	if !keptSet[FieldStoreName] || !keptSet[FieldTaxAmount] || !keptSet[FieldCategory] {
		t.Errorf("kept = %v", kept)
	}
	if keptSet[FieldTotalAmount] || keptSet[FieldDate] {
		t.Errorf("dropped fields reported as kept: %v", kept)
	}
}

func TestSanitizeExtractionPayload_CapsTotalAmount(t *testing.T) {
	out, kept := SanitizeExtractionPayload(map[string]any{
		"total_amount": "1000000.00",
	})
	if out.TotalAmount != nil || len(kept) != 0 {
		t.Errorf("amount over cap should be dropped, got %v kept=%v", out.TotalAmount, kept)
	}
}

func TestSanitizeExtractionPayload_Items(t *testing.T) {
	out, _ := SanitizeExtractionPayload(map[string]any{
		"items": []any{
			map[string]any{"name": "Milo", "price": 3.5, "quantity": 2.0},
			map[string]any{"name": "", "price": 1.0},          // no name: dropped
			map[string]any{"name": "Bread", "price": "free"},  // bad price: dropped
			map[string]any{"name": "Eggs", "price": 7.8, "quantity": -1.0},
		},
	})
	if len(out.Items) != 2 {
		t.Fatalf("items = %d, want 2 (%v)", len(out.Items), out.Items)
	}
	if out.Items[0].Name != "Milo" || out.Items[0].Quantity == nil || *out.Items[0].Quantity != 2 {
		t.Errorf("first item = %+v", out.Items[0])
	}
	if out.Items[1].Name != "Eggs" || out.Items[1].Quantity != nil {
		t.Errorf("negative quantity should be dropped, item = %+v", out.Items[1])
	}
}

func TestMerge_OnlyTouchesMentionedFields(t *testing.T) {
	original := &ExtractionOutput{
		StoreName:   "X",
		TotalAmount: mustMoney(t, "15.30"),
		Category:    "Groceries",
	}
	corrections, fields := SanitizeExtractionPayload(map[string]any{
		"total_amount": "20.00",
	})

	merged := original.Merge(corrections, fields)
	if !merged.TotalAmount.Equal(decimal.RequireFromString("20")) {
		t.Errorf("total = %s, want 20", merged.TotalAmount)
	}
	if merged.StoreName != "X" {
		t.Errorf("store name should be untouched, got %q", merged.StoreName)
	}
	if merged.Category != "Groceries" {
		t.Errorf("category should be untouched, got %q", merged.Category)
	}
	// Original must not be mutated.
	if !original.TotalAmount.Equal(decimal.RequireFromString("15.30")) {
		t.Errorf("original mutated: %s", original.TotalAmount)
	}
}

func TestDiff_ReportsOnlyChangedFields(t *testing.T) {
	original := &ExtractionOutput{StoreName: "X", TotalAmount: mustMoney(t, "15.30")}
	corrected := &ExtractionOutput{StoreName: "X", TotalAmount: mustMoney(t, "20.00")}

	diff := original.Diff(corrected)
	if len(diff) != 1 {
		t.Fatalf("diff = %v, want only total_amount", diff)
	}
	change, ok := diff[FieldTotalAmount]
	if !ok {
		t.Fatalf("diff missing total_amount: %v", diff)
	}
	if change.Original != "15.30" || change.Corrected != "20.00" {
		t.Errorf("change = %+v", change)
	}
}

func TestDiff_NilOriginal(t *testing.T) {
	var original *ExtractionOutput
	corrected := &ExtractionOutput{TotalAmount: mustMoney(t, "9.00")}
	diff := original.Diff(corrected)
	if _, ok := diff[FieldTotalAmount]; !ok {
		t.Errorf("diff against nil original should report the new total, got %v", diff)
	}
}

func TestIsLowConfidence(t *testing.T) {
	if !(&ExtractionOutput{}).IsLowConfidence() {
		t.Error("empty extraction should be low confidence")
	}
	if (&ExtractionOutput{StoreName: "99 Speedmart"}).IsLowConfidence() {
		t.Error("store name alone should be enough confidence")
	}
	if (&ExtractionOutput{TotalAmount: mustMoney(t, "15.30")}).IsLowConfidence() {
		t.Error("total alone should be enough confidence")
	}
	var nilOut *ExtractionOutput
	if !nilOut.IsLowConfidence() {
		t.Error("nil extraction should be low confidence")
	}
}

func TestHasUsableTotal(t *testing.T) {
	if (&ExtractionOutput{TotalAmount: mustMoney(t, "0")}).HasUsableTotal() {
		t.Error("zero total is not usable")
	}
	if !(&ExtractionOutput{TotalAmount: mustMoney(t, "15.30")}).HasUsableTotal() {
		t.Error("positive total should be usable")
	}
	var nilOut *ExtractionOutput
	if nilOut.HasUsableTotal() {
		t.Error("nil extraction has no usable total")
	}
}
