package scanning

import (
	"hash/fnv"
	"time"
)

// cannedPayloads are realistic stand-in extractions used when the external
// service is unavailable in development/test configuration, so the rest of
// the pipeline remains exercisable. Never used in production.
var cannedPayloads = []map[string]any{
	{
		"store_name":   "99 Speedmart",
		"total_amount": 15.30,
		"date":         "2025-11-03",
		"items": []any{
			map[string]any{"name": "Mineral Water 1.5L", "price": 2.50, "quantity": 2.0},
			map[string]any{"name": "Instant Noodles", "price": 5.15, "quantity": 2.0},
		},
		"payment_method": "cash",
		"gst_amount":     0.0,
		"category":       "Groceries",
	},
	{
		"store_name":     "Restoran Nasi Kandar Pelita",
		"total_amount":   28.40,
		"date":           "2025-11-12",
		"payment_method": "card",
		"gst_amount":     1.61,
		"category":       "Food & Beverages",
	},
	{
		"store_name":   "Petronas Jalan Ampang",
		"total_amount": 60.00,
		"date":         "2025-11-20",
		"items": []any{
			map[string]any{"name": "Primax 95", "price": 60.00, "quantity": 1.0},
		},
		"payment_method": "ewallet",
		"category":       "Transportation",
	},
	{
		"store_name":     "Popular Bookstore",
		"total_amount":   42.75,
		"date":           "2025-11-25",
		"payment_method": "card",
		"gst_amount":     2.42,
		"category":       "Office Supplies",
	},
}

// cannedPayloadFor picks deterministically by image URL so repeated runs of
// the same fixture produce the same extraction.
func cannedPayloadFor(imageURL string) map[string]any {
	h := fnv.New32a()
	h.Write([]byte(imageURL))
	payload := cannedPayloads[int(h.Sum32())%len(cannedPayloads)]

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	// Keep the date inside the current stats window.
	out["date"] = time.Now().UTC().Format("2006-01-02")
	return out
}
