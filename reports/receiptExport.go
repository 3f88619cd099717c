package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
)

const receiptSheet = "Sheet1"

var receiptHeadings = []string{
	"ReceiptId", "Store", "Date", "Total", "GST", "Category", "PaymentMethod", "Status", "ProcessedAt",
}

// WriteReceiptsWorkbook renders the scanned receipts of one business as
// an xlsx workbook. Receipts whose extraction never produced data get a
// row with just the id and job status.
func WriteReceiptsWorkbook(w io.Writer, receipts []models.Receipt, jobs map[int]models.ProcessingJobStatus) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(receiptSheet); err != nil {
		return err
	}

	col := 'A'
	for _, h := range receiptHeadings {
		f.SetCellValue(receiptSheet, string(col)+"1", h)
		col++
	}

	for i, receipt := range receipts {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(receiptSheet, "A"+row, receipt.ID)
		f.SetCellValue(receiptSheet, "H"+row, string(jobs[receipt.ID]))
		if receipt.ProcessedAt != nil {
			f.SetCellValue(receiptSheet, "I"+row, receipt.ProcessedAt.Format(time.RFC3339))
		}

		data := receipt.ExtractedData
		if data == nil {
			continue
		}
		f.SetCellValue(receiptSheet, "B"+row, data.StoreName)
		if data.Date != nil {
			f.SetCellValue(receiptSheet, "C"+row, data.Date.Format("2006-01-02"))
		}
		if data.TotalAmount != nil {
			f.SetCellValue(receiptSheet, "D"+row, data.TotalAmount.StringFixed(2))
		}
		if data.TaxAmount != nil {
			f.SetCellValue(receiptSheet, "E"+row, data.TaxAmount.StringFixed(2))
		}
		f.SetCellValue(receiptSheet, "F"+row, data.Category)
		f.SetCellValue(receiptSheet, "G"+row, data.PaymentMethod)
	}

	return f.Write(w)
}
