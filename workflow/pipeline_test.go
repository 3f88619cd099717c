package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

// NOTE: These tests are intentionally DB-free. Every collaborator behind the
// pipeline is a fake that mirrors the store contracts, including the guarded
// wallet debit and the unique-job-per-receipt rule.

// pngBytes is a minimal payload http.DetectContentType sniffs as image/png.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

type fakeReceipts struct {
	mu     sync.Mutex
	nextId int
	rows   map[int]*models.Receipt
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{rows: map[int]*models.Receipt{}}
}

func (f *fakeReceipts) Create(ctx context.Context, receipt *models.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextId++
	receipt.ID = f.nextId
	receipt.CreatedAt = time.Now().UTC()
	clone := *receipt
	f.rows[receipt.ID] = &clone
	return nil
}

func (f *fakeReceipts) GetForOwner(ctx context.Context, businessId string, receiptId int) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[receiptId]
	if !ok || row.BusinessId != businessId {
		return nil, utils.ErrNotFoundOrForbidden
	}
	clone := *row
	return &clone, nil
}

func (f *fakeReceipts) SaveExtraction(ctx context.Context, receiptId int, data *models.ExtractionOutput, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[receiptId]
	if !ok {
		return utils.ErrNotFoundOrForbidden
	}
	row.ExtractedData = data
	row.ProcessedAt = &processedAt
	return nil
}

func (f *fakeReceipts) SaveThumbnailURL(ctx context.Context, receiptId int, thumbnailURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[receiptId]; ok {
		row.ThumbnailURL = thumbnailURL
	}
	return nil
}

func (f *fakeReceipts) Delete(ctx context.Context, receipt *models.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, receipt.ID)
	return nil
}

func (f *fakeReceipts) ListSince(ctx context.Context, businessId string, since time.Time) ([]models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Receipt
	for _, row := range f.rows {
		if row.BusinessId == businessId && !row.CreatedAt.Before(since) {
			out = append(out, *row)
		}
	}
	return out, nil
}

type fakeJobs struct {
	mu   sync.Mutex
	rows map[int]*models.ProcessingJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{rows: map[int]*models.ProcessingJob{}}
}

func (f *fakeJobs) Enqueue(ctx context.Context, job *models.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.rows[job.ReceiptId]; exists {
		return models.ErrorJobExists
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	job.CreatedAt = time.Now().UTC()
	clone := *job
	f.rows[job.ReceiptId] = &clone
	return nil
}

func (f *fakeJobs) Transition(ctx context.Context, receiptId int, to models.ProcessingJobStatus, method models.ExtractionMethod, lastError string) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.rows[receiptId]
	if !ok {
		return nil, fmt.Errorf("no job for receipt %d", receiptId)
	}
	if err := job.ApplyTransition(to, method, time.Now().UTC()); err != nil {
		return nil, err
	}
	if lastError != "" {
		job.LastError = lastError
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobs) GetByReceipt(ctx context.Context, receiptId int) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.rows[receiptId]
	if !ok {
		return nil, fmt.Errorf("no job for receipt %d", receiptId)
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobs) CountByStatusSince(ctx context.Context, businessId string, since time.Time) (map[models.ProcessingJobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[models.ProcessingJobStatus]int{}
	for _, job := range f.rows {
		if job.BusinessId == businessId && !job.CreatedAt.Before(since) {
			counts[job.Status]++
		}
	}
	return counts, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	puts    map[string][]byte
	deleted []string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: map[string][]byte{}}
}

func (f *fakeObjects) Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.puts[objectKey] = data
	return "https://storage.local/" + objectKey, nil
}

func (f *fakeObjects) Delete(ctx context.Context, accessURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, accessURL)
	return nil
}

type fakeExtractor struct {
	out    *models.ExtractionOutput
	method models.ExtractionMethod
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, imageURL string, imageData []byte, contentType string) (*models.ExtractionOutput, models.ExtractionMethod, error) {
	return f.out, f.method, f.err
}

// fakeExpenses mirrors ExpenseDB.CreateFromReceipt: one expense per receipt
// and a guarded wallet debit that refuses to go below zero.
type fakeExpenses struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	nextId    int
	byReceipt map[int]*models.Expense
	createErr error
}

func newFakeExpenses(balance string) *fakeExpenses {
	return &fakeExpenses{
		balance:   decimal.RequireFromString(balance),
		byReceipt: map[int]*models.Expense{},
	}
}

func (f *fakeExpenses) CreateFromReceipt(ctx context.Context, input *models.NewExpense) (*models.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if input.ReceiptId != nil {
		if existing, ok := f.byReceipt[*input.ReceiptId]; ok {
			return existing, nil
		}
	}
	if f.balance.LessThan(input.Amount) {
		return nil, models.ErrorInsufficientBalance
	}
	f.balance = f.balance.Sub(input.Amount)
	f.nextId++
	expense := &models.Expense{
		ID:          f.nextId,
		BusinessId:  input.BusinessId,
		ReceiptId:   input.ReceiptId,
		WalletId:    input.WalletId,
		Amount:      input.Amount,
		Category:    input.Category,
		Description: input.Description,
	}
	if input.ReceiptId != nil {
		f.byReceipt[*input.ReceiptId] = expense
	}
	return expense, nil
}

type fakeUsage struct {
	mu       sync.Mutex
	tier     models.AccountTier
	monthly  map[string]int
	progress map[string]int
	incErr   error
}

func newFakeUsage(tier models.AccountTier) *fakeUsage {
	return &fakeUsage{tier: tier, monthly: map[string]int{}, progress: map[string]int{}}
}

func (f *fakeUsage) TierFor(ctx context.Context, businessId string) (models.AccountTier, error) {
	return f.tier, nil
}

func (f *fakeUsage) MonthlyCount(ctx context.Context, businessId, feature, month string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.monthly[businessId+"|"+feature+"|"+month], nil
}

func (f *fakeUsage) IncrementMonthly(ctx context.Context, businessId, feature, month string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return f.incErr
	}
	f.monthly[businessId+"|"+feature+"|"+month]++
	return nil
}

func (f *fakeUsage) IncrementProgress(ctx context.Context, businessId, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return f.incErr
	}
	f.progress[businessId+"|"+name]++
	return nil
}

func (f *fakeUsage) monthlyTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.monthly {
		total += n
	}
	return total
}

type fakeCorrections struct {
	mu   sync.Mutex
	logs []*models.CorrectionLog
}

func (f *fakeCorrections) Append(ctx context.Context, log *models.CorrectionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []config.ProgressEvent
}

func (f *fakePublisher) Publish(ctx context.Context, event config.ProgressEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return fmt.Sprintf("msg-%d", len(f.events)), nil
}

type pipelineFixture struct {
	pipeline    *ReceiptPipeline
	receipts    *fakeReceipts
	jobs        *fakeJobs
	objects     *fakeObjects
	extractor   *fakeExtractor
	expenses    *fakeExpenses
	usage       *fakeUsage
	corrections *fakeCorrections
	publisher   *fakePublisher
}

func newFixture(extractor *fakeExtractor) *pipelineFixture {
	f := &pipelineFixture{
		receipts:    newFakeReceipts(),
		jobs:        newFakeJobs(),
		objects:     newFakeObjects(),
		extractor:   extractor,
		expenses:    newFakeExpenses("1000.00"),
		usage:       newFakeUsage(models.AccountTierFree),
		corrections: &fakeCorrections{},
		publisher:   &fakePublisher{},
	}
	f.pipeline = NewReceiptPipeline(PipelineDeps{
		Receipts:    f.receipts,
		Jobs:        f.jobs,
		Objects:     f.objects,
		Extractor:   f.extractor,
		Expenses:    f.expenses,
		Usage:       f.usage,
		Corrections: f.corrections,
		Publisher:   f.publisher,
		Dispatch:    func(fn func()) { fn() }, // synchronous for tests
	})
	return f
}

func speedmartExtractor(t *testing.T) *fakeExtractor {
	t.Helper()
	total := decimal.RequireFromString("15.30")
	return &fakeExtractor{
		out: &models.ExtractionOutput{
			StoreName:   "99 Speedmart",
			TotalAmount: &total,
			Category:    "Food & Beverages",
		},
		method: models.ExtractionMethodVision,
	}
}

func TestSubmit_HappyPathCreatesExpenseAndDebitsWallet(t *testing.T) {
	f := newFixture(speedmartExtractor(t))

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{
		CreateExpense: true,
		WalletId:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.JobStatus != models.JobStatusCompleted {
		t.Errorf("job status = %s", result.JobStatus)
	}
	if result.Expense == nil {
		t.Fatal("expected an expense")
	}
	if !result.Expense.Amount.Equal(decimal.RequireFromString("15.30")) {
		t.Errorf("expense amount = %s", result.Expense.Amount)
	}
	if result.Expense.Category != "Food & Beverages" {
		t.Errorf("category = %s", result.Expense.Category)
	}
	if result.Expense.Description != "99 Speedmart" {
		t.Errorf("description = %s", result.Expense.Description)
	}

	wantBalance := decimal.RequireFromString("984.70")
	if !f.expenses.balance.Equal(wantBalance) {
		t.Errorf("wallet balance = %s, want %s", f.expenses.balance, wantBalance)
	}

	stored, err := f.receipts.GetForOwner(context.Background(), "biz-1", result.Receipt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ExtractedData == nil || stored.ImageURL == "" {
		t.Errorf("stored receipt = %+v", stored)
	}

	if f.usage.monthlyTotal() != 1 {
		t.Errorf("monthly usage = %d", f.usage.monthlyTotal())
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Outcome != "completed" {
		t.Errorf("events = %+v", f.publisher.events)
	}
}

func TestSubmit_NoExpenseWithoutOptIn(t *testing.T) {
	f := newFixture(speedmartExtractor(t))

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Expense != nil {
		t.Errorf("expense created without opt-in: %+v", result.Expense)
	}
	if !f.expenses.balance.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("wallet touched: %s", f.expenses.balance)
	}
}

func TestSubmit_QuotaGateBlocksFreeTier(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	ctx := context.Background()
	month := models.UsageMonth(time.Now())
	f.usage.monthly["biz-1|"+models.FeatureReceiptScan+"|"+month] = models.FreeTierMonthlyScanLimit

	_, err := f.pipeline.Submit(ctx, "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if !errors.Is(err, utils.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	// Rejected before any side effect.
	if len(f.objects.puts) != 0 || len(f.receipts.rows) != 0 || len(f.jobs.rows) != 0 {
		t.Error("quota rejection must leave no side effects")
	}
}

func TestSubmit_PaidTierBypassesQuota(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	f.usage.tier = models.AccountTierPaid
	month := models.UsageMonth(time.Now())
	f.usage.monthly["biz-1|"+models.FeatureReceiptScan+"|"+month] = 10_000

	if _, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{}); err != nil {
		t.Fatalf("paid tier should never hit the quota gate: %v", err)
	}
}

func TestSubmit_IntakeRejectionsLeaveNoSideEffects(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, utils.ErrUnsupportedMedia},
		{"not an image", []byte("just some text, definitely not an image"), utils.ErrUnsupportedMedia},
		{"oversized", make([]byte, MaxUploadSize+1), utils.ErrPayloadTooLarge},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(speedmartExtractor(t))
			_, err := f.pipeline.Submit(context.Background(), "biz-1", c.data, "x.png", SubmitOptions{})
			if !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
			if len(f.objects.puts) != 0 || len(f.receipts.rows) != 0 || f.usage.monthlyTotal() != 0 {
				t.Error("rejected intake must leave no side effects")
			}
		})
	}
}

func TestSubmit_ExtractionFailureDegradesToFailedJob(t *testing.T) {
	f := newFixture(&fakeExtractor{
		method: models.ExtractionMethodVision,
		err:    fmt.Errorf("%w: model call timed out", utils.ErrExtractionTimeout),
	})

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{
		CreateExpense: true,
		WalletId:      1,
	})
	if err != nil {
		t.Fatalf("degraded run must not fail the call: %v", err)
	}
	if result.Success {
		t.Error("success must be false")
	}
	if result.JobStatus != models.JobStatusFailed {
		t.Errorf("job status = %s", result.JobStatus)
	}
	if result.ExtractedData != nil {
		t.Error("extraction must stay null after a failure")
	}
	if result.Error == "" {
		t.Error("result should carry the failure message")
	}

	// Receipt and image survive for later correction.
	if len(f.receipts.rows) != 1 || len(f.objects.puts) == 0 {
		t.Error("receipt record and image must survive an extraction failure")
	}
	if f.expenses.nextId != 0 {
		t.Error("no expense may be posted for a failed extraction")
	}
	// Usage counts regardless of outcome.
	if f.usage.monthlyTotal() != 1 {
		t.Errorf("monthly usage = %d, want 1", f.usage.monthlyTotal())
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Outcome != "failed" {
		t.Errorf("events = %+v", f.publisher.events)
	}
}

func TestSubmit_SparseExtractionRoutesToManualReview(t *testing.T) {
	f := newFixture(&fakeExtractor{
		out:    &models.ExtractionOutput{PaymentMethod: "cash"}, // no total, no store
		method: models.ExtractionMethodVision,
	})

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{
		CreateExpense: true,
		WalletId:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.JobStatus != models.JobStatusManualReview {
		t.Errorf("job status = %s, want manual_review", result.JobStatus)
	}
	if result.Expense != nil {
		t.Error("sparse extraction has no usable total, no expense")
	}
}

func TestSubmit_ReconcilerFailureDoesNotUnwindScan(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	f.expenses.createErr = errors.New("wallet row locked")

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{
		CreateExpense: true,
		WalletId:      1,
	})
	if err != nil {
		t.Fatalf("reconciler failure must be swallowed: %v", err)
	}
	if !result.Success || result.JobStatus != models.JobStatusCompleted {
		t.Errorf("result = %+v", result)
	}
	if result.Expense != nil {
		t.Error("expense should be absent when posting failed")
	}
}

func TestSubmit_ReportingFailureIsSwallowed(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	f.usage.incErr = errors.New("counter table gone")

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if err != nil || !result.Success {
		t.Fatalf("reporting failure must never surface: result=%+v err=%v", result, err)
	}
}

func TestSubmit_CallerOverridesWinOverExtraction(t *testing.T) {
	f := newFixture(speedmartExtractor(t))

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{
		CreateExpense: true,
		WalletId:      1,
		Category:      "Groceries",
		Description:   "weekly shop",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Expense.Category != "Groceries" || result.Expense.Description != "weekly shop" {
		t.Errorf("expense = %+v", result.Expense)
	}
}

func TestSubmit_InvalidExtractedCategoryFallsBackToOther(t *testing.T) {
	total := decimal.RequireFromString("8.00")
	f := newFixture(&fakeExtractor{
		out:    &models.ExtractionOutput{StoreName: "Mystery Shop", TotalAmount: &total, Category: ""},
		method: models.ExtractionMethodVision,
	})

	result, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, "receipt.png", SubmitOptions{
		CreateExpense: true,
		WalletId:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Expense.Category != models.CategoryOther {
		t.Errorf("category = %q, want %q", result.Expense.Category, models.CategoryOther)
	}
}

func TestSubmit_ConcurrentDebitsLoseNoUpdates(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	f.usage.tier = models.AccountTierPaid

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.pipeline.Submit(context.Background(), "biz-1", pngBytes, fmt.Sprintf("r%d.png", i), SubmitOptions{
				CreateExpense: true,
				WalletId:      1,
			})
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	want := decimal.RequireFromString("1000.00").Sub(decimal.RequireFromString("15.30").Mul(decimal.NewFromInt(n)))
	if !f.expenses.balance.Equal(want) {
		t.Errorf("balance = %s, want %s (lost or doubled debits)", f.expenses.balance, want)
	}
	if f.usage.monthlyTotal() != n {
		t.Errorf("monthly usage = %d, want %d", f.usage.monthlyTotal(), n)
	}
}

func TestCorrect_SpecWorkedExample(t *testing.T) {
	total := decimal.RequireFromString("15.30")
	f := newFixture(&fakeExtractor{
		out:    &models.ExtractionOutput{StoreName: "X", TotalAmount: &total},
		method: models.ExtractionMethodVision,
	})
	ctx := context.Background()

	submitted, err := f.pipeline.Submit(ctx, "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}

	result, err := f.pipeline.Correct(ctx, "biz-1", submitted.Receipt.ID, map[string]any{
		"total_amount": "20.00",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.ExtractedData.TotalAmount.Equal(decimal.RequireFromString("20")) {
		t.Errorf("total = %s", result.ExtractedData.TotalAmount)
	}
	if result.ExtractedData.StoreName != "X" {
		t.Errorf("store name must be untouched, got %q", result.ExtractedData.StoreName)
	}
	if result.JobStatus != models.JobStatusCompleted {
		t.Errorf("job status = %s", result.JobStatus)
	}

	if len(f.corrections.logs) != 1 {
		t.Fatalf("correction logs = %d", len(f.corrections.logs))
	}
	changes := f.corrections.logs[0].Changes
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want only total_amount", changes)
	}
	if change, ok := changes[models.FieldTotalAmount]; !ok || change.Original != "15.30" || change.Corrected != "20.00" {
		t.Errorf("changes = %v", changes)
	}

	job, _ := f.jobs.GetByReceipt(ctx, submitted.Receipt.ID)
	if job.Method != models.ExtractionMethodManual {
		t.Errorf("method = %s", job.Method)
	}
}

func TestCorrect_ResolvesFailedReceipt(t *testing.T) {
	f := newFixture(&fakeExtractor{
		method: models.ExtractionMethodVision,
		err:    fmt.Errorf("%w: boom", utils.ErrExtractionFailed),
	})
	ctx := context.Background()

	submitted, err := f.pipeline.Submit(ctx, "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if submitted.JobStatus != models.JobStatusFailed {
		t.Fatalf("precondition: job status = %s", submitted.JobStatus)
	}

	result, err := f.pipeline.Correct(ctx, "biz-1", submitted.Receipt.ID, map[string]any{
		"store_name":   "99 Speedmart",
		"total_amount": 15.30,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.JobStatus != models.JobStatusCompleted {
		t.Errorf("correction must resolve a failed receipt, status = %s", result.JobStatus)
	}
	if result.ExtractedData.StoreName != "99 Speedmart" {
		t.Errorf("data = %+v", result.ExtractedData)
	}
}

func TestCorrect_RejectsWhileProcessing(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	ctx := context.Background()

	receipt := &models.Receipt{BusinessId: "biz-1"}
	if err := f.receipts.Create(ctx, receipt); err != nil {
		t.Fatal(err)
	}
	if err := f.jobs.Enqueue(ctx, &models.ProcessingJob{ReceiptId: receipt.ID, BusinessId: "biz-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.jobs.Transition(ctx, receipt.ID, models.JobStatusProcessing, "", ""); err != nil {
		t.Fatal(err)
	}

	var validationErr *utils.ValidationError
	_, err := f.pipeline.Correct(ctx, "biz-1", receipt.ID, map[string]any{"total_amount": "1.00"})
	if !errors.As(err, &validationErr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(f.corrections.logs) != 0 {
		t.Error("no correction may be recorded for an in-flight job")
	}
}

func TestCorrect_RejectsUnknownFieldsOnlyPayload(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	ctx := context.Background()

	submitted, err := f.pipeline.Submit(ctx, "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var validationErr *utils.ValidationError
	_, err = f.pipeline.Correct(ctx, "biz-1", submitted.Receipt.ID, map[string]any{
		"totally_made_up": true,
		"total_amount":    "-5.00", // invalid, dropped
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestCorrect_WrongOwner(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	ctx := context.Background()

	submitted, err := f.pipeline.Submit(ctx, "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.pipeline.Correct(ctx, "biz-2", submitted.Receipt.ID, map[string]any{"total_amount": "1.00"}); !errors.Is(err, utils.ErrNotFoundOrForbidden) {
		t.Fatalf("err = %v, want ErrNotFoundOrForbidden", err)
	}
}

func TestDelete_RemovesRecordAndObjects(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	ctx := context.Background()

	submitted, err := f.pipeline.Submit(ctx, "biz-1", pngBytes, "receipt.png", SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.pipeline.Delete(ctx, "biz-1", submitted.Receipt.ID); err != nil {
		t.Fatal(err)
	}
	if len(f.receipts.rows) != 0 {
		t.Error("receipt row should be gone")
	}
	if len(f.objects.deleted) == 0 {
		t.Error("stored image should be deleted")
	}

	if err := f.pipeline.Delete(ctx, "biz-1", submitted.Receipt.ID); !errors.Is(err, utils.ErrNotFoundOrForbidden) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestStats_CountsWindow(t *testing.T) {
	f := newFixture(speedmartExtractor(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.pipeline.Submit(ctx, "biz-1", pngBytes, fmt.Sprintf("r%d.png", i), SubmitOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	// Another business's scans must not leak in.
	if _, err := f.pipeline.Submit(ctx, "biz-2", pngBytes, "other.png", SubmitOptions{}); err != nil {
		t.Fatal(err)
	}

	stats, err := f.pipeline.Stats(ctx, "biz-1", 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalReceipts != 3 || stats.Completed != 3 {
		t.Errorf("stats = %+v", stats)
	}
	want := decimal.RequireFromString("45.90")
	if !stats.TotalExtracted.Equal(want) {
		t.Errorf("total extracted = %s, want %s", stats.TotalExtracted, want)
	}
}
