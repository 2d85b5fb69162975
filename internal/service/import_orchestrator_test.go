package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commission-web/internal/models"
)

type fakeParser struct {
	rows []models.StatementRow
	err  error
}

func (f *fakeParser) Parse(filePath string, onProgress func(done, total int)) ([]models.StatementRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	if onProgress != nil {
		onProgress(len(f.rows), len(f.rows))
	}
	return f.rows, nil
}

type fakeDirectory struct {
	employees []models.Employee
	err       error
}

func (f *fakeDirectory) GetAllEmployees() ([]models.Employee, error) {
	return f.employees, f.err
}

// fakeRevenue counts in-flight AddEntry calls and can fail a contract a
// configured number of times before succeeding.
type fakeRevenue struct {
	mu          sync.Mutex
	entries     []*models.RevenueEntry
	failures    map[string]int
	addDelay    time.Duration
	inFlight    int32
	maxInFlight int32
	nextID      int64
}

func newFakeRevenue() *fakeRevenue {
	return &fakeRevenue{failures: make(map[string]int)}
}

func (f *fakeRevenue) AddEntry(employeeID int, input models.RevenueEntryInput) (*models.RevenueEntry, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	if f.addDelay > 0 {
		time.Sleep(f.addDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.failures[input.ContractNumber]; n > 0 {
		f.failures[input.ContractNumber] = n - 1
		return nil, errors.New("deadlock found when trying to get lock")
	}
	f.nextID++
	entry := &models.RevenueEntry{
		ID:              f.nextID,
		EmployeeID:      employeeID,
		ContractNumber:  input.ContractNumber,
		CustomerName:    input.CustomerName,
		Category:        input.Category,
		ProvisionType:   input.ProvisionType,
		Amount:          input.Amount,
		EntryDate:       input.EntryDate,
		Source:          input.Source,
		SourceReference: input.SourceReference,
		CreatedAt:       time.Now(),
	}
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeRevenue) SearchEntries(query models.RevenueQuery) ([]*models.RevenueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.RevenueEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

type fakeBatchStore struct {
	mu      sync.Mutex
	saves   int
	batches map[int]*models.ImportBatch
	nextID  int
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{batches: make(map[int]*models.ImportBatch)}
}

func (f *fakeBatchStore) Save(batch *models.ImportBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch.ID == 0 {
		f.nextID++
		batch.ID = f.nextID
	}
	for _, rec := range batch.Records {
		rec.BatchID = batch.ID
	}
	f.batches[batch.ID] = batch
	f.saves++
	return nil
}

func (f *fakeBatchStore) FindRecent(limit int) ([]*models.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ImportBatch
	for _, b := range f.batches {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBatchStore) FindByID(id int) (*models.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, errors.New("batch not found")
	}
	return b, nil
}

func fastOptions() ImportOptions {
	opts := DefaultImportOptions()
	opts.RetryDelay = time.Millisecond
	return opts
}

func newTestOrchestrator(parser FileParser, revenue RevenueSink, store BatchStore) *ImportOrchestrator {
	return NewImportOrchestrator(parser, &fakeDirectory{employees: testEmployees()}, revenue, store, nil, nil)
}

func parsedRows(n int) []models.StatementRow {
	rows := make([]models.StatementRow, n)
	for i := range rows {
		rows[i] = cleanRow(i+2, nil)
	}
	return rows
}

func TestParseFile(t *testing.T) {
	store := newFakeBatchStore()
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(4)}, newFakeRevenue(), store)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 7, nil)
	require.NoError(t, err)

	assert.Equal(t, models.BatchParsing, batch.Status)
	assert.Equal(t, "statement.xlsx", batch.Filename)
	assert.Equal(t, 7, batch.UserID)
	assert.Equal(t, 4, batch.TotalRecords)
	assert.NotZero(t, batch.ID, "the batch is persisted after parsing")
	for _, rec := range batch.Records {
		assert.Equal(t, models.RecordPending, rec.Status)
		assert.Equal(t, batch.ID, rec.BatchID)
	}
}

func TestParseFileFailure(t *testing.T) {
	store := newFakeBatchStore()
	o := newTestOrchestrator(&fakeParser{err: errors.New("no worksheet found")}, newFakeRevenue(), store)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 7, nil)
	require.Error(t, err)
	require.NotNil(t, batch)

	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Contains(t, batch.ErrorMessage, "statement parsing failed")
	assert.NotZero(t, batch.ID, "the failed state is still persisted")
}

func TestValidateBatchDirectoryFailure(t *testing.T) {
	o := NewImportOrchestrator(
		&fakeParser{rows: parsedRows(2)},
		&fakeDirectory{err: errors.New("connection refused")},
		newFakeRevenue(), newFakeBatchStore(), nil, nil,
	)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)

	err = o.ValidateBatch(batch, nil)
	require.Error(t, err)
	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Contains(t, batch.ErrorMessage, "loading employee directory failed")
}

func TestImportOptionsNormalized(t *testing.T) {
	opts := ImportOptions{}.normalized()
	assert.Equal(t, DefaultChunkSize, opts.ChunkSize)
	assert.Equal(t, DefaultConcurrency, opts.Concurrency)
	assert.Equal(t, 0, opts.RetryCount)
	assert.Equal(t, DefaultRetryDelay, opts.RetryDelay)

	opts = ImportOptions{ChunkSize: 10000, Concurrency: 100, RetryCount: 50, RetryDelay: time.Second}.normalized()
	assert.Equal(t, MaxChunkSize, opts.ChunkSize)
	assert.Equal(t, MaxConcurrency, opts.Concurrency)
	assert.Equal(t, MaxRetryCount, opts.RetryCount)
	assert.Equal(t, time.Second, opts.RetryDelay)

	opts = ImportOptions{RetryCount: -3}.normalized()
	assert.Equal(t, 0, opts.RetryCount)
}

func TestImportBatchFullRun(t *testing.T) {
	revenue := newFakeRevenue()
	store := newFakeBatchStore()
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(5)}, revenue, store)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)
	require.NoError(t, o.ValidateBatch(batch, nil))
	require.Equal(t, models.BatchReady, batch.Status)

	var progress []ImportProgress
	require.NoError(t, o.ImportBatch(batch, fastOptions(), func(p ImportProgress) {
		progress = append(progress, p)
	}))

	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.Equal(t, 5, batch.ImportedRecords)
	assert.Zero(t, batch.FailedRecords)
	assert.NotNil(t, batch.CompletedAt)
	assert.Len(t, revenue.entries, 5)

	for _, e := range revenue.entries {
		assert.Equal(t, "wifo_import", e.Source)
		assert.Equal(t, e.ContractNumber, e.SourceReference)
		assert.Equal(t, 1, e.EmployeeID)
	}
	for _, rec := range batch.Records {
		assert.Equal(t, models.RecordImported, rec.Status)
		assert.Equal(t, 1, rec.ImportAttempts)
	}

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.Equal(t, 5, last.Imported)
	assert.Equal(t, 1.0, last.ChunkProgress)
	assert.Zero(t, last.Remaining)
}

func TestImportBatchNotReady(t *testing.T) {
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(2)}, newFakeRevenue(), nil)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)

	err = o.ImportBatch(batch, fastOptions(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready for import")
}

func TestImportBatchBoundedConcurrency(t *testing.T) {
	revenue := newFakeRevenue()
	revenue.addDelay = 5 * time.Millisecond
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(20)}, revenue, nil)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)
	require.NoError(t, o.ValidateBatch(batch, nil))

	opts := fastOptions()
	opts.ChunkSize = 20
	opts.Concurrency = 3
	require.NoError(t, o.ImportBatch(batch, opts, nil))

	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.LessOrEqual(t, atomic.LoadInt32(&revenue.maxInFlight), int32(3))
	assert.Greater(t, atomic.LoadInt32(&revenue.maxInFlight), int32(1), "imports actually overlap")
}

func TestImportBatchRetriesTransientFailure(t *testing.T) {
	revenue := newFakeRevenue()
	revenue.failures["LV-2026-003"] = 1
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(3)}, revenue, nil)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)
	require.NoError(t, o.ValidateBatch(batch, nil))
	require.NoError(t, o.ImportBatch(batch, fastOptions(), nil))

	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.Equal(t, 3, batch.ImportedRecords)

	for _, rec := range batch.Records {
		if rec.ContractNumber == "LV-2026-003" {
			assert.Equal(t, 2, rec.ImportAttempts)
		} else {
			assert.Equal(t, 1, rec.ImportAttempts)
		}
	}
}

func TestImportBatchExhaustedRetries(t *testing.T) {
	revenue := newFakeRevenue()
	revenue.failures["LV-2026-003"] = 10
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(3)}, revenue, nil)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)
	require.NoError(t, o.ValidateBatch(batch, nil))
	require.NoError(t, o.ImportBatch(batch, fastOptions(), nil))

	assert.Equal(t, models.BatchPartiallyCompleted, batch.Status)
	assert.Equal(t, 2, batch.ImportedRecords)
	assert.Equal(t, 1, batch.FailedRecords)

	for _, rec := range batch.Records {
		if rec.ContractNumber != "LV-2026-003" {
			continue
		}
		assert.Equal(t, models.RecordFailed, rec.Status)
		assert.Equal(t, 2, rec.ImportAttempts)
		require.NotEmpty(t, rec.Issues)
		last := rec.Issues[len(rec.Issues)-1]
		assert.Equal(t, "import_failed", last.Code)
		assert.Equal(t, 2, last.Details["attempts"])
	}
}

func TestImportBatchStopOnError(t *testing.T) {
	revenue := newFakeRevenue()
	revenue.failures["LV-2026-002"] = 10
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(5)}, revenue, nil)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)
	require.NoError(t, o.ValidateBatch(batch, nil))

	opts := fastOptions()
	opts.ChunkSize = 1
	opts.Concurrency = 1
	opts.RetryCount = 0
	opts.StopOnError = true
	require.NoError(t, o.ImportBatch(batch, opts, nil))

	// The first chunk fails and nothing after it is attempted.
	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Equal(t, "no entries imported", batch.ErrorMessage)
	assert.Equal(t, 1, batch.FailedRecords)
	assert.Equal(t, 4, batch.ValidRecords)
	assert.Empty(t, revenue.entries)
}

func TestImportBatchChunkedProgress(t *testing.T) {
	revenue := newFakeRevenue()
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(10)}, revenue, nil)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)
	require.NoError(t, o.ValidateBatch(batch, nil))

	opts := fastOptions()
	opts.ChunkSize = 4
	var progress []ImportProgress
	require.NoError(t, o.ImportBatch(batch, opts, func(p ImportProgress) {
		progress = append(progress, p)
	}))

	// 10 records in chunks of 4 settle as 4, 4, 2.
	require.Len(t, progress, 3)
	assert.Equal(t, 4, progress[0].Imported)
	assert.Equal(t, 6, progress[0].Remaining)
	assert.Equal(t, 8, progress[1].Imported)
	assert.Equal(t, 10, progress[2].Imported)
	assert.InDelta(t, 1.0, progress[2].ChunkProgress, 1e-9)
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i].ChunkProgress, progress[i-1].ChunkProgress)
	}
}

func TestGetBatch(t *testing.T) {
	store := newFakeBatchStore()
	o := newTestOrchestrator(&fakeParser{rows: parsedRows(2)}, newFakeRevenue(), store)

	batch, err := o.ParseFile("/tmp/upload.xlsx", "statement.xlsx", 2048, 1, nil)
	require.NoError(t, err)

	loaded, err := o.GetBatch(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.BatchCode, loaded.BatchCode)

	_, err = o.GetBatch(999)
	assert.Error(t, err)
}
