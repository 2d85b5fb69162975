package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"commission-web/internal/models"
)

// Collaborator ports of the orchestrator. The pipeline never reaches
// into their internals; everything it needs is on these interfaces.
type (
	// FileParser turns an uploaded statement file into raw rows.
	FileParser interface {
		Parse(filePath string, onProgress func(done, total int)) ([]models.StatementRow, error)
	}

	// EmployeeDirectory supplies the matcher corpus, once per run.
	EmployeeDirectory interface {
		GetAllEmployees() ([]models.Employee, error)
	}

	// RevenueSink is the commission entry store: creation target during
	// import, search source for seeding the duplicate index.
	RevenueSink interface {
		AddEntry(employeeID int, input models.RevenueEntryInput) (*models.RevenueEntry, error)
		SearchEntries(query models.RevenueQuery) ([]*models.RevenueEntry, error)
	}

	// BatchStore persists batch state between phases. It is optional:
	// without one the pipeline runs in memory only.
	BatchStore interface {
		Save(batch *models.ImportBatch) error
		FindRecent(limit int) ([]*models.ImportBatch, error)
		FindByID(id int) (*models.ImportBatch, error)
	}

	// MappingSource loads the WIFO code tables. Optional; the built-in
	// defaults apply without one.
	MappingSource interface {
		GetCodeMappings() (*CodeMappings, error)
	}
)

// Import tuning bounds. Callers cannot request an unbounded in-flight
// window or retry storm; out-of-range values are clamped.
const (
	DefaultChunkSize   = 10
	DefaultConcurrency = 3
	DefaultRetryCount  = 1
	DefaultRetryDelay  = 500 * time.Millisecond

	MaxChunkSize   = 500
	MaxConcurrency = 16
	MaxRetryCount  = 5
)

// ImportOptions tune the import phase of one batch.
type ImportOptions struct {
	ChunkSize   int           `json:"chunk_size"`
	Concurrency int           `json:"concurrency"`
	RetryCount  int           `json:"retry_count"`
	RetryDelay  time.Duration `json:"retry_delay"`
	StopOnError bool          `json:"stop_on_error"`
}

func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		ChunkSize:   DefaultChunkSize,
		Concurrency: DefaultConcurrency,
		RetryCount:  DefaultRetryCount,
		RetryDelay:  DefaultRetryDelay,
	}
}

func (o ImportOptions) normalized() ImportOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	} else if o.ChunkSize > MaxChunkSize {
		o.ChunkSize = MaxChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	} else if o.Concurrency > MaxConcurrency {
		o.Concurrency = MaxConcurrency
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	} else if o.RetryCount > MaxRetryCount {
		o.RetryCount = MaxRetryCount
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// ImportProgress is reported after every settled chunk.
type ImportProgress struct {
	Imported      int     `json:"imported"`
	Failed        int     `json:"failed"`
	Remaining     int     `json:"remaining"`
	ChunkProgress float64 `json:"chunk_progress"`
}

// ImportOrchestrator drives the parse, validate and import phases of one
// statement batch. It is the only component talking to the collaborators.
type ImportOrchestrator struct {
	parser    FileParser
	directory EmployeeDirectory
	revenue   RevenueSink
	batches   BatchStore
	mappings  MappingSource
	log       *logrus.Logger
}

func NewImportOrchestrator(
	parser FileParser,
	directory EmployeeDirectory,
	revenue RevenueSink,
	batches BatchStore,
	mappings MappingSource,
	log *logrus.Logger,
) *ImportOrchestrator {
	if log == nil {
		log = logrus.New()
	}
	return &ImportOrchestrator{
		parser:    parser,
		directory: directory,
		revenue:   revenue,
		batches:   batches,
		mappings:  mappings,
		log:       log,
	}
}

// ParseFile creates a batch for an uploaded statement file and fills it
// with the parser's rows. A parser failure fails the batch with the
// parser's message and is returned to the caller.
func (o *ImportOrchestrator) ParseFile(filePath, filename string, fileSize int64, userID int, onProgress func(done, total int)) (*models.ImportBatch, error) {
	batch := models.NewImportBatch(filename, fileSize, userID)
	if err := batch.StartParsing(); err != nil {
		return nil, err
	}

	rows, err := o.parser.Parse(filePath, onProgress)
	if err != nil {
		batch.Fail(fmt.Sprintf("statement parsing failed: %v", err))
		o.trySave(batch)
		return batch, fmt.Errorf("parse %s: %w", filename, err)
	}

	records := make([]*models.ImportRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.NewImportRecord(row))
	}
	batch.SetRecords(records)

	o.log.WithFields(logrus.Fields{
		"batch": batch.BatchCode,
		"file":  filename,
		"rows":  len(records),
	}).Info("statement parsed")

	return batch, o.saveBatch(batch)
}

// ValidateBatch rebuilds the employee lookup and the duplicate index
// from the persisted entries, then delegates to the validation pipeline.
func (o *ImportOrchestrator) ValidateBatch(batch *models.ImportBatch, onProgress func(processed, total int)) error {
	employees, err := o.directory.GetAllEmployees()
	if err != nil {
		batch.Fail(fmt.Sprintf("loading employee directory failed: %v", err))
		o.trySave(batch)
		return fmt.Errorf("load employees: %w", err)
	}

	entries, err := o.revenue.SearchEntries(models.RevenueQuery{})
	if err != nil {
		batch.Fail(fmt.Sprintf("loading existing entries failed: %v", err))
		o.trySave(batch)
		return fmt.Errorf("load revenue entries: %w", err)
	}

	mappings, err := o.loadMappings()
	if err != nil {
		return err
	}

	pipeline := NewValidationPipeline(employees, mappings, NewDuplicateIndex(entries), o.log)
	if err := pipeline.ValidateBatch(batch, onProgress); err != nil {
		return err
	}
	return o.saveBatch(batch)
}

func (o *ImportOrchestrator) loadMappings() (*CodeMappings, error) {
	if o.mappings == nil {
		return DefaultCodeMappings(), nil
	}
	m, err := o.mappings.GetCodeMappings()
	if err != nil {
		return nil, fmt.Errorf("load code mappings: %w", err)
	}
	return m, nil
}

// ImportBatch commits the importable records in fixed-size chunks with a
// bounded in-flight window. Chunks settle strictly in order; progress and
// statistics are only finalized once a whole chunk is done.
func (o *ImportOrchestrator) ImportBatch(batch *models.ImportBatch, opts ImportOptions, onProgress func(ImportProgress)) error {
	opts = opts.normalized()

	if !batch.CanImport() {
		return fmt.Errorf("batch %s is not ready for import (status %q)", batch.BatchCode, batch.Status)
	}
	if err := batch.StartImport(); err != nil {
		return err
	}

	importable := batch.ImportableRecords()
	chunks := chunkRecords(importable, opts.ChunkSize)
	var stop atomic.Bool

	for i, chunk := range chunks {
		o.importChunk(chunk, opts, &stop)
		batch.RecalculateStats()

		if onProgress != nil {
			onProgress(ImportProgress{
				Imported:      batch.ImportedRecords,
				Failed:        batch.FailedRecords,
				Remaining:     countRemaining(importable),
				ChunkProgress: float64(i+1) / float64(len(chunks)),
			})
		}

		if opts.StopOnError && stop.Load() {
			o.log.WithField("batch", batch.BatchCode).Warn("import stopped after first failure")
			break
		}
	}

	if err := batch.FinishImport(); err != nil {
		return err
	}

	o.log.WithFields(logrus.Fields{
		"batch":    batch.BatchCode,
		"imported": batch.ImportedRecords,
		"failed":   batch.FailedRecords,
		"status":   batch.Status,
	}).Info("batch import finished")

	return o.saveBatch(batch)
}

// importChunk runs one chunk with at most opts.Concurrency imports in
// flight. Each record is mutated only by its own goroutine; shared state
// is limited to the semaphore and the stop flag.
func (o *ImportOrchestrator) importChunk(records []*models.ImportRecord, opts ImportOptions, stop *atomic.Bool) {
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for _, rec := range records {
		if opts.StopOnError && stop.Load() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *models.ImportRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := o.importRecord(rec, opts); err != nil && opts.StopOnError {
				stop.Store(true)
			}
		}(rec)
	}
	wg.Wait()
}

// importRecord commits one record, retrying a bounded number of times
// with a fixed delay. Only exhausted retries mark the record failed.
func (o *ImportOrchestrator) importRecord(rec *models.ImportRecord, opts ImportOptions) error {
	if rec.EmployeeID == nil || rec.EntryDate == nil || rec.NetAmount == nil {
		err := errors.New("record is not fully mapped")
		_ = rec.MarkFailed(err, 0)
		return err
	}

	var lastErr error
	attempts := 0
	for attempts <= opts.RetryCount {
		attempts++
		_, err := o.revenue.AddEntry(*rec.EmployeeID, buildEntryInput(rec))
		if err == nil {
			rec.ImportAttempts = attempts
			return rec.MarkImported()
		}
		lastErr = err
		if attempts <= opts.RetryCount {
			time.Sleep(opts.RetryDelay)
		}
	}

	o.log.WithFields(logrus.Fields{
		"record":   rec.ID,
		"row":      rec.RowNumber,
		"attempts": attempts,
	}).WithError(lastErr).Warn("record import failed")

	_ = rec.MarkFailed(lastErr, attempts)
	return lastErr
}

// buildEntryInput maps a validated record onto the revenue create
// request. The external contract reference doubles as the human-facing
// contract number and the source reference the duplicate index keys on.
func buildEntryInput(rec *models.ImportRecord) models.RevenueEntryInput {
	return models.RevenueEntryInput{
		ContractNumber:  rec.ContractNumber,
		CustomerName:    rec.CustomerName(),
		Category:        rec.Category,
		ProvisionType:   rec.ProvisionType,
		Amount:          *rec.NetAmount,
		EntryDate:       *rec.EntryDate,
		Company:         rec.Company,
		Product:         rec.Tariff,
		Source:          "wifo_import",
		SourceReference: rec.ContractNumber,
	}
}

// GetRecentBatches lists persisted batches, newest first.
func (o *ImportOrchestrator) GetRecentBatches(limit int) ([]*models.ImportBatch, error) {
	if o.batches == nil {
		return nil, nil
	}
	return o.batches.FindRecent(limit)
}

// GetBatch loads one persisted batch including its records.
func (o *ImportOrchestrator) GetBatch(id int) (*models.ImportBatch, error) {
	if o.batches == nil {
		return nil, errors.New("batch store is not configured")
	}
	return o.batches.FindByID(id)
}

func (o *ImportOrchestrator) saveBatch(batch *models.ImportBatch) error {
	if o.batches == nil {
		return nil
	}
	batch.UpdatedAt = time.Now()
	if err := o.batches.Save(batch); err != nil {
		return fmt.Errorf("save batch %s: %w", batch.BatchCode, err)
	}
	return nil
}

// trySave persists best-effort while already handling a failure.
func (o *ImportOrchestrator) trySave(batch *models.ImportBatch) {
	if err := o.saveBatch(batch); err != nil {
		o.log.WithError(err).WithField("batch", batch.BatchCode).Error("persisting failed batch state")
	}
}

func chunkRecords(records []*models.ImportRecord, size int) [][]*models.ImportRecord {
	var chunks [][]*models.ImportRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

func countRemaining(records []*models.ImportRecord) int {
	n := 0
	for _, r := range records {
		if r.CanImport() {
			n++
		}
	}
	return n
}
