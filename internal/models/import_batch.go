package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchPending            BatchStatus = "pending"
	BatchParsing            BatchStatus = "parsing"
	BatchValidating         BatchStatus = "validating"
	BatchReady              BatchStatus = "ready"
	BatchImporting          BatchStatus = "importing"
	BatchCompleted          BatchStatus = "completed"
	BatchPartiallyCompleted BatchStatus = "partially_completed"
	BatchFailed             BatchStatus = "failed"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:    {BatchParsing, BatchFailed},
	BatchParsing:    {BatchValidating, BatchFailed},
	BatchValidating: {BatchReady, BatchFailed},
	BatchReady:      {BatchImporting, BatchValidating, BatchFailed},
	BatchImporting:  {BatchCompleted, BatchPartiallyCompleted, BatchFailed},
}

// ImportBatch is the aggregate root for one uploaded statement file. It
// exclusively owns its records; counters are derived from record statuses
// and recomputed by scanning, never tracked independently.
type ImportBatch struct {
	ID           int         `db:"id" json:"id"`
	BatchCode    string      `db:"batch_code" json:"batch_code"`
	UserID       int         `db:"user_id" json:"user_id"`
	Filename     string      `db:"filename" json:"filename"`
	FileSize     int64       `db:"file_size" json:"file_size"`
	Status       BatchStatus `db:"status" json:"status"`
	ErrorMessage string      `db:"error_message" json:"error_message"`

	TotalRecords    int `db:"total_records" json:"total_records"`
	ValidRecords    int `db:"valid_records" json:"valid_records"`
	InvalidRecords  int `db:"invalid_records" json:"invalid_records"`
	WarningRecords  int `db:"warning_records" json:"warning_records"`
	ImportedRecords int `db:"imported_records" json:"imported_records"`
	FailedRecords   int `db:"failed_records" json:"failed_records"`
	SkippedRecords  int `db:"skipped_records" json:"skipped_records"`

	StartedAt   *time.Time `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	Records []*ImportRecord `db:"-" json:"records,omitempty"`
}

func NewImportBatch(filename string, fileSize int64, userID int) *ImportBatch {
	return &ImportBatch{
		BatchCode: fmt.Sprintf("WIFO-%s", uuid.New().String()[:8]),
		UserID:    userID,
		Filename:  filename,
		FileSize:  fileSize,
		Status:    BatchPending,
		CreatedAt: time.Now(),
	}
}

func (b *ImportBatch) transition(to BatchStatus) error {
	for _, allowed := range batchTransitions[b.Status] {
		if allowed == to {
			b.Status = to
			return nil
		}
	}
	return fmt.Errorf("batch %s: invalid transition from %q to %q", b.BatchCode, b.Status, to)
}

// SetRecords attaches the parsed rows after the parse phase and derives
// the initial counters.
func (b *ImportBatch) SetRecords(records []*ImportRecord) {
	for _, r := range records {
		r.BatchID = b.ID
	}
	b.Records = records
	b.RecalculateStats()
}

// AddRecord appends a single record, bumping only the affected counter.
func (b *ImportBatch) AddRecord(r *ImportRecord) {
	r.BatchID = b.ID
	b.Records = append(b.Records, r)
	b.TotalRecords++
	b.bump(r.Status, 1)
}

func (b *ImportBatch) bump(status RecordStatus, delta int) {
	switch status {
	case RecordValid:
		b.ValidRecords += delta
	case RecordInvalid:
		b.InvalidRecords += delta
	case RecordWarning:
		b.WarningRecords += delta
	case RecordImported:
		b.ImportedRecords += delta
	case RecordFailed:
		b.FailedRecords += delta
	case RecordSkipped:
		b.SkippedRecords += delta
	}
}

// RecalculateStats recomputes every counter from the literal record
// statuses. Called after any bulk mutation so counters cannot drift.
func (b *ImportBatch) RecalculateStats() {
	b.TotalRecords = len(b.Records)
	b.ValidRecords = 0
	b.InvalidRecords = 0
	b.WarningRecords = 0
	b.ImportedRecords = 0
	b.FailedRecords = 0
	b.SkippedRecords = 0
	for _, r := range b.Records {
		b.bump(r.Status, 1)
	}
}

// PendingRecords counts records not yet validated.
func (b *ImportBatch) PendingRecords() int {
	n := 0
	for _, r := range b.Records {
		if r.Status == RecordPending {
			n++
		}
	}
	return n
}

// ImportableRecords returns the records eligible for the import phase.
func (b *ImportBatch) ImportableRecords() []*ImportRecord {
	var out []*ImportRecord
	for _, r := range b.Records {
		if r.CanImport() {
			out = append(out, r)
		}
	}
	return out
}

// CanImport reports whether the batch is ready and has something to do.
func (b *ImportBatch) CanImport() bool {
	return b.Status == BatchReady && len(b.ImportableRecords()) > 0
}

func (b *ImportBatch) StartParsing() error {
	if err := b.transition(BatchParsing); err != nil {
		return err
	}
	now := time.Now()
	b.StartedAt = &now
	return nil
}

func (b *ImportBatch) StartValidation() error {
	return b.transition(BatchValidating)
}

// FinishValidation settles the batch after the validation pass: failed
// when nothing can be imported, ready otherwise.
func (b *ImportBatch) FinishValidation() error {
	if b.Status != BatchValidating {
		return fmt.Errorf("batch %s: cannot finish validation in status %q", b.BatchCode, b.Status)
	}
	b.RecalculateStats()
	switch {
	case b.TotalRecords > 0 && b.InvalidRecords == b.TotalRecords:
		b.Status = BatchFailed
		b.ErrorMessage = "all entries invalid"
	case len(b.ImportableRecords()) > 0:
		b.Status = BatchReady
	default:
		b.Status = BatchFailed
		b.ErrorMessage = "no importable entries"
	}
	return nil
}

func (b *ImportBatch) StartImport() error {
	return b.transition(BatchImporting)
}

// FinishImport settles the terminal batch status from the import counters.
func (b *ImportBatch) FinishImport() error {
	if b.Status != BatchImporting {
		return fmt.Errorf("batch %s: cannot finish import in status %q", b.BatchCode, b.Status)
	}
	b.RecalculateStats()
	now := time.Now()
	b.CompletedAt = &now
	switch {
	case b.ImportedRecords > 0 && b.FailedRecords > 0:
		b.Status = BatchPartiallyCompleted
	case b.ImportedRecords > 0:
		b.Status = BatchCompleted
	default:
		b.Status = BatchFailed
		b.ErrorMessage = "no entries imported"
	}
	return nil
}

// Fail puts the batch into the terminal failed state with a top-level
// message. Reachable from every non-terminal state.
func (b *ImportBatch) Fail(message string) {
	b.Status = BatchFailed
	b.ErrorMessage = message
	now := time.Now()
	b.CompletedAt = &now
}
