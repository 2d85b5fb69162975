package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validatedRecord(status RecordStatus) *ImportRecord {
	rec := NewImportRecord(StatementRow{RowNumber: 2})
	rec.Status = status
	return rec
}

func TestNewImportBatch(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 4096, 7)

	assert.True(t, strings.HasPrefix(b.BatchCode, "WIFO-"))
	assert.Len(t, b.BatchCode, len("WIFO-")+8)
	assert.Equal(t, BatchPending, b.Status)
	assert.Equal(t, "statement.xlsx", b.Filename)
	assert.Equal(t, int64(4096), b.FileSize)
	assert.Equal(t, 7, b.UserID)
	assert.Zero(t, b.TotalRecords)
}

func TestBatchTransitions(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)

	// Import cannot start before validation.
	assert.Error(t, b.StartImport())
	assert.Error(t, b.StartValidation())

	require.NoError(t, b.StartParsing())
	assert.Equal(t, BatchParsing, b.Status)
	assert.NotNil(t, b.StartedAt)

	assert.Error(t, b.StartParsing(), "parsing cannot restart")

	require.NoError(t, b.StartValidation())
	assert.Equal(t, BatchValidating, b.Status)
}

func TestBatchRevalidation(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)
	require.NoError(t, b.StartParsing())
	b.SetRecords([]*ImportRecord{NewImportRecord(StatementRow{RowNumber: 2})})
	require.NoError(t, b.StartValidation())
	b.Records[0].Status = RecordValid
	require.NoError(t, b.FinishValidation())
	require.Equal(t, BatchReady, b.Status)

	// A ready batch may be validated again after a mapping change.
	assert.NoError(t, b.StartValidation())
}

func TestSetRecordsDerivesCounters(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)
	b.ID = 42
	b.SetRecords([]*ImportRecord{
		validatedRecord(RecordValid),
		validatedRecord(RecordValid),
		validatedRecord(RecordWarning),
		validatedRecord(RecordInvalid),
	})

	assert.Equal(t, 4, b.TotalRecords)
	assert.Equal(t, 2, b.ValidRecords)
	assert.Equal(t, 1, b.WarningRecords)
	assert.Equal(t, 1, b.InvalidRecords)
	for _, r := range b.Records {
		assert.Equal(t, 42, r.BatchID)
	}
}

func TestAddRecord(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)
	b.AddRecord(validatedRecord(RecordValid))
	b.AddRecord(validatedRecord(RecordFailed))

	assert.Equal(t, 2, b.TotalRecords)
	assert.Equal(t, 1, b.ValidRecords)
	assert.Equal(t, 1, b.FailedRecords)
}

func TestRecalculateStats(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)
	b.SetRecords([]*ImportRecord{
		validatedRecord(RecordValid),
		validatedRecord(RecordValid),
	})

	b.Records[0].Status = RecordImported
	b.Records[1].Status = RecordSkipped
	b.RecalculateStats()

	assert.Zero(t, b.ValidRecords)
	assert.Equal(t, 1, b.ImportedRecords)
	assert.Equal(t, 1, b.SkippedRecords)
	assert.Equal(t, 2, b.TotalRecords)
}

func validatingBatch(statuses ...RecordStatus) *ImportBatch {
	b := NewImportBatch("statement.xlsx", 1, 1)
	if err := b.StartParsing(); err != nil {
		panic(err)
	}
	records := make([]*ImportRecord, len(statuses))
	for i, s := range statuses {
		records[i] = validatedRecord(s)
	}
	b.SetRecords(records)
	if err := b.StartValidation(); err != nil {
		panic(err)
	}
	return b
}

func TestFinishValidationReady(t *testing.T) {
	b := validatingBatch(RecordValid, RecordWarning, RecordInvalid)

	require.NoError(t, b.FinishValidation())
	assert.Equal(t, BatchReady, b.Status)
	assert.Len(t, b.ImportableRecords(), 2)
	assert.True(t, b.CanImport())
}

func TestFinishValidationAllInvalid(t *testing.T) {
	b := validatingBatch(RecordInvalid, RecordInvalid)

	require.NoError(t, b.FinishValidation())
	assert.Equal(t, BatchFailed, b.Status)
	assert.Equal(t, "all entries invalid", b.ErrorMessage)
	assert.False(t, b.CanImport())
}

func TestFinishValidationEmptyBatch(t *testing.T) {
	b := validatingBatch()

	require.NoError(t, b.FinishValidation())
	assert.Equal(t, BatchFailed, b.Status)
	assert.Equal(t, "no importable entries", b.ErrorMessage)
}

func TestFinishValidationWrongState(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)
	assert.Error(t, b.FinishValidation())
}

func importingBatch(statuses ...RecordStatus) *ImportBatch {
	b := validatingBatch(statuses...)
	if err := b.FinishValidation(); err != nil {
		panic(err)
	}
	if err := b.StartImport(); err != nil {
		panic(err)
	}
	return b
}

func TestFinishImportCompleted(t *testing.T) {
	b := importingBatch(RecordValid, RecordValid)
	b.Records[0].Status = RecordImported
	b.Records[1].Status = RecordImported

	require.NoError(t, b.FinishImport())
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 2, b.ImportedRecords)
	assert.NotNil(t, b.CompletedAt)
}

func TestFinishImportPartial(t *testing.T) {
	b := importingBatch(RecordValid, RecordValid)
	b.Records[0].Status = RecordImported
	b.Records[1].Status = RecordFailed

	require.NoError(t, b.FinishImport())
	assert.Equal(t, BatchPartiallyCompleted, b.Status)
}

func TestFinishImportNothingImported(t *testing.T) {
	b := importingBatch(RecordValid)
	b.Records[0].Status = RecordFailed

	require.NoError(t, b.FinishImport())
	assert.Equal(t, BatchFailed, b.Status)
	assert.Equal(t, "no entries imported", b.ErrorMessage)
}

func TestFailFromAnyState(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)
	b.Fail("upload vanished")

	assert.Equal(t, BatchFailed, b.Status)
	assert.Equal(t, "upload vanished", b.ErrorMessage)
	assert.NotNil(t, b.CompletedAt)
}

func TestPendingRecords(t *testing.T) {
	b := NewImportBatch("statement.xlsx", 1, 1)
	b.SetRecords([]*ImportRecord{
		validatedRecord(RecordPending),
		validatedRecord(RecordValid),
	})
	assert.Equal(t, 1, b.PendingRecords())
}

func TestRecordLifecycle(t *testing.T) {
	d := time.Now()
	net := 100.0
	rec := NewImportRecord(StatementRow{
		RowNumber:      2,
		RawValues:      []string{"15.03.2026", "LV-1"},
		ContractNumber: "LV-1",
		EntryDate:      &d,
		NetAmount:      &net,
	})

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, RecordPending, rec.Status)
	assert.False(t, rec.CanImport())
	assert.Error(t, rec.MarkImported())

	require.NoError(t, rec.MarkValidated(RecordValid, nil))
	assert.True(t, rec.CanImport())
	assert.Error(t, rec.MarkValidated(RecordValid, nil), "validation verdicts are one-shot")

	require.NoError(t, rec.MarkImported())
	assert.Equal(t, RecordImported, rec.Status)
	assert.Error(t, rec.MarkImported())
}

func TestRecordMarkValidatedRejectsNonVerdict(t *testing.T) {
	rec := NewImportRecord(StatementRow{RowNumber: 2})
	assert.Error(t, rec.MarkValidated(RecordImported, nil))
	assert.Equal(t, RecordPending, rec.Status)
}

func TestRecordMarkFailed(t *testing.T) {
	rec := validatedRecord(RecordWarning)

	require.NoError(t, rec.MarkFailed(errors.New("connection reset"), 2))
	assert.Equal(t, RecordFailed, rec.Status)
	assert.Equal(t, 2, rec.ImportAttempts)

	require.NotEmpty(t, rec.Issues)
	issue := rec.Issues[len(rec.Issues)-1]
	assert.Equal(t, "import_failed", issue.Code)
	assert.Equal(t, SeverityError, issue.Severity)
	assert.Equal(t, "connection reset", issue.Message)
}

func TestRecordMarkSkipped(t *testing.T) {
	rec := validatedRecord(RecordValid)
	require.NoError(t, rec.MarkSkipped())
	assert.Equal(t, RecordSkipped, rec.Status)

	invalid := validatedRecord(RecordInvalid)
	assert.Error(t, invalid.MarkSkipped())
}

func TestRecordCustomerName(t *testing.T) {
	rec := NewImportRecord(StatementRow{CustomerFirstName: " Max ", CustomerLastName: " Mustermann "})
	assert.Equal(t, "Max Mustermann", rec.CustomerName())

	rec = NewImportRecord(StatementRow{CustomerLastName: "Mustermann"})
	assert.Equal(t, "Mustermann", rec.CustomerName())
}

func TestRecordRawValuesCopied(t *testing.T) {
	raw := []string{"a", "b"}
	rec := NewImportRecord(StatementRow{RawValues: raw})
	raw[0] = "mutated"
	assert.Equal(t, "a", rec.RawValues[0])
}
