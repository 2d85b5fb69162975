package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commission-web/internal/models"
)

func testEmployees() []models.Employee {
	return []models.Employee{
		{ID: 1, Name: "Anna Schmidt", FirstName: "Anna", LastName: "Schmidt", IsActive: true},
		{ID: 2, Name: "Thomas Weber", FirstName: "Thomas", LastName: "Weber", IsActive: true},
		{ID: 3, Name: "Jonas Müller", FirstName: "Jonas", LastName: "Müller", IsActive: true},
	}
}

func newTestPipeline(entries []*models.RevenueEntry) *ValidationPipeline {
	return NewValidationPipeline(testEmployees(), DefaultCodeMappings(), NewDuplicateIndex(entries), nil)
}

func cleanRow(rowNumber int, mod func(*models.StatementRow)) models.StatementRow {
	d := time.Now().AddDate(0, -1, 0)
	gross := 120.00
	storno := 12.00
	rb := 8.00
	net := 100.00
	row := models.StatementRow{
		RowNumber:         rowNumber,
		EntryDate:         &d,
		ContractNumber:    fmt.Sprintf("LV-2026-%03d", rowNumber),
		ContractID:        fmt.Sprintf("LV-2026-%03d", rowNumber),
		CategoryCode:      "LV",
		ProvisionCode:     "AP",
		AgentName:         "Anna Schmidt",
		CustomerFirstName: "Max",
		CustomerLastName:  "Mustermann",
		Tariff:            "Komfort",
		Company:           "Allianz",
		GrossAmount:       &gross,
		StornoReserve:     &storno,
		RiskBuffer:        &rb,
		NetAmount:         &net,
	}
	if mod != nil {
		mod(&row)
	}
	return row
}

func issueCodes(issues []models.ValidationIssue) []string {
	codes := make([]string, len(issues))
	for i, is := range issues {
		codes[i] = is.Code
	}
	return codes
}

func TestValidateRecordClean(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, nil)))

	assert.Equal(t, models.RecordValid, res.Status)
	assert.Empty(t, res.Issues)
	require.NotNil(t, res.EmployeeID)
	assert.Equal(t, 1, *res.EmployeeID)
	assert.Equal(t, "Anna Schmidt", res.EmployeeName)
	assert.Equal(t, "Lebensversicherung", res.Category)
	assert.Equal(t, "Abschlussprovision", res.ProvisionType)
}

func TestValidateRecordReversedAgentSpelling(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.AgentName = "Schmidt, Anna"
	})))

	assert.Equal(t, models.RecordValid, res.Status)
	assert.Empty(t, res.Issues, "the comma spelling resolves without a warning")
	require.NotNil(t, res.EmployeeID)
	assert.Equal(t, 1, *res.EmployeeID)
}

func TestValidateRecordMissingFields(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(models.StatementRow{RowNumber: 2}))

	assert.Equal(t, models.RecordInvalid, res.Status)
	codes := issueCodes(res.Issues)
	assert.Equal(t, []string{"missing_field", "missing_field", "missing_field", "missing_field"}, codes)

	fields := make([]string, len(res.Issues))
	for i, is := range res.Issues {
		fields[i] = is.Field
	}
	assert.ElementsMatch(t, []string{"net_amount", "agent_name", "category_code", "entry_date"}, fields)
}

func TestValidateRecordParseIssueBlocks(t *testing.T) {
	p := newTestPipeline(nil)

	rec := models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.GrossAmount = nil
		r.ParseIssues = []models.ValidationIssue{{
			Code:     "invalid_amount",
			Field:    "gross_amount",
			Severity: models.SeverityWarning,
			Message:  `cell "12,x0" is not a number`,
		}}
	}))

	res := p.ValidateRecord(rec)
	assert.Equal(t, models.RecordInvalid, res.Status)
	require.Contains(t, issueCodes(res.Issues), "invalid_amount")
	for _, is := range res.Issues {
		if is.Code == "invalid_amount" {
			assert.Equal(t, models.SeverityError, is.Severity)
		}
	}
}

func TestValidateRecordFutureDate(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		d := time.Now().Add(48 * time.Hour)
		r.EntryDate = &d
	})))

	assert.Equal(t, models.RecordWarning, res.Status)
	assert.Contains(t, issueCodes(res.Issues), "future_date")
}

func TestValidateRecordNegativeAmount(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		net := -100.00
		r.NetAmount = &net
		gross := -120.00
		r.GrossAmount = &gross
		storno := -12.00
		r.StornoReserve = &storno
		rb := -8.00
		r.RiskBuffer = &rb
	})))

	// Storno lines stay importable.
	assert.Equal(t, models.RecordWarning, res.Status)
	assert.Contains(t, issueCodes(res.Issues), "negative_amount")
}

func TestValidateRecordAmountMismatchIsAdvisory(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		net := 95.00 // gross 120 - 12 - 8 = 100
		r.NetAmount = &net
	})))

	assert.Equal(t, models.RecordValid, res.Status, "an info finding does not demote the record")
	require.Contains(t, issueCodes(res.Issues), "amount_mismatch")
	assert.Equal(t, models.SeverityInfo, res.Issues[0].Severity)
}

func TestValidateRecordFuzzyAgent(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.AgentName = "Tomas Webber"
	})))

	assert.Equal(t, models.RecordWarning, res.Status)
	require.NotNil(t, res.EmployeeID)
	assert.Equal(t, 2, *res.EmployeeID)
	assert.Equal(t, "Thomas Weber", res.EmployeeName)

	require.Contains(t, issueCodes(res.Issues), "fuzzy_agent_match")
	for _, is := range res.Issues {
		if is.Code == "fuzzy_agent_match" {
			assert.Equal(t, "Thomas Weber", is.Details["matched"])
			assert.Greater(t, is.Details["confidence"].(float64), 0.75)
		}
	}
}

func TestValidateRecordUnknownAgent(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.AgentName = "Anna Müller"
	})))

	assert.Equal(t, models.RecordInvalid, res.Status)
	assert.Nil(t, res.EmployeeID)

	require.Contains(t, issueCodes(res.Issues), "unknown_agent")
	for _, is := range res.Issues {
		if is.Code == "unknown_agent" {
			suggestions := is.Details["suggestions"].([]string)
			assert.NotEmpty(t, suggestions)
			assert.LessOrEqual(t, len(suggestions), 3)
			assert.Contains(t, suggestions, "Jonas Müller")
		}
	}
}

func TestValidateRecordUnknownCategory(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.CategoryCode = "XYZ"
	})))

	assert.Equal(t, models.RecordInvalid, res.Status)
	assert.Contains(t, issueCodes(res.Issues), "unknown_category")
	assert.Empty(t, res.Category)
}

func TestValidateRecordAliasCategory(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.CategoryCode = "DIV"
	})))

	assert.Equal(t, models.RecordValid, res.Status)
	assert.Equal(t, GenericCategory, res.Category)
}

func TestValidateRecordUnknownProvisionType(t *testing.T) {
	p := newTestPipeline(nil)

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.ProvisionCode = "QQ"
	})))

	assert.Equal(t, models.RecordWarning, res.Status)
	assert.Contains(t, issueCodes(res.Issues), "unknown_provision_type")
	assert.Equal(t, FallbackProvisionType, res.ProvisionType)
}

func TestValidateRecordDuplicateEntry(t *testing.T) {
	d := time.Now().AddDate(0, -1, 0)
	p := newTestPipeline([]*models.RevenueEntry{{
		EmployeeID:      1,
		ContractNumber:  "LV-2026-002",
		CustomerName:    "Max Mustermann",
		Amount:          100.00,
		EntryDate:       d,
		Source:          "wifo_import",
		SourceReference: "LV-2026-002",
	}})

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.EntryDate = &d
	})))

	assert.Equal(t, models.RecordInvalid, res.Status)
	assert.Contains(t, issueCodes(res.Issues), "duplicate_entry")
	require.NotNil(t, res.Duplicate)
	assert.Equal(t, DuplicateExactContract, res.Duplicate.Type)
}

func TestValidateRecordPotentialDuplicateWarns(t *testing.T) {
	d := time.Now().AddDate(0, -1, 0)
	p := newTestPipeline([]*models.RevenueEntry{{
		EmployeeID:     1,
		ContractNumber: "KV-555",
		CustomerName:   "Lisa Schulz",
		Amount:         100.00,
		EntryDate:      d,
	}})

	res := p.ValidateRecord(models.NewImportRecord(cleanRow(2, func(r *models.StatementRow) {
		r.EntryDate = &d
	})))

	assert.Equal(t, models.RecordWarning, res.Status)
	assert.Contains(t, issueCodes(res.Issues), "potential_duplicate")
	require.NotNil(t, res.Duplicate)
	assert.False(t, res.Duplicate.IsDuplicate)
}

func TestValidateBatch(t *testing.T) {
	p := newTestPipeline(nil)

	rows := []models.StatementRow{
		cleanRow(2, nil),
		cleanRow(3, func(r *models.StatementRow) { r.AgentName = "Thomas Weber" }),
		cleanRow(4, func(r *models.StatementRow) { r.AgentName = "Jonas Müller" }),
		cleanRow(5, func(r *models.StatementRow) { r.NetAmount = nil }),
		cleanRow(6, func(r *models.StatementRow) { r.AgentName = "Tomas Webber" }),
	}
	records := make([]*models.ImportRecord, len(rows))
	for i, row := range rows {
		records[i] = models.NewImportRecord(row)
	}

	batch := models.NewImportBatch("statement.xlsx", 2048, 1)
	require.NoError(t, batch.StartParsing())
	batch.SetRecords(records)

	var lastProcessed, lastTotal int
	require.NoError(t, p.ValidateBatch(batch, func(processed, total int) {
		lastProcessed, lastTotal = processed, total
	}))

	assert.Equal(t, models.BatchReady, batch.Status)
	assert.Equal(t, 5, batch.TotalRecords)
	assert.Equal(t, 3, batch.ValidRecords)
	assert.Equal(t, 1, batch.WarningRecords)
	assert.Equal(t, 1, batch.InvalidRecords)
	assert.Equal(t, 5, lastProcessed)
	assert.Equal(t, 5, lastTotal)

	assert.Equal(t, models.RecordInvalid, records[3].Status)
	assert.Equal(t, models.RecordWarning, records[4].Status)
	require.NotNil(t, records[4].EmployeeID)
	assert.Equal(t, 2, *records[4].EmployeeID)
}

func TestValidateBatchInternalDuplicate(t *testing.T) {
	p := newTestPipeline(nil)

	records := []*models.ImportRecord{
		models.NewImportRecord(cleanRow(2, nil)),
		models.NewImportRecord(cleanRow(3, func(r *models.StatementRow) {
			// Same contract, date, amount and agent as row 2.
			r.ContractNumber = "LV-2026-002"
			r.ContractID = "LV-2026-002"
		})),
	}

	batch := models.NewImportBatch("statement.xlsx", 2048, 1)
	require.NoError(t, batch.StartParsing())
	batch.SetRecords(records)
	require.NoError(t, p.ValidateBatch(batch, nil))

	assert.Equal(t, models.RecordValid, records[0].Status, "first occurrence is not penalized")
	assert.Equal(t, models.RecordWarning, records[1].Status)
	assert.Contains(t, issueCodes(records[1].Issues), "internal_duplicate")
}

func TestValidateBatchAllInvalid(t *testing.T) {
	p := newTestPipeline(nil)

	records := []*models.ImportRecord{
		models.NewImportRecord(models.StatementRow{RowNumber: 2}),
		models.NewImportRecord(models.StatementRow{RowNumber: 3}),
	}

	batch := models.NewImportBatch("statement.xlsx", 2048, 1)
	require.NoError(t, batch.StartParsing())
	batch.SetRecords(records)
	require.NoError(t, p.ValidateBatch(batch, nil))

	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Equal(t, "all entries invalid", batch.ErrorMessage)
}
