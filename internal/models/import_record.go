package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordValid    RecordStatus = "valid"
	RecordWarning  RecordStatus = "warning"
	RecordInvalid  RecordStatus = "invalid"
	RecordImported RecordStatus = "imported"
	RecordFailed   RecordStatus = "failed"
	RecordSkipped  RecordStatus = "skipped"
)

type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
	SeverityInfo    IssueSeverity = "info"
)

// ValidationIssue is one finding of the validation pipeline. Issues are
// data, not errors: a record keeps its full ordered issue list for
// operator review regardless of whether it blocks the import.
type ValidationIssue struct {
	Code     string                 `json:"code"`
	Field    string                 `json:"field,omitempty"`
	Severity IssueSeverity          `json:"severity"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// StatementRow is one raw line as delivered by the statement parser.
// Source-format concerns (column layout, date cells, decimal commas) are
// already resolved by the parser; nil numeric fields were empty cells.
type StatementRow struct {
	RowNumber         int
	RawValues         []string
	EntryDate         *time.Time
	ContractNumber    string
	ContractID        string
	CategoryCode      string
	ProvisionCode     string
	AgentName         string
	CustomerFirstName string
	CustomerLastName  string
	Tariff            string
	Company           string
	GrossAmount       *float64
	StornoReserve     *float64
	RiskBuffer        *float64
	NetAmount         *float64

	// ParseIssues reports cells the parser could read but not interpret
	// (bad date, non-numeric amount). The corresponding typed field stays
	// nil; validation turns these into blocking format errors.
	ParseIssues []ValidationIssue
}

// ImportRecord is one statement line moving through the import pipeline.
// It is created from a StatementRow, mutated once by validation and once
// by the import phase, and never deleted; a re-upload supersedes it with
// a fresh batch.
type ImportRecord struct {
	ID        string   `json:"id"`
	BatchID   int      `json:"batch_id"`
	RowNumber int      `json:"row_number"`
	RawValues []string `json:"raw_values"`

	EntryDate         *time.Time `json:"entry_date"`
	ContractNumber    string     `json:"contract_number"`
	ContractID        string     `json:"contract_id"`
	CategoryCode      string     `json:"category_code"`
	ProvisionCode     string     `json:"provision_code"`
	AgentName         string     `json:"agent_name"`
	CustomerFirstName string     `json:"customer_first_name"`
	CustomerLastName  string     `json:"customer_last_name"`
	Tariff            string     `json:"tariff"`
	Company           string     `json:"company"`
	GrossAmount       *float64   `json:"gross_amount"`
	StornoReserve     *float64   `json:"storno_reserve"`
	RiskBuffer        *float64   `json:"risk_buffer"`
	NetAmount         *float64   `json:"net_amount"`

	Status RecordStatus      `json:"status"`
	Issues []ValidationIssue `json:"issues,omitempty"`

	// ParseIssues carries format findings over from the parser until
	// validation folds them into Issues.
	ParseIssues []ValidationIssue `json:"-"`

	// Mapping state, nil/empty until validation resolves it.
	EmployeeID    *int   `json:"employee_id"`
	EmployeeName  string `json:"employee_name,omitempty"`
	Category      string `json:"category,omitempty"`
	ProvisionType string `json:"provision_type,omitempty"`

	ImportAttempts int `json:"import_attempts,omitempty"`
}

// NewImportRecord builds a pending record from a parsed statement row,
// keeping an immutable copy of the raw cell values.
func NewImportRecord(row StatementRow) *ImportRecord {
	raw := make([]string, len(row.RawValues))
	copy(raw, row.RawValues)

	return &ImportRecord{
		ID:                uuid.New().String(),
		RowNumber:         row.RowNumber,
		RawValues:         raw,
		EntryDate:         row.EntryDate,
		ContractNumber:    row.ContractNumber,
		ContractID:        row.ContractID,
		CategoryCode:      row.CategoryCode,
		ProvisionCode:     row.ProvisionCode,
		AgentName:         row.AgentName,
		CustomerFirstName: row.CustomerFirstName,
		CustomerLastName:  row.CustomerLastName,
		Tariff:            row.Tariff,
		Company:           row.Company,
		GrossAmount:       row.GrossAmount,
		StornoReserve:     row.StornoReserve,
		RiskBuffer:        row.RiskBuffer,
		NetAmount:         row.NetAmount,
		ParseIssues:       row.ParseIssues,
		Status:            RecordPending,
	}
}

// IsMapped reports whether agent and category mapping both succeeded.
func (r *ImportRecord) IsMapped() bool {
	return r.EmployeeID != nil && r.Category != ""
}

// CanImport reports whether the record may enter the import phase.
func (r *ImportRecord) CanImport() bool {
	return r.Status == RecordValid || r.Status == RecordWarning
}

func (r *ImportRecord) CustomerName() string {
	return strings.TrimSpace(strings.TrimSpace(r.CustomerFirstName) + " " + strings.TrimSpace(r.CustomerLastName))
}

func (r *ImportRecord) AddIssue(issue ValidationIssue) {
	r.Issues = append(r.Issues, issue)
}

func (r *ImportRecord) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *ImportRecord) HasWarnings() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// MarkValidated moves a pending record to its one-shot validation verdict.
func (r *ImportRecord) MarkValidated(status RecordStatus, issues []ValidationIssue) error {
	if r.Status != RecordPending {
		return fmt.Errorf("record %s: cannot validate in status %q", r.ID, r.Status)
	}
	if status != RecordValid && status != RecordWarning && status != RecordInvalid {
		return fmt.Errorf("record %s: %q is not a validation verdict", r.ID, status)
	}
	r.Status = status
	r.Issues = issues
	return nil
}

// MarkImported finalizes a successful per-record import.
func (r *ImportRecord) MarkImported() error {
	if !r.CanImport() {
		return fmt.Errorf("record %s: cannot import in status %q", r.ID, r.Status)
	}
	r.Status = RecordImported
	return nil
}

// MarkFailed records an exhausted import attempt. The last error is kept
// as a validation issue so the operator can diagnose it per record.
func (r *ImportRecord) MarkFailed(cause error, attempts int) error {
	if !r.CanImport() {
		return fmt.Errorf("record %s: cannot fail in status %q", r.ID, r.Status)
	}
	r.Status = RecordFailed
	r.ImportAttempts = attempts
	r.AddIssue(ValidationIssue{
		Code:     "import_failed",
		Severity: SeverityError,
		Message:  cause.Error(),
		Details:  map[string]interface{}{"attempts": attempts},
	})
	return nil
}

// MarkSkipped excludes an importable record by operator decision.
func (r *ImportRecord) MarkSkipped() error {
	if !r.CanImport() {
		return fmt.Errorf("record %s: cannot skip in status %q", r.ID, r.Status)
	}
	r.Status = RecordSkipped
	return nil
}
