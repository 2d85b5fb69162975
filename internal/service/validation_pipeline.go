package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"commission-web/internal/matching"
	"commission-web/internal/models"
)

const (
	// FuzzyMatchThreshold accepts a non-exact agent match automatically.
	FuzzyMatchThreshold = 0.75
	// AmountTolerance is the allowed rounding slack in the gross/net check.
	AmountTolerance = 0.01
	// maxSuggestions caps the "did you mean" list on an agent miss.
	maxSuggestions = 3
	// progressInterval is how many records pass between progress callbacks.
	progressInterval = 50
)

// ValidationResult is the verdict for a single record: final status, the
// ordered issue list and the resolved mapping, if any.
type ValidationResult struct {
	Status        models.RecordStatus
	Issues        []models.ValidationIssue
	EmployeeID    *int
	EmployeeName  string
	Category      string
	ProvisionType string
	Duplicate     *DuplicateCheck
}

// ValidationPipeline runs the per-record rule chain. It works on
// read-only snapshots (employee directory, code mappings, duplicate
// index) built once per validation run.
type ValidationPipeline struct {
	employees     []models.Employee
	employeeNames []string
	exactLookup   map[string]int
	mappings      *CodeMappings
	dupIndex      *DuplicateIndex
	log           *logrus.Logger
}

func NewValidationPipeline(employees []models.Employee, mappings *CodeMappings, dupIndex *DuplicateIndex, log *logrus.Logger) *ValidationPipeline {
	if mappings == nil {
		mappings = DefaultCodeMappings()
	}
	if log == nil {
		log = logrus.New()
	}

	p := &ValidationPipeline{
		employees:     employees,
		employeeNames: make([]string, len(employees)),
		exactLookup:   make(map[string]int, len(employees)),
		mappings:      mappings,
		dupIndex:      dupIndex,
		log:           log,
	}
	for i, e := range employees {
		name := employeeDisplayName(e)
		p.employeeNames[i] = name
		p.exactLookup[matching.Normalize(name)] = i
		// A "Last, First" spelling on the statement side is covered by
		// the matcher; the reversed spelling gets its own exact key.
		if e.FirstName != "" && e.LastName != "" {
			p.exactLookup[matching.Normalize(e.LastName+" "+e.FirstName)] = i
		}
	}
	return p
}

func employeeDisplayName(e models.Employee) string {
	if e.Name != "" {
		return e.Name
	}
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// ValidateRecord runs the rule chain in fixed order and accumulates
// issues; it never mutates the record itself.
func (p *ValidationPipeline) ValidateRecord(rec *models.ImportRecord) ValidationResult {
	var res ValidationResult

	p.checkRequiredFields(rec, &res)
	p.checkFormats(rec, &res)
	p.checkBusinessRules(rec, &res)
	p.mapAgent(rec, &res)
	p.mapCategory(rec, &res)
	p.mapProvisionType(rec, &res)
	p.checkDuplicates(rec, &res)

	res.Status = statusFromIssues(res.Issues)
	return res
}

func (p *ValidationPipeline) checkRequiredFields(rec *models.ImportRecord, res *ValidationResult) {
	required := []struct {
		field   string
		missing bool
	}{
		{"net_amount", rec.NetAmount == nil},
		{"agent_name", strings.TrimSpace(rec.AgentName) == ""},
		{"category_code", strings.TrimSpace(rec.CategoryCode) == ""},
		{"entry_date", rec.EntryDate == nil},
	}
	for _, f := range required {
		if f.missing {
			res.Issues = append(res.Issues, models.ValidationIssue{
				Code:     "missing_field",
				Field:    f.field,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("required field %s is missing", f.field),
			})
		}
	}
}

// checkFormats folds parser findings (unreadable date or amount cells)
// into blocking errors.
func (p *ValidationPipeline) checkFormats(rec *models.ImportRecord, res *ValidationResult) {
	for _, issue := range rec.ParseIssues {
		issue.Severity = models.SeverityError
		res.Issues = append(res.Issues, issue)
	}
}

func (p *ValidationPipeline) checkBusinessRules(rec *models.ImportRecord, res *ValidationResult) {
	if rec.EntryDate != nil && rec.EntryDate.After(time.Now()) {
		res.Issues = append(res.Issues, models.ValidationIssue{
			Code:     "future_date",
			Field:    "entry_date",
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("entry date %s lies in the future", rec.EntryDate.Format("2006-01-02")),
		})
	}

	if rec.NetAmount != nil && *rec.NetAmount < 0 {
		res.Issues = append(res.Issues, models.ValidationIssue{
			Code:     "negative_amount",
			Field:    "net_amount",
			Severity: models.SeverityWarning,
			Message:  "net amount is negative (storno or chargeback)",
		})
	}

	// Statement arithmetic: gross minus deductions should equal net.
	// Rounding on the clearinghouse side makes this advisory only.
	if rec.GrossAmount != nil && rec.StornoReserve != nil && rec.RiskBuffer != nil && rec.NetAmount != nil {
		expected := *rec.GrossAmount - *rec.StornoReserve - *rec.RiskBuffer
		if diff := math.Abs(expected - *rec.NetAmount); diff > AmountTolerance {
			res.Issues = append(res.Issues, models.ValidationIssue{
				Code:     "amount_mismatch",
				Field:    "net_amount",
				Severity: models.SeverityInfo,
				Message:  fmt.Sprintf("gross minus deductions is %.2f but net is %.2f", expected, *rec.NetAmount),
				Details:  map[string]interface{}{"expected": expected, "difference": diff},
			})
		}
	}
}

func (p *ValidationPipeline) mapAgent(rec *models.ImportRecord, res *ValidationResult) {
	agent := strings.TrimSpace(rec.AgentName)
	if agent == "" {
		return // already an error from the required-field check
	}

	if i, ok := p.exactLookup[matching.Normalize(agent)]; ok {
		id := p.employees[i].ID
		res.EmployeeID = &id
		res.EmployeeName = p.employeeNames[i]
		return
	}

	best, found := matching.FindBestMatch(agent, p.employeeNames, FuzzyMatchThreshold)
	if found {
		id := p.employees[best.Index].ID
		res.EmployeeID = &id
		res.EmployeeName = best.Name
		res.Issues = append(res.Issues, models.ValidationIssue{
			Code:     "fuzzy_agent_match",
			Field:    "agent_name",
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("agent %q mapped to %q with confidence %.2f", agent, best.Name, best.Score),
			Details: map[string]interface{}{
				"confidence": best.Score,
				"match_type": best.MatchType,
				"matched":    best.Name,
			},
		})
		return
	}

	suggestions := matching.FindAllMatches(agent, p.employeeNames, matching.DefaultSuggestionScore)
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	names := make([]string, len(suggestions))
	for i, s := range suggestions {
		names[i] = s.Name
	}

	msg := fmt.Sprintf("agent %q not found in the employee directory", agent)
	if len(names) > 0 {
		msg += fmt.Sprintf(", did you mean: %s", strings.Join(names, ", "))
	}
	res.Issues = append(res.Issues, models.ValidationIssue{
		Code:     "unknown_agent",
		Field:    "agent_name",
		Severity: models.SeverityError,
		Message:  msg,
		Details: map[string]interface{}{
			"suggestions": names,
			"best_score":  best.Score,
		},
	})
}

func (p *ValidationPipeline) mapCategory(rec *models.ImportRecord, res *ValidationResult) {
	code := strings.TrimSpace(rec.CategoryCode)
	if code == "" {
		return
	}
	category, ok := p.mappings.ResolveCategory(code)
	if !ok {
		res.Issues = append(res.Issues, models.ValidationIssue{
			Code:     "unknown_category",
			Field:    "category_code",
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("Sparte code %q has no category mapping", code),
		})
		return
	}
	res.Category = category
}

func (p *ValidationPipeline) mapProvisionType(rec *models.ImportRecord, res *ValidationResult) {
	code := strings.TrimSpace(rec.ProvisionCode)
	if name, ok := p.mappings.ResolveProvisionType(code); ok {
		res.ProvisionType = name
		return
	}
	res.ProvisionType = FallbackProvisionType
	res.Issues = append(res.Issues, models.ValidationIssue{
		Code:     "unknown_provision_type",
		Field:    "provision_code",
		Severity: models.SeverityWarning,
		Message:  fmt.Sprintf("Provisionsart %q is unknown, defaulting to %s", code, FallbackProvisionType),
	})
}

func (p *ValidationPipeline) checkDuplicates(rec *models.ImportRecord, res *ValidationResult) {
	// Duplicate keys all include the employee; without a resolved agent
	// there is nothing to check against.
	if res.EmployeeID == nil || p.dupIndex == nil {
		return
	}

	check := p.dupIndex.CheckDuplicate(rec, *res.EmployeeID)
	if check.Type == "" {
		return
	}
	res.Duplicate = &check

	if check.IsDuplicate {
		res.Issues = append(res.Issues, models.ValidationIssue{
			Code:     "duplicate_entry",
			Field:    "contract_number",
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("entry already exists (%s, confidence %.2f)", check.Type, check.Confidence),
			Details:  map[string]interface{}{"type": check.Type, "confidence": check.Confidence},
		})
		return
	}
	if check.Confidence >= 0.5 {
		res.Issues = append(res.Issues, models.ValidationIssue{
			Code:     "potential_duplicate",
			Field:    "contract_number",
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("a similar entry exists for the same day and amount (confidence %.2f)", check.Confidence),
			Details:  map[string]interface{}{"type": check.Type, "confidence": check.Confidence},
		})
	}
}

func statusFromIssues(issues []models.ValidationIssue) models.RecordStatus {
	status := models.RecordValid
	for _, is := range issues {
		switch is.Severity {
		case models.SeverityError:
			return models.RecordInvalid
		case models.SeverityWarning:
			status = models.RecordWarning
		}
	}
	return status
}

// ValidateBatch validates every record in order. Intra-file duplicates
// are computed up front so a repeated line is flagged even when the
// persisted-entry index knows nothing about it yet.
func (p *ValidationPipeline) ValidateBatch(batch *models.ImportBatch, onProgress func(processed, total int)) error {
	if err := batch.StartValidation(); err != nil {
		return err
	}

	internal := FindInternalDuplicates(batch.Records)
	total := len(batch.Records)

	for i, rec := range batch.Records {
		res := p.ValidateRecord(rec)

		if dup, ok := internal[i]; ok {
			res.Issues = append(res.Issues, models.ValidationIssue{
				Code:     "internal_duplicate",
				Field:    "contract_id",
				Severity: models.SeverityWarning,
				Message:  fmt.Sprintf("row repeats row %d of this file", dup.FirstRowNumber),
				Details:  map[string]interface{}{"first_row": dup.FirstRowNumber},
			})
			if res.Status == models.RecordValid {
				res.Status = models.RecordWarning
			}
		}

		rec.EmployeeID = res.EmployeeID
		rec.EmployeeName = res.EmployeeName
		rec.Category = res.Category
		rec.ProvisionType = res.ProvisionType
		if err := rec.MarkValidated(res.Status, res.Issues); err != nil {
			return err
		}

		if onProgress != nil && (i+1)%progressInterval == 0 {
			onProgress(i+1, total)
		}
	}

	if onProgress != nil {
		onProgress(total, total)
	}

	if err := batch.FinishValidation(); err != nil {
		return err
	}

	p.log.WithFields(logrus.Fields{
		"batch":   batch.BatchCode,
		"total":   total,
		"valid":   batch.ValidRecords,
		"warning": batch.WarningRecords,
		"invalid": batch.InvalidRecords,
		"status":  batch.Status,
	}).Info("batch validation finished")

	return nil
}
