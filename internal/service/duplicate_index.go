package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"commission-web/internal/matching"
	"commission-web/internal/models"
)

// Duplicate verdict types, strongest first.
const (
	DuplicateExactContract = "exact_contract"
	DuplicateContractMatch = "contract_match"
	DuplicateAmountDate    = "amount_date_match"
	DuplicatePotential     = "potential_duplicate"
)

// DuplicateCheck is the verdict for one record against the persisted
// entries. A non-duplicate verdict can still carry a potential_duplicate
// type for operator review.
type DuplicateCheck struct {
	IsDuplicate bool                   `json:"is_duplicate"`
	Type        string                 `json:"type,omitempty"`
	Confidence  float64                `json:"confidence"`
	Matches     []*models.RevenueEntry `json:"matches,omitempty"`
}

// DuplicateIndex holds lookup keys over already-persisted revenue entries.
// It is rebuilt from scratch for every validation run and never persisted.
type DuplicateIndex struct {
	byContract map[string][]*models.RevenueEntry
	bySource   map[string][]*models.RevenueEntry
	byAmount   map[string][]*models.RevenueEntry
}

func NewDuplicateIndex(entries []*models.RevenueEntry) *DuplicateIndex {
	idx := &DuplicateIndex{
		byContract: make(map[string][]*models.RevenueEntry),
		bySource:   make(map[string][]*models.RevenueEntry),
		byAmount:   make(map[string][]*models.RevenueEntry),
	}
	for _, e := range entries {
		idx.add(e)
	}
	return idx
}

func (idx *DuplicateIndex) add(e *models.RevenueEntry) {
	if e.ContractNumber != "" {
		k := contractKey(e.ContractNumber, e.EmployeeID)
		idx.byContract[k] = append(idx.byContract[k], e)
	}
	// Only previously imported entries carry a source reference; this is
	// what makes an exact re-import recognizable.
	if e.SourceReference != "" {
		k := contractKey(e.SourceReference, e.EmployeeID)
		idx.bySource[k] = append(idx.bySource[k], e)
	}
	k := amountKey(e.EntryDate, e.Amount, e.EmployeeID)
	idx.byAmount[k] = append(idx.byAmount[k], e)
}

func contractKey(reference string, employeeID int) string {
	return fmt.Sprintf("%s|%d", matching.Normalize(reference), employeeID)
}

func amountKey(date time.Time, amount float64, employeeID int) string {
	return fmt.Sprintf("%s|%.2f|%d", date.Format("2006-01-02"), math.Abs(amount), employeeID)
}

// CheckDuplicate tests a record against the index, strongest key first.
// The record must already be resolved to an employee.
func (idx *DuplicateIndex) CheckDuplicate(rec *models.ImportRecord, employeeID int) DuplicateCheck {
	if rec.ContractNumber != "" {
		if matches := idx.bySource[contractKey(rec.ContractNumber, employeeID)]; len(matches) > 0 {
			return DuplicateCheck{IsDuplicate: true, Type: DuplicateExactContract, Confidence: 1.0, Matches: matches}
		}
		if matches := idx.byContract[contractKey(rec.ContractNumber, employeeID)]; len(matches) > 0 {
			return DuplicateCheck{IsDuplicate: true, Type: DuplicateContractMatch, Confidence: 0.95, Matches: matches}
		}
	}

	if rec.EntryDate != nil && rec.NetAmount != nil {
		matches := idx.byAmount[amountKey(*rec.EntryDate, *rec.NetAmount, employeeID)]
		if len(matches) > 0 {
			bestSim := 0.0
			for _, m := range matches {
				if sim := customerSimilarity(rec.CustomerName(), m.CustomerName); sim > bestSim {
					bestSim = sim
				}
			}
			if bestSim > 0.7 {
				return DuplicateCheck{IsDuplicate: true, Type: DuplicateAmountDate, Confidence: 0.8 + 0.15*bestSim, Matches: matches}
			}
			// Same employee, date and amount but a different customer:
			// surfaced for review, not blocking.
			return DuplicateCheck{IsDuplicate: false, Type: DuplicatePotential, Confidence: 0.6, Matches: matches}
		}
	}

	return DuplicateCheck{}
}

// customerSimilarity is a coarse name comparison for the amount-key path:
// substring containment counts 0.8, anything else the word-overlap ratio.
func customerSimilarity(a, b string) float64 {
	na := matching.Normalize(a)
	nb := matching.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}

	wa := strings.Fields(na)
	wb := strings.Fields(nb)
	common := 0
	for _, x := range wa {
		for _, y := range wb {
			if x == y {
				common++
				break
			}
		}
	}
	max := len(wa)
	if len(wb) > max {
		max = len(wb)
	}
	return float64(common) / float64(max)
}

// InternalDuplicate points a repeated in-batch record back to its first
// occurrence.
type InternalDuplicate struct {
	FirstIndex     int `json:"first_index"`
	FirstRowNumber int `json:"first_row_number"`
}

// FindInternalDuplicates groups records of the same batch by contract id,
// date, net amount and agent. Within a group every record after the first
// is flagged; the first occurrence is never penalized.
func FindInternalDuplicates(records []*models.ImportRecord) map[int]InternalDuplicate {
	groups := make(map[string][]int)
	for i, r := range records {
		k := internalKey(r)
		groups[k] = append(groups[k], i)
	}

	out := make(map[int]InternalDuplicate)
	for _, indices := range groups {
		if len(indices) < 2 {
			continue
		}
		first := indices[0]
		for _, i := range indices[1:] {
			out[i] = InternalDuplicate{FirstIndex: first, FirstRowNumber: records[first].RowNumber}
		}
	}
	return out
}

func internalKey(r *models.ImportRecord) string {
	date := ""
	if r.EntryDate != nil {
		date = r.EntryDate.Format("2006-01-02")
	}
	net := ""
	if r.NetAmount != nil {
		net = fmt.Sprintf("%.2f", *r.NetAmount)
	}
	return strings.Join([]string{
		matching.Normalize(r.ContractID),
		date,
		net,
		matching.Normalize(r.AgentName),
	}, "|")
}
