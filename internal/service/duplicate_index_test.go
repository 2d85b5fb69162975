package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commission-web/internal/models"
)

func entryDate() time.Time {
	return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
}

func persistedEntry(mod func(*models.RevenueEntry)) *models.RevenueEntry {
	e := &models.RevenueEntry{
		ID:             1,
		EmployeeID:     1,
		ContractNumber: "LV-2026-001",
		CustomerName:   "Max Mustermann",
		Amount:         150.00,
		EntryDate:      entryDate(),
		Source:         "manual",
	}
	if mod != nil {
		mod(e)
	}
	return e
}

func checkRecord(mod func(*models.ImportRecord)) *models.ImportRecord {
	d := entryDate()
	net := 150.00
	rec := &models.ImportRecord{
		RowNumber:         5,
		ContractNumber:    "LV-2026-001",
		ContractID:        "LV-2026-001",
		AgentName:         "Anna Schmidt",
		CustomerFirstName: "Max",
		CustomerLastName:  "Mustermann",
		EntryDate:         &d,
		NetAmount:         &net,
	}
	if mod != nil {
		mod(rec)
	}
	return rec
}

func TestCheckDuplicateSourceReference(t *testing.T) {
	// A previously imported entry keeps the statement reference.
	idx := NewDuplicateIndex([]*models.RevenueEntry{
		persistedEntry(func(e *models.RevenueEntry) {
			e.Source = "wifo_import"
			e.SourceReference = "LV-2026-001"
		}),
	})

	check := idx.CheckDuplicate(checkRecord(nil), 1)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, DuplicateExactContract, check.Type)
	assert.Equal(t, 1.0, check.Confidence)
	require.Len(t, check.Matches, 1)
}

func TestCheckDuplicateContractNumber(t *testing.T) {
	// Manually entered entry: no source reference, contract number only.
	idx := NewDuplicateIndex([]*models.RevenueEntry{persistedEntry(nil)})

	check := idx.CheckDuplicate(checkRecord(nil), 1)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, DuplicateContractMatch, check.Type)
	assert.Equal(t, 0.95, check.Confidence)
}

func TestCheckDuplicateDifferentEmployee(t *testing.T) {
	idx := NewDuplicateIndex([]*models.RevenueEntry{persistedEntry(nil)})

	check := idx.CheckDuplicate(checkRecord(nil), 2)
	assert.False(t, check.IsDuplicate)
	assert.Empty(t, check.Type)
}

func TestCheckDuplicateAmountDateSimilarCustomer(t *testing.T) {
	idx := NewDuplicateIndex([]*models.RevenueEntry{persistedEntry(nil)})

	// Different contract reference, but the same employee, day, amount and
	// customer point at the same commission.
	rec := checkRecord(func(r *models.ImportRecord) {
		r.ContractNumber = "LV-2026-XXX"
		r.ContractID = "LV-2026-XXX"
	})

	check := idx.CheckDuplicate(rec, 1)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, DuplicateAmountDate, check.Type)
	assert.Greater(t, check.Confidence, 0.9)
}

func TestCheckDuplicateAmountDateDifferentCustomer(t *testing.T) {
	idx := NewDuplicateIndex([]*models.RevenueEntry{persistedEntry(nil)})

	rec := checkRecord(func(r *models.ImportRecord) {
		r.ContractNumber = "LV-2026-XXX"
		r.ContractID = "LV-2026-XXX"
		r.CustomerFirstName = "Lisa"
		r.CustomerLastName = "Schulz"
	})

	check := idx.CheckDuplicate(rec, 1)
	assert.False(t, check.IsDuplicate)
	assert.Equal(t, DuplicatePotential, check.Type)
	assert.Equal(t, 0.6, check.Confidence)
}

func TestCheckDuplicateNegativeAmountMatchesAbsolute(t *testing.T) {
	idx := NewDuplicateIndex([]*models.RevenueEntry{persistedEntry(nil)})

	rec := checkRecord(func(r *models.ImportRecord) {
		r.ContractNumber = "LV-2026-XXX"
		r.ContractID = "LV-2026-XXX"
		neg := -150.00
		r.NetAmount = &neg
	})

	check := idx.CheckDuplicate(rec, 1)
	assert.Equal(t, DuplicateAmountDate, check.Type)
}

func TestCheckDuplicateEmptyIndex(t *testing.T) {
	idx := NewDuplicateIndex(nil)

	check := idx.CheckDuplicate(checkRecord(nil), 1)
	assert.False(t, check.IsDuplicate)
	assert.Empty(t, check.Type)
	assert.Zero(t, check.Confidence)
}

func TestFindInternalDuplicates(t *testing.T) {
	first := checkRecord(func(r *models.ImportRecord) { r.RowNumber = 2 })
	other := checkRecord(func(r *models.ImportRecord) {
		r.RowNumber = 3
		r.ContractID = "KV-999"
	})
	repeat := checkRecord(func(r *models.ImportRecord) { r.RowNumber = 4 })

	dups := FindInternalDuplicates([]*models.ImportRecord{first, other, repeat})

	require.Len(t, dups, 1)
	dup, ok := dups[2]
	require.True(t, ok, "only the repeated record is flagged")
	assert.Equal(t, 0, dup.FirstIndex)
	assert.Equal(t, 2, dup.FirstRowNumber)
}

func TestFindInternalDuplicatesAgentSeparatesGroups(t *testing.T) {
	a := checkRecord(func(r *models.ImportRecord) { r.AgentName = "Anna Schmidt" })
	b := checkRecord(func(r *models.ImportRecord) { r.AgentName = "Thomas Weber" })

	dups := FindInternalDuplicates([]*models.ImportRecord{a, b})
	assert.Empty(t, dups)
}
