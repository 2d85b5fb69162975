package models

import "time"

// RevenueEntry is a persisted commission entry. Source and SourceReference
// carry the external statement reference of imported entries; the duplicate
// index uses them to recognize a re-imported statement line.
type RevenueEntry struct {
	ID              int64     `db:"id" json:"id"`
	EmployeeID      int       `db:"employee_id" json:"employee_id"`
	ContractNumber  string    `db:"contract_number" json:"contract_number"`
	CustomerName    string    `db:"customer_name" json:"customer_name"`
	Category        string    `db:"category" json:"category"`
	ProvisionType   string    `db:"provision_type" json:"provision_type"`
	Amount          float64   `db:"amount" json:"amount"`
	EntryDate       time.Time `db:"entry_date" json:"entry_date"`
	Company         string    `db:"company" json:"company"`
	Product         string    `db:"product" json:"product"`
	Source          string    `db:"source" json:"source"`
	SourceReference string    `db:"source_reference" json:"source_reference"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// RevenueEntryInput is the create request handed to the revenue store when
// an import record is committed.
type RevenueEntryInput struct {
	ContractNumber  string    `json:"contract_number"`
	CustomerName    string    `json:"customer_name"`
	Category        string    `json:"category"`
	ProvisionType   string    `json:"provision_type"`
	Amount          float64   `json:"amount"`
	EntryDate       time.Time `json:"entry_date"`
	Company         string    `json:"company"`
	Product         string    `json:"product"`
	Source          string    `json:"source"`
	SourceReference string    `json:"source_reference"`
}

// RevenueQuery filters SearchEntries. Zero values mean "no filter".
type RevenueQuery struct {
	EmployeeID int
	Source     string
	Since      *time.Time
}
