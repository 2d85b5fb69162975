package repository

import (
	"time"

	"github.com/jmoiron/sqlx"

	"commission-web/internal/models"
)

type RevenueRepository struct {
	db *sqlx.DB
}

func NewRevenueRepository(db *sqlx.DB) *RevenueRepository {
	return &RevenueRepository{db: db}
}

// AddEntry creates one commission entry for an employee.
func (r *RevenueRepository) AddEntry(employeeID int, input models.RevenueEntryInput) (*models.RevenueEntry, error) {
	entry := models.RevenueEntry{
		EmployeeID:      employeeID,
		ContractNumber:  input.ContractNumber,
		CustomerName:    input.CustomerName,
		Category:        input.Category,
		ProvisionType:   input.ProvisionType,
		Amount:          input.Amount,
		EntryDate:       input.EntryDate,
		Company:         input.Company,
		Product:         input.Product,
		Source:          input.Source,
		SourceReference: input.SourceReference,
		CreatedAt:       time.Now(),
	}

	query := `INSERT INTO revenue_entries (employee_id, contract_number, customer_name,
	          category, provision_type, amount, entry_date, company, product,
	          source, source_reference, created_at)
	          VALUES (:employee_id, :contract_number, :customer_name,
	          :category, :provision_type, :amount, :entry_date, :company, :product,
	          :source, :source_reference, :created_at)`
	result, err := r.db.NamedExec(query, &entry)
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()
	entry.ID = id
	return &entry, nil
}

// SearchEntries filters the persisted entries; zero-value query fields are
// ignored. The duplicate index loads its corpus through this.
func (r *RevenueRepository) SearchEntries(query models.RevenueQuery) ([]*models.RevenueEntry, error) {
	var entries []*models.RevenueEntry

	sql := "SELECT * FROM revenue_entries"
	where := ""
	args := []interface{}{}

	if query.EmployeeID > 0 {
		where = appendCondition(where, "employee_id = ?")
		args = append(args, query.EmployeeID)
	}
	if query.Source != "" {
		where = appendCondition(where, "source = ?")
		args = append(args, query.Source)
	}
	if query.Since != nil {
		where = appendCondition(where, "entry_date >= ?")
		args = append(args, *query.Since)
	}

	sql += where + " ORDER BY entry_date DESC, id DESC"
	err := r.db.Select(&entries, sql, args...)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *RevenueRepository) FindByID(id int64) (*models.RevenueEntry, error) {
	var entry models.RevenueEntry
	query := "SELECT * FROM revenue_entries WHERE id = ? LIMIT 1"
	err := r.db.Get(&entry, query, id)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func appendCondition(where, condition string) string {
	if where == "" {
		return " WHERE " + condition
	}
	return where + " AND " + condition
}
